package invoicing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// Snapshots are data copied into the invoice when it is finalized. They are
// immune to later changes in the source records: editing a customer after an
// invoice is issued must never change what the issued document says.

// BillToSnapshot freezes the customer identity and address at finalize time
type BillToSnapshot struct {
	CustomerID   uuid.UUID `json:"customer_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	AddressLine1 string    `json:"address_line1,omitempty"`
	AddressLine2 string    `json:"address_line2,omitempty"`
	PostalCode   string    `json:"postal_code,omitempty"`
	City         string    `json:"city,omitempty"`
	Country      string    `json:"country,omitempty"`
	VATNumber    string    `json:"vat_number,omitempty"`
}

// TaxLine is the frozen tax treatment of a single invoice line
type TaxLine struct {
	LineItemID uuid.UUID `json:"line_item_id"`
	RateBps    int64     `json:"rate_bps"`
	RateKind   string    `json:"rate_kind"` // e.g. "standard", "reduced", "exempt"
	NetCents   int64     `json:"net_cents"`
	TaxCents   int64     `json:"tax_cents"`
}

// TaxKindSubtotal aggregates tax per rate kind for document rendering
type TaxKindSubtotal struct {
	RateKind string `json:"rate_kind"`
	RateBps  int64  `json:"rate_bps"`
	NetCents int64  `json:"net_cents"`
	TaxCents int64  `json:"tax_cents"`
}

// TaxSnapshot is the frozen tax breakdown computed at finalize time
type TaxSnapshot struct {
	Jurisdiction        string            `json:"jurisdiction"` // e.g. "DE"
	ProfileName         string            `json:"profile_name"` // e.g. "DE standard VAT 19%"
	Lines               []TaxLine         `json:"lines"`
	KindSubtotals       []TaxKindSubtotal `json:"kind_subtotals"`
	TaxTotalAmountCents int64             `json:"tax_total_amount_cents"`
}

// PaymentSnapshot freezes the payment instructions printed on the document
type PaymentSnapshot struct {
	MethodKind    string `json:"method_kind"` // e.g. "bank_transfer"
	AccountHolder string `json:"account_holder,omitempty"`
	IBAN          string `json:"iban,omitempty"`
	BIC           string `json:"bic,omitempty"`
	Reference     string `json:"reference,omitempty"`
}

// IssuerSnapshot freezes the issuing legal entity
type IssuerSnapshot struct {
	LegalName    string `json:"legal_name"`
	AddressLine1 string `json:"address_line1,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country,omitempty"`
	VATNumber    string `json:"vat_number,omitempty"`
	TaxNumber    string `json:"tax_number,omitempty"`
}

// snapshotValue marshals a snapshot pointer for JSONB storage; nil stays NULL
func snapshotValue(v any) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// snapshotScan unmarshals JSONB into dst, tolerating NULL
func snapshotScan(dst any, value any) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan snapshot: unsupported type")
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, dst)
}

// Value implements driver.Valuer for JSONB storage
func (s *BillToSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return snapshotValue(*s)
}

// Scan implements sql.Scanner
func (s *BillToSnapshot) Scan(value any) error { return snapshotScan(s, value) }

// Value implements driver.Valuer for JSONB storage
func (s *TaxSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return snapshotValue(*s)
}

// Scan implements sql.Scanner
func (s *TaxSnapshot) Scan(value any) error { return snapshotScan(s, value) }

// Value implements driver.Valuer for JSONB storage
func (s *PaymentSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return snapshotValue(*s)
}

// Scan implements sql.Scanner
func (s *PaymentSnapshot) Scan(value any) error { return snapshotScan(s, value) }

// Value implements driver.Valuer for JSONB storage
func (s *IssuerSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return snapshotValue(*s)
}

// Scan implements sql.Scanner
func (s *IssuerSnapshot) Scan(value any) error { return snapshotScan(s, value) }
