// Package tax computes the tax breakdown frozen into invoices at finalize
// time. Rates are table-driven per jurisdiction; amounts are computed in
// cents with decimal arithmetic so rounding is deterministic.
package tax

import (
	"context"
	"fmt"
	"sync"

	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/billcraft/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Profile is a jurisdiction's rate table
type Profile struct {
	Jurisdiction string
	Name         string
	RateKind     string
	RateBps      int64
}

// DEStandardVAT is the default profile applied when a tenant has none
var DEStandardVAT = Profile{
	Jurisdiction: "DE",
	Name:         "DE standard VAT 19%",
	RateKind:     "standard",
	RateBps:      1900,
}

// StaticEngine implements invoicing.TaxEngine from an in-memory profile
// table. Tenants without an explicit profile get the default.
type StaticEngine struct {
	mu             sync.RWMutex
	profiles       map[uuid.UUID]Profile
	defaultProfile Profile
}

// NewStaticEngine creates a StaticEngine with the given default profile
func NewStaticEngine(defaultProfile Profile) *StaticEngine {
	return &StaticEngine{
		profiles:       make(map[uuid.UUID]Profile),
		defaultProfile: defaultProfile,
	}
}

// SetProfile assigns a tenant-specific profile
func (e *StaticEngine) SetProfile(tenantID uuid.UUID, p Profile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profiles[tenantID] = p
}

func (e *StaticEngine) profileFor(tenantID uuid.UUID) Profile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.profiles[tenantID]; ok {
		return p
	}
	return e.defaultProfile
}

// ComputeSnapshot computes the frozen tax breakdown for the given lines.
// Each line is taxed independently and rounded half-up to the cent; the
// document total is the sum of the rounded lines, so the snapshot is
// internally consistent no matter how the lines combine.
func (e *StaticEngine) ComputeSnapshot(ctx context.Context, tenantID uuid.UUID, lines []invoicing.TaxLineInput, currency valueobject.Currency) (*invoicing.TaxSnapshot, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrMissingTenant
	}
	if !currency.IsValid() {
		return nil, shared.NewValidationError("INVALID_CURRENCY", fmt.Sprintf("Unsupported currency %q", currency), "currency")
	}

	profile := e.profileFor(tenantID)
	rate := decimal.NewFromInt(profile.RateBps).Div(decimal.NewFromInt(10000))

	taxLines := make([]invoicing.TaxLine, len(lines))
	var total int64
	subtotals := map[string]*invoicing.TaxKindSubtotal{}
	kindOrder := []string{}

	for i, line := range lines {
		if line.NetCents < 0 {
			return nil, shared.NewValidationError("INVALID_AMOUNT", "Line net amount cannot be negative", "lines")
		}

		taxCents := decimal.NewFromInt(line.NetCents).Mul(rate).Round(0).IntPart()
		taxLines[i] = invoicing.TaxLine{
			LineItemID: line.LineItemID,
			RateBps:    profile.RateBps,
			RateKind:   profile.RateKind,
			NetCents:   line.NetCents,
			TaxCents:   taxCents,
		}
		total += taxCents

		sub, ok := subtotals[profile.RateKind]
		if !ok {
			sub = &invoicing.TaxKindSubtotal{RateKind: profile.RateKind, RateBps: profile.RateBps}
			subtotals[profile.RateKind] = sub
			kindOrder = append(kindOrder, profile.RateKind)
		}
		sub.NetCents += line.NetCents
		sub.TaxCents += taxCents
	}

	kindSubtotals := make([]invoicing.TaxKindSubtotal, len(kindOrder))
	for i, kind := range kindOrder {
		kindSubtotals[i] = *subtotals[kind]
	}

	return &invoicing.TaxSnapshot{
		Jurisdiction:        profile.Jurisdiction,
		ProfileName:         profile.Name,
		Lines:               taxLines,
		KindSubtotals:       kindSubtotals,
		TaxTotalAmountCents: total,
	}, nil
}

// Ensure StaticEngine implements TaxEngine
var _ invoicing.TaxEngine = (*StaticEngine)(nil)
