package invoicing

import (
	"testing"
	"time"

	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/billcraft/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // a Monday

// Test helpers

func newTestDraft(t *testing.T) *Invoice {
	t.Helper()
	inv, err := NewInvoice(uuid.New(), valueobject.EUR, testNow)
	require.NoError(t, err)

	customerID := uuid.New()
	lines := []LineItem{{Description: "Consulting", Quantity: 1, UnitPriceCents: 10000}}
	err = inv.UpdateDraft(DraftUpdate{CustomerID: &customerID, LineItems: &lines}, testNow)
	require.NoError(t, err)
	return inv
}

func testSnapshots(inv *Invoice) (BillToSnapshot, TaxSnapshot, PaymentSnapshot, IssuerSnapshot) {
	billTo := BillToSnapshot{CustomerID: *inv.CustomerID, Name: "Acme GmbH", City: "Berlin", Country: "DE"}

	var taxLines []TaxLine
	var net, tax int64
	for _, li := range inv.LineItems {
		lineTax := valueobject.MustTaxRate(1900).ApplyTo(li.AmountCents())
		taxLines = append(taxLines, TaxLine{
			LineItemID: li.ID, RateBps: 1900, RateKind: "standard",
			NetCents: li.AmountCents(), TaxCents: lineTax,
		})
		net += li.AmountCents()
		tax += lineTax
	}
	taxSnap := TaxSnapshot{
		Jurisdiction: "DE",
		ProfileName:  "DE standard VAT 19%",
		Lines:        taxLines,
		KindSubtotals: []TaxKindSubtotal{
			{RateKind: "standard", RateBps: 1900, NetCents: net, TaxCents: tax},
		},
		TaxTotalAmountCents: tax,
	}
	payment := PaymentSnapshot{MethodKind: "bank_transfer", IBAN: "DE02120300000000202051"}
	issuer := IssuerSnapshot{LegalName: "Billcraft GmbH", City: "Berlin", Country: "DE"}
	return billTo, taxSnap, payment, issuer
}

func finalizeTestInvoice(t *testing.T, inv *Invoice) {
	t.Helper()
	billTo, tax, payment, issuer := testSnapshots(inv)
	require.NoError(t, inv.Finalize("INV-2026-000001", billTo, tax, payment, issuer, testNow))
}

// ============================================
// InvoiceStatus Tests
// ============================================

func TestInvoiceStatus_IsValid(t *testing.T) {
	tests := []struct {
		status  InvoiceStatus
		isValid bool
	}{
		{InvoiceStatusDraft, true},
		{InvoiceStatusIssued, true},
		{InvoiceStatusSent, true},
		{InvoiceStatusPaid, true},
		{InvoiceStatusCanceled, true},
		{InvoiceStatus("INVALID"), false},
		{InvoiceStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.isValid, tt.status.IsValid())
		})
	}
}

func TestInvoiceStatus_IsTerminal(t *testing.T) {
	assert.False(t, InvoiceStatusDraft.IsTerminal())
	assert.False(t, InvoiceStatusIssued.IsTerminal())
	assert.False(t, InvoiceStatusSent.IsTerminal())
	assert.True(t, InvoiceStatusPaid.IsTerminal())
	assert.True(t, InvoiceStatusCanceled.IsTerminal())
}

func TestInvoiceStatus_CanRecordPayment(t *testing.T) {
	assert.False(t, InvoiceStatusDraft.CanRecordPayment())
	assert.True(t, InvoiceStatusIssued.CanRecordPayment())
	assert.True(t, InvoiceStatusSent.CanRecordPayment())
	assert.False(t, InvoiceStatusPaid.CanRecordPayment())
	assert.False(t, InvoiceStatusCanceled.CanRecordPayment())
}

// ============================================
// Construction and draft editing
// ============================================

func TestNewInvoice(t *testing.T) {
	tenantID := uuid.New()
	inv, err := NewInvoice(tenantID, valueobject.EUR, testNow)
	require.NoError(t, err)

	assert.Equal(t, InvoiceStatusDraft, inv.Status)
	assert.Equal(t, tenantID, inv.TenantID)
	assert.Nil(t, inv.Number)
	assert.Empty(t, inv.LineItems)
	assert.Equal(t, Totals{}, inv.Totals)
	assert.Len(t, inv.GetDomainEvents(), 1)
	assert.Equal(t, "InvoiceCreated", inv.GetDomainEvents()[0].EventType())
}

func TestNewInvoice_RequiresTenant(t *testing.T) {
	_, err := NewInvoice(uuid.Nil, valueobject.EUR, testNow)
	assert.ErrorIs(t, err, shared.ErrMissingTenant)
}

func TestNewInvoice_DefaultsCurrency(t *testing.T) {
	inv, err := NewInvoice(uuid.New(), "", testNow)
	require.NoError(t, err)
	assert.Equal(t, valueobject.DefaultCurrency, inv.Currency)

	_, err = NewInvoice(uuid.New(), valueobject.Currency("XXX"), testNow)
	assert.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestUpdateDraft_RecomputesTotals(t *testing.T) {
	inv := newTestDraft(t)
	assert.Equal(t, int64(10000), inv.Totals.SubtotalCents)
	assert.Equal(t, int64(10000), inv.Totals.TotalCents)
	assert.Equal(t, int64(10000), inv.Totals.DueCents)

	lines := []LineItem{
		{Description: "Consulting", Quantity: 2, UnitPriceCents: 10000},
		{Description: "Travel", Quantity: 1, UnitPriceCents: 2500},
	}
	discount := int64(500)
	require.NoError(t, inv.UpdateDraft(DraftUpdate{LineItems: &lines, DiscountCents: &discount}, testNow))

	assert.Equal(t, int64(22500), inv.Totals.SubtotalCents)
	assert.Equal(t, int64(500), inv.Totals.DiscountCents)
	assert.Equal(t, int64(22000), inv.Totals.TotalCents)
	assert.Equal(t, int64(22000), inv.Totals.DueCents)
}

func TestUpdateDraft_ValidatesLines(t *testing.T) {
	inv := newTestDraft(t)

	bad := []LineItem{{Description: "x", Quantity: 0, UnitPriceCents: 100}}
	err := inv.UpdateDraft(DraftUpdate{LineItems: &bad}, testNow)
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	negative := []LineItem{{Description: "x", Quantity: 1, UnitPriceCents: -1}}
	err = inv.UpdateDraft(DraftUpdate{LineItems: &negative}, testNow)
	require.Error(t, err)

	badDiscount := int64(-1)
	err = inv.UpdateDraft(DraftUpdate{DiscountCents: &badDiscount}, testNow)
	require.Error(t, err)
}

func TestUpdateDraft_RejectedAfterFinalize(t *testing.T) {
	inv := newTestDraft(t)
	finalizeTestInvoice(t, inv)

	before := inv.UpdatedAt
	lines := []LineItem{{Description: "Late edit", Quantity: 1, UnitPriceCents: 1}}
	err := inv.UpdateDraft(DraftUpdate{LineItems: &lines}, testNow.Add(time.Hour))

	require.Error(t, err)
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
	assert.Equal(t, before, inv.UpdatedAt, "a rejected command must leave the invoice unmodified")
	assert.Equal(t, int64(10000), inv.Totals.SubtotalCents)
}

func TestUpdateNotes_AfterFinalize(t *testing.T) {
	inv := newTestDraft(t)
	finalizeTestInvoice(t, inv)

	notes := "Payment received with thanks"
	require.NoError(t, inv.UpdateNotes(&notes, nil, testNow.Add(time.Hour)))
	assert.Equal(t, notes, inv.Notes)

	require.NoError(t, inv.Cancel("", testNow.Add(2*time.Hour)))
	// Invoice now canceled; cancel above only succeeds because no payments exist
	err := inv.UpdateNotes(&notes, nil, testNow.Add(3*time.Hour))
	assert.Error(t, err)
}

// ============================================
// Finalize
// ============================================

func TestFinalize(t *testing.T) {
	inv := newTestDraft(t)
	billTo, tax, payment, issuer := testSnapshots(inv)

	err := inv.Finalize("INV-2026-000042", billTo, tax, payment, issuer, testNow)
	require.NoError(t, err)

	assert.Equal(t, InvoiceStatusIssued, inv.Status)
	require.NotNil(t, inv.Number)
	assert.Equal(t, "INV-2026-000042", *inv.Number)
	require.NotNil(t, inv.IssuedAt)
	require.NotNil(t, inv.InvoiceDate)
	require.NotNil(t, inv.TaxSnapshot)
	assert.Equal(t, "DE standard VAT 19%", inv.TaxSnapshot.ProfileName)

	// Concrete scenario from the DE standard VAT profile: 100.00 net -> 19.00 tax
	assert.Equal(t, int64(1900), inv.TaxSnapshot.TaxTotalAmountCents)
	assert.Equal(t, Totals{
		SubtotalCents: 10000,
		TaxCents:      1900,
		TotalCents:    11900,
		PaidCents:     0,
		DueCents:      11900,
	}, inv.Totals)
}

func TestFinalize_Preconditions(t *testing.T) {
	t.Run("requires line items", func(t *testing.T) {
		inv, err := NewInvoice(uuid.New(), valueobject.EUR, testNow)
		require.NoError(t, err)
		customerID := uuid.New()
		require.NoError(t, inv.UpdateDraft(DraftUpdate{CustomerID: &customerID}, testNow))

		billTo, tax, payment, issuer := BillToSnapshot{}, TaxSnapshot{}, PaymentSnapshot{}, IssuerSnapshot{}
		err = inv.Finalize("INV-2026-000001", billTo, tax, payment, issuer, testNow)
		require.Error(t, err)
		assert.Equal(t, shared.KindConflict, shared.KindOf(err))
		assert.Equal(t, InvoiceStatusDraft, inv.Status)
	})

	t.Run("requires customer", func(t *testing.T) {
		inv, err := NewInvoice(uuid.New(), valueobject.EUR, testNow)
		require.NoError(t, err)
		lines := []LineItem{{Description: "x", Quantity: 1, UnitPriceCents: 100}}
		require.NoError(t, inv.UpdateDraft(DraftUpdate{LineItems: &lines}, testNow))

		err = inv.Finalize("INV-2026-000001", BillToSnapshot{}, TaxSnapshot{}, PaymentSnapshot{}, IssuerSnapshot{}, testNow)
		require.Error(t, err)
		assert.Equal(t, InvoiceStatusDraft, inv.Status)
	})

	t.Run("rejects empty number", func(t *testing.T) {
		inv := newTestDraft(t)
		billTo, tax, payment, issuer := testSnapshots(inv)
		err := inv.Finalize("", billTo, tax, payment, issuer, testNow)
		require.Error(t, err)
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	})

	t.Run("conflict on non-draft", func(t *testing.T) {
		inv := newTestDraft(t)
		finalizeTestInvoice(t, inv)

		billTo, tax, payment, issuer := testSnapshots(inv)
		err := inv.Finalize("INV-2026-000002", billTo, tax, payment, issuer, testNow)
		require.Error(t, err)
		assert.Equal(t, shared.KindConflict, shared.KindOf(err))
		assert.Equal(t, "INV-2026-000001", *inv.Number, "the assigned number must not change")
	})
}

// ============================================
// Send
// ============================================

func TestMarkSent(t *testing.T) {
	inv := newTestDraft(t)
	finalizeTestInvoice(t, inv)

	require.NoError(t, inv.MarkSent(testNow))
	assert.Equal(t, InvoiceStatusSent, inv.Status)
	require.NotNil(t, inv.SentAt)

	// Re-sending is legal and refreshes the timestamp
	later := testNow.Add(time.Hour)
	require.NoError(t, inv.MarkSent(later))
	assert.Equal(t, later, *inv.SentAt)
}

func TestMarkSent_Conflicts(t *testing.T) {
	t.Run("draft", func(t *testing.T) {
		inv := newTestDraft(t)
		err := inv.MarkSent(testNow)
		require.Error(t, err)
		assert.Equal(t, shared.KindConflict, shared.KindOf(err))
	})

	t.Run("canceled", func(t *testing.T) {
		inv := newTestDraft(t)
		require.NoError(t, inv.Cancel("duplicate", testNow))
		before := inv.UpdatedAt
		err := inv.MarkSent(testNow.Add(time.Hour))
		require.Error(t, err)
		assert.Equal(t, before, inv.UpdatedAt)
	})
}

// ============================================
// Payments
// ============================================

func TestRecordPayment_PartialThenFull(t *testing.T) {
	inv := newTestDraft(t)
	finalizeTestInvoice(t, inv)

	// Concrete scenario: 70.00 against 119.00 leaves 49.00 due, not yet PAID
	require.NoError(t, inv.RecordPayment(7000, testNow, "wire", testNow))
	assert.Equal(t, int64(7000), inv.Totals.PaidCents)
	assert.Equal(t, int64(4900), inv.Totals.DueCents)
	assert.Equal(t, InvoiceStatusIssued, inv.Status)
	assert.True(t, inv.IsPartiallyPaid())

	// The remaining 49.00 flips the invoice to PAID
	require.NoError(t, inv.RecordPayment(4900, testNow, "", testNow))
	assert.Equal(t, int64(11900), inv.Totals.PaidCents)
	assert.Equal(t, int64(0), inv.Totals.DueCents)
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	require.NotNil(t, inv.PaidAt)
}

func TestRecordPayment_Overpayment(t *testing.T) {
	inv := newTestDraft(t)
	finalizeTestInvoice(t, inv)

	require.NoError(t, inv.RecordPayment(20000, testNow, "", testNow))
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	assert.Equal(t, int64(20000), inv.Totals.PaidCents)
	assert.Equal(t, int64(0), inv.Totals.DueCents, "due is clamped at zero")
}

func TestRecordPayment_Rejections(t *testing.T) {
	t.Run("draft", func(t *testing.T) {
		inv := newTestDraft(t)
		err := inv.RecordPayment(100, testNow, "", testNow)
		require.Error(t, err)
		assert.Equal(t, shared.KindConflict, shared.KindOf(err))
		assert.Empty(t, inv.Payments)
	})

	t.Run("canceled", func(t *testing.T) {
		inv := newTestDraft(t)
		require.NoError(t, inv.Cancel("", testNow))
		err := inv.RecordPayment(100, testNow, "", testNow)
		require.Error(t, err)
	})

	t.Run("already paid", func(t *testing.T) {
		inv := newTestDraft(t)
		finalizeTestInvoice(t, inv)
		require.NoError(t, inv.RecordPayment(11900, testNow, "", testNow))
		err := inv.RecordPayment(1, testNow, "", testNow)
		require.Error(t, err)
		assert.Len(t, inv.Payments, 1)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		inv := newTestDraft(t)
		finalizeTestInvoice(t, inv)
		for _, amount := range []int64{0, -100} {
			err := inv.RecordPayment(amount, testNow, "", testNow)
			require.Error(t, err)
			assert.Equal(t, shared.KindValidation, shared.KindOf(err))
		}
	})
}

func TestTotalsInvariant_AcrossMutations(t *testing.T) {
	inv := newTestDraft(t)

	check := func() {
		t.Helper()
		assert.Equal(t, inv.Totals.TotalCents, inv.Totals.SubtotalCents+inv.Totals.TaxCents-inv.Totals.DiscountCents)
		expectedDue := inv.Totals.TotalCents - inv.Totals.PaidCents
		if expectedDue < 0 {
			expectedDue = 0
		}
		assert.Equal(t, expectedDue, inv.Totals.DueCents)
		var paid int64
		for _, p := range inv.Payments {
			paid += p.AmountCents
		}
		assert.Equal(t, paid, inv.Totals.PaidCents)
	}

	check()
	lines := []LineItem{
		{Description: "a", Quantity: 3, UnitPriceCents: 333},
		{Description: "b", Quantity: 7, UnitPriceCents: 101},
	}
	discount := int64(99)
	require.NoError(t, inv.UpdateDraft(DraftUpdate{LineItems: &lines, DiscountCents: &discount}, testNow))
	check()

	finalizeTestInvoice(t, inv)
	check()

	require.NoError(t, inv.RecordPayment(500, testNow, "", testNow))
	check()
	require.NoError(t, inv.RecordPayment(100000, testNow, "", testNow))
	check()
}

// ============================================
// Cancel
// ============================================

func TestCancel(t *testing.T) {
	t.Run("draft cancels unconditionally", func(t *testing.T) {
		inv := newTestDraft(t)
		require.NoError(t, inv.Cancel("customer withdrew", testNow))
		assert.Equal(t, InvoiceStatusCanceled, inv.Status)
		require.NotNil(t, inv.CanceledAt)
		assert.Equal(t, "customer withdrew", inv.CancelReason)
	})

	t.Run("issued without payments", func(t *testing.T) {
		inv := newTestDraft(t)
		finalizeTestInvoice(t, inv)
		require.NoError(t, inv.Cancel("wrong customer", testNow))
		assert.Equal(t, InvoiceStatusCanceled, inv.Status)
	})

	t.Run("rejected once a payment exists", func(t *testing.T) {
		inv := newTestDraft(t)
		finalizeTestInvoice(t, inv)
		require.NoError(t, inv.RecordPayment(100, testNow, "", testNow))

		err := inv.Cancel("too late", testNow)
		require.Error(t, err)
		de, ok := err.(*shared.DomainError)
		require.True(t, ok)
		assert.Equal(t, "HAS_PAYMENTS", de.Code)
		assert.Equal(t, InvoiceStatusIssued, inv.Status)
	})

	t.Run("rejected from terminal states", func(t *testing.T) {
		inv := newTestDraft(t)
		finalizeTestInvoice(t, inv)
		require.NoError(t, inv.RecordPayment(11900, testNow, "", testNow))
		require.Error(t, inv.Cancel("", testNow))

		inv2 := newTestDraft(t)
		require.NoError(t, inv2.Cancel("", testNow))
		require.Error(t, inv2.Cancel("again", testNow))
	})
}

// ============================================
// Duplicate
// ============================================

func TestDuplicate(t *testing.T) {
	inv := newTestDraft(t)
	inv.Notes = "net 14"
	finalizeTestInvoice(t, inv)
	require.NoError(t, inv.RecordPayment(11900, testNow, "", testNow))

	dup, err := inv.Duplicate(testNow.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, InvoiceStatusDraft, dup.Status)
	assert.Nil(t, dup.Number)
	assert.Nil(t, dup.TaxSnapshot)
	assert.Empty(t, dup.Payments)
	assert.Equal(t, inv.CustomerID, dup.CustomerID)
	assert.Equal(t, inv.Notes, dup.Notes)
	require.Len(t, dup.LineItems, 1)
	assert.Equal(t, inv.LineItems[0].Description, dup.LineItems[0].Description)
	assert.NotEqual(t, inv.LineItems[0].ID, dup.LineItems[0].ID, "line IDs are regenerated")
	assert.Equal(t, int64(10000), dup.Totals.SubtotalCents)
}

// ============================================
// Snapshot immutability
// ============================================

func TestSnapshots_FrozenAtFinalize(t *testing.T) {
	inv := newTestDraft(t)
	billTo, tax, payment, issuer := testSnapshots(inv)
	require.NoError(t, inv.Finalize("INV-2026-000001", billTo, tax, payment, issuer, testNow))

	// Mutating the caller's copy after finalize must not leak into the invoice
	billTo.Name = "Renamed Customer Ltd"
	tax.TaxTotalAmountCents = 0

	assert.Equal(t, "Acme GmbH", inv.BillToSnapshot.Name)
	assert.Equal(t, int64(1900), inv.TaxSnapshot.TaxTotalAmountCents)
}
