package directory

import (
	"context"
	"testing"

	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticCustomerDirectory(t *testing.T) {
	dir := NewStaticCustomerDirectory()
	tenantID := uuid.New()
	customerID := uuid.New()

	dir.Upsert(tenantID, invoicing.BillToSnapshot{
		CustomerID: customerID,
		Name:       "Acme GmbH",
		Email:      "billing@acme.example",
	})

	billTo, err := dir.GetBillTo(context.Background(), tenantID, customerID)
	require.NoError(t, err)
	assert.Equal(t, "Acme GmbH", billTo.Name)

	_, err = dir.GetBillTo(context.Background(), tenantID, uuid.New())
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))

	// Tenant isolation
	_, err = dir.GetBillTo(context.Background(), uuid.New(), customerID)
	assert.Error(t, err)
}

func TestStaticPaymentMethods_TenantOverridesDefault(t *testing.T) {
	methods := NewStaticPaymentMethods(&invoicing.PaymentSnapshot{
		MethodKind: "bank_transfer",
		IBAN:       "DE02120300000000202051",
	})
	tenantID := uuid.New()

	snapshot, err := methods.GetPaymentInstructions(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, "DE02120300000000202051", snapshot.IBAN)

	methods.Set(tenantID, invoicing.PaymentSnapshot{MethodKind: "sepa_debit", Reference: "MANDATE-7"})
	snapshot, err = methods.GetPaymentInstructions(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, "sepa_debit", snapshot.MethodKind)
}

func TestStaticPaymentMethods_NoDefault(t *testing.T) {
	methods := NewStaticPaymentMethods(nil)
	_, err := methods.GetPaymentInstructions(context.Background(), uuid.New())
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestStaticLegalEntities(t *testing.T) {
	entities := NewStaticLegalEntities(&invoicing.IssuerSnapshot{LegalName: "Billcraft GmbH"})
	tenantID := uuid.New()

	issuer, err := entities.GetIssuer(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, "Billcraft GmbH", issuer.LegalName)

	entities.Set(tenantID, invoicing.IssuerSnapshot{LegalName: "Billcraft France SAS"})
	issuer, err = entities.GetIssuer(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, "Billcraft France SAS", issuer.LegalName)
}

func TestStaticPolicyProvider_DefaultsWhenUnset(t *testing.T) {
	policies := NewStaticPolicyProvider()
	tenantID := uuid.New()

	policy, err := policies.GetPolicy(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, invoicing.DefaultReminderPolicy(), policy)

	custom := invoicing.ReminderPolicy{StartAfterDays: 3, IntervalDays: 5, MaxReminders: 2}
	policies.Set(tenantID, custom)
	policy, err = policies.GetPolicy(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, custom, policy)
}
