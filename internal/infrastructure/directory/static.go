// Package directory provides the snapshot sources the invoice engine freezes
// data from: customers, payment instructions, issuing entities and reminder
// policies. The static implementations are registry backed and seeded at
// startup; deployments with a real CRM or entity service swap them for
// adapters against those systems.
package directory

import (
	"context"
	"sync"

	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// StaticCustomerDirectory resolves bill-to snapshots from an in-process
// registry keyed by tenant and customer
type StaticCustomerDirectory struct {
	mu        sync.RWMutex
	customers map[uuid.UUID]map[uuid.UUID]invoicing.BillToSnapshot
}

// NewStaticCustomerDirectory creates an empty customer directory
func NewStaticCustomerDirectory() *StaticCustomerDirectory {
	return &StaticCustomerDirectory{
		customers: make(map[uuid.UUID]map[uuid.UUID]invoicing.BillToSnapshot),
	}
}

// Upsert registers or replaces a customer's bill-to data
func (d *StaticCustomerDirectory) Upsert(tenantID uuid.UUID, billTo invoicing.BillToSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.customers[tenantID] == nil {
		d.customers[tenantID] = make(map[uuid.UUID]invoicing.BillToSnapshot)
	}
	d.customers[tenantID][billTo.CustomerID] = billTo
}

// GetBillTo implements invoicing.CustomerQuery
func (d *StaticCustomerDirectory) GetBillTo(ctx context.Context, tenantID, customerID uuid.UUID) (*invoicing.BillToSnapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if billTo, ok := d.customers[tenantID][customerID]; ok {
		clone := billTo
		return &clone, nil
	}
	return nil, shared.NewDomainError(shared.KindNotFound, "CUSTOMER_NOT_FOUND", "Customer is not known to this tenant")
}

// StaticPaymentMethods resolves payment instructions per tenant, falling
// back to a shared default when the tenant has none of its own
type StaticPaymentMethods struct {
	mu         sync.RWMutex
	byTenant   map[uuid.UUID]invoicing.PaymentSnapshot
	defaultPay *invoicing.PaymentSnapshot
}

// NewStaticPaymentMethods creates a payment method registry. defaultPay may
// be nil, in which case unconfigured tenants cannot finalize invoices.
func NewStaticPaymentMethods(defaultPay *invoicing.PaymentSnapshot) *StaticPaymentMethods {
	return &StaticPaymentMethods{
		byTenant:   make(map[uuid.UUID]invoicing.PaymentSnapshot),
		defaultPay: defaultPay,
	}
}

// Set registers a tenant's payment instructions
func (p *StaticPaymentMethods) Set(tenantID uuid.UUID, snapshot invoicing.PaymentSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byTenant[tenantID] = snapshot
}

// GetPaymentInstructions implements invoicing.PaymentMethodQuery
func (p *StaticPaymentMethods) GetPaymentInstructions(ctx context.Context, tenantID uuid.UUID) (*invoicing.PaymentSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if snapshot, ok := p.byTenant[tenantID]; ok {
		clone := snapshot
		return &clone, nil
	}
	if p.defaultPay != nil {
		clone := *p.defaultPay
		return &clone, nil
	}
	return nil, shared.NewDomainError(shared.KindNotFound, "PAYMENT_METHOD_NOT_CONFIGURED", "No payment instructions configured for tenant")
}

// StaticLegalEntities resolves the issuing entity per tenant
type StaticLegalEntities struct {
	mu            sync.RWMutex
	byTenant      map[uuid.UUID]invoicing.IssuerSnapshot
	defaultIssuer *invoicing.IssuerSnapshot
}

// NewStaticLegalEntities creates a legal entity registry
func NewStaticLegalEntities(defaultIssuer *invoicing.IssuerSnapshot) *StaticLegalEntities {
	return &StaticLegalEntities{
		byTenant:      make(map[uuid.UUID]invoicing.IssuerSnapshot),
		defaultIssuer: defaultIssuer,
	}
}

// Set registers a tenant's issuing entity
func (l *StaticLegalEntities) Set(tenantID uuid.UUID, snapshot invoicing.IssuerSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byTenant[tenantID] = snapshot
}

// GetIssuer implements invoicing.LegalEntityQuery
func (l *StaticLegalEntities) GetIssuer(ctx context.Context, tenantID uuid.UUID) (*invoicing.IssuerSnapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if snapshot, ok := l.byTenant[tenantID]; ok {
		clone := snapshot
		return &clone, nil
	}
	if l.defaultIssuer != nil {
		clone := *l.defaultIssuer
		return &clone, nil
	}
	return nil, shared.NewDomainError(shared.KindNotFound, "ISSUER_NOT_CONFIGURED", "No issuing entity configured for tenant")
}

// StaticPolicyProvider resolves reminder policies per tenant, with the
// domain default for tenants that never customized theirs
type StaticPolicyProvider struct {
	mu       sync.RWMutex
	byTenant map[uuid.UUID]invoicing.ReminderPolicy
}

// NewStaticPolicyProvider creates a policy registry
func NewStaticPolicyProvider() *StaticPolicyProvider {
	return &StaticPolicyProvider{
		byTenant: make(map[uuid.UUID]invoicing.ReminderPolicy),
	}
}

// Set registers a tenant's reminder policy
func (p *StaticPolicyProvider) Set(tenantID uuid.UUID, policy invoicing.ReminderPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byTenant[tenantID] = policy
}

// GetPolicy implements invoicing.ReminderPolicyProvider
func (p *StaticPolicyProvider) GetPolicy(ctx context.Context, tenantID uuid.UUID) (invoicing.ReminderPolicy, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if policy, ok := p.byTenant[tenantID]; ok {
		return policy, nil
	}
	return invoicing.DefaultReminderPolicy(), nil
}

// Interface guards
var (
	_ invoicing.CustomerQuery          = (*StaticCustomerDirectory)(nil)
	_ invoicing.PaymentMethodQuery     = (*StaticPaymentMethods)(nil)
	_ invoicing.LegalEntityQuery       = (*StaticLegalEntities)(nil)
	_ invoicing.ReminderPolicyProvider = (*StaticPolicyProvider)(nil)
)
