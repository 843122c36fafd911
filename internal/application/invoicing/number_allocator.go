package invoicing

import (
	"context"
	"fmt"

	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// maxNumberAttempts bounds the allocate-and-probe loop. The unique index on
// (tenant_id, number) remains the authoritative duplicate guard; the loop
// only absorbs benign races between concurrent finalizations.
const maxNumberAttempts = 5

// NumberAllocator proposes sequential document numbers per tenant and year.
// Gaps are acceptable (a failed finalization burns its candidate); duplicates
// are not, and storage enforces that, not this allocator.
type NumberAllocator struct {
	invoiceRepo invoicing.InvoiceRepository
}

// NewNumberAllocator creates a new NumberAllocator
func NewNumberAllocator(invoiceRepo invoicing.InvoiceRepository) *NumberAllocator {
	return &NumberAllocator{invoiceRepo: invoiceRepo}
}

// FormatNumber renders a sequence as a document number, e.g. INV-2026-000042
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%06d", year, seq)
}

// Next proposes the next free number for the tenant and year. A proposal can
// still lose the race to a concurrent finalization; callers retry on
// shared.ErrAlreadyExists from the save.
func (a *NumberAllocator) Next(ctx context.Context, tenantID uuid.UUID, year int) (string, error) {
	maxSeq, err := a.invoiceRepo.MaxNumberSequence(ctx, tenantID, year)
	if err != nil {
		return "", fmt.Errorf("failed to read number sequence: %w", err)
	}

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		candidate := FormatNumber(year, maxSeq+1+int64(attempt))
		taken, err := a.invoiceRepo.IsNumberTaken(ctx, tenantID, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to probe number %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", shared.NewConflictError("NUMBER_ALLOCATION_FAILED",
		fmt.Sprintf("Could not allocate an invoice number after %d attempts", maxNumberAttempts))
}
