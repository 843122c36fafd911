package invoicing

import (
	"context"
	"testing"

	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "INV-2026-000001", FormatNumber(2026, 1))
	assert.Equal(t, "INV-2026-000042", FormatNumber(2026, 42))
	assert.Equal(t, "INV-2025-123456", FormatNumber(2025, 123456))
	assert.Equal(t, "INV-2026-1000000", FormatNumber(2026, 1000000), "sequences beyond the pad width keep all digits")
}

func TestNumberAllocator_Next(t *testing.T) {
	tenantID := uuid.New()

	t.Run("first free candidate", func(t *testing.T) {
		repo := new(MockInvoiceRepository)
		repo.On("MaxNumberSequence", mock.Anything, tenantID, 2026).Return(int64(41), nil)
		repo.On("IsNumberTaken", mock.Anything, tenantID, "INV-2026-000042").Return(false, nil)

		number, err := NewNumberAllocator(repo).Next(context.Background(), tenantID, 2026)
		require.NoError(t, err)
		assert.Equal(t, "INV-2026-000042", number)
	})

	t.Run("skips taken candidates", func(t *testing.T) {
		repo := new(MockInvoiceRepository)
		repo.On("MaxNumberSequence", mock.Anything, tenantID, 2026).Return(int64(10), nil)
		repo.On("IsNumberTaken", mock.Anything, tenantID, "INV-2026-000011").Return(true, nil)
		repo.On("IsNumberTaken", mock.Anything, tenantID, "INV-2026-000012").Return(false, nil)

		number, err := NewNumberAllocator(repo).Next(context.Background(), tenantID, 2026)
		require.NoError(t, err)
		assert.Equal(t, "INV-2026-000012", number)
	})

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		repo := new(MockInvoiceRepository)
		repo.On("MaxNumberSequence", mock.Anything, tenantID, 2026).Return(int64(0), nil)
		repo.On("IsNumberTaken", mock.Anything, tenantID, mock.Anything).Return(true, nil)

		_, err := NewNumberAllocator(repo).Next(context.Background(), tenantID, 2026)
		require.Error(t, err)
		assert.Equal(t, shared.KindConflict, shared.KindOf(err))
		repo.AssertNumberOfCalls(t, "IsNumberTaken", maxNumberAttempts)
	})

	t.Run("starts fresh per year", func(t *testing.T) {
		repo := new(MockInvoiceRepository)
		repo.On("MaxNumberSequence", mock.Anything, tenantID, 2027).Return(int64(0), nil)
		repo.On("IsNumberTaken", mock.Anything, tenantID, "INV-2027-000001").Return(false, nil)

		number, err := NewNumberAllocator(repo).Next(context.Background(), tenantID, 2027)
		require.NoError(t, err)
		assert.Equal(t, "INV-2027-000001", number)
	})
}
