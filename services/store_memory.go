package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/giftshift/giftshift-go/errors"
	"github.com/giftshift/giftshift-go/models"
)

// NewMemoryShiftStore returns a ShiftStore backed by a process-local map,
// mirroring the SQL store's upsert semantics. Used by tests and local runs
// without a database.
func NewMemoryShiftStore() ShiftStore {
	return &memoryShiftStore{shifts: make(map[string]*models.Shift)}
}

type memoryShiftStore struct {
	mu     sync.Mutex
	shifts map[string]*models.Shift
}

func (m *memoryShiftStore) Upsert(_ context.Context, shift *models.Shift) error {
	if shift.ID == "" {
		return errors.NewPersistenceError(fmt.Errorf("shift id is empty"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.shifts[shift.ID]
	if !ok {
		clone := *shift
		if clone.Status == models.Complete_ShiftStatus && clone.CompletedAt == nil {
			completed := clone.UpdatedAt
			clone.CompletedAt = &completed
		}
		m.shifts[shift.ID] = &clone
		return nil
	}

	if !existing.Status.Terminal() {
		existing.Status = shift.Status
	}
	if shift.SettleAmount > 0 {
		existing.SettleAmount = shift.SettleAmount
	}
	if shift.DepositTxHash != nil {
		existing.DepositTxHash = shift.DepositTxHash
	}
	if shift.SettleTxHash != nil {
		existing.SettleTxHash = shift.SettleTxHash
	}
	existing.UpdatedAt = shift.UpdatedAt
	if existing.CompletedAt == nil && existing.Status == models.Complete_ShiftStatus {
		completed := shift.UpdatedAt
		existing.CompletedAt = &completed
	}
	return nil
}

func (m *memoryShiftStore) GetShift(_ context.Context, shiftID string) (*models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	shift, ok := m.shifts[shiftID]
	if !ok {
		return nil, errors.NewNotFoundError("shift not found")
	}
	clone := *shift
	return &clone, nil
}

func (m *memoryShiftStore) ListByUser(_ context.Context, userID string, limit, offset uint64) ([]*models.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]*models.Shift, 0)
	for _, shift := range m.shifts {
		if shift.UserID != nil && *shift.UserID == userID {
			clone := *shift
			matched = append(matched, &clone)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= uint64(len(matched)) {
		return []*models.Shift{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < uint64(len(matched)) {
		matched = matched[:limit]
	}
	return matched, nil
}
