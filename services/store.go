package services

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/errors"
	"github.com/giftshift/giftshift-go/models"
)

// ShiftStore persists shift records keyed by the exchange-assigned shift ID.
// Upsert must be a single atomic conditional write: inserting a new ID or
// updating status-derived fields of an existing one, without ever producing
// a duplicate row or regressing a terminal status.
type ShiftStore interface {
	Upsert(ctx context.Context, shift *models.Shift) error
	GetShift(ctx context.Context, shiftID string) (*models.Shift, error)
	ListByUser(ctx context.Context, userID string, limit, offset uint64) ([]*models.Shift, error)
}

func NewShiftStore(dataDatabase *sql.DB, log *zap.Logger) ShiftStore {
	return &shiftStore{dataDB: dataDatabase, log: log}
}

type shiftStore struct {
	dataDB *sql.DB
	log    *zap.Logger
}

const shiftColumns = "id, user_id, quote_id, from_coin, from_network, to_coin, to_network, " +
	"deposit_amount, settle_amount, deposit_address, settle_address, status, " +
	"deposit_tx_hash, settle_tx_hash, created_at, updated_at, completed_at"

// Upsert relies on the primary key on shifts.id. The ON DUPLICATE KEY UPDATE
// clause enforces the lifecycle invariants in SQL so concurrent refreshes of
// the same shift stay correct without application locking: a terminal status
// is never overwritten, completed_at is stamped exactly once, created_at is
// never touched on update.
func (s *shiftStore) Upsert(ctx context.Context, shift *models.Shift) error {
	completedAt := shift.CompletedAt
	if completedAt == nil && shift.Status == models.Complete_ShiftStatus {
		stamped := shift.UpdatedAt
		completedAt = &stamped
	}

	_, err := upsertShiftQuery(shift, completedAt).
		RunWith(s.dataDB).
		ExecContext(ctx)

	if err != nil {
		return errors.HandleDataDBError(err)
	}
	return nil
}

func upsertShiftQuery(shift *models.Shift, completedAt *time.Time) sq.InsertBuilder {
	return sq.
		Insert("shifts").
		Columns("id", "user_id", "quote_id", "from_coin", "from_network", "to_coin", "to_network",
			"deposit_amount", "settle_amount", "deposit_address", "settle_address", "status",
			"deposit_tx_hash", "settle_tx_hash", "created_at", "updated_at", "completed_at").
		Values(shift.ID, shift.UserID, shift.QuoteID, shift.FromCoin, shift.FromNetwork, shift.ToCoin, shift.ToNetwork,
			shift.DepositAmount, shift.SettleAmount, shift.DepositAddress, shift.SettleAddress, shift.Status,
			shift.DepositTxHash, shift.SettleTxHash, shift.CreatedAt, shift.UpdatedAt, completedAt).
		Suffix(`ON DUPLICATE KEY UPDATE
			status = IF(status IN ('complete','refunded','failed'), status, VALUES(status)),
			settle_amount = IF(VALUES(settle_amount) > 0, VALUES(settle_amount), settle_amount),
			deposit_tx_hash = COALESCE(VALUES(deposit_tx_hash), deposit_tx_hash),
			settle_tx_hash = COALESCE(VALUES(settle_tx_hash), settle_tx_hash),
			updated_at = VALUES(updated_at),
			completed_at = IF(completed_at IS NULL AND VALUES(status) = 'complete' AND status NOT IN ('refunded','failed'), VALUES(updated_at), completed_at)`)
}

func (s *shiftStore) GetShift(ctx context.Context, shiftID string) (*models.Shift, error) {
	row := sq.
		Select(shiftColumns).
		From("shifts").
		Where(sq.Eq{"id": shiftID}).
		RunWith(s.dataDB).
		QueryRowContext(ctx)

	return scanShift(row)
}

func (s *shiftStore) ListByUser(ctx context.Context, userID string, limit, offset uint64) ([]*models.Shift, error) {
	rows, err := sq.
		Select(shiftColumns).
		From("shifts").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(limit).
		Offset(offset).
		RunWith(s.dataDB).
		QueryContext(ctx)
	if err != nil {
		return nil, errors.HandleDataDBError(err)
	}
	defer rows.Close()

	shifts := make([]*models.Shift, 0)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.HandleDataDBError(err)
	}
	return shifts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShift(row rowScanner) (*models.Shift, error) {
	shift := new(models.Shift)
	err := row.Scan(
		&shift.ID, &shift.UserID, &shift.QuoteID,
		&shift.FromCoin, &shift.FromNetwork, &shift.ToCoin, &shift.ToNetwork,
		&shift.DepositAmount, &shift.SettleAmount,
		&shift.DepositAddress, &shift.SettleAddress, &shift.Status,
		&shift.DepositTxHash, &shift.SettleTxHash,
		&shift.CreatedAt, &shift.UpdatedAt, &shift.CompletedAt,
	)
	if err != nil {
		return nil, errors.HandleDataDBError(err)
	}
	return shift, nil
}
