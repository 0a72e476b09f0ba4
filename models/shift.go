package models

import "time"

// ShiftStatus is the normalized lifecycle status of a shift. Upstream statuses
// are mapped into this set at the exchange client boundary and never leak past it.
type ShiftStatus string

const (
	AwaitingDeposit_ShiftStatus ShiftStatus = "awaiting_deposit"
	DepositReceived_ShiftStatus ShiftStatus = "deposit_received"
	Processing_ShiftStatus      ShiftStatus = "processing"
	Complete_ShiftStatus        ShiftStatus = "complete"
	Refunded_ShiftStatus        ShiftStatus = "refunded"
	Failed_ShiftStatus          ShiftStatus = "failed"
)

func (s ShiftStatus) Terminal() bool {
	switch s {
	case Complete_ShiftStatus, Refunded_ShiftStatus, Failed_ShiftStatus:
		return true
	}
	return false
}

// NormalizeShiftStatus maps the exchange's raw status vocabulary onto the
// lifecycle states tracked here. Unknown values are treated as processing
// rather than failing the refresh; a later poll resolves them.
func NormalizeShiftStatus(raw string) ShiftStatus {
	switch raw {
	case "waiting", "awaiting_deposit":
		return AwaitingDeposit_ShiftStatus
	case "pending", "confirming", "deposit_received":
		return DepositReceived_ShiftStatus
	case "processing", "exchanging", "settling", "settle":
		return Processing_ShiftStatus
	case "settled", "complete", "completed":
		return Complete_ShiftStatus
	case "refund", "refunding", "refunded", "reversed":
		return Refunded_ShiftStatus
	case "expired", "failed", "error":
		return Failed_ShiftStatus
	default:
		return Processing_ShiftStatus
	}
}

// Shift is the durable record of one exchange operation. The exchange-assigned
// ID is the sole idempotency key; re-processing the same ID only updates
// status-derived fields.
type Shift struct {
	ID             string      `json:"id"`
	UserID         *string     `json:"user_id,omitempty"`
	QuoteID        string      `json:"quote_id,omitempty"`
	FromCoin       string      `json:"from_coin"`
	FromNetwork    string      `json:"from_network"`
	ToCoin         string      `json:"to_coin"`
	ToNetwork      string      `json:"to_network"`
	DepositAmount  float64     `json:"deposit_amount,string"`
	SettleAmount   float64     `json:"settle_amount,string"`
	DepositAddress string      `json:"deposit_address"`
	SettleAddress  string      `json:"settle_address"`
	Status         ShiftStatus `json:"status"`
	DepositTxHash  *string     `json:"deposit_tx_hash,omitempty"`
	SettleTxHash   *string     `json:"settle_tx_hash,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// Channel is the broker channel carrying this shift's status updates.
func (s *Shift) Channel() string {
	return "swap:" + s.ID
}
