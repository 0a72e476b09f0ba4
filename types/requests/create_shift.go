package requests

type CreateShiftRequest struct {
	QuoteID       string `json:"quote_id" validate:"required"`
	SettleAddress string `json:"settle_address" validate:"required"`

	// set by the handler from the authenticated identity (nil for anonymous
	// shifts) and the caller's network address
	UserID   *string `json:"-"`
	CallerIP string  `json:"-"`
}
