package responses

import "github.com/giftshift/giftshift-go/models"

// ShiftUpdate is the payload fanned out to the shift's channel and the owning
// identity whenever a refresh observes a status change.
type ShiftUpdate struct {
	Shift          *models.Shift      `json:"shift"`
	PreviousStatus models.ShiftStatus `json:"previous_status"`
}

// CreateShiftResponseData pairs the persisted shift with the broker channel a
// client should subscribe to for live updates.
type CreateShiftResponseData struct {
	Shift   *models.Shift `json:"shift"`
	Channel string        `json:"channel"`
}
