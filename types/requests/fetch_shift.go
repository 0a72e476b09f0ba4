package requests

type FetchShiftRequest struct {
	ShiftID string `uri:"shift_id" validate:"required"`
}

type RefreshShiftRequest struct {
	ShiftID string `uri:"shift_id" validate:"required"`
}
