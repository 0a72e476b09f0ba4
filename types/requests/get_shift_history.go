package requests

type GetShiftHistoryRequest struct {
	UserID string `uri:"user_id" validate:"required"`
	Limit  uint64 `query:"limit" default:"20" validate:"gt=0"`
	Offset uint64 `query:"offset"`
}
