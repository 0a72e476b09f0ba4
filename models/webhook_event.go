package models

import "encoding/json"

type Webhook struct {
	// ID is unique per delivery so consumers can deduplicate retries.
	ID    string       `json:"id"`
	Event WebhookEvent `json:"event"`
	Data  any          `json:"data"`
}

type WebhookEvent uint8

const (
	ShiftCreated_WebhookEvent WebhookEvent = iota + 1

	ShiftCompleted_WebhookEvent
	ShiftRefunded_WebhookEvent
	ShiftFailed_WebhookEvent
)

func (w WebhookEvent) String() string {
	switch w {
	case ShiftCreated_WebhookEvent:
		return "shift.created"
	case ShiftCompleted_WebhookEvent:
		return "shift.completed"
	case ShiftRefunded_WebhookEvent:
		return "shift.refunded"
	case ShiftFailed_WebhookEvent:
		return "shift.failed"
	default:
		panic("unreachable")
	}
}

func (w WebhookEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

// TerminalWebhookEvent maps a terminal shift status to its event; ok is false
// for non-terminal statuses.
func TerminalWebhookEvent(status ShiftStatus) (WebhookEvent, bool) {
	switch status {
	case Complete_ShiftStatus:
		return ShiftCompleted_WebhookEvent, true
	case Refunded_ShiftStatus:
		return ShiftRefunded_WebhookEvent, true
	case Failed_ShiftStatus:
		return ShiftFailed_WebhookEvent, true
	}
	return 0, false
}
