package models

import "time"

// Quote is a time-boxed offer from the exchange. It is never persisted; an
// expired quote cannot be used to create a shift.
type Quote struct {
	ID          string    `json:"id"`
	FromCoin    string    `json:"from_coin"`
	FromNetwork string    `json:"from_network"`
	ToCoin      string    `json:"to_coin"`
	ToNetwork   string    `json:"to_network"`
	FromAmount  float64   `json:"from_amount,string"`
	// ToAmount is provisional until a shift exists; some upstream API
	// versions only populate it at shift creation.
	ToAmount  float64   `json:"to_amount,string"`
	Rate      float64   `json:"rate,string"`
	Fee       float64   `json:"fee,string"`
	Min       float64   `json:"min,string"`
	Max       float64   `json:"max,string"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}
