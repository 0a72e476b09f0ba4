package requests

import "github.com/giftshift/giftshift-go/models"

type RequestQuoteRequest struct {
	FromCoin      string        `json:"from_coin" validate:"required"`
	FromNetwork   string        `json:"from_network" validate:"required"`
	ToCoin        string        `json:"to_coin" validate:"required"`
	ToNetwork     string        `json:"to_network" validate:"required"`
	Amount        models.Double `json:"amount" validate:"required,gt=0"`
	SettleAddress string        `json:"settle_address"`

	// set by the handler, never bound from the request body
	CallerIP string `json:"-"`
}
