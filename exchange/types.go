package exchange

import (
	"encoding/json"
	"time"

	"github.com/giftshift/giftshift-go/errors"
	"github.com/giftshift/giftshift-go/models"
)

// QuoteParams identifies the conversion a quote is requested for.
// CallerIP is forwarded when the exchange requires server-side callers to
// declare an origin address; empty is legal.
type QuoteParams struct {
	FromCoin      string
	FromNetwork   string
	ToCoin        string
	ToNetwork     string
	Amount        float64
	SettleAddress string
	CallerIP      string
}

type ShiftParams struct {
	QuoteID       string
	SettleAddress string
	CallerIP      string
}

// envelope tolerates both of the upstream's response shapes: a payload wrapped
// in {"data": ...} with an optional error object, or the payload returned bare.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *upstreamError  `json:"error"`
}

type upstreamError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func unwrapPayload(body []byte) json.RawMessage {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
		return env.Data
	}
	return body
}

func upstreamReason(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	var flat struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &flat); err == nil {
		return flat.Message
	}
	return ""
}

// rawQuote is the permissive intermediate representation of a quote payload.
// The offer identifier arrives as "id" or "quoteId" depending on API version.
type rawQuote struct {
	ID             string        `json:"id"`
	QuoteID        string        `json:"quoteId"`
	DepositCoin    string        `json:"depositCoin"`
	DepositNetwork string        `json:"depositNetwork"`
	SettleCoin     string        `json:"settleCoin"`
	SettleNetwork  string        `json:"settleNetwork"`
	DepositAmount  models.Double `json:"depositAmount"`
	SettleAmount   models.Double `json:"settleAmount"`
	Rate           models.Double `json:"rate"`
	Fee            models.Double `json:"fee"`
	DepositMin     models.Double `json:"depositMin"`
	DepositMax     models.Double `json:"depositMax"`
	ExpiresAt      string        `json:"expiresAt"`
	CreatedAt      string        `json:"createdAt"`
}

func (r *rawQuote) toQuote(now time.Time) (*models.Quote, error) {
	id := r.ID
	if id == "" {
		id = r.QuoteID
	}
	if id == "" {
		return nil, errors.NewUpstreamRejectedError("exchange returned a quote without an identifier")
	}

	quote := &models.Quote{
		ID:          id,
		FromCoin:    r.DepositCoin,
		FromNetwork: r.DepositNetwork,
		ToCoin:      r.SettleCoin,
		ToNetwork:   r.SettleNetwork,
		FromAmount:  float64(r.DepositAmount),
		ToAmount:    float64(r.SettleAmount),
		Rate:        float64(r.Rate),
		Fee:         float64(r.Fee),
		Min:         float64(r.DepositMin),
		Max:         float64(r.DepositMax),
		CreatedAt:   parseUpstreamTime(r.CreatedAt, now),
		ExpiresAt:   parseUpstreamTime(r.ExpiresAt, now.Add(defaultQuoteTTL)),
	}
	return quote, nil
}

// rawShift is the permissive intermediate representation of a shift payload.
type rawShift struct {
	ID             string        `json:"id"`
	QuoteID        string        `json:"quoteId"`
	UserID         string        `json:"userId"`
	DepositCoin    string        `json:"depositCoin"`
	DepositNetwork string        `json:"depositNetwork"`
	SettleCoin     string        `json:"settleCoin"`
	SettleNetwork  string        `json:"settleNetwork"`
	DepositAmount  models.Double `json:"depositAmount"`
	SettleAmount   models.Double `json:"settleAmount"`
	DepositAddress string        `json:"depositAddress"`
	SettleAddress  string        `json:"settleAddress"`
	Status         string        `json:"status"`
	DepositHash    string        `json:"depositHash"`
	SettleHash     string        `json:"settleHash"`
	CreatedAt      string        `json:"createdAt"`
	UpdatedAt      string        `json:"updatedAt"`
}

func (r *rawShift) toShift(now time.Time) (*models.Shift, error) {
	if r.ID == "" {
		return nil, errors.NewUpstreamRejectedError("exchange returned a shift without an identifier")
	}

	shift := &models.Shift{
		ID:             r.ID,
		QuoteID:        r.QuoteID,
		FromCoin:       r.DepositCoin,
		FromNetwork:    r.DepositNetwork,
		ToCoin:         r.SettleCoin,
		ToNetwork:      r.SettleNetwork,
		DepositAmount:  float64(r.DepositAmount),
		SettleAmount:   float64(r.SettleAmount),
		DepositAddress: r.DepositAddress,
		SettleAddress:  r.SettleAddress,
		Status:         models.NormalizeShiftStatus(r.Status),
		CreatedAt:      parseUpstreamTime(r.CreatedAt, now),
		UpdatedAt:      parseUpstreamTime(r.UpdatedAt, now),
	}
	if r.DepositHash != "" {
		shift.DepositTxHash = &r.DepositHash
	}
	if r.SettleHash != "" {
		shift.SettleTxHash = &r.SettleHash
	}
	return shift, nil
}

// rawCoin is one entry of the asset listing. The fixedOnly/depositOffline
// flags arrive as either a bool (applies to every network) or a list of
// network names, depending on API version.
type rawCoin struct {
	Coin           string          `json:"coin"`
	Name           string          `json:"name"`
	Networks       []string        `json:"networks"`
	FixedOnly      json.RawMessage `json:"fixedOnly"`
	DepositOffline json.RawMessage `json:"depositOffline"`
	DepositMin     models.Double   `json:"depositMin"`
	DepositMax     models.Double   `json:"depositMax"`
}

// networkFlag resolves a bool-or-list upstream flag for one network.
func networkFlag(raw json.RawMessage, network string) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, n := range list {
			if n == network {
				return true
			}
		}
	}
	return false
}

func parseUpstreamTime(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return fallback
}
