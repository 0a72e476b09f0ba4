package models

// AssetNetwork is one tradable (coin, network) pair, flattened from the
// exchange's coin-with-networks listing.
type AssetNetwork struct {
	Coin      string  `json:"coin"`
	Name      string  `json:"name"`
	Network   string  `json:"network"`
	Min       float64 `json:"min,string"`
	Max       float64 `json:"max,string"`
	FixedOnly bool    `json:"fixed_only"`
}
