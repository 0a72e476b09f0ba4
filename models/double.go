package models

import (
	"encoding/json"
	"strings"
)

// Double is a float64 that unmarshals from either a JSON number or a quoted
// numeric string. The exchange API serializes amounts both ways depending on
// the endpoint version.
type Double float64

func (d *Double) UnmarshalJSON(input []byte) error {
	raw := strings.Trim(string(input), `"`)
	var buf float64
	err := json.Unmarshal([]byte(raw), &buf)
	if err == nil {
		*d = Double(buf)
	}
	return err
}

func (d Double) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(d))
}
