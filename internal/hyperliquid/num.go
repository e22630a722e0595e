package hyperliquid

import (
	"bytes"
	"strconv"

	"github.com/shopspring/decimal"
)

// Num decodes fields the API sends either as JSON numbers or as decimal
// strings. Malformed or missing values decode to 0 instead of failing the
// surrounding document.
type Num float64

func (n *Num) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		b = b[1 : len(b)-1]
	}
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		*n = 0
		return nil
	}
	f, _ := d.Float64()
	*n = Num(f)
	return nil
}

func (n Num) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(n), 'f', -1, 64)), nil
}

func (n Num) Float() float64 { return float64(n) }
