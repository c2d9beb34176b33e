package metrics

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"
)

// NA is the display value of an undefined percentage.
const NA = "N/A"

// Percent is a percentage that may be undefined. Computation uses Float;
// only the display boundary sees the "12.34%" / "N/A" string form.
type Percent struct {
	value float64
	ok    bool
}

// PercentOf wraps v. NaN and infinities are undefined.
func PercentOf(v float64) Percent {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Percent{}
	}
	return Percent{value: v, ok: true}
}

// Undefined returns the N/A percentage.
func Undefined() Percent { return Percent{} }

// Float returns the numeric value and whether it is defined.
func (p Percent) Float() (float64, bool) { return p.value, p.ok }

// Defined reports whether p has a value.
func (p Percent) Defined() bool { return p.ok }

func (p Percent) String() string {
	if !p.ok {
		return NA
	}
	return decimal.NewFromFloat(p.value).StringFixed(2) + "%"
}

// MarshalJSON renders the display string.
func (p Percent) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// MarshalYAML renders the display string.
func (p Percent) MarshalYAML() (any, error) {
	return p.String(), nil
}

// Amount is a plain display number rounded to cents. Zero renders as "0".
type Amount float64

func (a Amount) String() string {
	f := float64(a)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	return decimal.NewFromFloat(f).Round(2).String()
}

// MarshalJSON renders the rounded value as a JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// MarshalYAML renders the rounded value as a string.
func (a Amount) MarshalYAML() (any, error) {
	return a.String(), nil
}
