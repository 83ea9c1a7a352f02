package sensors

import (
	"encoding/json"
	"math"
)

// ConversionKind selects the transform a Conversion applies.
type ConversionKind int

const (
	KindIdentity ConversionKind = iota
	KindDivide
	KindSigned16Divide
	KindEnum
	KindDeciKelvin
)

// Conversion is a pure transform from a raw property value to the value we
// expose. Apply never fails: input outside the conversion's domain is
// returned unchanged.
type Conversion struct {
	Kind    ConversionKind
	Divisor float64
	Labels  map[int]string
}

// Identity leaves the value as reported.
func Identity() Conversion { return Conversion{Kind: KindIdentity} }

// Divide scales a numeric value down by divisor.
func Divide(divisor float64) Conversion { return Conversion{Kind: KindDivide, Divisor: divisor} }

// DivideBy10 is the most common vendor scaling (tenths).
func DivideBy10() Conversion { return Divide(10) }

// Signed16Divide reinterprets an unsigned 16-bit register value as two's
// complement before dividing. Pack currents are reported this way.
func Signed16Divide(divisor float64) Conversion {
	return Conversion{Kind: KindSigned16Divide, Divisor: divisor}
}

// Enum maps integral codes to labels.
func Enum(labels map[int]string) Conversion { return Conversion{Kind: KindEnum, Labels: labels} }

// DeciKelvin converts tenths of a Kelvin to degrees Celsius.
func DeciKelvin() Conversion { return Conversion{Kind: KindDeciKelvin} }

// Apply converts v.
func (c Conversion) Apply(v any) any {
	switch c.Kind {
	case KindDivide:
		f, ok := toFloat(v)
		if !ok || c.Divisor == 0 {
			return v
		}
		return round(f/c.Divisor, 3)
	case KindSigned16Divide:
		f, ok := toFloat(v)
		if !ok || c.Divisor == 0 || f != math.Trunc(f) {
			return v
		}
		if f > math.MaxInt16 && f <= math.MaxUint16 {
			f -= math.MaxUint16 + 1
		}
		return round(f/c.Divisor, 3)
	case KindEnum:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return v
		}
		if label, ok := c.Labels[int(f)]; ok {
			return label
		}
		return v
	case KindDeciKelvin:
		f, ok := toFloat(v)
		if !ok {
			return v
		}
		return round((f-2731)/10, 1)
	default:
		return v
	}
}

// Idempotent reports whether applying the conversion to its own output is a
// no-op.
func (c Conversion) Idempotent() bool {
	return c.Kind == KindIdentity || c.Kind == KindEnum
}

// toFloat accepts the numeric shapes a JSON decoder can produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
