package settings

import (
	"fmt"
	"math"
)

// Curve remaps normalized brightness before charset selection.
type Curve string

const (
	CurveLinear      Curve = "linear"
	CurveExponential Curve = "exponential"
	CurveSigmoid     Curve = "sigmoid"
)

// ParseCurve parses a curve name. "exp" is accepted as shorthand.
func ParseCurve(name string) (Curve, error) {
	switch name {
	case "linear":
		return CurveLinear, nil
	case "exponential", "exp":
		return CurveExponential, nil
	case "sigmoid":
		return CurveSigmoid, nil
	default:
		return "", fmt.Errorf("%w: unknown brightness curve %q (available: linear, exponential, sigmoid)", ErrInvalid, name)
	}
}

// Apply maps a brightness value in [0,1] through the curve. The sigmoid is
// normalized so that Apply(0)=0 and Apply(1)=1.
func (c Curve) Apply(t float32) float32 {
	switch c {
	case CurveExponential:
		return t * t
	case CurveSigmoid:
		const k = 10.0
		raw := 1.0 / (1.0 + math.Exp(float64(-k*(t-0.5))))
		min := 1.0 / (1.0 + math.Exp(k*0.5))
		max := 1.0 / (1.0 + math.Exp(-k*0.5))
		return float32((raw - min) / (max - min))
	default:
		return t
	}
}
