package record

import "math"

// ToFixedPoint appends samples converted to integer multiples of bitVolts,
// rounded to nearest and saturated to the int16 range. NaN converts to 0.
func ToFixedPoint(dst []int16, samples []float32, bitVolts float32) []int16 {
	bv := float64(bitVolts)
	for _, x := range samples {
		v := math.Round(float64(x) / bv)
		switch {
		case math.IsNaN(v):
			v = 0
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		dst = append(dst, int16(v))
	}
	return dst
}
