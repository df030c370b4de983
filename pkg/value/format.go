package value

import (
	"math"
	"strconv"
)

// cleanExponentialFormat removes leading zeros from the exponent to match JS,
// e.g. "1e-07" -> "1e-7".
func cleanExponentialFormat(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 'e' || s[i] == 'E' {
			if i+1 < len(s) && (s[i+1] == '+' || s[i+1] == '-') {
				sign := s[i+1]
				j := i + 2
				for j < len(s) && s[j] == '0' {
					j++
				}
				if j >= len(s) {
					return s[:i+2] + "0"
				}
				return s[:i+1] + string(sign) + s[j:]
			}
			break
		}
	}
	return s
}

// FormatNumber renders a double the way Number.prototype.toString does.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		// covers -0
		return "0"
	}
	abs := math.Abs(f)
	if abs < 1e-6 || abs >= 1e21 {
		return cleanExponentialFormat(strconv.FormatFloat(f, 'e', -1, 64))
	}
	if f == math.Trunc(f) && abs < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
