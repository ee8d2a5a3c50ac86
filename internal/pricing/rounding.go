package pricing

import "math"

// Round applies psychological price endings. The result is never below raw:
//
//	< 20        next .99
//	20 - <100   next .95
//	100 - <1000 next .99
//	>= 1000     next whole dollar ending in 9
func Round(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	// Tolerate float noise such as 57.50000000001.
	cents := int64(math.Ceil(raw*100 - 1e-6))
	switch {
	case cents < 2000:
		return fromCents(nextEnding(cents, 99))
	case cents < 10000:
		return fromCents(nextEnding(cents, 95))
	case cents < 100000:
		return fromCents(nextEnding(cents, 99))
	default:
		dollars := (cents + 99) / 100
		if rem := dollars % 10; rem != 9 {
			dollars += (9 - rem + 10) % 10
		}
		return fromCents(dollars * 100)
	}
}

// nextEnding returns the smallest amount >= cents whose cent part is ending.
func nextEnding(cents, ending int64) int64 {
	candidate := cents/100*100 + ending
	if candidate < cents {
		candidate += 100
	}
	return candidate
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}
