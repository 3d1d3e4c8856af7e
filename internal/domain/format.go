package domain

import (
	"math"
	"strconv"
)

// FormatNumber renders x rounded to two decimals with a k/M/G suffix
func FormatNumber(x float64) string {
	suffix := ""
	switch {
	case x >= 1_000_000_000:
		x /= 1_000_000_000
		suffix = "G"
	case x >= 1_000_000:
		x /= 1_000_000
		suffix = "M"
	case x >= 1_000:
		x /= 1_000
		suffix = "k"
	}

	rounded := math.Round(x*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64) + suffix
}
