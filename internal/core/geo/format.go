package geo

import (
	"fmt"
	"math"
)

// FormatDistance renders meters for display: "42m" below one kilometer,
// "1.3km" from there on. NaN, infinite and negative inputs render as the
// empty string so callers can drop the field instead of showing a
// misleading number. The unit is chosen before rounding, so 999.6 renders
// as "1000m".
func FormatDistance(meters float64) string {
	if math.IsNaN(meters) || math.IsInf(meters, 0) || meters < 0 {
		return ""
	}
	if meters < 1000 {
		return fmt.Sprintf("%dm", int64(math.Round(meters)))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}
