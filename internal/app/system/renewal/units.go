// internal/app/system/renewal/units.go
package renewal

import (
	"fmt"
	"strings"

	"github.com/dalemusser/renewhub/internal/domain/models"
)

// NormalizeUnit maps common synonyms onto the canonical units. Unknown
// input is an error, never a silent day default: defaulting would grant a
// wrong extension length.
func NormalizeUnit(unit string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "d", "day", "days", "天":
		return models.UnitDay, nil
	case "m", "month", "months", "月":
		return models.UnitMonth, nil
	case "y", "year", "years", "年":
		return models.UnitYear, nil
	}
	return "", fmt.Errorf("%w: unknown unit %q", ErrValidation, unit)
}

// DaysFor converts a length and canonical unit into a whole day count
// (day=1, month=30, year=365).
func DaysFor(length int, unit string) int {
	switch unit {
	case models.UnitMonth:
		return 30 * length
	case models.UnitYear:
		return 365 * length
	default:
		return length
	}
}

func unitAbbrev(unit string) string {
	switch unit {
	case models.UnitMonth:
		return "m"
	case models.UnitYear:
		return "y"
	default:
		return "d"
	}
}
