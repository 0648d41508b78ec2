package normalize

import (
	"fmt"
	"strings"

	"github.com/oneweather/oneweather/internal/models"
)

// Convert converts a raw value into the canonical unit for its variable.
// Unit tags are matched case-insensitively against the spellings upstream
// sources actually emit.
func Convert(value float64, unit string, variable models.Variable) (float64, error) {
	u := strings.ToLower(strings.TrimSpace(unit))

	switch variable {
	case models.VarTemperature:
		switch u {
		case "c", "°c", "celsius", "degc":
			return value, nil
		case "k", "kelvin":
			return value - 273.15, nil
		case "f", "°f", "fahrenheit", "degf":
			return (value - 32) * 5 / 9, nil
		}
	case models.VarPrecipitation:
		switch u {
		case "mm", "millimeters", "kg/m^2", "kg m-2":
			return value, nil
		case "in", "inch", "inches":
			return value * 25.4, nil
		case "m":
			return value * 1000, nil
		}
	case models.VarWindSpeed:
		switch u {
		case "m/s", "mps", "m s-1":
			return value, nil
		case "km/h", "kmh", "kph":
			return value / 3.6, nil
		case "kn", "kt", "knots":
			return value * 0.514444, nil
		case "mph":
			return value * 0.44704, nil
		}
	case models.VarHumidity:
		switch u {
		case "%", "percent":
			return value, nil
		case "fraction":
			return value * 100, nil
		}
	case models.VarPressure:
		switch u {
		case "hpa", "mb", "mbar":
			return value, nil
		case "pa":
			return value / 100, nil
		case "inhg":
			return value * 33.8639, nil
		}
	default:
		return 0, fmt.Errorf("unknown variable %q", variable)
	}

	return 0, fmt.Errorf("unknown unit %q for %s", unit, variable)
}
