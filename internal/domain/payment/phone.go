package payment

import (
	"fmt"
	"regexp"
	"strings"
)

// PhoneValidator normalizes the display phone number for a country
type PhoneValidator struct {
	countryCode string
	dialPrefix  string
	patterns    []*regexp.Regexp
}

// NewPhoneValidator creates a validator for a specific country.
// Unknown countries accept any 8-15 digit number.
func NewPhoneValidator(countryCode string) *PhoneValidator {
	var patterns []*regexp.Regexp
	var prefix string

	switch strings.ToUpper(countryCode) {
	case "KE": // Kenya
		prefix = "254"
		patterns = []*regexp.Regexp{
			regexp.MustCompile(`^254[17]\d{8}$`), // Safaricom, Airtel
		}
	case "UG": // Uganda
		prefix = "256"
		patterns = []*regexp.Regexp{
			regexp.MustCompile(`^256[347]\d{8}$`), // MTN, Airtel, UTL
		}
	case "TZ": // Tanzania
		prefix = "255"
		patterns = []*regexp.Regexp{
			regexp.MustCompile(`^255[678]\d{8}$`), // Vodacom, Airtel, Tigo, Halotel
		}
	default:
		patterns = []*regexp.Regexp{regexp.MustCompile(`^\d{8,15}$`)}
	}

	return &PhoneValidator{
		countryCode: strings.ToUpper(countryCode),
		dialPrefix:  prefix,
		patterns:    patterns,
	}
}

// Normalize validates a phone number and returns it in international form
func (v *PhoneValidator) Normalize(phone string) (string, error) {
	// Remove any spaces, dashes, or plus signs
	normalized := strings.ReplaceAll(phone, " ", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "+", "")

	// If phone starts with 0, replace with country code
	if strings.HasPrefix(normalized, "0") && v.dialPrefix != "" {
		normalized = v.dialPrefix + normalized[1:]
	}

	for _, pattern := range v.patterns {
		if pattern.MatchString(normalized) {
			return normalized, nil
		}
	}

	return "", DomainError{
		Code:    ErrInvalidPhone,
		Message: fmt.Sprintf("invalid phone number format for %s", v.countryCode),
	}
}
