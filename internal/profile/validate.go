package profile

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/dreluxe/portal/internal/credential"
)

var (
	upiPattern    = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9]+$`)
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvvPattern    = regexp.MustCompile(`^\d{3}$`)

	fabricCareOptions  = []string{"standard", "cotton", "silk", "wool"}
	avoidMixingOptions = []string{"blood", "baby", "pet", "dye"}
	foldStyleOptions   = []string{"standard", "military"}
	hangerTypeOptions  = []string{"plastic", "wooden"}
)

func invalid(field, format string, args ...any) error {
	return &credential.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func validateAddress(in AddressInput) (AddressInput, error) {
	in.Street = strings.TrimSpace(in.Street)
	in.City = strings.TrimSpace(in.City)
	in.State = strings.TrimSpace(in.State)
	in.ZipCode = strings.TrimSpace(in.ZipCode)
	in.Landmark = strings.TrimSpace(in.Landmark)
	switch {
	case in.Street == "":
		return in, invalid("street", "Street address is required")
	case in.City == "":
		return in, invalid("city", "City is required")
	case in.State == "":
		return in, invalid("state", "State is required")
	case in.ZipCode == "":
		return in, invalid("zipCode", "ZIP code is required")
	}
	if (in.Lat == nil) != (in.Lng == nil) {
		return in, invalid("lat", "Latitude and longitude must be provided together")
	}
	if in.Lat != nil && (*in.Lat < -90 || *in.Lat > 90 || *in.Lng < -180 || *in.Lng > 180) {
		return in, invalid("lat", "Coordinates are out of range")
	}
	return in, nil
}

func validatePreferences(p Preferences) (Preferences, error) {
	if !slices.Contains(fabricCareOptions, p.FabricCare) {
		return p, invalid("fabricCare", "Fabric care must be one of %s", strings.Join(fabricCareOptions, ", "))
	}
	if !slices.Contains(foldStyleOptions, p.FoldStyle) {
		return p, invalid("foldStyle", "Fold style must be one of %s", strings.Join(foldStyleOptions, ", "))
	}
	if !slices.Contains(hangerTypeOptions, p.HangerType) {
		return p, invalid("hangerType", "Hanger type must be one of %s", strings.Join(hangerTypeOptions, ", "))
	}
	seen := make(map[string]bool, len(p.AvoidMixing))
	mixing := make([]string, 0, len(p.AvoidMixing))
	for _, item := range p.AvoidMixing {
		if !slices.Contains(avoidMixingOptions, item) {
			return p, invalid("avoidMixing", "Unknown item %q", item)
		}
		if !seen[item] {
			seen[item] = true
			mixing = append(mixing, item)
		}
	}
	p.AvoidMixing = mixing
	p.SpecialRequests = strings.TrimSpace(p.SpecialRequests)
	return p, nil
}

// validatePayment checks the payment form and returns the stored shape.
func validatePayment(in PaymentInput) (PaymentMethod, error) {
	switch in.Method {
	case MethodUPI:
		upi := strings.TrimSpace(in.UPIID)
		if !upiPattern.MatchString(upi) {
			return PaymentMethod{}, invalid("upiId", "Please enter a valid UPI ID")
		}
		return PaymentMethod{Method: MethodUPI, UPIID: upi}, nil
	case MethodCard:
		if in.Card == nil {
			return PaymentMethod{}, invalid("card", "Card details are required")
		}
		number, err := validateCardNumber(in.Card.Number)
		if err != nil {
			return PaymentMethod{}, err
		}
		name := strings.TrimSpace(in.Card.Name)
		if name == "" {
			return PaymentMethod{}, invalid("cardName", "Cardholder name is required")
		}
		if !expiryPattern.MatchString(in.Card.Expiry) {
			return PaymentMethod{}, invalid("expiry", "Expiry must be in MM/YY format")
		}
		if !cvvPattern.MatchString(in.Card.CVV) {
			return PaymentMethod{}, invalid("cvv", "CVV must be 3 digits")
		}
		return PaymentMethod{
			Method:     MethodCard,
			CardLast4:  number[len(number)-4:],
			CardName:   name,
			CardExpiry: in.Card.Expiry,
		}, nil
	default:
		return PaymentMethod{}, invalid("method", "Please choose UPI or card")
	}
}

func validateCardNumber(card string) (string, error) {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) != 16 {
		return "", invalid("cardNumber", "Card number must be 16 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", invalid("cardNumber", "Card number must be numeric")
		}
	}
	if !luhn(digits) {
		return "", invalid("cardNumber", "Card number is not valid")
	}
	return digits, nil
}

func luhn(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
