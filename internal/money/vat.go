package money

import (
	"fmt"
	"math"
	"strings"

	"boltline/backend/internal/domain"
)

// VAT is a Hungarian VAT rate code. AAM, FAD and TAM are exempt codes
// (multiplier 1.0); the numeric codes are percentage rates.
type VAT string

const (
	VATAAM VAT = "AAM"
	VATFAD VAT = "FAD"
	VATTAM VAT = "TAM"
	VAT5   VAT = "5"
	VAT18  VAT = "18"
	VAT27  VAT = "27"
)

// ParseVAT accepts the six known codes, case-insensitively.
func ParseVAT(raw string) (VAT, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "AAM":
		return VATAAM, nil
	case "FAD":
		return VATFAD, nil
	case "TAM":
		return VATTAM, nil
	case "5":
		return VAT5, nil
	case "18":
		return VAT18, nil
	case "27":
		return VAT27, nil
	default:
		return "", fmt.Errorf("%w: unknown VAT code %q (expected 5, 18, 27, AAM, TAM or FAD)", domain.ErrBadRequest, raw)
	}
}

func (v VAT) String() string {
	return string(v)
}

// Multiplier returns the net-to-gross factor for the rate.
func (v VAT) Multiplier() float64 {
	switch v {
	case VAT5:
		return 1.05
	case VAT18:
		return 1.18
	case VAT27:
		return 1.27
	default:
		// Exempt codes, and anything unrecognised in persisted data.
		return 1.0
	}
}

// Gross multiplies a net amount by the rate's multiplier and rounds to the
// nearest forint. Total function, no failure mode.
func (v VAT) Gross(net int) int {
	return int(math.Round(float64(net) * v.Multiplier()))
}
