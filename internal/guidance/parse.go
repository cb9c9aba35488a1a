package guidance

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trashtalkers/trashtalkers/internal/model"
)

// Section labels of a guidance answer, in order.
const (
	labelCost       = "Cost:"
	labelRedemption = "Redemption Value:"
	labelDetails    = "Details:"
)

// ErrUnparsed is returned when an answer does not carry all three section
// labels in order.
var ErrUnparsed = errors.New("guidance answer not in the expected format")

// Guidance is a parsed model answer.
type Guidance struct {
	Outcome         string
	RedemptionValue *decimal.Decimal
	Details         string
}

var amountPattern = regexp.MustCompile(`[-+]?\s*\d+(?:\.\d+)?`)

// Parse splits an answer into its Cost, Redemption Value and Details
// sections. Outcome is the trimmed Cost text, in canonical spelling when it
// names a known category. An unreadable redemption amount leaves
// RedemptionValue nil without failing the parse.
func Parse(answer string) (*Guidance, error) {
	costAt := strings.Index(answer, labelCost)
	if costAt < 0 {
		return nil, ErrUnparsed
	}
	rest := answer[costAt+len(labelCost):]

	redemptionAt := strings.Index(rest, labelRedemption)
	if redemptionAt < 0 {
		return nil, ErrUnparsed
	}
	cost := rest[:redemptionAt]
	rest = rest[redemptionAt+len(labelRedemption):]

	detailsAt := strings.Index(rest, labelDetails)
	if detailsAt < 0 {
		return nil, ErrUnparsed
	}
	redemption := rest[:detailsAt]
	details := rest[detailsAt+len(labelDetails):]

	outcome, _ := model.CanonicalOutcome(cost)
	if outcome == "" {
		return nil, ErrUnparsed
	}

	return &Guidance{
		Outcome:         outcome,
		RedemptionValue: ParseAmount(redemption),
		Details:         strings.TrimSpace(details),
	}, nil
}

// ParseAmount reads the first signed dollar amount in s, or nil.
func ParseAmount(s string) *decimal.Decimal {
	cleaned := strings.NewReplacer("$", "", ",", "", "USD", "", "usd", "", "−", "-").Replace(s)
	m := amountPattern.FindString(cleaned)
	if m == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.Join(strings.Fields(m), ""))
	if err != nil {
		return nil
	}
	return &d
}
