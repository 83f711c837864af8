package ops

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/errors"
)

// ParsePlans reads one plan per line:
//
//	name | final price [| list price [| monthly discount]]
//
// Blank lines are skipped. A comma is accepted as the decimal separator.
func ParsePlans(lines []string) ([]catalog.Plan, error) {
	var plans []catalog.Plan
	for n, line := range nonBlank(lines) {
		parts := splitFields(line)
		if len(parts) < 2 {
			return nil, errors.NewInvalidField("plans", fmt.Sprintf("line %d: expected \"name | final price\"", n+1))
		}
		prices := make([]decimal.Decimal, 3)
		for i, raw := range parts[1:min(len(parts), 4)] {
			if raw == "" {
				continue
			}
			d, err := ParseAmount(raw)
			if err != nil {
				return nil, errors.NewInvalidField("plans", fmt.Sprintf("line %d: %q is not a price", n+1, raw))
			}
			prices[i] = d
		}
		plans = append(plans, catalog.Plan{
			Name:            parts[0],
			FinalPrice:      prices[0],
			ListPrice:       prices[1],
			MonthlyDiscount: prices[2],
		})
	}
	return plans, nil
}

// ParseBenefits reads one benefit per line: "title [| description [| duration]]".
func ParseBenefits(lines []string) []catalog.Benefit {
	var benefits []catalog.Benefit
	for _, line := range nonBlank(lines) {
		parts := splitFields(line)
		b := catalog.Benefit{Title: parts[0]}
		if len(parts) > 1 {
			b.Description = parts[1]
		}
		if len(parts) > 2 {
			b.Duration = parts[2]
		}
		benefits = append(benefits, b)
	}
	return benefits
}

// ParseAmount parses a user-entered price. "150,50" and "150.50" are equal.
func ParseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
}

// SplitLines splits multi-line form input.
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}

func nonBlank(lines []string) []string {
	var out []string
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitFields(line string) []string {
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
