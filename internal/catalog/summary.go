package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatPrice renders an amount in es-AR currency style: "$ 12.345,50".
func FormatPrice(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(intPart[i : i+3])
	}
	return fmt.Sprintf("%s$ %s,%s", sign, b.String(), frac)
}

// PromotionCopyText returns the plain-text summary copied from a result card:
// plan prices, then benefits. Promotions with neither fall back to a
// type-specific line.
func PromotionCopyText(p Promotion) string {
	var b strings.Builder
	if len(p.Plans) > 0 {
		lines := make([]string, len(p.Plans))
		for i, plan := range p.Plans {
			lines[i] = fmt.Sprintf("%s: %s", plan.Name, FormatPrice(plan.FinalPrice))
		}
		b.WriteString(strings.Join(lines, "\n"))
	}
	if len(p.Benefits) > 0 {
		b.WriteString("\n\nBeneficios:\n")
		lines := make([]string, len(p.Benefits))
		for i, ben := range p.Benefits {
			line := "- " + ben.Title
			if ben.Description != "" {
				line += ": " + ben.Description
			}
			if ben.Duration != "" {
				line += " (" + ben.Duration + ")"
			}
			lines[i] = line
		}
		b.WriteString(strings.Join(lines, "\n"))
	}
	if b.Len() > 0 {
		return b.String()
	}

	switch p.Type {
	case TypePrice:
		return fmt.Sprintf("%s: $%s", p.Title, p.Price.String())
	case TypeImage:
		return fmt.Sprintf("%s: %s", p.Title, p.ImageURL)
	}
	if p.Description != "" {
		return p.Description
	}
	return p.Title
}

// NoteCopyText returns the plain-text export of a note.
func NoteCopyText(n Note) string {
	created := time.Unix(n.CreatedAt, 0).UTC().Format("2006-01-02 15:04")
	return fmt.Sprintf("Nota: %s\n--------------------------\n%s\n\nCreada: %s", n.Title, n.Content, created)
}
