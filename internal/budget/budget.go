// Package budget aggregates quote line items and renders them for export.
package budget

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Separator is the rule printed under the export header.
const Separator = "--------------------------"

// Validation errors returned by NewLineItem.
var (
	ErrNameRequired    = errors.New("name is required")
	ErrInvalidPrice    = errors.New("unit price must be greater than zero")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrIndexOutOfRange = errors.New("line index out of range")
)

// LineItem is one priced, quantified entry in a quote. SourceID and PlanName
// point back at the promotion plan the item was added from, if any.
type LineItem struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	SourceID  string          `json:"sourceId,omitempty"`
	PlanName  string          `json:"planName,omitempty"`
}

// NewLineItem validates a manually entered item.
func NewLineItem(name string, unitPrice decimal.Decimal, quantity int) (LineItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return LineItem{}, ErrNameRequired
	}
	if !unitPrice.IsPositive() {
		return LineItem{}, ErrInvalidPrice
	}
	if quantity < 1 {
		return LineItem{}, ErrInvalidQuantity
	}
	return LineItem{Name: name, UnitPrice: unitPrice, Quantity: quantity}, nil
}

// FromPlan builds the single-unit item produced by "add to budget" on a
// promotion plan. A zero price is allowed for bundled plans.
func FromPlan(sourceID, promotionTitle, planName string, finalPrice decimal.Decimal) LineItem {
	return LineItem{
		Name:      promotionTitle + " - " + planName,
		UnitPrice: finalPrice,
		Quantity:  1,
		SourceID:  sourceID,
		PlanName:  planName,
	}
}

// LineTotal returns unitPrice × quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Total returns the exact sum of every line total. An empty list totals zero.
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(li.LineTotal())
	}
	return total
}

// Combine returns the locally entered items followed by the carried-over
// items. Both sources are included exactly once; identical entries are kept
// because each one is a billable unit.
func Combine(local, carried []LineItem) []LineItem {
	out := make([]LineItem, 0, len(local)+len(carried))
	out = append(out, local...)
	return append(out, carried...)
}

// Append returns a new list with li at the end.
func Append(items []LineItem, li LineItem) []LineItem {
	out := make([]LineItem, len(items), len(items)+1)
	copy(out, items)
	return append(out, li)
}

// RemoveAt returns a new list without the item at index i.
func RemoveAt(items []LineItem, i int) ([]LineItem, error) {
	if i < 0 || i >= len(items) {
		return nil, ErrIndexOutOfRange
	}
	out := make([]LineItem, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...), nil
}

// ReplaceAt returns a new list with the item at index i overwritten.
func ReplaceAt(items []LineItem, i int, li LineItem) ([]LineItem, error) {
	if i < 0 || i >= len(items) {
		return nil, ErrIndexOutOfRange
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	out[i] = li
	return out, nil
}

// Render produces the plain-text quote used for clipboard export:
//
//	Presupuesto
//	--------------------------
//	<name> - <quantity> x $<unitPrice> = $<lineTotal>
//
//	TOTAL: $<total>
func Render(items []LineItem) string {
	var b strings.Builder
	b.WriteString("Presupuesto\n")
	b.WriteString(Separator)
	b.WriteString("\n")
	for i, li := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s - %d x $%s = $%s", li.Name, li.Quantity, li.UnitPrice.String(), li.LineTotal().String())
	}
	fmt.Fprintf(&b, "\n\nTOTAL: $%s", Total(items).String())
	return b.String()
}
