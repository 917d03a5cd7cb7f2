// Package core provides amount parsing and tax helpers.
//
// Amounts are whole yen held in int64. There is no fractional unit.
package core

import (
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// Default tax ratio used by SwapTax when a line carries no usable ratio,
// expressed as DefaultTaxGross/DefaultTaxNet (1.10).
const (
	DefaultTaxGross = 110
	DefaultTaxNet   = 100
)

// ParseAmount strips every non-digit character and parses the rest.
//
// Full-width digits are folded first, so "１，２８０円" parses as 1280.
// An input without digits parses as 0. Only a value that overflows int64
// returns an error.
//
// Examples:
//
//	ParseAmount("¥1,280") -> 1280, nil
//	ParseAmount("-98")    -> 98, nil
//	ParseAmount("")       -> 0, nil
func ParseAmount(s string) (int64, error) {
	s = width.Fold.String(s)
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, nil
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// SwapTax moves a line between gross-as-net and net-as-gross entry.
//
// With toNet set the current gross becomes the net price and the gross is
// recomputed from the line's own gross/net ratio. Otherwise the net price
// becomes the gross and the net is derived. The ratio is applied in integer
// arithmetic and results truncate toward zero.
func SwapTax(l ReceiptLine, toNet bool) ReceiptLine {
	num, den := int64(DefaultTaxGross), int64(DefaultTaxNet)
	if l.PriceNet > 0 && l.PriceIncludeTax > 0 {
		num, den = l.PriceIncludeTax, l.PriceNet
	}
	if toNet {
		net := l.PriceIncludeTax
		l.PriceNet = net
		l.PriceIncludeTax = net * num / den
		return l
	}
	gross := l.PriceNet
	l.PriceIncludeTax = gross
	l.PriceNet = gross * den / num
	return l
}
