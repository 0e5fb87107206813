// Package finance computes the net, tax and gross amounts of cost line items.
//
// Every amount is a decimal rounded half-up to cents at each sub-total
// boundary: the net is rounded before any tax is derived from it, and each
// tax component is rounded on its own. Functions here perform no I/O and
// hold no state, so identical inputs always produce identical outputs.
package finance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const centsPlaces = 2

var (
	RateIVA = decimal.RequireFromString("0.13")
	RateIT  = decimal.RequireFromString("0.03")
	RateIUE = decimal.RequireFromString("0.05")
)

// TaxMode selects how tax components relate to the net amount.
type TaxMode string

const (
	// TaxModeAdditive adds each component, computed on the net, on top of it.
	TaxModeAdditive TaxMode = "additive"
	// TaxModeGrossUp treats the net as the guaranteed take-home amount and
	// back-solves gross = net / (1 - effective rate).
	TaxModeGrossUp TaxMode = "gross_up"
)

func ParseTaxMode(s string) (TaxMode, error) {
	switch TaxMode(strings.ToLower(strings.TrimSpace(s))) {
	case TaxModeAdditive:
		return TaxModeAdditive, nil
	case TaxModeGrossUp:
		return TaxModeGrossUp, nil
	default:
		return "", fmt.Errorf("unknown tax mode %q", s)
	}
}

// Breakdown is the computed result for one line item.
type Breakdown struct {
	Net   decimal.Decimal `json:"net"`
	IVA   decimal.Decimal `json:"iva"`
	IT    decimal.Decimal `json:"it"`
	IUE   decimal.Decimal `json:"iue"`
	Gross decimal.Decimal `json:"gross"`
}

// Taxes is the sum of all tax components.
func (b Breakdown) Taxes() decimal.Decimal {
	return b.IVA.Add(b.IT).Add(b.IUE)
}

// Totals accumulates breakdowns into request-level aggregates.
type Totals struct {
	Net   decimal.Decimal
	Gross decimal.Decimal
}

func (t Totals) Add(b Breakdown) Totals {
	return Totals{
		Net:   t.Net.Add(b.Net),
		Gross: t.Gross.Add(b.Gross),
	}
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(centsPlaces)
}

// rates holds the tax components that apply to a line.
type rates struct {
	iva decimal.Decimal
	it  decimal.Decimal
	iue decimal.Decimal
}

func (r rates) effective() decimal.Decimal {
	return r.iva.Add(r.it).Add(r.iue)
}

var (
	noTax       = rates{iva: decimal.Zero, it: decimal.Zero, iue: decimal.Zero}
	perDiemTax  = rates{iva: RateIVA, it: RateIT, iue: decimal.Zero}
	purchaseTax = rates{iva: decimal.Zero, it: RateIT, iue: RateIUE}
	serviceTax  = rates{iva: RateIVA, it: RateIT, iue: decimal.Zero}
)
