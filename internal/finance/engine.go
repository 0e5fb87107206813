package finance

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/tesoro/internal/failure"
)

// Engine applies one tax mode uniformly to every line it computes.
type Engine struct {
	mode TaxMode
}

func NewEngine(mode TaxMode) *Engine {
	if mode == "" {
		mode = TaxModeAdditive
	}

	return &Engine{mode: mode}
}

func (e *Engine) Mode() TaxMode {
	return e.mode
}

// PerDiem computes net = unitRate × days × people and applies the per-diem
// tax components (IVA and IT).
func (e *Engine) PerDiem(unitRate, days decimal.Decimal, people int) (Breakdown, error) {
	if unitRate.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: unit rate must not be negative", failure.ErrValidation)
	}

	if !days.IsPositive() {
		return Breakdown{}, fmt.Errorf("%w: days must be positive", failure.ErrValidation)
	}

	if people < 1 {
		return Breakdown{}, fmt.Errorf("%w: people must be at least 1", failure.ErrValidation)
	}

	net := round(unitRate.Mul(days).Mul(decimal.NewFromInt(int64(people))))

	return e.apply(net, perDiemTax), nil
}

// Expense computes net = unitRate × quantity and applies the withholding
// dictated by the document type and expense category.
func (e *Engine) Expense(unitRate decimal.Decimal, quantity int, doc DocumentType, cat ExpenseCategory) (Breakdown, error) {
	if unitRate.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: unit rate must not be negative", failure.ErrValidation)
	}

	if quantity < 1 {
		return Breakdown{}, fmt.Errorf("%w: quantity must be at least 1", failure.ErrValidation)
	}

	if !doc.Valid() {
		return Breakdown{}, fmt.Errorf("%w: unknown document type %q", failure.ErrValidation, doc)
	}

	net := round(unitRate.Mul(decimal.NewFromInt(int64(quantity))))

	return e.apply(net, withholding(doc, cat)), nil
}

func (e *Engine) apply(net decimal.Decimal, r rates) Breakdown {
	if e.mode == TaxModeGrossUp {
		return grossUp(net, r)
	}

	return additive(net, r)
}

func additive(net decimal.Decimal, r rates) Breakdown {
	b := Breakdown{
		Net: net,
		IVA: round(net.Mul(r.iva)),
		IT:  round(net.Mul(r.it)),
		IUE: round(net.Mul(r.iue)),
	}
	b.Gross = b.Net.Add(b.Taxes())

	return b
}

// grossUp back-solves the gross and splits the tax difference across the
// components in proportion to their rates. IT absorbs the rounding remainder
// so the components always sum exactly to gross - net.
func grossUp(net decimal.Decimal, r rates) Breakdown {
	eff := r.effective()
	if eff.IsZero() {
		return Breakdown{Net: net, IVA: decimal.Zero, IT: decimal.Zero, IUE: decimal.Zero, Gross: net}
	}

	gross := round(net.Div(decimal.NewFromInt(1).Sub(eff)))
	tax := gross.Sub(net)

	iva := round(tax.Mul(r.iva).Div(eff))
	iue := round(tax.Mul(r.iue).Div(eff))

	return Breakdown{
		Net:   net,
		IVA:   iva,
		IUE:   iue,
		IT:    tax.Sub(iva).Sub(iue),
		Gross: gross,
	}
}
