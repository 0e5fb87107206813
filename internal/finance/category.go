package finance

import "strings"

// ExpenseCategory is the closed set of expense kinds the withholding rules
// distinguish. Catalog codes are resolved into it once, at the catalog
// boundary.
type ExpenseCategory int

const (
	CategoryOther ExpenseCategory = iota
	CategoryPurchase
	CategoryRental
	CategoryService
	CategoryToll
	CategorySelfPurchase
)

var categoryNames = map[ExpenseCategory]string{
	CategoryOther:        "other",
	CategoryPurchase:     "purchase",
	CategoryRental:       "rental",
	CategoryService:      "service",
	CategoryToll:         "toll",
	CategorySelfPurchase: "self_purchase",
}

var categoryCodes = map[string]ExpenseCategory{
	"PURCHASE":      CategoryPurchase,
	"COMPRA":        CategoryPurchase,
	"RENTAL":        CategoryRental,
	"ALQUILER":      CategoryRental,
	"SERVICE":       CategoryService,
	"SERVICIO":      CategoryService,
	"TOLL":          CategoryToll,
	"PEAJE":         CategoryToll,
	"SELF_PURCHASE": CategorySelfPurchase,
	"SELF-PURCHASE": CategorySelfPurchase,
	"AUTO_COMPRA":   CategorySelfPurchase,
}

// ParseExpenseCategory maps a catalog code onto a category. Unknown codes
// fall back to CategoryOther, which carries no withholding.
func ParseExpenseCategory(code string) ExpenseCategory {
	if c, ok := categoryCodes[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return c
	}

	return CategoryOther
}

func (c ExpenseCategory) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}

	return categoryNames[CategoryOther]
}

// DocumentType is the fiscal document backing an expense.
type DocumentType string

const (
	DocumentInvoice DocumentType = "invoice"
	DocumentReceipt DocumentType = "receipt"
)

func (d DocumentType) Valid() bool {
	return d == DocumentInvoice || d == DocumentReceipt
}

// Destination selects which per-diem catalog rate and headcount ceiling apply.
type Destination string

const (
	DestinationInstitutional Destination = "institutional"
	DestinationThirdParty    Destination = "third_party"
)

func (d Destination) Valid() bool {
	return d == DestinationInstitutional || d == DestinationThirdParty
}

func withholding(doc DocumentType, cat ExpenseCategory) rates {
	if doc != DocumentReceipt {
		return noTax
	}

	switch cat {
	case CategoryPurchase:
		return purchaseTax
	case CategoryRental, CategoryService:
		return serviceTax
	default:
		return noTax
	}
}
