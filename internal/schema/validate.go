package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/parvanovkp/receiptsage/internal/receipt"
	"github.com/parvanovkp/receiptsage/internal/scanning"
)

// priceTolerance absorbs the rounding stores apply to weighed items
// (0.99 lb x 4.99 prints as 4.94, not 4.9401). Mismatches beyond it are
// still only warnings; no authoritative tolerance has been specified.
const priceTolerance = 0.05

// dateLayouts are tried in order against "date time" and then date alone.
var dateLayouts = []string{
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04",
	"2006-01-02 3:04 PM",
	"2006-01-02 15:04",
	"1/2/2006",
	"2006-01-02",
	"01-02-2006",
}

// Validate verifies and coerces a raw extracted document into a Receipt
// aggregate. Structural problems and unparseable required fields reject the
// document; everything else degrades to null with a recorded warning.
func Validate(raw scanning.RawDocument) (*receipt.Receipt, []Warning, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, &ValidationError{Kind: TypeMismatch, Path: "$", Expected: "object", Actual: err.Error()}
	}
	if err := checkStructure(doc); err != nil {
		return nil, nil, err
	}

	v := &validator{}

	metadata := objectAt(doc, "metadata")
	totals := objectAt(doc, "totals")
	payment := objectAt(doc, "payment")

	rec := &receipt.Receipt{
		Store:         strings.TrimSpace(stringAt(metadata, "store")),
		Address:       v.optionalString(metadata, "metadata.address", "address"),
		Phone:         v.optionalString(metadata, "metadata.phone", "phone"),
		ReceiptNumber: v.optionalString(metadata, "metadata.receipt_number", "receipt_number"),
	}
	// Whitespace-only passes the structural length check but is still no
	// store name.
	if rec.Store == "" {
		return nil, nil, &ValidationError{Kind: MissingRequiredField, Path: "metadata.store"}
	}

	date, err := parseDateTime(stringAt(metadata, "date"), stringAt(metadata, "time"))
	if err != nil {
		return nil, nil, &ValidationError{
			Kind: TypeMismatch, Path: "metadata.date",
			Expected: "date", Actual: stringAt(metadata, "date"),
		}
	}
	rec.Date = date

	total, ok := parseDecimal(totals["total"])
	if !ok {
		return nil, nil, &ValidationError{
			Kind: TypeMismatch, Path: "totals.total",
			Expected: "decimal", Actual: fmt.Sprintf("%v", totals["total"]),
		}
	}
	rec.Total = total
	rec.Subtotal = v.optionalDecimal(totals, "totals.subtotal", "subtotal")
	rec.TotalSavings = v.optionalDecimal(totals, "totals.total_savings", "total_savings")
	rec.NetSales = v.optionalDecimal(totals, "totals.net_sales", "net_sales")
	rec.BagFee = v.optionalDecimal(totals, "totals.bag_fee", "bag_fee")

	rec.Taxes = v.taxes(totals)
	for _, t := range rec.Taxes {
		rec.TotalTax += t.Amount
	}

	rec.PaymentMethod = v.optionalString(payment, "payment.method", "method")
	rec.CardLastFour = v.optionalString(payment, "payment.card_last_four", "card_last_four")
	rec.PaymentAmount = v.optionalDecimal(payment, "payment.amount", "amount")

	rec.Promotions = v.promotions(doc)
	rec.Items = v.items(doc)

	if rec.Subtotal != nil {
		if sum := rec.ItemTotal(); math.Abs(sum-*rec.Subtotal) > 0.01 {
			v.warnf("totals.subtotal", "item totals sum to %.2f but subtotal is %.2f", sum, *rec.Subtotal)
		}
	}

	return rec, v.warnings, nil
}

// validator accumulates warnings while walking a document.
type validator struct {
	warnings []Warning
}

func (v *validator) warnf(path, format string, args ...any) {
	v.warnings = append(v.warnings, Warning{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) items(doc map[string]any) []receipt.LineItem {
	rawItems, _ := doc["items"].([]any)
	items := make([]receipt.LineItem, 0, len(rawItems))
	for i, entry := range rawItems {
		m, ok := entry.(map[string]any)
		if !ok {
			continue // structural pass guarantees objects; belt and braces
		}
		path := fmt.Sprintf("items[%d]", i)
		it := receipt.LineItem{
			Product:     strings.TrimSpace(stringAt(m, "product")),
			Brand:       v.optionalString(m, path+".brand", "brand"),
			ProductType: v.optionalString(m, path+".product_type", "product_type"),
			Category:    v.optionalString(m, path+".category", "category"),
			Unit:        v.optionalString(m, path+".unit", "unit"),
		}

		it.Quantity = v.optionalQuantity(m, path)
		it.Weight = v.optionalDecimal(m, path+".weight", "weight")

		if p := v.optionalDecimal(m, path+".unit_price", "unit_price"); p != nil {
			it.UnitPrice = *p
		} else {
			v.warnf(path+".unit_price", "missing unit price, recorded as zero")
		}
		if p := v.optionalDecimal(m, path+".total_price", "total_price"); p != nil {
			it.TotalPrice = *p
		} else {
			v.warnf(path+".total_price", "missing total price, recorded as zero")
		}
		if it.UnitPrice < 0 {
			v.warnf(path+".unit_price", "negative unit price %.2f", it.UnitPrice)
		}
		if it.TotalPrice < 0 {
			v.warnf(path+".total_price", "negative total price %.2f", it.TotalPrice)
		}

		if b, ok := m["is_organic"].(bool); ok {
			it.IsOrganic = b
		} else if s, ok := m["is_organic"].(string); ok {
			it.IsOrganic = strings.EqualFold(strings.TrimSpace(s), "true")
		}

		it.Savings = v.optionalDecimal(m, path+".savings", "savings")
		if it.Savings != nil && *it.Savings < 0 {
			v.warnf(path+".savings", "negative savings %.2f", *it.Savings)
		}

		v.checkSizing(&it, path)
		items = append(items, it)
	}
	return items
}

// checkSizing enforces the sizing-dimension invariant as a warning:
// exactly one of quantity and weight should be set. Violations are stored
// as received but flagged, since extraction noise is expected.
func (v *validator) checkSizing(it *receipt.LineItem, path string) {
	switch {
	case it.Quantity != nil && it.Weight != nil:
		it.Flagged = true
		v.warnf(path, "both quantity and weight are set")
	case it.Quantity == nil && it.Weight == nil:
		it.Flagged = true
		v.warnf(path, "neither quantity nor weight is set")
	}

	var size float64
	switch {
	case it.Weight != nil:
		size = *it.Weight
	case it.Quantity != nil:
		size = float64(*it.Quantity)
	default:
		return
	}
	if it.UnitPrice <= 0 || it.TotalPrice <= 0 {
		return
	}
	if expected := it.UnitPrice * size; math.Abs(expected-it.TotalPrice) > priceTolerance {
		v.warnf(path+".total_price", "total %.2f differs from unit_price x %s = %.2f", it.TotalPrice, it.Unit, expected)
	}
}

func (v *validator) taxes(totals map[string]any) []receipt.TaxEntry {
	rawTaxes, _ := totals["tax"].([]any)
	taxes := make([]receipt.TaxEntry, 0, len(rawTaxes))
	for i, entry := range rawTaxes {
		m, ok := entry.(map[string]any)
		if !ok {
			v.warnf(fmt.Sprintf("totals.tax[%d]", i), "tax entry is not an object, dropped")
			continue
		}
		path := fmt.Sprintf("totals.tax[%d]", i)
		amount, ok := parseDecimal(m["amount"])
		if !ok {
			v.warnf(path+".amount", "unparseable tax amount %v, entry dropped", m["amount"])
			continue
		}
		t := receipt.TaxEntry{Amount: amount}
		switch rate := m["rate"].(type) {
		case string:
			t.Rate = strings.TrimSpace(rate)
			if val, ok := parseDecimal(strings.TrimSuffix(t.Rate, "%")); ok {
				t.RateValue = val
			} else {
				v.warnf(path+".rate", "unparseable tax rate %q", rate)
			}
		case float64:
			t.RateValue = rate
			t.Rate = strconv.FormatFloat(rate, 'f', -1, 64) + "%"
		default:
			v.warnf(path+".rate", "missing tax rate")
		}
		taxes = append(taxes, t)
	}
	return taxes
}

func (v *validator) promotions(doc map[string]any) []receipt.Promotion {
	rawPromos, _ := doc["promotions"].([]any)
	promos := make([]receipt.Promotion, 0, len(rawPromos))
	for i, entry := range rawPromos {
		m, ok := entry.(map[string]any)
		if !ok {
			v.warnf(fmt.Sprintf("promotions[%d]", i), "promotion is not an object, dropped")
			continue
		}
		desc := strings.TrimSpace(stringAt(m, "description"))
		if desc == "" {
			v.warnf(fmt.Sprintf("promotions[%d]", i), "promotion has no description, dropped")
			continue
		}
		savings, ok := parseDecimal(m["savings"])
		if !ok {
			v.warnf(fmt.Sprintf("promotions[%d].savings", i), "unparseable savings %v, recorded as zero", m["savings"])
		}
		promos = append(promos, receipt.Promotion{Description: desc, Savings: savings})
	}
	return promos
}

// optionalString reads a string field, coercing numbers (receipt numbers
// arrive as bare numerics from some providers) and degrading anything else
// to empty.
func (v *validator) optionalString(m map[string]any, path, key string) string {
	switch val := m[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		v.warnf(path, "expected string, got %T, dropped", val)
		return ""
	}
}

// optionalDecimal reads a decimal field, returning nil (not zero) when the
// field is absent and degrading to nil with a warning when unparseable.
func (v *validator) optionalDecimal(m map[string]any, path, key string) *float64 {
	val, present := m[key]
	if !present || val == nil {
		return nil
	}
	f, ok := parseDecimal(val)
	if !ok {
		v.warnf(path, "unparseable decimal %v, degraded to null", val)
		return nil
	}
	return &f
}

// optionalQuantity reads quantity as an integer, degrading fractional or
// unparseable values to null with a warning.
func (v *validator) optionalQuantity(m map[string]any, path string) *int {
	val, present := m["quantity"]
	if !present || val == nil {
		return nil
	}
	f, ok := parseDecimal(val)
	if !ok {
		v.warnf(path+".quantity", "unparseable quantity %v, degraded to null", val)
		return nil
	}
	if f != math.Trunc(f) {
		v.warnf(path+".quantity", "fractional quantity %v, degraded to null", val)
		return nil
	}
	n := int(f)
	return &n
}

// parseDecimal parses a numeric field that may arrive as a JSON number or
// a string with currency noise ("$1,234.56"). Parsing is locale-agnostic:
// the decimal separator is always a point.
func parseDecimal(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// parseDateTime combines the metadata date and optional time strings.
func parseDateTime(dateStr, timeStr string) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	timeStr = strings.TrimSpace(timeStr)

	candidates := []string{dateStr}
	if timeStr != "" {
		candidates = []string{dateStr + " " + timeStr, dateStr}
	}
	for _, candidate := range candidates {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, candidate); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", dateStr)
}

func objectAt(m map[string]any, key string) map[string]any {
	if obj, ok := m[key].(map[string]any); ok {
		return obj
	}
	return map[string]any{}
}

func stringAt(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
