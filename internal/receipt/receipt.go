package receipt

import "time"

// Receipt is one purchase event together with everything it owns: line
// items, tax entries, and promotions. The aggregate is persisted as a unit.
type Receipt struct {
	ID              int64       `json:"id"`
	Store           string      `json:"store"`
	StoreNormalized string      `json:"store_normalized"`
	Address         string      `json:"address,omitempty"`
	Phone           string      `json:"phone,omitempty"`
	ReceiptNumber   string      `json:"receipt_number,omitempty"`
	Date            time.Time   `json:"date"`
	Subtotal        *float64    `json:"subtotal,omitempty"`
	TotalSavings    *float64    `json:"total_savings,omitempty"`
	NetSales        *float64    `json:"net_sales,omitempty"`
	BagFee          *float64    `json:"bag_fee,omitempty"`
	TotalTax        float64     `json:"total_tax"`
	Total           float64     `json:"total"`
	PaymentMethod   string      `json:"payment_method,omitempty"`
	CardLastFour    string      `json:"card_last_four,omitempty"`
	PaymentAmount   *float64    `json:"payment_amount,omitempty"`
	Items           []LineItem  `json:"items"`
	Taxes           []TaxEntry  `json:"taxes"`
	Promotions      []Promotion `json:"promotions,omitempty"`
	SourcePath      string      `json:"source_path,omitempty"`
	Fingerprint     string      `json:"fingerprint,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// LineItem is one purchased product. Exactly one of Quantity and Weight is
// populated on clean data; Flagged marks items where extraction broke that
// rule and the values were stored as received.
type LineItem struct {
	Brand       string   `json:"brand,omitempty"`
	Product     string   `json:"product"`
	ProductType string   `json:"product_type,omitempty"`
	Category    string   `json:"category,omitempty"`
	Quantity    *int     `json:"quantity,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`
	UnitPrice   float64  `json:"unit_price"`
	TotalPrice  float64  `json:"total_price"`
	IsOrganic   bool     `json:"is_organic"`
	Savings     *float64 `json:"savings,omitempty"`
	Flagged     bool     `json:"flagged,omitempty"`
}

// TaxEntry is one tax line. Rate keeps the string as printed on the
// receipt ("9.04%"); RateValue is the parsed percentage.
type TaxEntry struct {
	Rate      string  `json:"rate"`
	RateValue float64 `json:"rate_value"`
	Amount    float64 `json:"amount"`
}

// Promotion is an informational savings line. It need not reconcile with
// any particular line item's savings.
type Promotion struct {
	Description string  `json:"description"`
	Savings     float64 `json:"savings"`
}

// ItemTotal sums the visible line item total prices. It routinely differs
// from Subtotal on real receipts (fees and non-itemized adjustments), so
// callers should treat a mismatch as informational.
func (r *Receipt) ItemTotal() float64 {
	var sum float64
	for _, it := range r.Items {
		sum += it.TotalPrice
	}
	return sum
}
