package models

import "strings"

// NotApplicable fills order fields that do not apply to the chosen payment method.
const NotApplicable = "N/A"

// Product is a catalog entry. Price is a plain integer amount in rupees.
type Product struct {
	Name   string   `yaml:"name" json:"name"`
	Price  int64    `yaml:"price" json:"price"`
	Images []string `yaml:"images,omitempty" json:"images,omitempty"`
}

// CartLine is a value copy of a product taken when it was added to a cart.
type CartLine struct {
	ProductName string `json:"name"`
	UnitPrice   int64  `json:"price"`
}

// NewCartLine copies the fields of p that a cart keeps.
func NewCartLine(p Product) CartLine {
	return CartLine{ProductName: p.Name, UnitPrice: p.Price}
}

// CartTotal sums the unit prices of lines.
func CartTotal(lines []CartLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.UnitPrice
	}
	return total
}

// PaymentMethod is stored verbatim in the payment column.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "Cash on Delivery"
	PaymentGPay           PaymentMethod = "GPay"
)

// ParsePaymentMethod accepts the stored labels and short aliases, case-insensitively.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash on delivery", "cash_on_delivery", "cod":
		return PaymentCashOnDelivery, true
	case "gpay", "google pay":
		return PaymentGPay, true
	}
	return "", false
}

// Order is an immutable record of a confirmed checkout.
type Order struct {
	ID            int64         `json:"id"`
	CustomerName  string        `json:"customer_name"`
	Address       string        `json:"address"`
	Phone         string        `json:"phone"`
	Pincode       string        `json:"pincode"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	GPayNumber    string        `json:"gpay_number"`
	TransactionID string        `json:"transaction_id"`
	Screenshot    string        `json:"screenshot"`
	Items         []CartLine    `json:"items"`
	// RawItems holds stored item text that could not be decoded, e.g. rows
	// written before items were stored as JSON.
	RawItems string `json:"raw_items,omitempty"`
}

// Total sums the order's items.
func (o *Order) Total() int64 {
	return CartTotal(o.Items)
}
