package service

import (
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"
)

var (
	ErrMissingOrderField = errors.New("missing required field")
	ErrInvalidOrderField = errors.New("invalid field")
)

// FieldError names the order form field that failed validation.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func missing(field string) error {
	return &FieldError{Field: field, Err: ErrMissingOrderField}
}

// Upload is a file attached to the order form.
type Upload struct {
	Filename string
	Data     []byte
}

// OrderForm is the checkout form as submitted. Values are stored verbatim.
type OrderForm struct {
	CustomerName  string  `json:"customer_name" form:"customer_name"`
	Address       string  `json:"address" form:"address"`
	Phone         string  `json:"phone" form:"phone"`
	Pincode       string  `json:"pincode" form:"pincode"`
	PaymentMethod string  `json:"payment_method" form:"payment_method"`
	GPayNumber    string  `json:"gpay_number" form:"gpay_number"`
	TransactionID string  `json:"transaction_id" form:"transaction_id"`
	Screenshot    *Upload `json:"-" form:"-"`
}

// validate checks required fields in form order and resolves the payment method.
func (f *OrderForm) validate() (models.PaymentMethod, error) {
	required := []struct {
		field string
		value string
	}{
		{"customer_name", f.CustomerName},
		{"address", f.Address},
		{"phone", f.Phone},
		{"pincode", f.Pincode},
		{"payment_method", f.PaymentMethod},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return "", missing(r.field)
		}
	}

	method, ok := models.ParsePaymentMethod(f.PaymentMethod)
	if !ok {
		return "", &FieldError{Field: "payment_method", Err: fmt.Errorf("%w: unknown payment method %q", ErrInvalidOrderField, f.PaymentMethod)}
	}

	if method == models.PaymentGPay {
		if strings.TrimSpace(f.GPayNumber) == "" {
			return "", missing("gpay_number")
		}
		if strings.TrimSpace(f.TransactionID) == "" {
			return "", missing("transaction_id")
		}
	}
	return method, nil
}

func (f *OrderForm) hasScreenshot() bool {
	return f.Screenshot != nil && len(f.Screenshot.Data) > 0
}
