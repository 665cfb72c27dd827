package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ecoshop/storefront/internal/domain"
)

var (
	errCheckoutTaxRateInvalid  = errors.New("checkout service: tax rate must be within [0, 1)")
	errCheckoutShippingInvalid = errors.New("checkout service: express shipping must not be negative")
)

// ErrCheckoutInvalidInput indicates the form failed validation.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutEmptyCart indicates an order was attempted with nothing in the cart.
var ErrCheckoutEmptyCart = errors.New("checkout service: cart is empty")

const defaultCountry = "United States"

// ShippingMethod selects the delivery option.
type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

// ParseShippingMethod defaults to standard shipping for empty input.
func ParseShippingMethod(raw string) (ShippingMethod, error) {
	switch ShippingMethod(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ShippingStandard:
		return ShippingStandard, nil
	case ShippingExpress:
		return ShippingExpress, nil
	default:
		return "", fmt.Errorf("%w: unknown shipping method %q", ErrCheckoutInvalidInput, raw)
	}
}

// CheckoutStep is one page of the checkout form.
type CheckoutStep string

const (
	StepInformation CheckoutStep = "information"
	StepShipping    CheckoutStep = "shipping"
	StepPayment     CheckoutStep = "payment"
)

// CheckoutSteps lists the steps in order.
func CheckoutSteps() []CheckoutStep {
	return []CheckoutStep{StepInformation, StepShipping, StepPayment}
}

// ParseCheckoutStep accepts the step names case-insensitively.
func ParseCheckoutStep(raw string) (CheckoutStep, error) {
	step := CheckoutStep(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range CheckoutSteps() {
		if step == known {
			return step, nil
		}
	}
	return "", fmt.Errorf("%w: unknown checkout step %q", ErrCheckoutInvalidInput, raw)
}

// CheckoutForm is the data collected across the checkout steps.
type CheckoutForm struct {
	Email          string         `json:"email"`
	FirstName      string         `json:"firstName"`
	LastName       string         `json:"lastName"`
	Address        string         `json:"address"`
	Apartment      string         `json:"apartment"`
	City           string         `json:"city"`
	State          string         `json:"state"`
	Zip            string         `json:"zip"`
	Country        string         `json:"country"`
	Phone          string         `json:"phone"`
	ShippingMethod ShippingMethod `json:"shippingMethod"`
	CardNumber     string         `json:"cardNumber"`
	CardName       string         `json:"cardName"`
	Expiry         string         `json:"expiry"`
	CVV            string         `json:"cvv"`
}

// FieldError names one invalid form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FormValidationError lists every invalid field of a step.
type FormValidationError struct {
	Step   CheckoutStep
	Fields []FieldError
}

func (e *FormValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		names = append(names, field.Field)
	}
	return fmt.Sprintf("%v: step %s: invalid fields [%s]", ErrCheckoutInvalidInput, e.Step, strings.Join(names, ", "))
}

func (e *FormValidationError) Unwrap() error { return ErrCheckoutInvalidInput }

// CheckoutSummary is the priced order summary shown next to the form.
type CheckoutSummary struct {
	Items          []domain.CartLineItem
	ItemCount      int
	ShippingMethod ShippingMethod
	Currency       string
	Subtotal       decimal.Decimal
	Shipping       decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
}

// OrderConfirmation is returned for a placed mock order. Card data is never kept beyond
// the last four digits.
type OrderConfirmation struct {
	OrderNumber string
	PlacedAt    time.Time
	Email       string
	ShipTo      string
	CardLast4   string
	Summary     CheckoutSummary
}

// CheckoutServiceDeps configures checkout pricing.
type CheckoutServiceDeps struct {
	TaxRate         decimal.Decimal
	ExpressShipping decimal.Decimal
	Currency        string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(context.Context, string, map[string]any)
	OnOrder         func()
}

// CheckoutService prices carts and places mock orders.
type CheckoutService struct {
	taxRate  decimal.Decimal
	express  decimal.Decimal
	currency string
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	onOrder  func()
}

// NewCheckoutService validates the pricing configuration.
func NewCheckoutService(deps CheckoutServiceDeps) (*CheckoutService, error) {
	if deps.TaxRate.IsNegative() || deps.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, errCheckoutTaxRateInvalid
	}
	if deps.ExpressShipping.IsNegative() {
		return nil, errCheckoutShippingInvalid
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "USD"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return "ECO-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &CheckoutService{
		taxRate:  deps.TaxRate,
		express:  deps.ExpressShipping,
		currency: currency,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
		onOrder:  deps.OnOrder,
	}, nil
}

// Summary prices the cart: subtotal plus shipping plus tax on the subtotal.
func (s *CheckoutService) Summary(cart *CartStore, method ShippingMethod) CheckoutSummary {
	snapshot := cart.Snapshot()
	return s.summarize(snapshot, method)
}

func (s *CheckoutService) summarize(snapshot CartSnapshot, method ShippingMethod) CheckoutSummary {
	if method != ShippingExpress {
		method = ShippingStandard
	}
	shipping := decimal.Zero
	if method == ShippingExpress {
		shipping = s.express
	}
	subtotal := snapshot.TotalPrice
	tax := subtotal.Mul(s.taxRate).Round(2)
	return CheckoutSummary{
		Items:          snapshot.Items,
		ItemCount:      snapshot.TotalItems,
		ShippingMethod: method,
		Currency:       s.currency,
		Subtotal:       subtotal,
		Shipping:       shipping,
		Tax:            tax,
		Total:          subtotal.Add(shipping).Add(tax),
	}
}

// ValidateStep checks the fields the step collects.
func (s *CheckoutService) ValidateStep(step CheckoutStep, form CheckoutForm) error {
	var fields []FieldError
	switch step {
	case StepInformation:
		fields = validateInformation(form)
	case StepShipping:
		fields = validateShipping(form)
	case StepPayment:
		fields = validatePayment(form)
	default:
		return fmt.Errorf("%w: unknown checkout step %q", ErrCheckoutInvalidInput, step)
	}
	if len(fields) > 0 {
		return &FormValidationError{Step: step, Fields: fields}
	}
	return nil
}

// PlaceOrder requires a non-empty cart and a valid form, confirms the mock order and empties the cart.
func (s *CheckoutService) PlaceOrder(ctx context.Context, cart *CartStore, form CheckoutForm) (OrderConfirmation, error) {
	if cart.TotalItems() == 0 {
		return OrderConfirmation{}, ErrCheckoutEmptyCart
	}
	for _, step := range CheckoutSteps() {
		if err := s.ValidateStep(step, form); err != nil {
			return OrderConfirmation{}, err
		}
	}
	snapshot := cart.Drain()
	if len(snapshot.Items) == 0 {
		return OrderConfirmation{}, ErrCheckoutEmptyCart
	}
	method, _ := ParseShippingMethod(string(form.ShippingMethod))
	summary := s.summarize(snapshot, method)

	confirmation := OrderConfirmation{
		OrderNumber: s.newID(),
		PlacedAt:    s.now(),
		Email:       strings.TrimSpace(form.Email),
		ShipTo:      shipTo(form),
		CardLast4:   lastFour(form.CardNumber),
		Summary:     summary,
	}
	s.logger(ctx, "checkout.order_placed", map[string]any{
		"orderNumber": confirmation.OrderNumber,
		"items":       summary.ItemCount,
		"total":       summary.Total.StringFixed(2),
		"shipping":    string(summary.ShippingMethod),
	})
	if s.onOrder != nil {
		s.onOrder()
	}
	return confirmation, nil
}

func validateInformation(form CheckoutForm) []FieldError {
	var fields []FieldError
	email := strings.TrimSpace(form.Email)
	if email == "" {
		fields = append(fields, FieldError{Field: "email", Message: "email is required"})
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		fields = append(fields, FieldError{Field: "email", Message: "email is invalid"})
	}
	required := []struct {
		name  string
		value string
	}{
		{"firstName", form.FirstName},
		{"lastName", form.LastName},
		{"address", form.Address},
		{"city", form.City},
		{"state", form.State},
		{"zip", form.Zip},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			fields = append(fields, FieldError{Field: field.name, Message: field.name + " is required"})
		}
	}
	return fields
}

func validateShipping(form CheckoutForm) []FieldError {
	if _, err := ParseShippingMethod(string(form.ShippingMethod)); err != nil {
		return []FieldError{{Field: "shippingMethod", Message: "shipping method must be standard or express"}}
	}
	return nil
}

func validatePayment(form CheckoutForm) []FieldError {
	var fields []FieldError
	if digits := onlyDigits(form.CardNumber); len(digits) < 12 || len(digits) > 19 {
		fields = append(fields, FieldError{Field: "cardNumber", Message: "card number must have 12 to 19 digits"})
	}
	if strings.TrimSpace(form.CardName) == "" {
		fields = append(fields, FieldError{Field: "cardName", Message: "name on card is required"})
	}
	if !validExpiry(form.Expiry) {
		fields = append(fields, FieldError{Field: "expiry", Message: "expiry must be MM/YY"})
	}
	if cvv := strings.TrimSpace(form.CVV); len(cvv) < 3 || len(cvv) > 4 || onlyDigits(cvv) != cvv {
		fields = append(fields, FieldError{Field: "cvv", Message: "cvv must have 3 or 4 digits"})
	}
	return fields
}

func validExpiry(raw string) bool {
	month, year, found := strings.Cut(strings.TrimSpace(raw), "/")
	if !found || len(month) != 2 || len(year) != 2 {
		return false
	}
	if onlyDigits(month) != month || onlyDigits(year) != year {
		return false
	}
	return month >= "01" && month <= "12"
}

func onlyDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lastFour(card string) string {
	digits := onlyDigits(card)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

func shipTo(form CheckoutForm) string {
	country := strings.TrimSpace(form.Country)
	if country == "" {
		country = defaultCountry
	}
	parts := []string{
		strings.TrimSpace(form.FirstName + " " + form.LastName),
		strings.TrimSpace(form.Address),
		strings.TrimSpace(form.Apartment),
		strings.TrimSpace(form.City),
		strings.TrimSpace(form.State + " " + form.Zip),
		country,
	}
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, ", ")
}
