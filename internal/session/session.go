// Package session implements the per-connection page flow of the storefront:
// the current page, the cart and the admin flag of one shopper.
package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/models"
)

var (
	ErrMissingCredential = errors.New("please enter both identifier and secret")
	ErrUnauthorized      = errors.New("unauthorized, please login as admin")
	ErrInvalidTransition = errors.New("action not available on this page")
	ErrSessionNotFound   = errors.New("session not found")
)

// Page is the screen a session is on.
type Page int

const (
	PageLogin Page = iota
	PageStore
	PageProducts
	PageCart
	PageOrder
	PageAdmin
)

var pageNames = [...]string{
	PageLogin:    "login",
	PageStore:    "store",
	PageProducts: "products",
	PageCart:     "cart",
	PageOrder:    "order",
	PageAdmin:    "admin",
}

func (p Page) String() string {
	if p < 0 || int(p) >= len(pageNames) {
		return fmt.Sprintf("page(%d)", int(p))
	}
	return pageNames[p]
}

func ParsePage(s string) (Page, error) {
	for i, name := range pageNames {
		if name == s {
			return Page(i), nil
		}
	}
	return 0, fmt.Errorf("unknown page %q", s)
}

func (p Page) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Page) UnmarshalText(b []byte) error {
	parsed, err := ParsePage(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Credentials is the admin identifier/secret pair sign-in compares against.
type Credentials struct {
	Identifier string
	Secret     string
}

// Session is owned by a single connection and must not be shared.
type Session struct {
	id    string
	page  Page
	cart  []models.CartLine
	admin bool
}

func New(id string) *Session {
	return &Session{id: id, page: PageLogin}
}

func (s *Session) ID() string { return s.id }
func (s *Session) Page() Page { return s.page }
func (s *Session) IsAdmin() bool { return s.admin }
func (s *Session) CartLen() int { return len(s.cart) }
func (s *Session) Total() int64 { return models.CartTotal(s.cart) }

// Cart returns a copy of the cart lines in the order they were added.
func (s *Session) Cart() []models.CartLine {
	return append([]models.CartLine{}, s.cart...)
}

func (s *Session) require(p Page) error {
	if s.page != p {
		return fmt.Errorf("%w: on %s page, need %s", ErrInvalidTransition, s.page, p)
	}
	return nil
}

// SignIn accepts any non-empty identifier/secret pair. The admin pair leads
// to the admin page, everything else to the store as a customer.
func (s *Session) SignIn(admin Credentials, identifier, secret string) error {
	if err := s.require(PageLogin); err != nil {
		return err
	}
	if identifier == "" || secret == "" {
		return ErrMissingCredential
	}
	if identifier == admin.Identifier && secret == admin.Secret {
		s.admin = true
		s.page = PageAdmin
		return nil
	}
	s.page = PageStore
	return nil
}

func (s *Session) ViewProducts() error {
	if err := s.require(PageStore); err != nil {
		return err
	}
	s.page = PageProducts
	return nil
}

// AddToCart appends a copy of p. Adding the same product twice yields two lines.
func (s *Session) AddToCart(p models.Product) error {
	if err := s.require(PageProducts); err != nil {
		return err
	}
	s.cart = append(s.cart, models.NewCartLine(p))
	return nil
}

func (s *Session) ViewCart() error {
	if err := s.require(PageProducts); err != nil {
		return err
	}
	s.page = PageCart
	return nil
}

// PlaceOrder moves to the order form. An empty cart is allowed.
func (s *Session) PlaceOrder() error {
	if err := s.require(PageCart); err != nil {
		return err
	}
	s.page = PageOrder
	return nil
}

// ConfirmOrder passes a copy of the cart to submit and clears the cart only
// if submit succeeds. The session stays on the order page either way.
func (s *Session) ConfirmOrder(submit func(items []models.CartLine) error) error {
	if err := s.require(PageOrder); err != nil {
		return err
	}
	if err := submit(s.Cart()); err != nil {
		return err
	}
	s.cart = nil
	return nil
}

// EnterAdmin opens the admin page, or bounces an unauthenticated session to login.
func (s *Session) EnterAdmin() error {
	if !s.admin {
		s.page = PageLogin
		return ErrUnauthorized
	}
	s.page = PageAdmin
	return nil
}

// Logout returns to login from any page and drops admin rights.
func (s *Session) Logout() {
	s.admin = false
	s.page = PageLogin
}

type sessionJSON struct {
	ID    string            `json:"id"`
	Page  Page              `json:"page"`
	Cart  []models.CartLine `json:"cart"`
	Admin bool              `json:"admin"`
}

func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionJSON{ID: s.id, Page: s.page, Cart: s.cart, Admin: s.admin})
}

func (s *Session) UnmarshalJSON(b []byte) error {
	var v sessionJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	s.id, s.page, s.cart, s.admin = v.ID, v.Page, v.Cart, v.Admin
	return nil
}
