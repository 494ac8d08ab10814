package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/blob"
	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/util"
)

// OrderStore is the persistence the storefront needs.
type OrderStore interface {
	InsertOrder(ctx context.Context, order *models.Order) error
	ListOrders(ctx context.Context) ([]models.Order, error)
}

type OrderEventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
}

// SessionView is what the presentation layer renders after each action.
type SessionView struct {
	ID    string            `json:"session_id"`
	Page  session.Page      `json:"page"`
	Admin bool              `json:"admin"`
	Cart  []models.CartLine `json:"cart"`
	Total int64             `json:"total"`
}

func viewOf(s *session.Session) SessionView {
	return SessionView{
		ID:    s.ID(),
		Page:  s.Page(),
		Admin: s.IsAdmin(),
		Cart:  s.Cart(),
		Total: s.Total(),
	}
}

// StorefrontService runs one user action per call against a session.
type StorefrontService struct {
	sessions  session.Registry
	catalog   *catalog.Catalog
	orders    OrderStore
	blobs     blob.Store
	publisher OrderEventPublisher
	admin     session.Credentials
	logger    *zap.Logger
}

// NewStorefrontService wires the service. publisher may be nil when order
// events are disabled.
func NewStorefrontService(
	sessions session.Registry,
	cat *catalog.Catalog,
	orders OrderStore,
	blobs blob.Store,
	publisher OrderEventPublisher,
	admin session.Credentials,
) *StorefrontService {
	return &StorefrontService{
		sessions:  sessions,
		catalog:   cat,
		orders:    orders,
		blobs:     blobs,
		publisher: publisher,
		admin:     admin,
		logger:    util.GetLogger(),
	}
}

// Catalog lists the products in display order.
func (s *StorefrontService) Catalog() []models.Product {
	return s.catalog.Products()
}

func (s *StorefrontService) StartSession(ctx context.Context) (SessionView, error) {
	ctx, span := util.StartSpan(ctx, "StorefrontService.StartSession")
	defer span.End()

	sess, err := s.sessions.Create(ctx)
	if err != nil {
		return SessionView{}, fmt.Errorf("failed to start session: %w", err)
	}

	util.SessionsStartedTotal.Inc()
	s.logger.Debug("Session started", zap.String("session_id", sess.ID()))
	return viewOf(sess), nil
}

// EndSession discards the session and its cart.
func (s *StorefrontService) EndSession(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "StorefrontService.EndSession")
	defer span.End()

	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}
	util.SessionsEndedTotal.WithLabelValues("closed").Inc()
	return nil
}

// do applies fn to the session and returns the resulting view, also when fn
// fails, so callers can render the page the session ended up on.
func (s *StorefrontService) do(ctx context.Context, id string, fn func(*session.Session) error) (SessionView, error) {
	var view SessionView
	err := s.sessions.Update(ctx, id, func(sess *session.Session) error {
		err := fn(sess)
		view = viewOf(sess)
		return err
	})
	return view, err
}

func (s *StorefrontService) View(ctx context.Context, id string) (SessionView, error) {
	return s.do(ctx, id, func(*session.Session) error { return nil })
}

func (s *StorefrontService) SignIn(ctx context.Context, id, identifier, secret string) (SessionView, error) {
	ctx, span := util.StartSpan(ctx, "StorefrontService.SignIn")
	defer span.End()

	view, err := s.do(ctx, id, func(sess *session.Session) error {
		return sess.SignIn(s.admin, identifier, secret)
	})

	switch {
	case err == nil && view.Admin:
		util.SignInsTotal.WithLabelValues("admin").Inc()
		s.logger.Info("Admin signed in", zap.String("session_id", id))
	case err == nil:
		util.SignInsTotal.WithLabelValues("customer").Inc()
	case errors.Is(err, session.ErrMissingCredential):
		util.SignInsTotal.WithLabelValues("missing_credential").Inc()
	}
	return view, err
}

func (s *StorefrontService) ViewProducts(ctx context.Context, id string) (SessionView, error) {
	return s.do(ctx, id, (*session.Session).ViewProducts)
}

// AddToCart appends the named catalog product to the cart.
func (s *StorefrontService) AddToCart(ctx context.Context, id, productName string) (SessionView, error) {
	ctx, span := util.StartSpan(ctx, "StorefrontService.AddToCart")
	defer span.End()

	view, err := s.do(ctx, id, func(sess *session.Session) error {
		product, err := s.catalog.Lookup(productName)
		if err != nil {
			return err
		}
		return sess.AddToCart(product)
	})
	if err == nil {
		util.CartAdditionsTotal.WithLabelValues(productName).Inc()
	}
	return view, err
}

func (s *StorefrontService) ViewCart(ctx context.Context, id string) (SessionView, error) {
	return s.do(ctx, id, (*session.Session).ViewCart)
}

func (s *StorefrontService) PlaceOrder(ctx context.Context, id string) (SessionView, error) {
	return s.do(ctx, id, (*session.Session).PlaceOrder)
}

// ConfirmOrder validates form, stores the order with the session's cart and
// clears the cart. On any failure nothing is stored and the cart is kept.
func (s *StorefrontService) ConfirmOrder(ctx context.Context, id string, form OrderForm) (SessionView, *models.Order, error) {
	ctx, span := util.StartSpan(ctx, "StorefrontService.ConfirmOrder")
	defer span.End()

	var placed *models.Order
	view, err := s.do(ctx, id, func(sess *session.Session) error {
		return sess.ConfirmOrder(func(items []models.CartLine) error {
			order, err := s.buildOrder(ctx, &form, items)
			if err != nil {
				return err
			}
			if err := s.orders.InsertOrder(ctx, order); err != nil {
				util.OrdersFailedTotal.WithLabelValues("store").Inc()
				return fmt.Errorf("failed to save order: %w", err)
			}
			placed = order
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, session.ErrInvalidTransition) {
			util.OrdersFailedTotal.WithLabelValues("wrong_page").Inc()
		}
		s.logger.Warn("Order not placed", zap.String("session_id", id), zap.Error(err))
		return view, nil, err
	}

	util.OrdersPlacedTotal.WithLabelValues(string(placed.PaymentMethod)).Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", placed.ID),
		zap.String("payment", string(placed.PaymentMethod)),
		zap.Int("items", len(placed.Items)),
		zap.Int64("total", placed.Total()))

	s.publishOrderPlaced(ctx, id, placed)
	return view, placed, nil
}

func (s *StorefrontService) buildOrder(ctx context.Context, form *OrderForm, items []models.CartLine) (*models.Order, error) {
	method, err := form.validate()
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	order := &models.Order{
		CustomerName:  form.CustomerName,
		Address:       form.Address,
		Phone:         form.Phone,
		Pincode:       form.Pincode,
		PaymentMethod: method,
		GPayNumber:    models.NotApplicable,
		TransactionID: models.NotApplicable,
		Screenshot:    models.NotApplicable,
		Items:         items,
	}
	if method != models.PaymentGPay {
		return order, nil
	}

	order.GPayNumber = form.GPayNumber
	order.TransactionID = form.TransactionID
	// The screenshot is stored before the row. If the insert then fails the
	// blob stays unreferenced; it is not removed because refs are content
	// addressed and the same bytes may back another order, and a retry of
	// this order maps to the same ref.
	if form.hasScreenshot() {
		ref, err := s.storeScreenshot(ctx, form.Screenshot)
		if err != nil {
			return nil, err
		}
		order.Screenshot = ref
	}
	return order, nil
}

func (s *StorefrontService) storeScreenshot(ctx context.Context, up *Upload) (string, error) {
	ctx, span := util.StartSpan(ctx, "StorefrontService.storeScreenshot")
	defer span.End()

	if _, err := blob.DetectImage(up.Data); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return "", &FieldError{Field: "screenshot", Err: fmt.Errorf("%w: %v", ErrInvalidOrderField, err)}
	}

	ref, err := s.blobs.Put(ctx, up.Filename, up.Data)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("screenshot").Inc()
		return "", fmt.Errorf("failed to store screenshot: %w", err)
	}
	util.ScreenshotUploadBytes.Observe(float64(len(up.Data)))
	return ref, nil
}

func (s *StorefrontService) publishOrderPlaced(ctx context.Context, sessionID string, order *models.Order) {
	if s.publisher == nil {
		return
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		SessionID:     sessionID,
		CustomerName:  order.CustomerName,
		PaymentMethod: order.PaymentMethod,
		TotalAmount:   order.Total(),
		Items:         order.Items,
	}

	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		util.EventsPublishFailedTotal.Inc()
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

// AdminOrders opens the admin page and lists every stored order. A session
// without admin rights is sent back to login.
func (s *StorefrontService) AdminOrders(ctx context.Context, id string) (SessionView, []models.Order, error) {
	ctx, span := util.StartSpan(ctx, "StorefrontService.AdminOrders")
	defer span.End()

	var orders []models.Order
	view, err := s.do(ctx, id, func(sess *session.Session) error {
		if err := sess.EnterAdmin(); err != nil {
			return err
		}
		var err error
		orders, err = s.orders.ListOrders(ctx)
		if err != nil {
			return fmt.Errorf("failed to list orders: %w", err)
		}
		return nil
	})
	if err != nil {
		return view, nil, err
	}
	return view, orders, nil
}

// Screenshot returns a stored payment screenshot and its content type.
// Admin sessions only.
func (s *StorefrontService) Screenshot(ctx context.Context, id, ref string) ([]byte, string, error) {
	ctx, span := util.StartSpan(ctx, "StorefrontService.Screenshot")
	defer span.End()

	_, err := s.do(ctx, id, func(sess *session.Session) error {
		if !sess.IsAdmin() {
			return session.ErrUnauthorized
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	data, err := s.blobs.Get(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	return data, blob.ContentType(data), nil
}

func (s *StorefrontService) Logout(ctx context.Context, id string) (SessionView, error) {
	return s.do(ctx, id, func(sess *session.Session) error {
		sess.Logout()
		return nil
	})
}
