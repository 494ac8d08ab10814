package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront/internal/blob"
	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/session"
)

type MockOrderStore struct {
	mock.Mock
}

func (m *MockOrderStore) InsertOrder(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	if args.Error(0) == nil {
		order.ID = int64(len(m.Calls))
	}
	return args.Error(0)
}

func (m *MockOrderStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	args := m.Called(ctx)
	if orders, ok := args.Get(0).([]models.Order); ok {
		return orders, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return m.Called(ctx, event).Error(0)
}

var admin = session.Credentials{Identifier: "admin", Secret: "letmein"}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 16)...)

type fixture struct {
	svc       *StorefrontService
	orders    *MockOrderStore
	publisher *MockPublisher
	blobs     *blob.FileStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	blobs, err := blob.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{orders: &MockOrderStore{}, publisher: &MockPublisher{}, blobs: blobs}
	f.svc = NewStorefrontService(
		session.NewMemoryRegistry(time.Hour),
		catalog.Default(),
		f.orders,
		blobs,
		f.publisher,
		admin,
	)
	return f
}

// customerAtOrderForm signs in, adds products and opens the order form.
func (f *fixture) customerAtOrderForm(t *testing.T, products ...string) string {
	t.Helper()
	ctx := context.Background()

	v, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	id := v.ID

	_, err = f.svc.SignIn(ctx, id, "mary", "pw")
	require.NoError(t, err)
	_, err = f.svc.ViewProducts(ctx, id)
	require.NoError(t, err)
	for _, p := range products {
		_, err = f.svc.AddToCart(ctx, id, p)
		require.NoError(t, err)
	}
	_, err = f.svc.ViewCart(ctx, id)
	require.NoError(t, err)
	v, err = f.svc.PlaceOrder(ctx, id)
	require.NoError(t, err)
	require.Equal(t, session.PageOrder, v.Page)
	return id
}

func codForm() OrderForm {
	return OrderForm{
		CustomerName:  "A",
		Address:       "B",
		Phone:         "C",
		Pincode:       "D",
		PaymentMethod: "Cash on Delivery",
	}
}

func TestConfirmOrderCashOnDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.customerAtOrderForm(t, "Dry amla", "Dry amla")

	f.orders.On("InsertOrder", mock.Anything, mock.MatchedBy(func(o *models.Order) bool {
		return o.CustomerName == "A" &&
			o.PaymentMethod == models.PaymentCashOnDelivery &&
			o.GPayNumber == models.NotApplicable &&
			o.TransactionID == models.NotApplicable &&
			o.Screenshot == models.NotApplicable &&
			len(o.Items) == 2 && o.Total() == 200
	})).Return(nil).Once()
	f.publisher.On("PublishOrderPlaced", mock.Anything, mock.MatchedBy(func(e *models.OrderPlacedEvent) bool {
		return e.EventType == models.EventTypeOrderPlaced && e.TotalAmount == 200 && e.SessionID == id
	})).Return(nil).Once()

	view, order, err := f.svc.ConfirmOrder(ctx, id, codForm())

	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, session.PageOrder, view.Page)
	assert.Empty(t, view.Cart)
	assert.Zero(t, view.Total)
	f.orders.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func TestConfirmOrderGPayMissingTransactionID(t *testing.T) {
	f := newFixture(t)
	id := f.customerAtOrderForm(t, "Ragi powder")

	form := codForm()
	form.PaymentMethod = "GPay"
	form.GPayNumber = "98765"

	view, order, err := f.svc.ConfirmOrder(context.Background(), id, form)

	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrMissingOrderField)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "transaction_id", fe.Field)
	assert.Len(t, view.Cart, 1)
	assert.Equal(t, session.PageOrder, view.Page)
	f.orders.AssertNotCalled(t, "InsertOrder", mock.Anything, mock.Anything)
}

func TestConfirmOrderValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*OrderForm)
		wantErr   error
		wantField string
	}{
		{"missing name", func(f *OrderForm) { f.CustomerName = "" }, ErrMissingOrderField, "customer_name"},
		{"blank address", func(f *OrderForm) { f.Address = "   " }, ErrMissingOrderField, "address"},
		{"missing pincode", func(f *OrderForm) { f.Pincode = "" }, ErrMissingOrderField, "pincode"},
		{"missing payment", func(f *OrderForm) { f.PaymentMethod = "" }, ErrMissingOrderField, "payment_method"},
		{"unknown payment", func(f *OrderForm) { f.PaymentMethod = "Bitcoin" }, ErrInvalidOrderField, "payment_method"},
		{"gpay without number", func(f *OrderForm) { f.PaymentMethod = "gpay"; f.TransactionID = "T1" }, ErrMissingOrderField, "gpay_number"},
		{"gpay with text screenshot", func(f *OrderForm) {
			f.PaymentMethod = "GPay"
			f.GPayNumber = "1"
			f.TransactionID = "T1"
			f.Screenshot = &Upload{Filename: "pay.png", Data: []byte("plain text, not an image")}
		}, ErrInvalidOrderField, "screenshot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.customerAtOrderForm(t, "Dry amla")
			form := codForm()
			tt.mutate(&form)

			view, _, err := f.svc.ConfirmOrder(context.Background(), id, form)

			assert.ErrorIs(t, err, tt.wantErr)
			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.wantField, fe.Field)
			assert.Len(t, view.Cart, 1)
			f.orders.AssertNotCalled(t, "InsertOrder", mock.Anything, mock.Anything)
		})
	}
}

func TestConfirmOrderGPayWithScreenshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.customerAtOrderForm(t, "Rose petal jam")

	var stored *models.Order
	f.orders.On("InsertOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*models.Order) }).
		Return(nil).Once()
	f.publisher.On("PublishOrderPlaced", mock.Anything, mock.Anything).Return(nil).Once()

	form := codForm()
	form.PaymentMethod = "GPay"
	form.GPayNumber = "12345678"
	form.TransactionID = "TXN-1"
	form.Screenshot = &Upload{Filename: "pay.png", Data: pngBytes}

	_, _, err := f.svc.ConfirmOrder(ctx, id, form)
	require.NoError(t, err)

	require.NotNil(t, stored)
	assert.Equal(t, models.PaymentGPay, stored.PaymentMethod)
	assert.Equal(t, "12345678", stored.GPayNumber)
	assert.True(t, strings.HasPrefix(stored.Screenshot, "sha256:"))
	assert.True(t, strings.HasSuffix(stored.Screenshot, ".png"))

	data, err := f.blobs.Get(ctx, stored.Screenshot)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}

func TestConfirmOrderCashOnDeliveryIgnoresScreenshot(t *testing.T) {
	f := newFixture(t)
	id := f.customerAtOrderForm(t, "Dry amla")

	f.orders.On("InsertOrder", mock.Anything, mock.MatchedBy(func(o *models.Order) bool {
		return o.Screenshot == models.NotApplicable
	})).Return(nil).Once()
	f.publisher.On("PublishOrderPlaced", mock.Anything, mock.Anything).Return(nil)

	form := codForm()
	form.Screenshot = &Upload{Filename: "pay.png", Data: pngBytes}

	_, _, err := f.svc.ConfirmOrder(context.Background(), id, form)

	require.NoError(t, err)
	f.orders.AssertExpectations(t)
}

func TestConfirmOrderStoreFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	id := f.customerAtOrderForm(t, "Dry amla", "Face pack powder")

	f.orders.On("InsertOrder", mock.Anything, mock.Anything).Return(errors.New("disk I/O error")).Once()

	view, order, err := f.svc.ConfirmOrder(context.Background(), id, codForm())

	assert.Nil(t, order)
	assert.ErrorContains(t, err, "failed to save order")
	assert.Len(t, view.Cart, 2)
	assert.Equal(t, int64(200), view.Total)
	f.publisher.AssertNotCalled(t, "PublishOrderPlaced", mock.Anything, mock.Anything)
}

func TestConfirmOrderPublishFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	id := f.customerAtOrderForm(t, "Dry amla")

	f.orders.On("InsertOrder", mock.Anything, mock.Anything).Return(nil).Once()
	f.publisher.On("PublishOrderPlaced", mock.Anything, mock.Anything).Return(errors.New("kafka down")).Once()

	view, order, err := f.svc.ConfirmOrder(context.Background(), id, codForm())

	require.NoError(t, err)
	assert.NotNil(t, order)
	assert.Empty(t, view.Cart)
}

func TestConfirmOrderWithoutPublisher(t *testing.T) {
	f := newFixture(t)
	f.svc.publisher = nil
	id := f.customerAtOrderForm(t)

	f.orders.On("InsertOrder", mock.Anything, mock.MatchedBy(func(o *models.Order) bool {
		return len(o.Items) == 0
	})).Return(nil).Once()

	_, order, err := f.svc.ConfirmOrder(context.Background(), id, codForm())

	require.NoError(t, err)
	assert.Zero(t, order.Total())
}

func TestConfirmOrderWrongPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.StartSession(ctx)
	require.NoError(t, err)

	view, _, err := f.svc.ConfirmOrder(ctx, v.ID, codForm())

	assert.ErrorIs(t, err, session.ErrInvalidTransition)
	assert.Equal(t, session.PageLogin, view.Page)
}

func TestAddToCartUnknownProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.StartSession(ctx)
	require.NoError(t, err)

	_, err = f.svc.AddToCart(ctx, v.ID, "Mango pickle")

	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestSignInOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	view, err := f.svc.SignIn(ctx, v.ID, "", "pw")
	assert.ErrorIs(t, err, session.ErrMissingCredential)
	assert.Equal(t, session.PageLogin, view.Page)

	view, err = f.svc.SignIn(ctx, v.ID, "admin", "letmein")
	require.NoError(t, err)
	assert.Equal(t, session.PageAdmin, view.Page)
	assert.True(t, view.Admin)
}

func TestAdminOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stored := []models.Order{{ID: 1, CustomerName: "A", PaymentMethod: models.PaymentCashOnDelivery}}
	f.orders.On("ListOrders", mock.Anything).Return(stored, nil).Once()

	v, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	_, err = f.svc.SignIn(ctx, v.ID, "admin", "letmein")
	require.NoError(t, err)

	view, orders, err := f.svc.AdminOrders(ctx, v.ID)

	require.NoError(t, err)
	assert.Equal(t, session.PageAdmin, view.Page)
	assert.Equal(t, stored, orders)
}

func TestAdminOrdersUnauthorized(t *testing.T) {
	f := newFixture(t)
	id := f.customerAtOrderForm(t, "Dry amla")

	view, orders, err := f.svc.AdminOrders(context.Background(), id)

	assert.ErrorIs(t, err, session.ErrUnauthorized)
	assert.Nil(t, orders)
	assert.Equal(t, session.PageLogin, view.Page)
	assert.Len(t, view.Cart, 1)
	f.orders.AssertNotCalled(t, "ListOrders", mock.Anything)
}

func TestAdminOrdersStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orders.On("ListOrders", mock.Anything).Return(nil, errors.New("locked")).Once()

	v, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	_, err = f.svc.SignIn(ctx, v.ID, "admin", "letmein")
	require.NoError(t, err)

	_, _, err = f.svc.AdminOrders(ctx, v.ID)

	assert.ErrorContains(t, err, "failed to list orders")
}

func TestScreenshotAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref, err := f.blobs.Put(ctx, "pay.png", pngBytes)
	require.NoError(t, err)

	customer := f.customerAtOrderForm(t)
	_, _, err = f.svc.Screenshot(ctx, customer, ref)
	assert.ErrorIs(t, err, session.ErrUnauthorized)

	v, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	_, err = f.svc.SignIn(ctx, v.ID, "admin", "letmein")
	require.NoError(t, err)

	data, contentType, err := f.svc.Screenshot(ctx, v.ID, ref)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", contentType)
}

func TestLogoutKeepsCartAndEndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.customerAtOrderForm(t, "Dry amla")

	view, err := f.svc.Logout(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.PageLogin, view.Page)
	assert.Len(t, view.Cart, 1)

	require.NoError(t, f.svc.EndSession(ctx, id))
	_, err = f.svc.View(ctx, id)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestCatalogListsDefaultProducts(t *testing.T) {
	f := newFixture(t)

	products := f.svc.Catalog()

	require.Len(t, products, 6)
	assert.Equal(t, "Dry amla", products[0].Name)
}

func TestConfirmOrderRejectsSVGScreenshot(t *testing.T) {
	f := newFixture(t)
	id := f.customerAtOrderForm(t, "Dry amla")

	form := codForm()
	form.PaymentMethod = "GPay"
	form.GPayNumber = "12345678"
	form.TransactionID = "TXN-1"
	form.Screenshot = &Upload{
		Filename: "pay.svg",
		Data:     []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(document.cookie)</script></svg>`),
	}

	view, order, err := f.svc.ConfirmOrder(context.Background(), id, form)

	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrInvalidOrderField)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "screenshot", fe.Field)
	assert.Len(t, view.Cart, 1)
	f.orders.AssertNotCalled(t, "InsertOrder", mock.Anything, mock.Anything)
}

func TestConfirmOrderRetryAfterStoreFailureReusesScreenshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.customerAtOrderForm(t, "Rose petal jam")

	var refs []string
	capture := func(args mock.Arguments) { refs = append(refs, args.Get(1).(*models.Order).Screenshot) }
	f.orders.On("InsertOrder", mock.Anything, mock.Anything).Run(capture).Return(errors.New("disk I/O error")).Once()
	f.orders.On("InsertOrder", mock.Anything, mock.Anything).Run(capture).Return(nil).Once()
	f.publisher.On("PublishOrderPlaced", mock.Anything, mock.Anything).Return(nil).Once()

	form := codForm()
	form.PaymentMethod = "GPay"
	form.GPayNumber = "12345678"
	form.TransactionID = "TXN-1"
	form.Screenshot = &Upload{Filename: "pay.png", Data: pngBytes}

	view, _, err := f.svc.ConfirmOrder(ctx, id, form)
	require.Error(t, err)
	assert.Len(t, view.Cart, 1)

	view, order, err := f.svc.ConfirmOrder(ctx, id, form)
	require.NoError(t, err)
	assert.Empty(t, view.Cart)

	require.Len(t, refs, 2)
	assert.Equal(t, refs[0], refs[1])
	assert.Equal(t, refs[1], order.Screenshot)

	data, err := f.blobs.Get(ctx, order.Screenshot)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}
