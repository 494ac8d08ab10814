package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storefront/internal/blob"
	"storefront/internal/catalog"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/store"
	"storefront/internal/util"
)

const sessionHeader = "X-Session-ID"

// Pinger reports whether a dependency can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	storefront     *service.StorefrontService
	orderDB        Pinger
	cookieName     string
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(storefront *service.StorefrontService, orderDB Pinger, cookieName string, maxUploadBytes int64) *Handler {
	return &Handler{
		storefront:     storefront,
		orderDB:        orderDB,
		cookieName:     cookieName,
		maxUploadBytes: maxUploadBytes,
		logger:         util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/catalog", h.listCatalog)
		v1.POST("/sessions", h.startSession)

		s := v1.Group("/session")
		s.GET("", h.viewSession)
		s.DELETE("", h.endSession)
		s.POST("/sign-in", h.signIn)
		s.POST("/products", h.viewProducts)
		s.POST("/cart/items", h.addToCart)
		s.POST("/cart", h.viewCart)
		s.POST("/checkout", h.placeOrder)
		s.POST("/orders", h.confirmOrder)
		s.POST("/logout", h.logout)
		s.GET("/admin/orders", h.adminOrders)
		s.GET("/admin/screenshots/:ref", h.screenshot)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only while the order database answers.
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.orderDB.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": h.storefront.Catalog()})
}

func (h *Handler) startSession(c *gin.Context) {
	view, err := h.storefront.StartSession(c.Request.Context())
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, view.ID, 0, "/", "", false, true)
	c.JSON(http.StatusCreated, gin.H{"session": view})
}

// sessionID reads the session from the X-Session-ID header, then the cookie.
func (h *Handler) sessionID(c *gin.Context) string {
	if id := c.GetHeader(sessionHeader); id != "" {
		return id
	}
	id, _ := c.Cookie(h.cookieName)
	return id
}

func (h *Handler) viewSession(c *gin.Context) {
	h.respond(c, h.storefront.View)
}

func (h *Handler) endSession(c *gin.Context) {
	if err := h.storefront.EndSession(c.Request.Context(), h.sessionID(c)); err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

type signInRequest struct {
	Identifier string `json:"identifier" form:"identifier"`
	Secret     string `json:"secret" form:"secret"`
}

func (h *Handler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	h.respond(c, func(ctx context.Context, id string) (service.SessionView, error) {
		return h.storefront.SignIn(ctx, id, req.Identifier, req.Secret)
	})
}

func (h *Handler) viewProducts(c *gin.Context) {
	view, err := h.storefront.ViewProducts(c.Request.Context(), h.sessionID(c))
	if err != nil {
		h.writeError(c, err, &view)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":  view,
		"products": h.storefront.Catalog(),
	})
}

type addToCartRequest struct {
	Product string `json:"product" form:"product" binding:"required"`
}

func (h *Handler) addToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	h.respond(c, func(ctx context.Context, id string) (service.SessionView, error) {
		return h.storefront.AddToCart(ctx, id, req.Product)
	})
}

func (h *Handler) viewCart(c *gin.Context) {
	h.respond(c, h.storefront.ViewCart)
}

func (h *Handler) placeOrder(c *gin.Context) {
	h.respond(c, h.storefront.PlaceOrder)
}

func (h *Handler) logout(c *gin.Context) {
	h.respond(c, h.storefront.Logout)
}

func (h *Handler) adminOrders(c *gin.Context) {
	view, orders, err := h.storefront.AdminOrders(c.Request.Context(), h.sessionID(c))
	if err != nil {
		h.writeError(c, err, &view)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": view,
		"orders":  orders,
	})
}

func (h *Handler) screenshot(c *gin.Context) {
	data, contentType, err := h.storefront.Screenshot(c.Request.Context(), h.sessionID(c), c.Param("ref"))
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Content-Security-Policy", "default-src 'none'; sandbox")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", screenshotFilename(c.Param("ref"))))
	c.Data(http.StatusOK, contentType, data)
}

// screenshotFilename drops the "sha256:" prefix, which browsers mangle in
// download names.
func screenshotFilename(ref string) string {
	return strings.TrimPrefix(ref, "sha256:")
}

// respond runs a session action and writes the resulting view.
func (h *Handler) respond(c *gin.Context, action func(ctx context.Context, id string) (service.SessionView, error)) {
	view, err := action(c.Request.Context(), h.sessionID(c))
	if err != nil {
		h.writeError(c, err, &view)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}

// writeError maps domain errors to status codes. When the session is known
// the body also carries the page it is on now.
func (h *Handler) writeError(c *gin.Context, err error, view *service.SessionView) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var fe *service.FieldError
	if errors.As(err, &fe) {
		body["field"] = fe.Field
	}
	if view != nil && view.ID != "" {
		body["session"] = *view
		body["page"] = view.Page
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrMissingCredential),
		errors.Is(err, service.ErrMissingOrderField),
		errors.Is(err, service.ErrInvalidOrderField),
		errors.Is(err, blob.ErrInvalidRef):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, store.ErrIOFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
