package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/service"
)

const screenshotField = "screenshot"

// confirmOrder accepts the order form as JSON, urlencoded or multipart. Only
// multipart requests can carry a payment screenshot.
func (h *Handler) confirmOrder(c *gin.Context) {
	form, err := h.bindOrderForm(c)
	if err != nil {
		view, _ := h.storefront.View(c.Request.Context(), h.sessionID(c))
		h.writeError(c, err, &view)
		return
	}

	view, order, err := h.storefront.ConfirmOrder(c.Request.Context(), h.sessionID(c), form)
	if err != nil {
		h.writeError(c, err, &view)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session": view,
		"order":   order,
		"message": "Order placed successfully",
	})
}

func (h *Handler) bindOrderForm(c *gin.Context) (service.OrderForm, error) {
	var form service.OrderForm

	if !strings.HasPrefix(c.ContentType(), gin.MIMEMultipartPOSTForm) {
		if err := c.ShouldBind(&form); err != nil {
			return form, &service.FieldError{Field: "body", Err: fmt.Errorf("%w: %v", service.ErrInvalidOrderField, err)}
		}
		return form, nil
	}

	// room for the text fields next to the file
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	if err := c.ShouldBind(&form); err != nil {
		return form, tooLargeOr(err, &service.FieldError{Field: "body", Err: fmt.Errorf("%w: %v", service.ErrInvalidOrderField, err)})
	}

	fh, err := c.FormFile(screenshotField)
	if errors.Is(err, http.ErrMissingFile) {
		return form, nil
	}
	if err != nil {
		return form, tooLargeOr(err, &service.FieldError{Field: screenshotField, Err: fmt.Errorf("%w: %v", service.ErrInvalidOrderField, err)})
	}
	if fh.Size > h.maxUploadBytes {
		return form, screenshotTooLarge(h.maxUploadBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return form, fmt.Errorf("failed to open screenshot: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		return form, fmt.Errorf("failed to read screenshot: %w", err)
	}
	if int64(len(data)) > h.maxUploadBytes {
		return form, screenshotTooLarge(h.maxUploadBytes)
	}

	form.Screenshot = &service.Upload{Filename: fh.Filename, Data: data}
	return form, nil
}

func screenshotTooLarge(limit int64) error {
	return &service.FieldError{
		Field: screenshotField,
		Err:   fmt.Errorf("%w: larger than %d bytes", service.ErrInvalidOrderField, limit),
	}
}

func tooLargeOr(err error, fallback error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return &service.FieldError{
			Field: screenshotField,
			Err:   fmt.Errorf("%w: request larger than %d bytes", service.ErrInvalidOrderField, maxErr.Limit),
		}
	}
	return fallback
}
