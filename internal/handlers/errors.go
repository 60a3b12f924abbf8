package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/cart"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/checkout"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/remote"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: checkout.StockError matches catalog.ErrStockExhausted, and
// wrapped sentinels are matched before the remote catch-all.
var errorMappings = []errorMapping{
	{auth.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{auth.ErrForbidden, http.StatusForbidden, "forbidden"},
	{checkout.ErrEmptyCart, http.StatusConflict, "empty_cart"},
	{catalog.ErrStockExhausted, http.StatusConflict, "stock_exhausted"},
	{catalog.ErrItemUnavailable, http.StatusConflict, "item_unavailable"},
	{checkout.ErrCartChanged, http.StatusConflict, "cart_changed"},
	{checkout.ErrConflict, http.StatusConflict, "conflict"},
	{checkout.ErrInProgress, http.StatusConflict, "in_progress"},
	{checkout.ErrKeyConflict, http.StatusConflict, "idempotency_key_conflict"},
	{checkout.ErrCartTooLarge, http.StatusUnprocessableEntity, "cart_too_large"},
	{cart.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{cart.ErrInvalidVariant, http.StatusBadRequest, "invalid_variant"},
	{catalog.ErrInvalidItem, http.StatusBadRequest, "invalid_item"},
	{idempotency.ErrInvalidKey, http.StatusBadRequest, "invalid_idempotency_key"},
	{catalog.ErrItemNotFound, http.StatusNotFound, "item_not_found"},
	{cart.ErrLineNotFound, http.StatusNotFound, "line_not_found"},
	{orders.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{remote.ErrFailure, http.StatusBadGateway, "remote_failure"},
}

// fail writes the JSON error body for err. Store failures stay opaque to the
// client and are logged with their cause.
func (s *server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		detail := err.Error()
		if m.status >= http.StatusInternalServerError {
			s.cfg.Log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
			detail = m.target.Error()
		}
		c.JSON(m.status, gin.H{"error": m.code, "detail": detail})
		return
	}
	s.cfg.Log.WithError(err).WithField("path", c.FullPath()).Error("unexpected error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": "internal error"})
}
