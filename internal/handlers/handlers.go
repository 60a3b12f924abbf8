// Package handlers exposes the storefront over HTTP with gin.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/cart"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/checkout"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

type Catalog interface {
	List(ctx context.Context, f catalog.Filter) ([]catalog.Item, error)
	Get(ctx context.Context, id string) (*catalog.Item, error)
	Create(ctx context.Context, caller auth.Caller, it catalog.Item) (*catalog.Item, error)
	Update(ctx context.Context, caller auth.Caller, id string, p catalog.Patch) (*catalog.Item, error)
	Restock(ctx context.Context, caller auth.Caller, id string, delta int) (int, error)
	SetActive(ctx context.Context, caller auth.Caller, id string, active bool) error
}

type Carts interface {
	Add(ctx context.Context, caller auth.Caller, itemID, variant string) (*cart.Line, error)
	SetQuantity(ctx context.Context, caller auth.Caller, lineID string, n int) error
	Remove(ctx context.Context, caller auth.Caller, lineID string) error
	Clear(ctx context.Context, caller auth.Caller) error
	View(ctx context.Context, caller auth.Caller) (*cart.Cart, error)
}

type Checkout interface {
	Place(ctx context.Context, caller auth.Caller, idempotencyKey string) (*checkout.Result, error)
}

type Orders interface {
	List(ctx context.Context, caller auth.Caller) ([]orders.Order, error)
	Get(ctx context.Context, caller auth.Caller, orderID string) (*orders.Order, error)
}

type Sessions interface {
	Resolve(ctx context.Context, caller auth.Caller) (auth.Session, error)
}

// HandlerConfig groups dependencies for the storefront routes.
type HandlerConfig struct {
	Catalog  Catalog
	Carts    Carts
	Checkout Checkout
	Orders   Orders
	Sessions Sessions
	Log      logrus.FieldLogger
	// TrustUserHeader accepts X-User-Id as the caller identity. Only for
	// local runs; on Lambda the API Gateway authorizer is the source.
	TrustUserHeader bool
}

type server struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
}

// RegisterRoutes registers the storefront API on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	s := &server{cfg: cfg, v: validation.New()}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/", Identity(cfg.TrustUserHeader))

	api.GET("/me", s.me)

	api.GET("/items", s.listItems)
	api.GET("/items/:id", s.getItem)

	admin := api.Group("/admin/items")
	admin.POST("", s.createItem)
	admin.PATCH("/:id", s.updateItem)
	admin.POST("/:id/restock", s.restockItem)
	admin.POST("/:id/deactivate", s.setActive(false))
	admin.POST("/:id/activate", s.setActive(true))

	api.GET("/cart", s.viewCart)
	api.DELETE("/cart", s.clearCart)
	api.POST("/cart/lines", s.addLine)
	api.PUT("/cart/lines/:lineID", s.setQuantity)
	api.DELETE("/cart/lines/:lineID", s.removeLine)

	api.POST("/checkout", s.checkout)
	api.GET("/orders", s.listOrders)
	api.GET("/orders/:id", s.getOrder)
}

func (s *server) me(c *gin.Context) {
	session, err := s.cfg.Sessions.Resolve(c.Request.Context(), CallerFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
