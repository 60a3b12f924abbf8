package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (s *server) viewCart(c *gin.Context) {
	view, err := s.cfg.Carts.View(c.Request.Context(), CallerFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *server) addLine(c *gin.Context) {
	var req validation.AddCartLineRequest
	if err := validation.BindAndValidate(c, &req, s.v); err != nil {
		return
	}

	line, err := s.cfg.Carts.Add(c.Request.Context(), CallerFrom(c), req.ItemID, req.Variant)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

func (s *server) setQuantity(c *gin.Context) {
	var req validation.SetQuantityRequest
	if err := validation.BindAndValidate(c, &req, s.v); err != nil {
		return
	}

	if err := s.cfg.Carts.SetQuantity(c.Request.Context(), CallerFrom(c), c.Param("lineID"), *req.Quantity); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) removeLine(c *gin.Context) {
	if err := s.cfg.Carts.Remove(c.Request.Context(), CallerFrom(c), c.Param("lineID")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) clearCart(c *gin.Context) {
	if err := s.cfg.Carts.Clear(c.Request.Context(), CallerFrom(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
