package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (s *server) listItems(c *gin.Context) {
	var q validation.CatalogQuery
	if err := validation.BindQueryAndValidate(c, &q, s.v); err != nil {
		return
	}
	bracket, err := catalog.ParseBracket(q.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_query", "detail": err.Error()})
		return
	}

	items, err := s.cfg.Catalog.List(c.Request.Context(), catalog.Filter{Query: q.Q, Brand: q.Brand, Bracket: bracket})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *server) getItem(c *gin.Context) {
	it, err := s.cfg.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

func (s *server) createItem(c *gin.Context) {
	var req validation.CreateItemRequest
	if err := validation.BindAndValidate(c, &req, s.v); err != nil {
		return
	}

	it, err := s.cfg.Catalog.Create(c.Request.Context(), CallerFrom(c), catalog.Item{
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		ImageURL:      req.ImageURL,
		Brand:         req.Brand,
		Variants:      req.Variants,
		StockQuantity: req.StockQuantity,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/items/%s", it.ID))
	c.JSON(http.StatusCreated, it)
}

func (s *server) updateItem(c *gin.Context) {
	var req validation.UpdateItemRequest
	if err := validation.BindAndValidate(c, &req, s.v); err != nil {
		return
	}

	it, err := s.cfg.Catalog.Update(c.Request.Context(), CallerFrom(c), c.Param("id"), catalog.Patch{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		Brand:       req.Brand,
		Variants:    req.Variants,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

func (s *server) restockItem(c *gin.Context) {
	var req validation.RestockRequest
	if err := validation.BindAndValidate(c, &req, s.v); err != nil {
		return
	}

	stock, err := s.cfg.Catalog.Restock(c.Request.Context(), CallerFrom(c), c.Param("id"), req.Delta)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "stock_quantity": stock})
}

func (s *server) setActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.cfg.Catalog.SetActive(c.Request.Context(), CallerFrom(c), c.Param("id"), active); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "is_active": active})
	}
}
