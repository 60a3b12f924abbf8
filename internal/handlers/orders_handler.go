package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const idempotencyKeyHeader = "Idempotency-Key"

// checkout places an order from the caller's cart. A replayed idempotency key
// answers 200 with the original order instead of 201.
func (s *server) checkout(c *gin.Context) {
	key := c.GetHeader(idempotencyKeyHeader)
	caller := CallerFrom(c)

	res, err := s.cfg.Checkout.Place(c.Request.Context(), caller, key)
	if err != nil {
		s.fail(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	s.cfg.Log.WithFields(logrus.Fields{
		"owner_id":   caller.ID,
		"order_id":   res.Order.ID,
		"replayed":   res.Replayed,
		"request_id": c.GetHeader("X-Request-Id"),
	}).Info("checkout answered")

	c.Header("Location", fmt.Sprintf("/orders/%s", res.Order.ID))
	c.JSON(status, gin.H{
		"order":    res.Order,
		"state":    res.State.String(),
		"replayed": res.Replayed,
	})
}

func (s *server) listOrders(c *gin.Context) {
	list, err := s.cfg.Orders.List(c.Request.Context(), CallerFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (s *server) getOrder(c *gin.Context) {
	o, err := s.cfg.Orders.Get(c.Request.Context(), CallerFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
