package orders

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// EventOrderPlaced is the event type published after a checkout commits.
const EventOrderPlaced = "OrderPlaced"

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusMismatch is returned when a conditional status transition finds
	// the order in a different state than expected.
	ErrStatusMismatch = errors.New("order status mismatch")
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Line is an order line. UnitPrice, Name and ImageURL are captured when the
// order is placed and never change afterwards.
type Line struct {
	ItemID    string          `json:"item_id"`
	Variant   string          `json:"variant"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url"`
}

// Subtotal is UnitPrice times Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a placed order with its embedded lines.
type Order struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Total     decimal.Decimal `json:"total_amount"`
	Status    Status          `json:"status"`
	Lines     []Line          `json:"lines"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LinesTotal sums the line subtotals.
func LinesTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// PlacedEvent is the message body published for EventOrderPlaced.
type PlacedEvent struct {
	OrderID   string    `json:"order_id"`
	OwnerID   string    `json:"owner_id"`
	Total     string    `json:"total_amount"`
	LineCount int       `json:"line_count"`
	CreatedAt time.Time `json:"created_at"`
}

// PlacedEvent builds the event announcing o.
func (o Order) PlacedEvent() PlacedEvent {
	return PlacedEvent{
		OrderID:   o.ID,
		OwnerID:   o.OwnerID,
		Total:     o.Total.StringFixed(2),
		LineCount: len(o.Lines),
		CreatedAt: o.CreatedAt,
	}
}
