package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
)

// Order represents a customer order moving through the fulfillment lifecycle
type Order struct {
	ID              string          `db:"id" json:"id"`
	OrderNumber     string          `db:"order_number" json:"orderNumber"`
	CustomerName    string          `db:"customer_name" json:"customerName"`
	CustomerEmail   string          `db:"customer_email" json:"customerEmail"`
	CustomerPhone   string          `db:"customer_phone" json:"customerPhone,omitempty"`
	ShippingAddress string          `db:"shipping_address" json:"shippingAddress"`
	Quantity        int             `db:"quantity" json:"quantity"`
	TotalPrice      decimal.Decimal `db:"total_price" json:"totalPrice"`
	Source          OrderSource     `db:"source" json:"source"`
	Priority        Priority        `db:"priority" json:"priority"`
	Status          OrderStatus     `db:"status" json:"status"`
	Carrier         string          `db:"carrier" json:"carrier,omitempty"`
	TrackingNumber  string          `db:"tracking_number" json:"trackingNumber,omitempty"`
	Notes           string          `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	AssignedAt      *time.Time      `db:"assigned_at" json:"assignedAt,omitempty"`
	NotifiedAt      *time.Time      `db:"notified_at" json:"notifiedAt,omitempty"`
	ShippedAt       *time.Time      `db:"shipped_at" json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time      `db:"delivered_at" json:"deliveredAt,omitempty"`
	EstimatedShip   *time.Time      `db:"estimated_ship" json:"estimatedShip,omitempty"`
	ProductID       string          `db:"product_id" json:"productId"`
	ManufacturerID  *string         `db:"manufacturer_id" json:"manufacturerId,omitempty"`
	Version         int             `db:"version" json:"version"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored state
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}

	c := *o
	c.AssignedAt = cloneTime(o.AssignedAt)
	c.NotifiedAt = cloneTime(o.NotifiedAt)
	c.ShippedAt = cloneTime(o.ShippedAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.EstimatedShip = cloneTime(o.EstimatedShip)

	if o.ManufacturerID != nil {
		id := *o.ManufacturerID
		c.ManufacturerID = &id
	}

	return &c
}

// ManufacturerRef returns the assigned manufacturer id or ""
func (o *Order) ManufacturerRef() string {
	if o.ManufacturerID == nil {
		return ""
	}
	return *o.ManufacturerID
}

// LatestStamp returns the most recent lifecycle timestamp set on the order
func (o *Order) LatestStamp() time.Time {
	latest := o.CreatedAt

	for _, ts := range []*time.Time{o.AssignedAt, o.NotifiedAt, o.ShippedAt, o.DeliveredAt} {
		if ts != nil && ts.After(latest) {
			latest = *ts
		}
	}

	return latest
}

// OrderInput carries the fields accepted at intake
type OrderInput struct {
	CustomerName    string           `json:"customerName"`
	CustomerEmail   string           `json:"customerEmail"`
	CustomerPhone   string           `json:"customerPhone"`
	ShippingAddress string           `json:"shippingAddress"`
	Quantity        int              `json:"quantity"`
	TotalPrice      *decimal.Decimal `json:"totalPrice"`
	Source          OrderSource      `json:"source"`
	Priority        Priority         `json:"priority"`
	Notes           string           `json:"notes"`
	ProductID       string           `json:"productId"`
	EstimatedShip   *time.Time       `json:"estimatedShip"`
}

// Validate reports every malformed field at once
func (in *OrderInput) Validate() error {
	var problems []string

	if strings.TrimSpace(in.CustomerName) == "" {
		problems = append(problems, "customerName is required")
	}

	if strings.TrimSpace(in.CustomerEmail) == "" {
		problems = append(problems, "customerEmail is required")
	} else if _, err := mail.ParseAddress(in.CustomerEmail); err != nil {
		problems = append(problems, "customerEmail is not a valid address")
	}

	if strings.TrimSpace(in.ShippingAddress) == "" {
		problems = append(problems, "shippingAddress is required")
	}

	if in.Quantity <= 0 {
		problems = append(problems, "quantity must be positive")
	}

	if in.TotalPrice != nil && in.TotalPrice.IsNegative() {
		problems = append(problems, "totalPrice must not be negative")
	}

	if !in.Source.Valid() {
		problems = append(problems, fmt.Sprintf("source %q is not supported", in.Source))
	}

	if in.Priority != "" && !in.Priority.Valid() {
		problems = append(problems, fmt.Sprintf("priority %q is not supported", in.Priority))
	}

	if strings.TrimSpace(in.ProductID) == "" {
		problems = append(problems, "productId is required")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	return nil
}

// ValidationError lists malformed input fields
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return apperrors.ErrInvalidInput }

// NewValidationError builds a ValidationError from one or more problems
func NewValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

// FormatOrderNumber renders FI-YYMM-NNNN for the given intake time and sequence
func FormatOrderNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("FI-%s-%04d", at.Format("0601"), seq)
}

// OrderSort selects the ordering of an order listing
type OrderSort int

const (
	SortCreatedDesc OrderSort = iota
	SortAssignedAsc
	SortShippedDesc
)

// OrderFilter narrows an order listing. Zero values mean "any".
type OrderFilter struct {
	Statuses       []OrderStatus
	Source         OrderSource
	ManufacturerID string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	DeliveredFrom  *time.Time
	DeliveredTo    *time.Time
	ShippedOnly    bool
	Sort           OrderSort
	Limit          int
	Offset         int
}

// Matches reports whether o satisfies every set criterion. Paging and sort are ignored.
func (f OrderFilter) Matches(o *Order) bool {
	if len(f.Statuses) > 0 && !contains(f.Statuses, o.Status) {
		return false
	}
	if f.Source != "" && o.Source != f.Source {
		return false
	}
	if f.ManufacturerID != "" && o.ManufacturerRef() != f.ManufacturerID {
		return false
	}
	if f.CreatedFrom != nil && o.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && !o.CreatedAt.Before(*f.CreatedTo) {
		return false
	}
	if f.DeliveredFrom != nil && (o.DeliveredAt == nil || o.DeliveredAt.Before(*f.DeliveredFrom)) {
		return false
	}
	if f.DeliveredTo != nil && (o.DeliveredAt == nil || !o.DeliveredAt.Before(*f.DeliveredTo)) {
		return false
	}
	if f.ShippedOnly && (o.ShippedAt == nil || o.AssignedAt == nil) {
		return false
	}
	return true
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to t
func TimePtr(t time.Time) *time.Time {
	return &t
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
