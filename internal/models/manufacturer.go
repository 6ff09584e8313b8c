package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Manufacturer is a fulfillment counterparty. AvgFulfillmentDays and OnTimeRate
// are cached aggregates refreshed from order history, never hand-edited.
type Manufacturer struct {
	ID                 string             `db:"id" json:"id"`
	Name               string             `db:"name" json:"name"`
	Location           string             `db:"location" json:"location"`
	ContactName        string             `db:"contact_name" json:"contactName"`
	ContactEmail       string             `db:"contact_email" json:"contactEmail"`
	ContactPhone       string             `db:"contact_phone" json:"contactPhone,omitempty"`
	Rating             ManufacturerRating `db:"rating" json:"rating"`
	Status             ManufacturerStatus `db:"status" json:"status"`
	AvgFulfillmentDays float64            `db:"avg_fulfillment_days" json:"avgFulfillmentDays"`
	OnTimeRate         float64            `db:"on_time_rate" json:"onTimeRate"`
	CreatedAt          time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updatedAt"`
}

// IsActive reports whether new orders may be assigned
func (m *Manufacturer) IsActive() bool {
	return m.Status == ManufacturerActive
}

// Product is an immutable catalog item owned by a manufacturer
type Product struct {
	ID             string          `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	SKU            string          `db:"sku" json:"sku"`
	Category       ProductCategory `db:"category" json:"category"`
	Price          decimal.Decimal `db:"price" json:"price"`
	ManufacturerID string          `db:"manufacturer_id" json:"manufacturerId"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// ManufacturerPerformance is the derived scorecard of a manufacturer
type ManufacturerPerformance struct {
	ManufacturerID     string    `json:"manufacturerId"`
	AvgFulfillmentDays float64   `json:"avgFulfillmentDays"`
	OnTimeRate         int       `json:"onTimeRate"`
	AvgResponseHours   float64   `json:"avgResponseHours"`
	DeliveredOrders    int       `json:"deliveredOrders"`
	PendingOrders      int       `json:"pendingOrders"`
	ComputedAt         time.Time `json:"computedAt"`
}
