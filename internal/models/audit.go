package models

import "time"

// EmailStatusSent is the delivery status recorded on every email log
const EmailStatusSent = "SENT"

// EmailLog records a notification the system issued. Append-only.
type EmailLog struct {
	ID             string    `db:"id" json:"id"`
	Type           EmailType `db:"type" json:"type"`
	Subject        string    `db:"subject" json:"subject"`
	Body           string    `db:"body" json:"body"`
	Recipient      string    `db:"recipient" json:"recipient"`
	Status         string    `db:"status" json:"status"`
	OrderID        *string   `db:"order_id" json:"orderId,omitempty"`
	ManufacturerID *string   `db:"manufacturer_id" json:"manufacturerId,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// EmailFilter narrows an email log listing
type EmailFilter struct {
	Type           EmailType
	OrderID        string
	ManufacturerID string
	Limit          int
}

func (f EmailFilter) Matches(e *EmailLog) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.OrderID != "" && (e.OrderID == nil || *e.OrderID != f.OrderID) {
		return false
	}
	if f.ManufacturerID != "" && (e.ManufacturerID == nil || *e.ManufacturerID != f.ManufacturerID) {
		return false
	}
	return true
}

// ActivityLog records an action taken on an order. Append-only.
type ActivityLog struct {
	ID        string         `db:"id" json:"id"`
	Action    ActivityAction `db:"action" json:"action"`
	Details   string         `db:"details" json:"details"`
	OrderID   *string        `db:"order_id" json:"orderId,omitempty"`
	UserID    *string        `db:"user_id" json:"userId,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// ActivityFilter narrows an activity log listing
type ActivityFilter struct {
	OrderID string
	Action  ActivityAction
	Limit   int
}

func (f ActivityFilter) Matches(a *ActivityLog) bool {
	if f.OrderID != "" && (a.OrderID == nil || *a.OrderID != f.OrderID) {
		return false
	}
	if f.Action != "" && a.Action != f.Action {
		return false
	}
	return true
}

// OrderDetail is an order together with its relations and audit trail, children newest first
type OrderDetail struct {
	*Order
	Product      *Product       `json:"product,omitempty"`
	Manufacturer *Manufacturer  `json:"manufacturer,omitempty"`
	Alerts       []*Alert       `json:"alerts"`
	Emails       []*EmailLog    `json:"emailLogs"`
	Activities   []*ActivityLog `json:"activityLogs"`
}
