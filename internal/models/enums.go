package models

import (
	"fmt"
	"strings"
)

// OrderStatus is a position in the order lifecycle
type OrderStatus string

const (
	OrderStatusReceived  OrderStatus = "RECEIVED"
	OrderStatusAssigned  OrderStatus = "ASSIGNED"
	OrderStatusNotified  OrderStatus = "NOTIFIED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusDelayed   OrderStatus = "DELAYED"
)

// OrderStatuses lists every status in lifecycle order
var OrderStatuses = []OrderStatus{
	OrderStatusReceived,
	OrderStatusAssigned,
	OrderStatusNotified,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusDelayed,
}

func (s OrderStatus) Valid() bool { return contains(OrderStatuses, s) }

// IsTerminal reports whether no further transition is accepted
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// IsPending reports whether a manufacturer still owes work on the order
func (s OrderStatus) IsPending() bool {
	return s == OrderStatusAssigned || s == OrderStatusNotified || s == OrderStatusDelayed
}

// ParseOrderStatus parses a status case-insensitively
func ParseOrderStatus(s string) (OrderStatus, error) {
	return parseEnum("order status", s, OrderStatuses)
}

// OrderSource is the sales channel an order arrived through
type OrderSource string

const (
	OrderSourceAmazon    OrderSource = "AMAZON"
	OrderSourceWebsite   OrderSource = "WEBSITE"
	OrderSourceWayfair   OrderSource = "WAYFAIR"
	OrderSourceHomeDepot OrderSource = "HOME_DEPOT"
)

var OrderSources = []OrderSource{OrderSourceAmazon, OrderSourceWebsite, OrderSourceWayfair, OrderSourceHomeDepot}

func (s OrderSource) Valid() bool { return contains(OrderSources, s) }

func ParseOrderSource(s string) (OrderSource, error) {
	return parseEnum("order source", s, OrderSources)
}

// Priority of an order
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

func (p Priority) Valid() bool { return contains(Priorities, p) }

// Rank orders priorities most urgent first: URGENT 0 through LOW 3
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	default:
		return 3
	}
}

func ParsePriority(s string) (Priority, error) {
	return parseEnum("priority", s, Priorities)
}

// AlertType classifies the condition an alert flags
type AlertType string

const (
	AlertTypeDelay      AlertType = "DELAY"
	AlertTypeOverdue    AlertType = "OVERDUE"
	AlertTypeQuality    AlertType = "QUALITY"
	AlertTypeStock      AlertType = "STOCK"
	AlertTypeEscalation AlertType = "ESCALATION"
)

var AlertTypes = []AlertType{AlertTypeDelay, AlertTypeOverdue, AlertTypeQuality, AlertTypeStock, AlertTypeEscalation}

func (t AlertType) Valid() bool { return contains(AlertTypes, t) }

func ParseAlertType(s string) (AlertType, error) {
	return parseEnum("alert type", s, AlertTypes)
}

// Severity of an alert. Severities form a total order via Rank.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) Valid() bool { return contains(Severities, s) }

// Rank is 0 for CRITICAL through 3 for LOW
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return len(Severities)
	}
}

func ParseSeverity(s string) (Severity, error) {
	return parseEnum("severity", s, Severities)
}

// ManufacturerRating is the staff-assigned quality grade of a manufacturer
type ManufacturerRating string

const (
	RatingExcellent ManufacturerRating = "EXCELLENT"
	RatingGood      ManufacturerRating = "GOOD"
	RatingFair      ManufacturerRating = "FAIR"
	RatingPoor      ManufacturerRating = "POOR"
)

var ManufacturerRatings = []ManufacturerRating{RatingExcellent, RatingGood, RatingFair, RatingPoor}

func (r ManufacturerRating) Valid() bool { return contains(ManufacturerRatings, r) }

// ManufacturerStatus gates whether new orders may be assigned
type ManufacturerStatus string

const (
	ManufacturerActive   ManufacturerStatus = "ACTIVE"
	ManufacturerInactive ManufacturerStatus = "INACTIVE"
)

func (s ManufacturerStatus) Valid() bool {
	return s == ManufacturerActive || s == ManufacturerInactive
}

// EmailType identifies the template an email log was rendered from
type EmailType string

const (
	EmailOrderConfirmation    EmailType = "ORDER_CONFIRMATION"
	EmailShippingNotification EmailType = "SHIPPING_NOTIFICATION"
	EmailDelayAlert           EmailType = "DELAY_ALERT"
	EmailReminder             EmailType = "REMINDER"
	EmailEscalation           EmailType = "ESCALATION"
)

var EmailTypes = []EmailType{EmailOrderConfirmation, EmailShippingNotification, EmailDelayAlert, EmailReminder, EmailEscalation}

func (t EmailType) Valid() bool { return contains(EmailTypes, t) }

func ParseEmailType(s string) (EmailType, error) {
	return parseEnum("email type", s, EmailTypes)
}

// ProductCategory of a catalog item
type ProductCategory string

const (
	CategoryHardwood ProductCategory = "HARDWOOD"
	CategoryLaminate ProductCategory = "LAMINATE"
	CategoryVinyl    ProductCategory = "VINYL"
	CategoryTile     ProductCategory = "TILE"
	CategoryCarpet   ProductCategory = "CARPET"
)

var ProductCategories = []ProductCategory{CategoryHardwood, CategoryLaminate, CategoryVinyl, CategoryTile, CategoryCarpet}

func (c ProductCategory) Valid() bool { return contains(ProductCategories, c) }

// ActivityAction tags an activity log entry
type ActivityAction string

const (
	ActionOrderCreated   ActivityAction = "ORDER_CREATED"
	ActionOrderAssigned  ActivityAction = "ORDER_ASSIGNED"
	ActionOrderNotified  ActivityAction = "ORDER_NOTIFIED"
	ActionOrderShipped   ActivityAction = "ORDER_SHIPPED"
	ActionOrderDelivered ActivityAction = "ORDER_DELIVERED"
	ActionOrderDelayed   ActivityAction = "ORDER_DELAYED"
	ActionOrderEscalated ActivityAction = "ORDER_ESCALATED"
	ActionOrderCancelled ActivityAction = "ORDER_CANCELLED"
	ActionAlertCreated   ActivityAction = "ALERT_CREATED"
	ActionAlertResolved  ActivityAction = "ALERT_RESOLVED"
)

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func parseEnum[T ~string](kind, s string, values []T) (T, error) {
	normalized := T(strings.ToUpper(strings.TrimSpace(s)))

	if contains(values, normalized) {
		return normalized, nil
	}

	var zero T
	return zero, fmt.Errorf("unknown %s %q", kind, s)
}
