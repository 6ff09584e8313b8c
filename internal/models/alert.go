package models

import (
	"sort"
	"time"
)

// Alert flags an exception condition for staff attention. The only mutation
// an alert ever sees is the one-way resolve.
type Alert struct {
	ID             string     `db:"id" json:"id"`
	Type           AlertType  `db:"type" json:"type"`
	Severity       Severity   `db:"severity" json:"severity"`
	Title          string     `db:"title" json:"title"`
	Message        string     `db:"message" json:"message"`
	OrderID        *string    `db:"order_id" json:"orderId,omitempty"`
	ManufacturerID *string    `db:"manufacturer_id" json:"manufacturerId,omitempty"`
	Resolved       bool       `db:"resolved" json:"resolved"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolvedAt,omitempty"`
	ResolvedBy     *string    `db:"resolved_by" json:"resolvedBy,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

// Clone returns a deep copy
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}

	c := *a
	c.ResolvedAt = cloneTime(a.ResolvedAt)
	c.OrderID = cloneString(a.OrderID)
	c.ManufacturerID = cloneString(a.ManufacturerID)
	c.ResolvedBy = cloneString(a.ResolvedBy)
	return &c
}

// AlertFilter narrows an alert listing
type AlertFilter struct {
	Resolved       *bool
	Type           AlertType
	OrderID        string
	ManufacturerID string
	Limit          int
}

// Matches reports whether a satisfies every set criterion
func (f AlertFilter) Matches(a *Alert) bool {
	if f.Resolved != nil && a.Resolved != *f.Resolved {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.OrderID != "" && (a.OrderID == nil || *a.OrderID != f.OrderID) {
		return false
	}
	if f.ManufacturerID != "" && (a.ManufacturerID == nil || *a.ManufacturerID != f.ManufacturerID) {
		return false
	}
	return true
}

// SortAlerts orders alerts by severity rank, most severe first, then newest first
func SortAlerts(alerts []*Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := alerts[i].Severity.Rank(), alerts[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
