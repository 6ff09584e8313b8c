// Package metrics derives fulfillment performance figures from order history.
// The calculations are pure and never persist anything on their own.
package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
)

const (
	// DefaultResponseSample is how many recently shipped orders feed the response average
	DefaultResponseSample = 100

	// DefaultTrendDays is the length of the dashboard time series
	DefaultTrendDays = 14

	approachingAfter = 24 * time.Hour
	overdueAfter     = 48 * time.Hour

	day = 24 * time.Hour
)

// Urgency classifies how long a manufacturer has held a pending order
type Urgency string

const (
	UrgencyOnTime      Urgency = "on-time"
	UrgencyApproaching Urgency = "approaching"
	UrgencyOverdue     Urgency = "overdue"
)

// ClassifyUrgency buckets the time an order has waited since assignment
func ClassifyUrgency(assignedAt, now time.Time) Urgency {
	waited := now.Sub(assignedAt)

	switch {
	case waited > overdueAfter:
		return UrgencyOverdue
	case waited > approachingAfter:
		return UrgencyApproaching
	default:
		return UrgencyOnTime
	}
}

// AverageFulfillmentDays is the mean time from intake to delivery, in days,
// over delivered orders. It returns 0 when nothing was delivered.
func AverageFulfillmentDays(orders []*models.Order) float64 {
	var (
		total float64
		n     int
	)

	for _, o := range delivered(orders) {
		total += o.DeliveredAt.Sub(o.CreatedAt).Hours() / 24
		n++
	}

	if n == 0 {
		return 0
	}

	return total / float64(n)
}

// OnTimeRate is the whole percentage of delivered orders that arrived no later
// than their estimated ship date. Orders without an estimate count as on time.
func OnTimeRate(orders []*models.Order) int {
	var onTime, n int

	for _, o := range delivered(orders) {
		n++
		if IsOnTime(o) {
			onTime++
		}
	}

	if n == 0 {
		return 0
	}

	return int(math.Round(float64(onTime) * 100 / float64(n)))
}

// IsOnTime reports whether a delivered order met its estimate
func IsOnTime(o *models.Order) bool {
	if o.EstimatedShip == nil {
		return true
	}
	return !o.DeliveredAt.After(*o.EstimatedShip)
}

// AverageResponseHours is the mean time from assignment to shipment, in hours,
// over the sample most recently shipped orders
func AverageResponseHours(orders []*models.Order, sample int) float64 {
	var shipped []*models.Order

	for _, o := range orders {
		if o.AssignedAt != nil && o.ShippedAt != nil {
			shipped = append(shipped, o)
		}
	}

	if len(shipped) == 0 {
		return 0
	}

	sort.SliceStable(shipped, func(i, j int) bool {
		return shipped[i].ShippedAt.After(*shipped[j].ShippedAt)
	})

	if sample > 0 && len(shipped) > sample {
		shipped = shipped[:sample]
	}

	var total float64
	for _, o := range shipped {
		total += o.ShippedAt.Sub(*o.AssignedAt).Hours()
	}

	return total / float64(len(shipped))
}

// RoundTenth rounds v to one decimal place
func RoundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// Count is one named bucket of a chart
type Count struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// VolumePoint is the number of orders received on one day
type VolumePoint struct {
	Date   string `json:"date"`
	Orders int    `json:"orders"`
}

// TrendPoint is the average fulfillment time of orders delivered on one day
type TrendPoint struct {
	Date    string  `json:"date"`
	AvgDays float64 `json:"avgDays"`
}

// Window returns the start of the first day and the end of the last day of a
// days long series ending today in loc
func Window(now time.Time, days int, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}

	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	return today.AddDate(0, 0, -(days - 1)), today.AddDate(0, 0, 1)
}

// DailyOrderVolume counts orders per local calendar day of creation over the
// last days days, oldest first. Days without orders report 0.
func DailyOrderVolume(orders []*models.Order, now time.Time, days int, loc *time.Location) []VolumePoint {
	start, _ := Window(now, days, loc)
	points := make([]VolumePoint, days)
	labels := make([]time.Time, days)

	for i := range points {
		labels[i] = start.AddDate(0, 0, i)
		points[i].Date = labels[i].Format("01/02")
	}

	for _, o := range orders {
		if i := bucket(labels, o.CreatedAt); i >= 0 {
			points[i].Orders++
		}
	}

	return points
}

// DailyFulfillmentTrend averages intake-to-delivery days per local calendar day
// of delivery, rounded to one decimal. Days without deliveries report 0.
func DailyFulfillmentTrend(orders []*models.Order, now time.Time, days int, loc *time.Location) []TrendPoint {
	start, _ := Window(now, days, loc)
	labels := make([]time.Time, days)
	totals := make([]time.Duration, days)
	counts := make([]int, days)

	for i := range labels {
		labels[i] = start.AddDate(0, 0, i)
	}

	for _, o := range orders {
		if o.DeliveredAt == nil {
			continue
		}
		if i := bucket(labels, *o.DeliveredAt); i >= 0 {
			totals[i] += o.DeliveredAt.Sub(o.CreatedAt)
			counts[i]++
		}
	}

	points := make([]TrendPoint, days)
	for i := range points {
		points[i].Date = labels[i].Format("01/02")
		if counts[i] > 0 {
			avg := totals[i] / time.Duration(counts[i])
			points[i].AvgDays = RoundTenth(float64(avg) / float64(day))
		}
	}

	return points
}

// CountBySource counts orders per channel, omitting empty channels
func CountBySource(orders []*models.Order) []Count {
	counts := make(map[models.OrderSource]int)
	for _, o := range orders {
		counts[o.Source]++
	}

	var out []Count
	for _, s := range models.OrderSources {
		if counts[s] > 0 {
			out = append(out, Count{Name: string(s), Value: counts[s]})
		}
	}
	return out
}

// CountByStatus counts orders per status, omitting empty statuses
func CountByStatus(orders []*models.Order) []Count {
	counts := make(map[models.OrderStatus]int)
	for _, o := range orders {
		counts[o.Status]++
	}

	var out []Count
	for _, s := range models.OrderStatuses {
		if counts[s] > 0 {
			out = append(out, Count{Name: string(s), Value: counts[s]})
		}
	}
	return out
}

// bucket returns the index of the day in labels containing t, or -1
func bucket(labels []time.Time, t time.Time) int {
	if len(labels) == 0 {
		return -1
	}

	local := t.In(labels[0].Location())
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())

	for i, l := range labels {
		if l.Equal(midnight) {
			return i
		}
	}
	return -1
}

func delivered(orders []*models.Order) []*models.Order {
	var out []*models.Order
	for _, o := range orders {
		if o.Status == models.OrderStatusDelivered && o.DeliveredAt != nil {
			out = append(out, o)
		}
	}
	return out
}
