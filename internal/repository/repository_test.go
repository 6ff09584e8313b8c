package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
)

func TestWhereBuilder(t *testing.T) {
	w := &where{}
	assert.Equal(t, "", w.String())

	w.add("status = $%d", "RECEIVED")
	w.raw("shipped_at IS NOT NULL")
	w.add("source = $%d", "PHONE")

	assert.Equal(t, " WHERE status = $1 AND shipped_at IS NOT NULL AND source = $2", w.String())
	assert.Equal(t, " LIMIT $3 OFFSET $4", w.page(10, 20))
	assert.Equal(t, []interface{}{"RECEIVED", "PHONE", 10, 20}, w.args)
}

func TestPageOmitsZeroValues(t *testing.T) {
	w := &where{}
	assert.Equal(t, "", w.page(0, 0))
	assert.Equal(t, " OFFSET $1", w.page(0, 5))
	assert.Empty(t, (&where{}).page(-1, 0))
}

func TestOrderWhere(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	w := orderWhere(models.OrderFilter{
		Statuses:       []models.OrderStatus{models.OrderStatusAssigned, models.OrderStatusDelayed},
		ManufacturerID: "mfr-oak",
		CreatedFrom:    &from,
		ShippedOnly:    true,
	})

	assert.Equal(t,
		" WHERE status = ANY($1) AND manufacturer_id = $2 AND created_at >= $3 AND shipped_at IS NOT NULL AND assigned_at IS NOT NULL",
		w.String())
	require.Len(t, w.args, 3)
	assert.Equal(t, pq.Array([]string{"ASSIGNED", "DELAYED"}), w.args[0])
	assert.Equal(t, "mfr-oak", w.args[1])
	assert.Equal(t, from, w.args[2])
}

func TestOrderWhereEmpty(t *testing.T) {
	assert.Equal(t, "", orderWhere(models.OrderFilter{}).String())
}

func TestOrderBy(t *testing.T) {
	assert.Equal(t, " ORDER BY created_at DESC, id", orderBy(models.SortCreatedDesc))
	assert.Equal(t, " ORDER BY assigned_at ASC NULLS LAST, id", orderBy(models.SortAssignedAsc))
	assert.Equal(t, " ORDER BY shipped_at DESC NULLS LAST, id", orderBy(models.SortShippedDesc))
}

func TestAlertWhere(t *testing.T) {
	open := false

	w := alertWhere(models.AlertFilter{Resolved: &open, Type: models.AlertTypeOverdue, OrderID: "ord-1"})

	assert.Equal(t, " WHERE resolved = $1 AND type = $2 AND order_id = $3", w.String())
	assert.Equal(t, []interface{}{false, models.AlertTypeOverdue, "ord-1"}, w.args)
}

func TestNotFound(t *testing.T) {
	err := notFound(sql.ErrNoRows, "order ord-1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Contains(t, err.Error(), "order ord-1 not found")

	err = notFound(errors.New("connection reset"), "order ord-1")
	assert.True(t, errors.Is(err, ErrDatabase))
	assert.False(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestStringsOf(t *testing.T) {
	assert.Equal(t, []string{"WEBSITE", "AMAZON"}, stringsOf([]models.OrderSource{models.OrderSourceWebsite, models.OrderSourceAmazon}))
}
