// Package catalog reads the manufacturer and product catalog the tracker
// starts with
package catalog

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
)

// File is the on-disk catalog
type File struct {
	Manufacturers []*models.Manufacturer `json:"manufacturers"`
	Products      []*models.Product      `json:"products"`
}

// Load reads and validates the catalog at path. Missing ratings, statuses and
// timestamps are filled in.
func Load(path string, now time.Time) (*File, error) {
	raw, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	return Parse(raw, now)
}

// Parse decodes and validates a catalog document
func Parse(raw []byte, now time.Time) (*File, error) {
	var f File

	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	var problems []string
	owners := make(map[string]bool, len(f.Manufacturers))

	for i, m := range f.Manufacturers {
		if m == nil {
			problems = append(problems, fmt.Sprintf("manufacturers[%d] is empty", i))
			continue
		}

		problems = append(problems, checkManufacturer(i, m)...)

		if owners[m.ID] {
			problems = append(problems, fmt.Sprintf("manufacturer %s is listed twice", m.ID))
		}
		owners[m.ID] = true

		if m.Rating == "" {
			m.Rating = models.RatingGood
		}
		if m.Status == "" {
			m.Status = models.ManufacturerActive
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		m.UpdatedAt = now
	}

	seen := make(map[string]bool, len(f.Products))

	for i, p := range f.Products {
		if p == nil {
			problems = append(problems, fmt.Sprintf("products[%d] is empty", i))
			continue
		}

		if strings.TrimSpace(p.ID) == "" {
			problems = append(problems, fmt.Sprintf("products[%d]: id is required", i))
		} else if seen[p.ID] {
			problems = append(problems, fmt.Sprintf("product %s is listed twice", p.ID))
		}
		seen[p.ID] = true

		if strings.TrimSpace(p.Name) == "" {
			problems = append(problems, fmt.Sprintf("products[%d]: name is required", i))
		}
		if !p.Category.Valid() {
			problems = append(problems, fmt.Sprintf("products[%d]: category %q is not supported", i, p.Category))
		}
		if p.Price.IsNegative() {
			problems = append(problems, fmt.Sprintf("products[%d]: price must not be negative", i))
		}
		if !owners[p.ManufacturerID] {
			problems = append(problems, fmt.Sprintf("products[%d]: unknown manufacturer %q", i, p.ManufacturerID))
		}

		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
	}

	if len(problems) > 0 {
		return nil, models.NewValidationError(problems...)
	}

	return &f, nil
}

func checkManufacturer(i int, m *models.Manufacturer) []string {
	var problems []string

	if strings.TrimSpace(m.ID) == "" {
		problems = append(problems, fmt.Sprintf("manufacturers[%d]: id is required", i))
	}
	if strings.TrimSpace(m.Name) == "" {
		problems = append(problems, fmt.Sprintf("manufacturers[%d]: name is required", i))
	}
	if _, err := mail.ParseAddress(m.ContactEmail); err != nil {
		problems = append(problems, fmt.Sprintf("manufacturers[%d]: contactEmail is not a valid address", i))
	}
	if m.Rating != "" && !m.Rating.Valid() {
		problems = append(problems, fmt.Sprintf("manufacturers[%d]: rating %q is not supported", i, m.Rating))
	}
	if m.Status != "" && !m.Status.Valid() {
		problems = append(problems, fmt.Sprintf("manufacturers[%d]: status %q is not supported", i, m.Status))
	}

	return problems
}
