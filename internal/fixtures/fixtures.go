// Package fixtures builds small catalogs and order inputs for tests
package fixtures

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vaidashi/fulfillment-tracker/internal/memstore"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
)

// Catalog names the entities Seed created
type Catalog struct {
	Active   *models.Manufacturer
	Second   *models.Manufacturer
	Inactive *models.Manufacturer
	Product  *models.Product
	Tile     *models.Product
}

// Epoch is the fixed instant tests start their clocks at
var Epoch = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

// Manufacturer builds an active manufacturer
func Manufacturer(id, name string) *models.Manufacturer {
	return &models.Manufacturer{
		ID:           id,
		Name:         name,
		Location:     "Dalton, GA",
		ContactName:  name + " Orders",
		ContactEmail: id + "@mfr.example.com",
		Rating:       models.RatingGood,
		Status:       models.ManufacturerActive,
		CreatedAt:    Epoch,
		UpdatedAt:    Epoch,
	}
}

// Product builds a product priced per unit
func Product(id, manufacturerID string, category models.ProductCategory, price string) *models.Product {
	return &models.Product{
		ID:             id,
		Name:           string(category) + " " + id,
		SKU:            "SKU-" + id,
		Category:       category,
		Price:          decimal.RequireFromString(price),
		ManufacturerID: manufacturerID,
		CreatedAt:      Epoch,
	}
}

// Seed loads two active manufacturers, one inactive manufacturer and two products
func Seed(store *memstore.Store) Catalog {
	c := Catalog{
		Active:   Manufacturer("mfr-oak", "Oak Ridge Mills"),
		Second:   Manufacturer("mfr-stone", "Stonecraft Tile"),
		Inactive: Manufacturer("mfr-closed", "Closed Floors"),
	}
	c.Inactive.Status = models.ManufacturerInactive

	c.Product = Product("prd-oak", c.Active.ID, models.CategoryHardwood, "4.25")
	c.Tile = Product("prd-tile", c.Second.ID, models.CategoryTile, "2.10")

	for _, m := range []*models.Manufacturer{c.Active, c.Second, c.Inactive} {
		store.PutManufacturer(m)
	}
	store.PutProduct(c.Product)
	store.PutProduct(c.Tile)

	return c
}

// OrderInput returns a valid intake request for productID
func OrderInput(productID string) models.OrderInput {
	return models.OrderInput{
		CustomerName:    "Jordan Avery",
		CustomerEmail:   "jordan@example.com",
		ShippingAddress: "400 Market St, Denver, CO",
		Quantity:        200,
		Source:          models.OrderSourceWebsite,
		ProductID:       productID,
	}
}
