package models

import (
	"fmt"

	"github.com/google/uuid"
)

// ID prefixes per entity
const (
	PrefixOrder        = "ord"
	PrefixManufacturer = "mfr"
	PrefixProduct      = "prd"
	PrefixAlert        = "alt"
	PrefixEmail        = "eml"
	PrefixActivity     = "act"
	PrefixEvent        = "evt"
)

// GenerateID generates a new unique ID with the given prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
