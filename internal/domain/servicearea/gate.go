// Package servicearea gates order submission on the customer's postal zone
// being inside the vendor's configured delivery area.
package servicearea

import (
	"fmt"
	"strings"

	"github.com/tianguis/checkout/internal/domain/vendor"
)

// ZoneError reports that the customer's zone is outside the vendor's service
// area. It is user-visible and blocks submission.
type ZoneError struct {
	Zip string
}

func (e *ZoneError) Error() string {
	return fmt.Sprintf("zone %s is outside the vendor's delivery area", e.Zip)
}

// Check validates the customer zip against the vendor's configured colonias.
// A vendor with no configured colonias serves the whole marketplace, so every
// zip passes. Otherwise the zip must match the trailing zip segment of a
// configured colonia id ("<colonia-name>-<zip>").
func Check(v *vendor.Profile, zip string) error {
	if len(v.ServiceColonias) == 0 {
		return nil
	}
	for _, c := range v.ServiceColonias {
		if zipOf(c.ID) == zip {
			return nil
		}
	}
	return &ZoneError{Zip: zip}
}

// zipOf extracts the zip segment of a colonia id. Colonia names may themselves
// contain hyphens, so the zip is everything after the last one.
func zipOf(id string) string {
	i := strings.LastIndex(id, "-")
	if i < 0 {
		return ""
	}
	return id[i+1:]
}
