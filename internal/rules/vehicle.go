package rules

import (
	"context"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/refundd/internal/ticket"
)

// VehicleCategory is one of the thirteen vehicle classes used to compare a
// customer's vehicle against a location's restrictions.
type VehicleCategory string

const (
	VehicleSedan           VehicleCategory = "sedan"
	VehicleCompact         VehicleCategory = "compact"
	VehicleCoupe           VehicleCategory = "coupe"
	VehicleSUV             VehicleCategory = "suv"
	VehicleCrossover       VehicleCategory = "crossover"
	VehicleMinivan         VehicleCategory = "minivan"
	VehiclePickupTruck     VehicleCategory = "pickup_truck"
	VehicleFullSizeVan     VehicleCategory = "full_size_van"
	VehicleMotorcycle      VehicleCategory = "motorcycle"
	VehicleCommercialTruck VehicleCategory = "commercial_truck"
	VehicleRV              VehicleCategory = "rv"
	VehicleTrailer         VehicleCategory = "trailer"
	VehicleOther           VehicleCategory = "other"
)

// VehicleCategories lists all categories.
var VehicleCategories = []VehicleCategory{
	VehicleSedan, VehicleCompact, VehicleCoupe, VehicleSUV, VehicleCrossover,
	VehicleMinivan, VehiclePickupTruck, VehicleFullSizeVan, VehicleMotorcycle,
	VehicleCommercialTruck, VehicleRV, VehicleTrailer, VehicleOther,
}

// ParseVehicleCategory accepts category names with spaces, dashes or
// underscores in any case.
func ParseVehicleCategory(s string) (VehicleCategory, bool) {
	norm := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range VehicleCategories {
		if string(c) == norm {
			return c, true
		}
	}
	return "", false
}

// VehicleClassification is the classifier's verdict for one vehicle.
type VehicleClassification struct {
	Category   VehicleCategory   `json:"vehicle_category"`
	Restricted []VehicleCategory `json:"restricted_categories"`
	IsMismatch bool              `json:"is_mismatch"`
	Reasoning  string            `json:"reasoning"`
	Confidence ticket.Confidence `json:"confidence"`
}

// Allowed reports whether the vehicle's category is outside the
// restricted set.
func (v VehicleClassification) Allowed() bool {
	for _, r := range v.Restricted {
		if r == v.Category {
			return false
		}
	}
	return true
}

// VehicleClassifier classifies a vehicle description against a location's
// restriction text.
type VehicleClassifier interface {
	ClassifyVehicle(ctx context.Context, vehicle, restrictions string) (VehicleClassification, error)
}

var (
	vehicleDescRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:vehicle|car)(?:\s+(?:type|model|make|info))?\s*[:\-]\s*([^\n.;]+)`),
		regexp.MustCompile(`(?i)\b(?:i|we)\s+(?:drive|drove|have|had|was driving|were driving|own)\s+(?:a|an|my|our)\s+([^\n.;,]+)`),
	}
	restrictionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:location|vehicle|parking|height|size)?\s*restrictions?\s*[:\-]\s*([^\n]+)`),
		regexp.MustCompile(`(?i)\b(no\s+(?:trucks?|pickups?|suvs?|vans?|minivans?|rvs?|motorcycles?|trailers?|oversized(?:\s+vehicles)?|commercial vehicles?)\b[^\n.]*)`),
		regexp.MustCompile(`(?i)\b((?:does|do)\s+not\s+(?:allow|accept|permit)\s+[^\n.]+)`),
	}
)

// extractVehicleContext pulls the customer's vehicle and the location's
// restriction text from the ticket notes, then from the description.
func extractVehicleContext(tc ticket.Context) (vehicle, restrictions string) {
	for _, src := range []string{tc.Notes, tc.Description} {
		if vehicle == "" {
			vehicle = firstCapture(vehicleDescRes, src)
		}
		if restrictions == "" {
			restrictions = firstCapture(restrictionRes, src)
		}
	}
	return vehicle, restrictions
}

func firstCapture(res []*regexp.Regexp, text string) string {
	for _, re := range res {
		if m := re.FindStringSubmatch(text); m != nil {
			if s := strings.TrimSpace(m[1]); s != "" {
				return s
			}
		}
	}
	return ""
}
