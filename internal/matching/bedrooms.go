package matching

import (
	"math"
	"strings"

	"propertylens/internal/models"
)

// PropertyType is the EPC dwelling classification relevant to bedroom
// estimation.
type PropertyType int

const (
	PropertyTypeOther PropertyType = iota
	PropertyTypeFlat
	PropertyTypeMaisonette
	PropertyTypeTerraced
	PropertyTypeDetached
	PropertyTypeSemiDetached
)

func ParsePropertyType(s string) PropertyType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FLAT":
		return PropertyTypeFlat
	case "MAISONETTE":
		return PropertyTypeMaisonette
	case "TERRACED":
		return PropertyTypeTerraced
	case "DETACHED":
		return PropertyTypeDetached
	case "SEMI-DETACHED":
		return PropertyTypeSemiDetached
	default:
		return PropertyTypeOther
	}
}

// bedroomDeduction is subtracted from the habitable-room count to reach a
// baseline bedroom estimate. Flats carry fewer non-bedroom rooms than houses.
var bedroomDeduction = map[PropertyType]float64{
	PropertyTypeFlat:         1,
	PropertyTypeMaisonette:   1,
	PropertyTypeTerraced:     1.5,
	PropertyTypeDetached:     2,
	PropertyTypeSemiDetached: 2,
	PropertyTypeOther:        2,
}

const (
	largeDwellingArea = 200 // m²; above this, assume one extra bedroom
	smallDwellingArea = 50  // m²; below this, assume one fewer
)

// EstimateBedrooms derives a bedroom count from an EPC certificate's
// habitable-room count, property type and floor area. Half-room baselines
// round to even, so a 4-room terrace estimates 2 bedrooms, not 3. Returns the
// conservative default of 1 when the room count is missing, and never
// returns less than 1 or more than the habitable-room count.
func EstimateBedrooms(epc *models.EPCRecord) int {
	if epc.NumberHabitableRooms == nil {
		return 1
	}
	hab := *epc.NumberHabitableRooms

	baseline := float64(hab) - bedroomDeduction[ParsePropertyType(epc.PropertyType)]

	if epc.TotalFloorArea != nil {
		if *epc.TotalFloorArea > largeDwellingArea {
			baseline++
		} else if *epc.TotalFloorArea < smallDwellingArea {
			baseline--
		}
	}

	estimate := int(math.RoundToEven(baseline))
	if estimate > hab {
		estimate = hab
	}
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}
