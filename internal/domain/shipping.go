package domain

import "strings"

// ShippingZone classifies a destination postal code into a delivery zone.
// The zone selects a shipping-rate tier; it plays no part in carrier routing.
type ShippingZone string

const (
	// ZoneDomestic covers metropolitan departments.
	ZoneDomestic ShippingZone = "domestic"
	// ZoneIsland covers the Corsican departments 2A and 2B.
	ZoneIsland ShippingZone = "island"
	// ZoneOverseasDepartment covers the 97x overseas departments.
	ZoneOverseasDepartment ShippingZone = "overseas_department"
	// ZoneOverseasTerritory covers the 98x overseas collectivities.
	ZoneOverseasTerritory ShippingZone = "overseas_territory"
	// ZoneUnknown is returned for codes outside every known department.
	ZoneUnknown ShippingZone = "unknown"
)

// ShippingZoneResult is the derived classification of a postal code. It is a
// value object and is never persisted.
type ShippingZoneResult struct {
	Zone       ShippingZone
	Department string
}

// Corsican codes below this boundary belong to Corse-du-Sud (2A), the rest to
// Haute-Corse (2B).
const corsicaSouthBoundary = 20200

// metropolitanDepartments holds every valid mainland department prefix
// (01–95, with 20 handled separately as the island split).
var metropolitanDepartments = buildMetropolitanDepartments()

func buildMetropolitanDepartments() map[string]struct{} {
	set := make(map[string]struct{}, 94)
	for i := 1; i <= 95; i++ {
		if i == 20 {
			continue
		}
		code := string(rune('0'+i/10)) + string(rune('0'+i%10))
		set[code] = struct{}{}
	}
	return set
}

// ResolveShippingZone classifies a 5-digit postal code. Codes that are not
// exactly five digits resolve to the unknown zone.
func ResolveShippingZone(postalCode string) ShippingZoneResult {
	code := strings.TrimSpace(postalCode)
	if !isFiveDigits(code) {
		dept := code
		if len(dept) > 2 {
			dept = dept[:2]
		}
		return ShippingZoneResult{Zone: ZoneUnknown, Department: dept}
	}

	prefix := code[:2]
	switch prefix {
	case "20":
		if numericValue(code) < corsicaSouthBoundary {
			return ShippingZoneResult{Zone: ZoneIsland, Department: "2A"}
		}
		return ShippingZoneResult{Zone: ZoneIsland, Department: "2B"}
	case "97":
		return ShippingZoneResult{Zone: ZoneOverseasDepartment, Department: code[:3]}
	case "98":
		return ShippingZoneResult{Zone: ZoneOverseasTerritory, Department: code[:3]}
	}

	if _, ok := metropolitanDepartments[prefix]; ok {
		return ShippingZoneResult{Zone: ZoneDomestic, Department: prefix}
	}
	return ShippingZoneResult{Zone: ZoneUnknown, Department: prefix}
}

func isFiveDigits(code string) bool {
	if len(code) != 5 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func numericValue(code string) int {
	value := 0
	for _, r := range code {
		value = value*10 + int(r-'0')
	}
	return value
}

// ShippingRateFor maps a zone to its flat rate tier in minor units.
func ShippingRateFor(zone ShippingZone) int64 {
	switch zone {
	case ZoneDomestic:
		return 590
	case ZoneIsland:
		return 890
	case ZoneOverseasDepartment:
		return 1490
	case ZoneOverseasTerritory:
		return 1990
	default:
		return 1990
	}
}
