package sevas

// Direction is the SEVAS fahrtri flag: the travel direction a record
// applies to, relative to the OSM way's node order.
type Direction string

const (
	DirBoth     Direction = "0"
	DirForward  Direction = "1"
	DirBackward Direction = "2"
)

// suffix returns the OSM key namespace for the direction.
func (d Direction) suffix() string {
	switch d {
	case DirForward:
		return ":forward"
	case DirBackward:
		return ":backward"
	default:
		return ""
	}
}

// GroupedDays is the tage_grppe flag on restriction records.
type GroupedDays string

const (
	GroupedNone            GroupedDays = "0"
	GroupedDaily           GroupedDays = "1"
	GroupedWeekdays        GroupedDays = "2"
	GroupedSundaysHolidays GroupedDays = "3"
)

const (
	noSingleDays      = "0000000"
	invalidSingleDays = "1111111"
)

var daysOfWeek = []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// RestrictionType is the StVO sign number carried in the typ column of
// the restriction layer.
type RestrictionType string

const (
	RestrHGVNo       RestrictionType = "253"
	RestrHGVTrailer  RestrictionType = "257-57"
	RestrHazmat      RestrictionType = "261"
	RestrWeight      RestrictionType = "262"
	RestrAxleLoad    RestrictionType = "263"
	RestrWidth       RestrictionType = "264"
	RestrHeight      RestrictionType = "265"
	RestrLength      RestrictionType = "266"
	RestrHazmatWater RestrictionType = "269"
)

// keyFromType maps a restriction type to its OSM base key.
var keyFromType = map[RestrictionType]string{
	RestrHGVNo:       "hgv",
	RestrWeight:      "maxweight",
	RestrHeight:      "maxheight",
	RestrLength:      "maxlength",
	RestrHazmat:      "hazmat",
	RestrWidth:       "maxwidth",
	RestrAxleLoad:    "maxaxleload",
	RestrHazmatWater: "hazmat:water",
	RestrHGVTrailer:  "hgv:trailer",
}

// permissiveValues maps a restriction type to the value that lifts the
// restriction for an exempted mode of traffic.
var permissiveValues = map[RestrictionType]string{
	RestrHGVNo:       "yes",
	RestrHGVTrailer:  "yes",
	RestrHazmat:      "yes",
	RestrHazmatWater: "yes",
	RestrWeight:      "none",
	RestrAxleLoad:    "none",
	RestrWidth:       "none",
	RestrHeight:      "none",
	RestrLength:      "none",
}

// dimensionalTypes carry a numeric value in the wert column.
var dimensionalTypes = map[RestrictionType]bool{
	RestrAxleLoad: true,
	RestrWeight:   true,
	RestrHeight:   true,
	RestrWidth:    true,
	RestrLength:   true,
}

// SignCode is one of the StVO supplementary sign columns (vz_*) on the
// restriction layer.
type SignCode string

const (
	// specifier HGV
	SignHGV SignCode = "vz_1010_51"
	// specifier bus
	SignBus SignCode = "vz_1010_57"
	// specifier HGV with trailer
	SignHGVTrailer SignCode = "vz_1010_60"
	// exemptor destination
	SignDestination SignCode = "vz_1020_30"
	// exemptor HGV
	SignHGVFree SignCode = "vz_1024_12"
	// exemptor HGV with trailer
	SignHGVTrailerFree SignCode = "vz_1024_13"
	// exemptor bus
	SignBusFree SignCode = "vz_1024_14"
	// exemptor tourist bus
	SignTouristBusFree SignCode = "vz_1026_31"
	// exemptor psv
	SignPSVFree SignCode = "vz_1026_32"
	// exemptor emergency
	SignEmergencyFree SignCode = "vz_1026_33"
	// exemptor ambulance/emergency
	SignAmbulanceFree SignCode = "vz_1026_34"
	// exemptor delivery
	SignDeliveryFree SignCode = "vz_1026_35"
	// exemptor agriculture
	SignAgriculturalFree SignCode = "vz_1026_36"
	// exemptor forestry
	SignForestryFree SignCode = "vz_1026_37"
	// exemptor agriculture and forestry
	SignAgriForestryFree SignCode = "vz_1026_38"
	// exemptor police/military/etc. (handled as special case)
	SignAuthoritiesFree SignCode = "vz_1026_39"
	// exemptor slurry tank (treated as agricultural)
	SignSlurryFree SignCode = "vz_1026_62"
	// specifier articulated HGV
	SignArticulated SignCode = "vz_1048_14"
	// specifier articulated HGV or HGV with trailer (special case)
	SignArticulatedTrailer SignCode = "vz_1048_15"
	// specifier HGV, bus and auto with trailer (special case)
	SignHGVBusTrailer SignCode = "vz_1049_13"
	// specifier 7.5t (special case)
	Sign75t SignCode = "vz_1053_33"
	// specifier through traffic (treated as destination only)
	SignThroughTraffic SignCode = "vz_1053_36"
	// specifier 12t (special case)
	Sign12t SignCode = "vz_1053_37"
)

// signCodes lists every supplementary sign column in lexicographic
// order. Signatures and traffic_sign values depend on this order.
var signCodes = []SignCode{
	SignHGV,
	SignBus,
	SignHGVTrailer,
	SignDestination,
	SignHGVFree,
	SignHGVTrailerFree,
	SignBusFree,
	SignTouristBusFree,
	SignPSVFree,
	SignEmergencyFree,
	SignAmbulanceFree,
	SignDeliveryFree,
	SignAgriculturalFree,
	SignForestryFree,
	SignAgriForestryFree,
	SignAuthoritiesFree,
	SignSlurryFree,
	SignArticulated,
	SignArticulatedTrailer,
	SignHGVBusTrailer,
	Sign75t,
	SignThroughTraffic,
	Sign12t,
}

// trafficModes maps a supplementary sign to the OSM access modes it
// exempts or specifies.
var trafficModes = map[SignCode][]string{
	SignHGV:              {"hgv"},
	SignBus:              {"bus"},
	SignHGVTrailer:       {"hgv:trailer"},
	SignDestination:      {"destination"},
	SignHGVFree:          {"hgv"},
	SignHGVTrailerFree:   {"hgv", "trailer"},
	SignBusFree:          {"bus"},
	SignTouristBusFree:   {"tourist_bus"},
	SignPSVFree:          {"psv"},
	SignEmergencyFree:    {"emergency"},
	SignAmbulanceFree:    {"emergency"},
	SignDeliveryFree:     {"delivery"},
	SignAgriculturalFree: {"agricultural"},
	SignForestryFree:     {"forestry"},
	SignAgriForestryFree: {"agricultural", "forestry"},
	SignAuthoritiesFree:  {"private", "delivery"},
	SignSlurryFree:       {"agricultural"},
	SignArticulated:      {"articulated_hgv"},
	SignThroughTraffic:   {"destination"},
}

// nonKeyable modes cannot be used as OSM keys of their own.
var nonKeyable = map[string]bool{
	"destination": true,
	"delivery":    true,
}

// exemptorSigns lift the restriction for certain traffic. They combine
// freely with each other.
var exemptorSigns = map[SignCode]bool{
	SignDestination:      true,
	SignHGVFree:          true,
	SignHGVTrailerFree:   true,
	SignBusFree:          true,
	SignTouristBusFree:   true,
	SignPSVFree:          true,
	SignEmergencyFree:    true,
	SignAmbulanceFree:    true,
	SignDeliveryFree:     true,
	SignAgriculturalFree: true,
	SignForestryFree:     true,
	SignAgriForestryFree: true,
	SignAuthoritiesFree:  true,
	SignSlurryFree:       true,
	SignThroughTraffic:   true,
}

// specifierSigns narrow the restriction to certain traffic. One at a
// time only.
var specifierSigns = map[SignCode]bool{
	SignHGV:         true,
	SignBus:         true,
	SignHGVTrailer:  true,
	SignArticulated: true,
}

// specialSigns cannot be combined freely and are handled individually.
var specialSigns = map[SignCode]bool{
	SignAuthoritiesFree:    true,
	SignArticulatedTrailer: true,
	SignHGVBusTrailer:      true,
	Sign75t:                true,
	Sign12t:                true,
}

// Signatures of the most common sign combinations. The restriction
// distribution has a long tail; handling these explicitly covers the
// vast majority of records that plain exemptor/specifier tagging gets
// wrong.
const (
	sigHGVNoDestOnly       = "25300010000000000000000000"
	sigHGVNoDeliveryOnly   = "25300000000000100000000000"
	sigHGVNoDeliveryOnly75 = "25300000000000100000000100"
	sigHGVNo75             = "25300000000000000000000100"
	sigHGVNoDestOnly75     = "25300010000000000000000100"
	sigHGVNo12             = "25300000000000000000000001"
)

var specialSignatures = map[string]bool{
	sigHGVNoDestOnly:       true,
	sigHGVNoDeliveryOnly:   true,
	sigHGVNoDeliveryOnly75: true,
	sigHGVNo75:             true,
	sigHGVNoDestOnly75:     true,
	sigHGVNo12:             true,
}
