package sevas

import (
	"net/url"
	"strconv"
)

// DefaultBaseURL is the public SEVAS Web Feature Service endpoint.
const DefaultBaseURL = "https://sevas.nrw.de/osm/sevas"

// Layer is one SEVAS WFS feature type.
type Layer string

const (
	LayerRestrictions     Layer = "restriktionen"
	LayerPreferredRoads   Layer = "vorrangrouten"
	LayerRoadSpeeds       Layer = "zonen_segmente"
	LayerLowEmissionZones Layer = "zonen_polygone"
	LayerTrafficSigns     Layer = "verkehrszeichen"
)

// Layers lists every SEVAS layer in download order.
func Layers() []Layer {
	return []Layer{
		LayerRestrictions,
		LayerPreferredRoads,
		LayerRoadSpeeds,
		LayerLowEmissionZones,
		LayerTrafficSigns,
	}
}

// FileName returns the layer's shapefile name inside the data dir.
func (l Layer) FileName() string { return string(l) + ".shp" }

// ZipName returns the layer's staging zip name.
func (l Layer) ZipName() string { return string(l) + ".zip" }

// typeFilter returns the WFS property filter for layers that share a
// feature type with another layer. The zone feature type carries both
// low emission zones and speed zones; polygons are only needed for the
// former, segments only for the latter.
func (l Layer) typeFilter() string {
	switch l {
	case LayerLowEmissionZones:
		return propertyFilter("typ", "umweltzone")
	case LayerRoadSpeeds:
		return propertyFilter("typ", "tempozone")
	default:
		return ""
	}
}

func propertyFilter(name, literal string) string {
	return "<Filter><PropertyIsEqualTo><PropertyName>" + name + "</PropertyName>" +
		"<Literal>" + literal + "</Literal></PropertyIsEqualTo></Filter>"
}

// RequestURL builds the WFS getfeature URL for the layer.
// maxFeatures > 0 limits the response size (used by tests).
func (l Layer) RequestURL(baseURL, version string, maxFeatures int) string {
	q := url.Values{}
	q.Set("SERVICE", "WFS")
	q.Set("VERSION", version)
	q.Set("REQUEST", "getfeature")
	q.Set("TYPENAME", string(l))
	if f := l.typeFilter(); f != "" {
		q.Set("Filter", f)
	}
	q.Set("OUTPUTFORMAT", "ShapeZip")
	if maxFeatures > 0 {
		q.Set("MAXFEATURES", strconv.Itoa(maxFeatures))
	}
	return baseURL + "?" + q.Encode()
}
