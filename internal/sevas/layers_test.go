package sevas

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayerFileNames(t *testing.T) {
	assert.Equal(t, "restriktionen.shp", LayerRestrictions.FileName())
	assert.Equal(t, "restriktionen.zip", LayerRestrictions.ZipName())
	assert.Len(t, Layers(), 5)
}

func TestRequestURL(t *testing.T) {
	raw := LayerRestrictions.RequestURL(DefaultBaseURL, "2.0.0", 0)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "WFS", q.Get("SERVICE"))
	assert.Equal(t, "2.0.0", q.Get("VERSION"))
	assert.Equal(t, "getfeature", q.Get("REQUEST"))
	assert.Equal(t, "restriktionen", q.Get("TYPENAME"))
	assert.Equal(t, "ShapeZip", q.Get("OUTPUTFORMAT"))
	assert.Empty(t, q.Get("Filter"))
	assert.Empty(t, q.Get("MAXFEATURES"))
}

func TestRequestURLZoneFilters(t *testing.T) {
	// the zone feature types are shared, so both zone layers filter on typ
	u, err := url.Parse(LayerRoadSpeeds.RequestURL(DefaultBaseURL, "2.0.0", 0))
	require.NoError(t, err)
	assert.Contains(t, u.Query().Get("Filter"), "tempozone")

	u, err = url.Parse(LayerLowEmissionZones.RequestURL(DefaultBaseURL, "2.0.0", 0))
	require.NoError(t, err)
	assert.Contains(t, u.Query().Get("Filter"), "umweltzone")
}

func TestRequestURLMaxFeatures(t *testing.T) {
	u, err := url.Parse(LayerTrafficSigns.RequestURL(DefaultBaseURL, "2.0.0", 25))
	require.NoError(t, err)
	assert.Equal(t, "25", u.Query().Get("MAXFEATURES"))
}
