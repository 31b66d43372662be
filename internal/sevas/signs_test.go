package sevas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssemblyTags(t *testing.T) {
	assert.Nil(t, AssemblyTags(nil))

	single := []*TrafficSignRecord{{Type: "253", Bearing: "90"}}
	assert.Equal(t, map[string]string{
		"traffic_sign": "DE:253",
		"direction":    "90",
	}, AssemblyTags(single))

	// signs on one post join into one value, ordered by sign ID
	assembly := []*TrafficSignRecord{
		{SignID: 1, Type: "253", Bearing: "90"},
		{SignID: 2, Type: "1020-30", Bearing: "90"},
	}
	assert.Equal(t, map[string]string{
		"traffic_sign": "DE:253,1020-30",
		"direction":    "90",
	}, AssemblyTags(assembly))

	// disagreeing bearings drop the direction tag
	assembly[1].Bearing = "270"
	assert.Equal(t, map[string]string{
		"traffic_sign": "DE:253,1020-30",
	}, AssemblyTags(assembly))
}
