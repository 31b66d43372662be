package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHannibalConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hannibal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadHannibal(t *testing.T) {
	path := writeHannibalConfig(t, `
providers:
  SEVAS:
    dataDir: /data/sevas
    download: true
    cleanTags:
      active: true
      tags: [maxspeed, hgv]
      area: 62761
osmBase:
  path: /data/nrw.osm.pbf
output:
  path: /data/nrw-sevas.osm.pbf
`)

	cfg, err := LoadHannibal(path)
	require.NoError(t, err)

	// provider names are case-insensitive
	pc, ok := cfg.Providers["sevas"]
	require.True(t, ok)
	assert.Equal(t, "/data/sevas", pc.DataDir)
	assert.True(t, pc.Download)
	assert.True(t, pc.CleanTags.Active)
	assert.Equal(t, []string{"maxspeed", "hgv"}, pc.CleanTags.Tags)
	assert.Equal(t, int64(62761), pc.CleanTags.Area)
	assert.Equal(t, "/data/nrw.osm.pbf", cfg.OSMBase.Path)
	assert.Equal(t, "/data/nrw-sevas.osm.pbf", cfg.Output.Path)
}

func TestLoadHannibalValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown provider", `
providers:
  bogus:
    dataDir: /data
osmBase:
  path: /in.pbf
output:
  path: /out.pbf
`},
		{"missing data dir", `
providers:
  sevas: {}
osmBase:
  path: /in.pbf
output:
  path: /out.pbf
`},
		{"missing osm base", `
providers:
  sevas:
    dataDir: /data
output:
  path: /out.pbf
`},
		{"missing output", `
providers:
  sevas:
    dataDir: /data
osmBase:
  path: /in.pbf
`},
		{"clean without tags", `
providers:
  sevas:
    dataDir: /data
    cleanTags:
      active: true
      area: 1
osmBase:
  path: /in.pbf
output:
  path: /out.pbf
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHannibal(writeHannibalConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadHannibalURLBase(t *testing.T) {
	path := writeHannibalConfig(t, `
providers:
  sevas:
    dataDir: /data
osmBase:
  url: https://download.geofabrik.de/europe/germany/nordrhein-westfalen-latest.osm.pbf
output:
  path: /out.pbf
`)

	cfg, err := LoadHannibal(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.OSMBase.Path)
	assert.NotEmpty(t, cfg.OSMBase.URL)
}

func TestLoadHannibalMissingFile(t *testing.T) {
	_, err := LoadHannibal(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
