package config

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// HannibalConfig is the YAML configuration of the orchestration
// front-end: which providers to convert, where the OSM base comes from
// and where the result goes.
type HannibalConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
	OSMBase   OSMBaseConfig             `yaml:"osmBase"`
	Output    OutputConfig              `yaml:"output"`
}

// ProviderConfig configures one data provider.
type ProviderConfig struct {
	// BaseURL overrides the provider's default service endpoint.
	BaseURL string `yaml:"baseUrl"`
	// DataDir is where the provider's layer files live or are
	// downloaded to.
	DataDir string `yaml:"dataDir" validate:"required"`
	// Download fetches the provider data before converting.
	Download bool `yaml:"download"`
	// CleanTags optionally strips tags inside an area first.
	CleanTags CleanTagsConfig `yaml:"cleanTags"`
}

// CleanTagsConfig configures polygon tag cleaning.
type CleanTagsConfig struct {
	Active bool     `yaml:"active"`
	Tags   []string `yaml:"tags" validate:"required_if=Active true"`
	// Area is the OSM relation or closed way whose outline bounds the
	// clean.
	Area int64 `yaml:"area" validate:"required_if=Active true"`
}

// OSMBaseConfig points at the OSM extract: a local path or a download
// URL.
type OSMBaseConfig struct {
	Path string `yaml:"path" validate:"required_without=URL"`
	URL  string `yaml:"url" validate:"required_without=Path"`
}

// OutputConfig configures the result file.
type OutputConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// knownProviders lists the providers this build can convert.
var knownProviders = map[string]bool{"sevas": true}

// LoadHannibal reads and validates a conversion config.
func LoadHannibal(path string) (*HannibalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read %s", path)
	}

	var cfg HannibalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrapf(err, "config: parse %s", path)
	}

	// provider keys are case-insensitive
	providers := make(map[string]ProviderConfig, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		lower := strings.ToLower(name)
		if !knownProviders[lower] {
			return nil, eris.Errorf("config: unknown provider %q", name)
		}
		providers[lower] = pc
	}
	cfg.Providers = providers

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, eris.Wrapf(err, "config: validate %s", path)
	}
	return &cfg, nil
}
