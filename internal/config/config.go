// Package config loads herrenlos.yml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/herrenlos/internal/classify"
	"github.com/dusk-indust/herrenlos/internal/query"
	"github.com/dusk-indust/herrenlos/internal/report"
)

// DefaultServiceURL is the query endpoint of the Aargau cadastral parcel layer.
const DefaultServiceURL = "https://www.ag.ch/geoportal/rest/services/Grundbuch/Liegenschaften/MapServer/0/query"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HERRENLOS_"

// Config holds every setting of a run.
type Config struct {
	Service        ServiceConfig        `yaml:"service"`
	Schema         SchemaConfig         `yaml:"schema"`
	Municipalities MunicipalitiesConfig `yaml:"municipalities"`
	Filter         FilterConfig         `yaml:"filter"`
	Requester      report.Requester     `yaml:"requester"`
	Report         ReportConfig         `yaml:"report"`
	Journal        JournalConfig        `yaml:"journal"`
	Cache          CacheConfig          `yaml:"cache"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Workers        int                  `yaml:"workers"`
}

// ServiceConfig describes the feature service.
type ServiceConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"userAgent"`
	MinInterval time.Duration `yaml:"minInterval"`
}

// SchemaConfig names the attributes of the parcel layer.
type SchemaConfig struct {
	IDField          string   `yaml:"idField"`
	AreaField        string   `yaml:"areaField"`
	OwnerField       string   `yaml:"ownerField"`
	NullMarkers      []string `yaml:"nullMarkers"`
	SpatialReference int      `yaml:"spatialReference"`
}

// MunicipalitiesConfig points at the municipality list. An empty file
// selects the embedded list.
type MunicipalitiesConfig struct {
	File string `yaml:"file"`
}

// FilterConfig holds candidate filters.
type FilterConfig struct {
	MinAreaM2 float64 `yaml:"minAreaM2"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	Dir          string `yaml:"dir"`
	GeoportalURL string `yaml:"geoportalURL"`
	Title        string `yaml:"title"`
}

// JournalConfig selects the outcome journal. An empty driver disables it.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// CacheConfig controls the response cache. A zero TTL disables it.
type CacheConfig struct {
	RedisURL string        `yaml:"redisURL"`
	TTL      time.Duration `yaml:"ttl"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Default returns the built-in configuration.
func Default() Config {
	schema := classify.DefaultSchema()
	return Config{
		Service: ServiceConfig{
			URL:         DefaultServiceURL,
			Timeout:     30 * time.Second,
			UserAgent:   "herrenlos",
			MinInterval: time.Second,
		},
		Schema: SchemaConfig{
			IDField:          schema.IDField,
			AreaField:        schema.AreaField,
			OwnerField:       schema.OwnerField,
			NullMarkers:      append([]string(nil), classify.DefaultNullMarkers...),
			SpatialReference: query.DefaultSpatialReference,
		},
		Report: ReportConfig{
			Dir:          "out",
			GeoportalURL: "https://geo.ag.ch/parzelle/{id}",
		},
		Journal: JournalConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(".herrenlos", "journal.db"),
		},
		Cache: CacheConfig{
			TTL: time.Hour,
		},
		Workers: 1,
	}
}

// Load reads herrenlos.yml or herrenlos.yaml from dir over the defaults.
// A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()
	for _, name := range []string{"herrenlos.yml", "herrenlos.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		break
	}
	return &cfg, nil
}

// LoadWithEnv is Load followed by ApplyEnv(os.LookupEnv) and Validate.
func LoadWithEnv(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from HERRENLOS_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("SERVICE_URL", &c.Service.URL)
	dur("SERVICE_TIMEOUT", &c.Service.Timeout)
	str("USER_AGENT", &c.Service.UserAgent)
	dur("MIN_INTERVAL", &c.Service.MinInterval)
	str("ID_FIELD", &c.Schema.IDField)
	str("AREA_FIELD", &c.Schema.AreaField)
	str("OWNER_FIELD", &c.Schema.OwnerField)
	if v, ok := lookup(EnvPrefix + "NULL_MARKERS"); ok {
		c.Schema.NullMarkers = splitList(v)
	}
	integer("SPATIAL_REFERENCE", &c.Schema.SpatialReference)
	str("MUNICIPALITIES_FILE", &c.Municipalities.File)
	num("MIN_AREA", &c.Filter.MinAreaM2)
	str("REQUESTER_NAME", &c.Requester.Name)
	str("REQUESTER_ADDRESS", &c.Requester.Address)
	str("REQUESTER_EMAIL", &c.Requester.Email)
	str("REPORT_DIR", &c.Report.Dir)
	str("GEOPORTAL_URL", &c.Report.GeoportalURL)
	str("JOURNAL_DRIVER", &c.Journal.Driver)
	str("JOURNAL_DSN", &c.Journal.DSN)
	str("REDIS_URL", &c.Cache.RedisURL)
	dur("CACHE_TTL", &c.Cache.TTL)
	str("METRICS_TEXTFILE", &c.Metrics.Textfile)
	integer("WORKERS", &c.Workers)

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return nil
}

// Validate checks values that would make every request fail.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Service.URL) == "" {
		errs = append(errs, errors.New("service.url is empty"))
	}
	if c.Service.Timeout < 0 {
		errs = append(errs, errors.New("service.timeout is negative"))
	}
	if c.Service.MinInterval < 0 {
		errs = append(errs, errors.New("service.minInterval is negative"))
	}
	if strings.TrimSpace(c.Schema.OwnerField) == "" {
		errs = append(errs, errors.New("schema.ownerField is empty"))
	}
	if c.Schema.SpatialReference <= 0 {
		errs = append(errs, fmt.Errorf("schema.spatialReference %d is not a valid WKID", c.Schema.SpatialReference))
	}
	if c.Filter.MinAreaM2 < 0 {
		errs = append(errs, errors.New("filter.minAreaM2 is negative"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl is negative"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	switch c.Journal.Driver {
	case "", "sqlite", "postgres", "pgx":
	default:
		errs = append(errs, fmt.Errorf("journal.driver %q is not one of sqlite, postgres", c.Journal.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}

// ClassifierSchema returns the attribute names for the classifier.
func (c *Config) ClassifierSchema() classify.Schema {
	return classify.Schema{
		IDField:    c.Schema.IDField,
		AreaField:  c.Schema.AreaField,
		OwnerField: c.Schema.OwnerField,
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
