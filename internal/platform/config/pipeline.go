package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"tracekeeper/internal/trace/models"
	pstrings "tracekeeper/pkg/platform/strings"
)

// Pipeline is the static configuration of the trace pipeline: regions, schema
// versions and their renames, and the quality thresholds. It is loaded once at
// startup and never mutated afterwards.
type Pipeline struct {
	CurrentVersion string          `yaml:"current_version"`
	KnownVersions  []string        `yaml:"known_versions"`
	Regions        []Region        `yaml:"regions"`
	VersionChanges []VersionChange `yaml:"version_changes"`
	Quality        Quality         `yaml:"quality"`
	Migration      Migration       `yaml:"migration"`
}

// Region is one dispatch destination with its retry budget. StatusURL is an
// optional absolute http(s) URL answering 2xx while the region is available.
type Region struct {
	ID         string  `yaml:"id"`
	Endpoint   string  `yaml:"endpoint"`
	StatusURL  string  `yaml:"status_url"`
	MaxRetries int     `yaml:"max_retries"`
	Backoff    Backoff `yaml:"backoff"`
}

// Backoff configures jittered exponential backoff between dispatch attempts.
// A zero Initial retries immediately.
type Backoff struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// VersionChange lists, in order, the attribute renames that reach Target.
type VersionChange struct {
	Target  string   `yaml:"target"`
	Renames []Rename `yaml:"renames"`
}

// Rename moves (additively) the value at From to To. Paths are relative to attributes.
type Rename struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Quality holds the auditor thresholds.
type Quality struct {
	MaxFields        int           `yaml:"max_fields"`
	TimeGapThreshold time.Duration `yaml:"time_gap_threshold"`
}

// Migration tunes batch migration jobs.
type Migration struct {
	BatchSize  int           `yaml:"batch_size"`
	MaxWorkers int           `yaml:"max_workers"`
	LockTTL    time.Duration `yaml:"lock_ttl"`
}

// DefaultPipeline mirrors the production defaults: US and EU regions with three
// attempts each, semconv 1.32 current, and the 1.25 → 1.32 trade attribute renames.
func DefaultPipeline() Pipeline {
	return Pipeline{
		CurrentVersion: "1.32",
		KnownVersions:  []string{"1.25", "1.32"},
		Regions: []Region{
			{ID: "US", Endpoint: "us.zero0x.trade", MaxRetries: 3},
			{ID: "EU", Endpoint: "eu.zero0x.trade", MaxRetries: 3},
		},
		VersionChanges: []VersionChange{
			{
				Target: "1.32",
				Renames: []Rename{
					{From: "custom.trade_type", To: "trade.type"},
					{From: "custom.chain_id", To: "chain.id"},
				},
			},
		},
		Quality: Quality{
			MaxFields:        100,
			TimeGapThreshold: 3600 * time.Second,
		},
		Migration: Migration{
			BatchSize:  500,
			MaxWorkers: 0,
			LockTTL:    10 * time.Minute,
		},
	}
}

// LoadPipeline reads a YAML pipeline file over the defaults and validates it.
// An empty path returns the defaults.
func LoadPipeline(path string) (Pipeline, error) {
	p := DefaultPipeline()
	if path == "" {
		return p, p.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read pipeline config: %w", err)
	}
	return ParsePipeline(raw)
}

// ParsePipeline decodes YAML over the defaults and validates the result. Lists in
// the document replace the default lists entirely.
func ParsePipeline(raw []byte) (Pipeline, error) {
	p := DefaultPipeline()
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Pipeline{}, fmt.Errorf("decode pipeline config: %w", err)
	}
	p.KnownVersions = pstrings.DedupeAndTrim(p.KnownVersions)
	if err := p.Validate(); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

// Validate checks the invariants the services rely on.
func (p Pipeline) Validate() error {
	var errs []error
	if !slices.Contains(p.KnownVersions, p.CurrentVersion) {
		errs = append(errs, fmt.Errorf("current_version %q is not a known version", p.CurrentVersion))
	}

	seenRegions := make(map[string]struct{}, len(p.Regions))
	for _, r := range p.Regions {
		if r.ID == "" {
			errs = append(errs, errors.New("region id is required"))
			continue
		}
		if _, dup := seenRegions[r.ID]; dup {
			errs = append(errs, fmt.Errorf("region %q declared twice", r.ID))
		}
		seenRegions[r.ID] = struct{}{}
		if r.MaxRetries < 1 {
			errs = append(errs, fmt.Errorf("region %q: max_retries must be at least 1", r.ID))
		}
		if r.Backoff.Initial < 0 || r.Backoff.Max < 0 {
			errs = append(errs, fmt.Errorf("region %q: backoff must not be negative", r.ID))
		}
		if r.StatusURL != "" {
			if u, err := url.Parse(r.StatusURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				errs = append(errs, fmt.Errorf("region %q: status_url must be an absolute http(s) URL", r.ID))
			}
		}
	}

	seenTargets := make(map[string]struct{}, len(p.VersionChanges))
	for _, vc := range p.VersionChanges {
		if !slices.Contains(p.KnownVersions, vc.Target) {
			errs = append(errs, fmt.Errorf("version change target %q is not a known version", vc.Target))
		}
		if _, dup := seenTargets[vc.Target]; dup {
			errs = append(errs, fmt.Errorf("version change target %q declared twice", vc.Target))
		}
		seenTargets[vc.Target] = struct{}{}
		destinations := make([]string, 0, len(vc.Renames))
		for _, r := range vc.Renames {
			if r.From == "" || r.To == "" {
				errs = append(errs, fmt.Errorf("version change %q: rename paths must be non-empty", vc.Target))
			}
			for _, path := range []string{r.From, r.To} {
				if models.IsReservedPath(path) {
					errs = append(errs, fmt.Errorf("version change %q: %q is a reserved attribute", vc.Target, path))
				}
			}
			destinations = append(destinations, r.To)
		}
		for _, dup := range pstrings.Duplicates(destinations) {
			errs = append(errs, fmt.Errorf("version change %q: %q is the destination of more than one rename", vc.Target, dup))
		}
	}

	if p.Quality.MaxFields <= 0 {
		errs = append(errs, errors.New("quality.max_fields must be positive"))
	}
	if p.Quality.TimeGapThreshold <= 0 {
		errs = append(errs, errors.New("quality.time_gap_threshold must be positive"))
	}
	if p.Migration.BatchSize <= 0 {
		errs = append(errs, errors.New("migration.batch_size must be positive"))
	}
	if p.Migration.MaxWorkers < 0 {
		errs = append(errs, errors.New("migration.max_workers must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid pipeline config: %w", errors.Join(errs...))
	}
	return nil
}
