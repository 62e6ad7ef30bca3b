package dispatcher

import (
	"errors"
	"fmt"
	"time"

	"tracekeeper/internal/platform/config"
	"tracekeeper/pkg/platform/retry"
)

// RegionConfig is one dispatch destination. MaxRetries is the total number of insert
// attempts a dispatch may make. StatusURL, when set, is checked for availability.
type RegionConfig struct {
	ID         string
	Endpoint   string
	StatusURL  string
	MaxRetries int
	Backoff    Backoff
}

// Backoff is the delay policy between attempts. The zero value retries immediately.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (r RegionConfig) retryConfig() retry.Config {
	if r.Backoff.Initial <= 0 {
		return retry.Immediate(r.MaxRetries)
	}
	return retry.Exponential(r.MaxRetries, r.Backoff.Initial, r.Backoff.Max)
}

// RegionSet is the immutable set of configured regions, looked up by id.
type RegionSet struct {
	regions map[string]RegionConfig
	order   []string
}

// NewRegionSet validates and freezes regions.
func NewRegionSet(regions []RegionConfig) (*RegionSet, error) {
	if len(regions) == 0 {
		return nil, errors.New("at least one region is required")
	}
	set := &RegionSet{regions: make(map[string]RegionConfig, len(regions))}
	for _, r := range regions {
		if r.ID == "" {
			return nil, errors.New("region id is required")
		}
		if _, dup := set.regions[r.ID]; dup {
			return nil, fmt.Errorf("region %q declared twice", r.ID)
		}
		if r.MaxRetries < 1 {
			return nil, fmt.Errorf("region %q: max retries must be at least 1", r.ID)
		}
		set.regions[r.ID] = r
		set.order = append(set.order, r.ID)
	}
	return set, nil
}

// RegionsFromPipeline builds the region set from the pipeline configuration.
func RegionsFromPipeline(p config.Pipeline) (*RegionSet, error) {
	regions := make([]RegionConfig, 0, len(p.Regions))
	for _, r := range p.Regions {
		regions = append(regions, RegionConfig{
			ID:         r.ID,
			Endpoint:   r.Endpoint,
			StatusURL:  r.StatusURL,
			MaxRetries: r.MaxRetries,
			Backoff:    Backoff{Initial: r.Backoff.Initial, Max: r.Backoff.Max},
		})
	}
	return NewRegionSet(regions)
}

// Lookup returns the region with id.
func (s *RegionSet) Lookup(id string) (RegionConfig, bool) {
	r, ok := s.regions[id]
	return r, ok
}

// IDs returns region ids in configuration order.
func (s *RegionSet) IDs() []string {
	return append([]string(nil), s.order...)
}
