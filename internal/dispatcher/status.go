package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"tracekeeper/internal/platform/metrics"
)

const defaultCheckTimeout = 5 * time.Second

// ErrRegionDown is returned by RegionStatus.Check for a region that failed its check.
var ErrRegionDown = errors.New("region unavailable")

// RegionStatus is the outcome of one status check.
type RegionStatus struct {
	Region     string
	Up         bool
	StatusCode int
	Latency    time.Duration
	Err        error
}

// Check returns nil for a region that is up.
func (s RegionStatus) Check() error {
	if s.Up {
		return nil
	}
	if s.Err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRegionDown, s.Region, s.Err)
	}
	return fmt.Errorf("%w: %s: status %d", ErrRegionDown, s.Region, s.StatusCode)
}

// StatusChecker polls the status URL of each region that configures one.
type StatusChecker struct {
	regions *RegionSet
	client  *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStatusChecker checks with client, or a client with a five second timeout when nil.
func NewStatusChecker(regions *RegionSet, client *http.Client, m *metrics.Metrics, logger *slog.Logger) *StatusChecker {
	if client == nil {
		client = &http.Client{Timeout: defaultCheckTimeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StatusChecker{regions: regions, client: client, metrics: m, logger: logger}
}

// Monitored returns the ids of regions with a status URL, in configuration order.
func (c *StatusChecker) Monitored() []string {
	var ids []string
	for _, id := range c.regions.IDs() {
		if r, _ := c.regions.Lookup(id); r.StatusURL != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// CheckRegion issues one GET against the region's status URL. Any 2xx answer is up.
func (c *StatusChecker) CheckRegion(ctx context.Context, id string) RegionStatus {
	status := RegionStatus{Region: id}
	region, ok := c.regions.Lookup(id)
	if !ok {
		status.Err = fmt.Errorf("%w: %q", ErrUnknownRegion, id)
		return status
	}
	if region.StatusURL == "" {
		status.Err = errors.New("no status url configured")
		return status
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, region.StatusURL, nil)
	if err != nil {
		status.Err = fmt.Errorf("build status request: %w", err)
		return status
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	status.Latency = time.Since(start)
	if err != nil {
		status.Err = fmt.Errorf("status request: %w", err)
		c.record(ctx, status)
		return status
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	status.StatusCode = resp.StatusCode
	status.Up = resp.StatusCode >= 200 && resp.StatusCode < 300
	c.record(ctx, status)
	return status
}

// CheckAll checks every region with a status URL concurrently. One region failing
// its check does not affect the others.
func (c *StatusChecker) CheckAll(ctx context.Context) []RegionStatus {
	ids := c.Monitored()
	out := make([]RegionStatus, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			out[i] = c.CheckRegion(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *StatusChecker) record(ctx context.Context, status RegionStatus) {
	c.metrics.SetRegionUp(status.Region, status.Up)
	if !status.Up {
		c.logger.WarnContext(ctx, "region status check failed",
			"region", status.Region,
			"status_code", status.StatusCode,
			"error", status.Err,
		)
	}
}
