package httptransport

import (
	"encoding/json"
	"strings"
	"time"

	"tracekeeper/internal/diagnostics"
	"tracekeeper/internal/dispatcher"
	"tracekeeper/internal/lookup"
	"tracekeeper/internal/migrator"
	"tracekeeper/internal/trace/models"
	"tracekeeper/pkg/attrs"
	dErrors "tracekeeper/pkg/domain-errors"
)

type dispatchResponse struct {
	ID       string `json:"id"`
	Region   string `json:"region"`
	Attempts int    `json:"attempts"`
}

type migrationRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// Validate trims the versions and checks the request shape.
func (r *migrationRequest) Validate() error {
	r.From = strings.TrimSpace(r.From)
	r.To = strings.TrimSpace(r.To)
	if r.From == "" || r.To == "" {
		return dErrors.New(dErrors.CodeBadRequest, "from and to are required")
	}
	if r.BatchSize < 0 {
		return dErrors.New(dErrors.CodeBadRequest, "batch_size must not be negative")
	}
	return nil
}

type migrationFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type migrationResponse struct {
	From     string             `json:"from"`
	To       string             `json:"to"`
	Batches  int                `json:"batches"`
	Records  int                `json:"records"`
	Renamed  int                `json:"renamed"`
	Statuses map[string]int     `json:"statuses"`
	Failures []migrationFailure `json:"failures"`
}

func fromJobReport(job *migrator.JobReport) migrationResponse {
	resp := migrationResponse{
		From:     job.From,
		To:       job.To,
		Batches:  job.Batches,
		Records:  job.Records,
		Renamed:  job.Renamed,
		Statuses: make(map[string]int, len(job.Statuses)),
		Failures: make([]migrationFailure, 0, len(job.Failures)),
	}
	for st, n := range job.Statuses {
		resp.Statuses[string(st)] = n
	}
	for _, f := range job.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		resp.Failures = append(resp.Failures, migrationFailure{ID: f.ID.String(), Error: msg})
	}
	return resp
}

type diagnosticEntry struct {
	Time      time.Time         `json:"time"`
	Level     string            `json:"level"`
	Component string            `json:"component"`
	Event     string            `json:"event"`
	Message   string            `json:"message"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

type diagnosticsResponse struct {
	Entries []diagnosticEntry `json:"entries"`
}

func fromEntry(e diagnostics.Entry) diagnosticEntry {
	return diagnosticEntry{
		Time:      e.Time,
		Level:     string(e.Level),
		Component: e.Component,
		Event:     e.Event,
		Message:   e.Message,
		Attrs:     attrs.ToStringMap(e.Attrs),
	}
}

type schemaResponse struct {
	Current string   `json:"current"`
	Known   []string `json:"known"`
	Targets []string `json:"targets"`
}

type renameDTO struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type changesResponse struct {
	From    string      `json:"from"`
	To      string      `json:"to"`
	Renames []renameDTO `json:"renames"`
}

type searchRequest struct {
	Version string          `json:"version,omitempty"`
	Match   json.RawMessage `json:"match"`
	Limit   int             `json:"limit,omitempty"`
}

// toQuery decodes match with exact integers so large ids compare correctly.
func (r *searchRequest) toQuery() (lookup.Query, error) {
	if len(r.Match) == 0 {
		return lookup.Query{}, dErrors.New(dErrors.CodeBadRequest, "match is required")
	}
	match, err := models.DecodeAttributes(r.Match)
	if err != nil || match == nil {
		return lookup.Query{}, dErrors.New(dErrors.CodeBadRequest, "match must be a JSON object")
	}
	return lookup.Query{
		Version: strings.TrimSpace(r.Version),
		Match:   models.AttributeMatch(match),
		Limit:   r.Limit,
	}, nil
}

type recordDTO struct {
	ID             string         `json:"id"`
	Attributes     map[string]any `json:"attributes"`
	SemconvVersion string         `json:"semconv_version,omitempty"`
	RegionID       string         `json:"region_id,omitempty"`
	EventTime      *time.Time     `json:"_time,omitempty"`
	StoreTime      time.Time      `json:"_sysTime"`
}

type searchResponse struct {
	Version  string         `json:"version"`
	Location string         `json:"location"`
	Match    map[string]any `json:"match"`
	Records  []recordDTO    `json:"records"`
}

func fromLookupResult(res *lookup.Result) searchResponse {
	resp := searchResponse{
		Version:  res.Version,
		Location: string(res.Location),
		Match:    map[string]any(res.Match),
		Records:  make([]recordDTO, 0, len(res.Records)),
	}
	for _, rec := range res.Records {
		resp.Records = append(resp.Records, recordDTO{
			ID:             rec.ID.String(),
			Attributes:     map[string]any(rec.Attributes),
			SemconvVersion: rec.SemconvVersion,
			RegionID:       rec.RegionID,
			EventTime:      rec.EventTime,
			StoreTime:      rec.StoreTime,
		})
	}
	return resp
}

type regionStatusDTO struct {
	Region     string `json:"region"`
	Up         bool   `json:"up"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

type regionStatusResponse struct {
	Regions []regionStatusDTO `json:"regions"`
}

func fromRegionStatus(st dispatcher.RegionStatus) regionStatusDTO {
	dto := regionStatusDTO{
		Region:     st.Region,
		Up:         st.Up,
		StatusCode: st.StatusCode,
		LatencyMS:  st.Latency.Milliseconds(),
	}
	if st.Err != nil {
		dto.Error = st.Err.Error()
	}
	return dto
}
