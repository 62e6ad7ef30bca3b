package quality

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"tracekeeper/internal/trace/models"
)

// Kind names an anomaly class.
type Kind string

const (
	KindMixedType       Kind = "mixed_type"
	KindLargeTimeGap    Kind = "large_time_gap"
	KindExcessiveFields Kind = "excessive_fields"
)

// Finding is one detected anomaly. Findings are informational and never abort a scan.
type Finding struct {
	Kind       Kind            `json:"kind"`
	Path       string          `json:"path,omitempty"`
	Types      []string        `json:"types,omitempty"`
	RecordID   models.RecordID `json:"record_id,omitempty"`
	Gap        time.Duration   `json:"-"`
	GapSeconds float64         `json:"gap_seconds,omitempty"`
	Overflow   int             `json:"overflow,omitempty"`
}

// RepairIntents counts the reconciliations a repair phase would perform. Nothing is
// applied by the auditor.
type RepairIntents struct {
	TypeReconciliations int `json:"type_reconciliations"`
	TimeGapCorrections  int `json:"time_gap_corrections"`
	FieldTrims          int `json:"field_trims"`
}

// Report is the result of one audit run.
type Report struct {
	GeneratedAt             time.Time     `json:"generated_at"`
	MaxFields               int           `json:"max_fields"`
	TimeGapThresholdSeconds float64       `json:"time_gap_threshold_seconds"`
	MixedTypes              []Finding     `json:"mixed_types"`
	TimeGaps                []Finding     `json:"time_gaps"`
	Excess                  *Finding      `json:"excessive_fields"`
	DistinctTopLevelFields  int           `json:"distinct_top_level_fields"`
	RepairIntents           RepairIntents `json:"repair_intents"`
}

// Findings returns every finding in the report.
func (r Report) Findings() []Finding {
	out := make([]Finding, 0, len(r.MixedTypes)+len(r.TimeGaps)+1)
	out = append(out, r.MixedTypes...)
	out = append(out, r.TimeGaps...)
	if r.Excess != nil {
		out = append(out, *r.Excess)
	}
	return out
}

// WriteReport writes the report as indented JSON.
func WriteReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode audit report: %w", err)
	}
	return nil
}

// WriteReportFile writes the report to path, zstd-compressed when path ends in .zst.
func WriteReportFile(path string, r Report) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report file: %w", cerr)
		}
	}()

	if !strings.HasSuffix(path, ".zst") {
		return WriteReport(f, r)
	}

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := WriteReport(zw, r); err != nil {
		_ = zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush zstd writer: %w", err)
	}
	return nil
}

// ReadReportFile reads a report written by WriteReportFile.
func ReadReportFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report file: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	var r Report
	if err := json.NewDecoder(src).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode audit report: %w", err)
	}
	for i := range r.TimeGaps {
		r.TimeGaps[i].Gap = time.Duration(r.TimeGaps[i].GapSeconds * float64(time.Second))
	}
	return &r, nil
}
