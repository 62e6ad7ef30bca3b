package migrator

import (
	"errors"

	"tracekeeper/internal/trace/models"
)

var (
	ErrUnknownVersion   = errors.New("unknown target version")
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNoChange is benign: the record was already at the target shape.
	ErrNoChange = errors.New("no change")
	// ErrCanceled marks records the caller abandoned before their task started.
	ErrCanceled = errors.New("migration canceled before start")
	// ErrMigrationInProgress means another job holds the lease for the target version.
	ErrMigrationInProgress = errors.New("migration already in progress")
	// ErrLeaseLost means the job lease expired between pages and could not be renewed.
	ErrLeaseLost = errors.New("migration lease lost")
)

// Status is the per-record result of a migration.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNoChange Status = "no_change"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Outcome is one record's result. Renamed counts the attribute paths written under
// their new name.
type Outcome struct {
	ID      models.RecordID
	Status  Status
	Renamed int
	Err     error
}

// BatchReport holds one outcome per input record, in input order.
type BatchReport struct {
	Target   string
	Outcomes []Outcome
	Renamed  int
}

// Count returns how many outcomes have status st.
func (r BatchReport) Count(st Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == st {
			n++
		}
	}
	return n
}

// ByID indexes outcomes by record id.
func (r BatchReport) ByID() map[models.RecordID]Outcome {
	out := make(map[models.RecordID]Outcome, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out[o.ID] = o
	}
	return out
}

// JobReport summarizes a paged MigrateVersion run.
type JobReport struct {
	From     string
	To       string
	Batches  int
	Records  int
	Renamed  int
	Statuses map[Status]int
	Failures []Outcome
}

func (j *JobReport) add(batch BatchReport) {
	j.Batches++
	j.Records += len(batch.Outcomes)
	j.Renamed += batch.Renamed
	for _, o := range batch.Outcomes {
		j.Statuses[o.Status]++
		if o.Status == StatusFailed {
			j.Failures = append(j.Failures, o)
		}
	}
}
