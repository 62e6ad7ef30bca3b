package migrator

import (
	"fmt"
	"reflect"

	"tracekeeper/internal/schema"
	"tracekeeper/internal/trace/models"
)

// pendingSet replays plan against a copy of attrs and returns the paths that must be
// written. A rename is skipped when its old path is absent or the new path already
// holds the same value, so replaying a finished migration yields an empty set.
// Renames apply in order, so a later rename sees the values written by earlier ones.
func pendingSet(attrs models.Attributes, plan schema.Plan) (map[string]any, error) {
	working := attrs.Clone()
	if working == nil {
		working = models.Attributes{}
	}
	set := make(map[string]any)
	var err error
	plan.Each(func(r schema.Rename) {
		if err != nil {
			return
		}
		v, ok := working.Lookup(r.From)
		if !ok {
			return
		}
		if cur, has := working.Lookup(r.To); has && reflect.DeepEqual(cur, v) {
			return
		}
		if setErr := working.Set(r.To, v); setErr != nil {
			err = fmt.Errorf("rename %s -> %s: %w", r.From, r.To, setErr)
			return
		}
		set[r.To] = v
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}
