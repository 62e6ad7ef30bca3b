// Package schema holds the semantic-convention version registry: for each target
// version, the ordered attribute renames that bring a record to it. A Registry is
// built once at startup and is read-only afterwards, so concurrent migrations share
// it without locking.
package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"tracekeeper/internal/platform/config"
	"tracekeeper/internal/trace/models"
)

// ErrUnknownVersion is returned when a version tag is not registered.
var ErrUnknownVersion = errors.New("unknown semantic-convention version")

// ErrReservedPath is returned when a rename reads or writes region_id or semconv_version.
var ErrReservedPath = errors.New("reserved attribute path")

// Rename writes the value found at From under To. Paths are dotted and relative to attributes.
type Rename struct {
	From string
	To   string
}

// Change lists the renames reaching Target, in application order.
type Change struct {
	Target  string
	Renames []Rename
}

// Plan is the immutable rename plan for one target version.
type Plan struct {
	target  string
	renames []Rename
}

// Target returns the version the plan migrates to.
func (p Plan) Target() string { return p.target }

// Renames returns a copy of the ordered renames.
func (p Plan) Renames() []Rename { return slices.Clone(p.renames) }

// Len returns the number of renames.
func (p Plan) Len() int { return len(p.renames) }

// Each calls fn for every rename in order without copying.
func (p Plan) Each(fn func(Rename)) {
	for _, r := range p.renames {
		fn(r)
	}
}

// Registry maps target versions to plans.
type Registry struct {
	current string
	known   []string
	plans   map[string]Plan
}

// NewRegistry validates and freezes the version configuration. Known versions
// are ordered oldest first.
func NewRegistry(current string, known []string, changes []Change) (*Registry, error) {
	if len(known) == 0 {
		return nil, errors.New("schema registry: no known versions")
	}
	if !slices.Contains(known, current) {
		return nil, fmt.Errorf("schema registry: current version %q: %w", current, ErrUnknownVersion)
	}

	plans := make(map[string]Plan, len(changes))
	for _, c := range changes {
		if !slices.Contains(known, c.Target) {
			return nil, fmt.Errorf("schema registry: change target %q: %w", c.Target, ErrUnknownVersion)
		}
		if _, dup := plans[c.Target]; dup {
			return nil, fmt.Errorf("schema registry: duplicate change for %q", c.Target)
		}
		for _, r := range c.Renames {
			if r.From == "" || r.To == "" {
				return nil, fmt.Errorf("schema registry: empty rename path for %q", c.Target)
			}
			if models.IsReservedPath(r.From) || models.IsReservedPath(r.To) {
				return nil, fmt.Errorf("schema registry: rename %q -> %q touches a reserved attribute: %w", r.From, r.To, ErrReservedPath)
			}
			if r.From == r.To {
				return nil, fmt.Errorf("schema registry: rename %q onto itself for %q", r.From, c.Target)
			}
		}
		plans[c.Target] = Plan{target: c.Target, renames: slices.Clone(c.Renames)}
	}

	return &Registry{
		current: current,
		known:   slices.Clone(known),
		plans:   plans,
	}, nil
}

// FromPipeline builds the registry from the pipeline configuration.
func FromPipeline(p config.Pipeline) (*Registry, error) {
	changes := make([]Change, 0, len(p.VersionChanges))
	for _, vc := range p.VersionChanges {
		c := Change{Target: vc.Target}
		for _, r := range vc.Renames {
			c.Renames = append(c.Renames, Rename{From: r.From, To: r.To})
		}
		changes = append(changes, c)
	}
	return NewRegistry(p.CurrentVersion, p.KnownVersions, changes)
}

// Lookup returns the plan for target. A known version without renames has no plan.
func (r *Registry) Lookup(target string) (Plan, bool) {
	p, ok := r.plans[target]
	return p, ok
}

// IsKnown reports whether version is a registered tag.
func (r *Registry) IsKnown(version string) bool {
	return slices.Contains(r.known, version)
}

// Current returns the version stamped on newly dispatched records.
func (r *Registry) Current() string { return r.current }

// Known returns the registered versions, oldest first.
func (r *Registry) Known() []string { return slices.Clone(r.known) }

// Targets returns the versions that have a rename plan, in known-version order.
func (r *Registry) Targets() []string {
	out := make([]string, 0, len(r.plans))
	for _, v := range r.known {
		if _, ok := r.plans[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// DescribeChanges lists the renames needed to bring a record from version from to
// version to: the plans of every target after from up to and including to.
func (r *Registry) DescribeChanges(from, to string) ([]Rename, error) {
	fi := slices.Index(r.known, from)
	if fi < 0 {
		return nil, fmt.Errorf("from %q: %w", from, ErrUnknownVersion)
	}
	ti := slices.Index(r.known, to)
	if ti < 0 {
		return nil, fmt.Errorf("to %q: %w", to, ErrUnknownVersion)
	}
	if ti < fi {
		return nil, fmt.Errorf("cannot describe downgrade from %q to %q", from, to)
	}
	var out []Rename
	for _, v := range r.known[fi+1 : ti+1] {
		if p, ok := r.plans[v]; ok {
			out = append(out, p.renames...)
		}
	}
	return out, nil
}

// PathAt follows path through every rename up to and including target and returns
// where a value written under path lives at target. Renames of an ancestor object
// carry the rest of the path along.
func (r *Registry) PathAt(path, target string) (string, error) {
	renames, err := r.renamesThrough(target)
	if err != nil {
		return "", err
	}
	for _, rn := range renames {
		path = movePath(path, rn.From, rn.To)
	}
	return path, nil
}

// LegacyPath undoes the renames up to target in reverse and returns where a value
// found under path at target was written before them.
func (r *Registry) LegacyPath(path, target string) (string, error) {
	renames, err := r.renamesThrough(target)
	if err != nil {
		return "", err
	}
	for i := len(renames) - 1; i >= 0; i-- {
		path = movePath(path, renames[i].To, renames[i].From)
	}
	return path, nil
}

func (r *Registry) renamesThrough(target string) ([]Rename, error) {
	ti := slices.Index(r.known, target)
	if ti < 0 {
		return nil, fmt.Errorf("target %q: %w", target, ErrUnknownVersion)
	}
	var out []Rename
	for _, v := range r.known[:ti+1] {
		if p, ok := r.plans[v]; ok {
			out = append(out, p.renames...)
		}
	}
	return out, nil
}

func movePath(path, from, to string) string {
	if path == from {
		return to
	}
	if rest, ok := strings.CutPrefix(path, from+"."); ok {
		return to + "." + rest
	}
	return path
}
