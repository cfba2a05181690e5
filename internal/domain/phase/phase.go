package phase

import (
	"errors"
	"fmt"
	"strings"
)

// Phase is one named step of the build lifecycle.
type Phase string

const (
	// None marks a workspace where no phase has completed yet.
	None Phase = ""
	// Install sets up build prerequisites and packaging tools.
	Install Phase = "install"
	// Prebuild creates the isolated dependency environment.
	Prebuild Phase = "prebuild"
	// Build checks first-party sources and assembles the archive.
	Build Phase = "build"
	// Postbuild uploads the archive, parameter document and template.
	Postbuild Phase = "postbuild"
)

var (
	// ErrUnknown is returned by Parse for names outside the recognized set.
	ErrUnknown = errors.New("unknown phase")
	// ErrOutOfOrder is returned by CanFollow when a phase would skip ahead.
	ErrOutOfOrder = errors.New("phase out of order")
)

// All returns the phases in pipeline order.
func All() []Phase {
	return []Phase{Install, Prebuild, Build, Postbuild}
}

// Names returns the phase names in pipeline order.
func Names() []string {
	all := All()
	names := make([]string, 0, len(all))

	for _, p := range all {
		names = append(names, string(p))
	}

	return names
}

// Parse matches s against the recognized phase names, case-sensitively.
func Parse(s string) (Phase, error) {
	for _, p := range All() {
		if string(p) == s {
			return p, nil
		}
	}

	return None, fmt.Errorf("%q: %w (expected one of %s)", s, ErrUnknown, strings.Join(Names(), ", "))
}

// Index returns the position of p in the pipeline, or -1 for None and unknown values.
func (p Phase) Index() int {
	for i, candidate := range All() {
		if candidate == p {
			return i
		}
	}

	return -1
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	if p == None {
		return "none"
	}

	return string(p)
}

// CanFollow reports whether p may run after last completed.
// Re-running a phase or going back to an earlier one is allowed,
// skipping ahead is not.
func (p Phase) CanFollow(last Phase) error {
	next := p.Index()
	if next < 0 {
		return fmt.Errorf("%q: %w", string(p), ErrUnknown)
	}

	if next <= last.Index()+1 {
		return nil
	}

	return fmt.Errorf("%s after %s: %w", p, last, ErrOutOfOrder)
}
