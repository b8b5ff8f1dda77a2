package scenario

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrEmptyScenario wraps ErrNotFound: a scenario without nodes is not playable.
	ErrEmptyScenario = fmt.Errorf("%w: scenario has no decision nodes", ErrNotFound)
	ErrInvalidState  = errors.New("attempt already complete")
	ErrInvalidGraph  = errors.New("invalid decision graph")
	ErrScenarioInUse = errors.New("scenario has attempts and cannot be replaced")

	// ErrStaleAttempt is returned by stores when the attempt changed between
	// read and write. The engine re-evaluates once before surfacing it.
	ErrStaleAttempt = errors.New("attempt modified concurrently")
)

func notFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}

func invalidGraph(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidGraph, fmt.Sprintf(format, args...))
}
