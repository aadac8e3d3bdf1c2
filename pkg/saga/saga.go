// Package saga runs a sequence of steps and undoes the completed ones when a
// later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
)

// Step is one unit of work. Compensate is optional and only runs for steps
// whose Execute succeeded.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Error reports which step failed. It unwraps to the step's error so callers
// can keep matching on it with errors.Is and errors.As.
type Error struct {
	Saga  string
	Step  string
	Index int
	Err   error
	// Compensation joins every compensation failure, nil if all succeeded.
	Compensation error
}

func (e *Error) Error() string {
	if e.Compensation != nil {
		return fmt.Sprintf("saga %s: step %q failed: %v (compensation failed: %v)", e.Saga, e.Step, e.Err, e.Compensation)
	}
	return fmt.Sprintf("saga %s: step %q failed: %v", e.Saga, e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Saga is an ordered list of steps.
type Saga struct {
	name  string
	steps []Step
}

func New(name string) *Saga {
	return &Saga{name: name}
}

// AddStep appends a step and returns the saga for chaining.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs the steps in order. On the first failure the completed steps
// are compensated in reverse order and an *Error is returned.
func (s *Saga) Execute(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step.Execute(ctx); err != nil {
			return &Error{
				Saga:         s.name,
				Step:         step.Name,
				Index:        i,
				Err:          err,
				Compensation: s.compensate(ctx, i),
			}
		}
	}
	return nil
}

// compensate undoes steps [0, failed) from last to first.
func (s *Saga) compensate(ctx context.Context, failed int) error {
	var errs []error
	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate %q: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
