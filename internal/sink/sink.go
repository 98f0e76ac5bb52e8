// Package sink defines optional notification destinations for newly
// accepted warnings. Sinks sit outside the delivery path: a sink failure
// is logged by the caller and never fails a poll cycle.
package sink

import (
	"context"

	"github.com/crimson-sun/sentinel/internal/model"
)

// Sink receives each cycle's batch of newly accepted warnings.
type Sink interface {
	Publish(ctx context.Context, warnings []model.Warning) error
	Close() error
}

// Multi fans a batch out to several sinks, returning the first error
// after attempting all of them.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a Multi over the given sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Publish(ctx context.Context, warnings []model.Warning) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, warnings); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Multi) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
