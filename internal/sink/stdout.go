package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/crimson-sun/sentinel/internal/model"
)

// Stdout writes warnings as NDJSON, one object per line. Intended for
// piping into other tools while developing rule changes.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a stdout sink.
func NewStdout() *Stdout {
	return newStdout(os.Stdout)
}

func newStdout(w io.Writer) *Stdout {
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Publish(_ context.Context, warnings []model.Warning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range warnings {
		if err := s.enc.Encode(w); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stdout) Close() error { return nil }
