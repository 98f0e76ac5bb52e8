// Package flag implements the deterministic risk rules applied to each
// upstream event. Classification is a pure function: no I/O, no state
// beyond the engine's configuration.
package flag

import (
	"encoding/json"
	"strconv"

	"github.com/crimson-sun/sentinel/internal/model"
)

// Warning categories, in rule order. Later rules override earlier ones
// when more than one matches the same event.
const (
	CategoryPushDefault      = "Push to default branch"
	CategoryLargePushDefault = "Large push to default branch"
	CategoryBranchDeleted    = "Default branch deleted"
	CategoryMadePublic       = "Repository visibility changed to public"
	CategoryCollaborator     = "New collaborator added"
	CategoryDummy            = "Dummy warning"
)

// Upstream event type names the rules recognize.
const (
	typePush   = "PushEvent"
	typeDelete = "DeleteEvent"
	typePublic = "PublicEvent"
	typeMember = "MemberEvent"
)

// DefaultLargePushThreshold is the commit count above which a default-branch
// push is escalated to a large push.
const DefaultLargePushThreshold = 100

// DefaultSamplingDivisor selects roughly one in fifteen events as a dummy
// warning so downstream consumers always have traffic. It exists for demo
// purposes; pass 0 to disable it.
const DefaultSamplingDivisor = 15

// Result holds the outcome of classifying a single event.
type Result struct {
	Flagged  bool
	Category string
}

// Engine classifies raw events against the fixed rule set.
type Engine struct {
	largePushThreshold int
	samplingDivisor    int64
}

// Option configures Engine behavior.
type Option func(*Engine)

// WithLargePushThreshold overrides the commit count threshold for large pushes.
func WithLargePushThreshold(n int) Option {
	return func(e *Engine) { e.largePushThreshold = n }
}

// WithSamplingDivisor overrides the dummy-warning sampling divisor.
// Zero disables the sampling rule.
func WithSamplingDivisor(n int64) Option {
	return func(e *Engine) { e.samplingDivisor = n }
}

// New creates an Engine with default thresholds.
func New(opts ...Option) *Engine {
	e := &Engine{
		largePushThreshold: DefaultLargePushThreshold,
		samplingDivisor:    DefaultSamplingDivisor,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// payloadFields covers every payload field any rule inspects. Fields absent
// from a given event type simply decode to zero values.
type payloadFields struct {
	Ref     string `json:"ref"`
	RefType string `json:"ref_type"`
	Size    int    `json:"size"`
	Action  string `json:"action"`
}

// Flag classifies one event. Rules are evaluated in a fixed order with the
// last match winning; the sampling rule runs last and overrides all others.
// Malformed payloads are treated as carrying no fields, never as an error.
func (e *Engine) Flag(ev model.RawEvent) Result {
	var p payloadFields
	if len(ev.Payload) > 0 {
		// Ignore decode errors: an unreadable payload just matches no rule.
		json.Unmarshal(ev.Payload, &p)
	}

	result := Result{}

	switch ev.Type {
	case typePush:
		if isDefaultBranchRef(p.Ref) {
			result = Result{Flagged: true, Category: CategoryPushDefault}
			if p.Size > e.largePushThreshold {
				result.Category = CategoryLargePushDefault
			}
		}
	case typeDelete:
		if p.RefType == "branch" && isDefaultBranchName(p.Ref) {
			result = Result{Flagged: true, Category: CategoryBranchDeleted}
		}
	case typePublic:
		result = Result{Flagged: true, Category: CategoryMadePublic}
	case typeMember:
		if p.Action == "added" {
			result = Result{Flagged: true, Category: CategoryCollaborator}
		}
	}

	if e.samplingDivisor > 0 {
		if id, err := strconv.ParseInt(ev.ID, 10, 64); err == nil && id%e.samplingDivisor == 0 {
			result = Result{Flagged: true, Category: CategoryDummy}
		}
	}

	return result
}

// isDefaultBranchRef reports whether a push ref targets a recognized
// default branch.
func isDefaultBranchRef(ref string) bool {
	return ref == "refs/heads/main" || ref == "refs/heads/master"
}

// isDefaultBranchName reports whether a bare branch name (as carried by
// delete events) is a recognized default branch.
func isDefaultBranchName(name string) bool {
	return name == "main" || name == "master"
}
