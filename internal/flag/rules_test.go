package flag

import (
	"encoding/json"
	"testing"

	"github.com/crimson-sun/sentinel/internal/model"
)

func event(id, typ string, payload map[string]any) model.RawEvent {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			panic(err)
		}
		raw = b
	}
	return model.RawEvent{ID: id, Type: typ, Payload: raw}
}

func TestFlagRules(t *testing.T) {
	e := New()

	cases := []struct {
		name     string
		event    model.RawEvent
		flagged  bool
		category string
	}{
		{
			name:     "push to main",
			event:    event("101", "PushEvent", map[string]any{"ref": "refs/heads/main", "size": 5}),
			flagged:  true,
			category: CategoryPushDefault,
		},
		{
			name:     "push to master",
			event:    event("101", "PushEvent", map[string]any{"ref": "refs/heads/master", "size": 1}),
			flagged:  true,
			category: CategoryPushDefault,
		},
		{
			name:    "push to feature branch",
			event:   event("101", "PushEvent", map[string]any{"ref": "refs/heads/feature-x", "size": 5}),
			flagged: false,
		},
		{
			name:     "large push overrides plain push",
			event:    event("101", "PushEvent", map[string]any{"ref": "refs/heads/main", "size": 150}),
			flagged:  true,
			category: CategoryLargePushDefault,
		},
		{
			name:     "push at threshold stays plain",
			event:    event("101", "PushEvent", map[string]any{"ref": "refs/heads/main", "size": 100}),
			flagged:  true,
			category: CategoryPushDefault,
		},
		{
			name:     "default branch deleted",
			event:    event("101", "DeleteEvent", map[string]any{"ref_type": "branch", "ref": "main"}),
			flagged:  true,
			category: CategoryBranchDeleted,
		},
		{
			name:    "tag delete not flagged",
			event:   event("101", "DeleteEvent", map[string]any{"ref_type": "tag", "ref": "main"}),
			flagged: false,
		},
		{
			name:    "non-default branch delete not flagged",
			event:   event("101", "DeleteEvent", map[string]any{"ref_type": "branch", "ref": "dev"}),
			flagged: false,
		},
		{
			name:     "repository made public",
			event:    event("101", "PublicEvent", nil),
			flagged:  true,
			category: CategoryMadePublic,
		},
		{
			name:     "collaborator added",
			event:    event("101", "MemberEvent", map[string]any{"action": "added"}),
			flagged:  true,
			category: CategoryCollaborator,
		},
		{
			name:    "collaborator removed not flagged",
			event:   event("101", "MemberEvent", map[string]any{"action": "removed"}),
			flagged: false,
		},
		{
			name:    "unknown type not flagged",
			event:   event("101", "WatchEvent", nil),
			flagged: false,
		},
		{
			name:     "sampling rule flags otherwise boring event",
			event:    event("30", "WatchEvent", nil),
			flagged:  true,
			category: CategoryDummy,
		},
		{
			name:     "sampling rule overrides genuine category",
			event:    event("45", "PublicEvent", nil),
			flagged:  true,
			category: CategoryDummy,
		},
		{
			name:    "malformed payload matches no rule",
			event:   model.RawEvent{ID: "101", Type: "PushEvent", Payload: json.RawMessage(`{"ref":`)},
			flagged: false,
		},
		{
			name:    "non-numeric ID skips sampling",
			event:   event("not-a-number", "WatchEvent", nil),
			flagged: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := e.Flag(c.event)
			if got.Flagged != c.flagged {
				t.Fatalf("Flagged = %v, want %v", got.Flagged, c.flagged)
			}
			if c.flagged && got.Category != c.category {
				t.Fatalf("Category = %q, want %q", got.Category, c.category)
			}
		})
	}
}

func TestFlagDeterministic(t *testing.T) {
	e := New()
	ev := event("101", "PushEvent", map[string]any{"ref": "refs/heads/main", "size": 5})
	first := e.Flag(ev)
	for i := 0; i < 10; i++ {
		if got := e.Flag(ev); got != first {
			t.Fatalf("call %d: got %+v, want %+v", i, got, first)
		}
	}
}

func TestFlagSamplingDisabled(t *testing.T) {
	e := New(WithSamplingDivisor(0))
	if got := e.Flag(event("30", "WatchEvent", nil)); got.Flagged {
		t.Fatalf("expected unflagged with sampling disabled, got %+v", got)
	}
	// Genuine categories survive when sampling is off.
	got := e.Flag(event("45", "PublicEvent", nil))
	if !got.Flagged || got.Category != CategoryMadePublic {
		t.Fatalf("expected %q, got %+v", CategoryMadePublic, got)
	}
}

func TestFlagCustomThreshold(t *testing.T) {
	e := New(WithLargePushThreshold(10), WithSamplingDivisor(0))
	got := e.Flag(event("7", "PushEvent", map[string]any{"ref": "refs/heads/main", "size": 11}))
	if got.Category != CategoryLargePushDefault {
		t.Fatalf("expected %q, got %q", CategoryLargePushDefault, got.Category)
	}
}
