package liveview

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xaenox/shieldbot/internal/models"
	"github.com/xaenox/shieldbot/internal/storage"
)

// Kind names a view over one receiver's messages.
type Kind string

const (
	KindInbox   Kind = "inbox"
	KindFlagged Kind = "flagged"
)

// ParseKind accepts a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindInbox, KindFlagged:
		return k, nil
	}
	return "", fmt.Errorf("unknown view kind %q", s)
}

// Level is the risk level a message must carry to be listed in the view.
func (k Kind) Level() models.RiskLevel {
	if k == KindFlagged {
		return models.RiskDangerous
	}
	return models.RiskSafe
}

// Predicate decides view membership.
type Predicate func(*models.Message) bool

// Predicate returns the membership test for the kind.
func (k Kind) Predicate() Predicate {
	level := k.Level()
	return func(m *models.Message) bool {
		return m.RiskLevel == level
	}
}

// State is what a view renders: its members newest first and the ids of
// messages still awaiting a verdict.
type State struct {
	Messages  []*models.Message   `json:"messages"`
	Analyzing map[string]struct{} `json:"-"`
}

// IsAnalyzing reports whether any message in the partition is pending.
func (s State) IsAnalyzing() bool {
	return len(s.Analyzing) > 0
}

// Contains reports whether the message id is a member.
func (s State) Contains(id string) bool {
	return s.indexOf(id) >= 0
}

func (s State) indexOf(id string) int {
	for i, m := range s.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s State) clone() State {
	c := State{
		Messages:  make([]*models.Message, len(s.Messages)),
		Analyzing: make(map[string]struct{}, len(s.Analyzing)),
	}
	copy(c.Messages, s.Messages)
	for id := range s.Analyzing {
		c.Analyzing[id] = struct{}{}
	}
	return c
}

// Reconcile applies one change event to a view state and returns the new
// state. The input state is not modified.
//
// Pending inserts only raise the analyzing indicator. Messages join the view
// once they carry a verdict that satisfies pred, are replaced in place while
// they still do, and leave when they stop matching or are deleted.
func Reconcile(state State, ev storage.ChangeEvent, pred Predicate) State {
	next := state.clone()
	m := ev.Message
	if m == nil {
		return next
	}

	idx := next.indexOf(m.ID)
	remove := func() {
		if idx >= 0 {
			next.Messages = append(next.Messages[:idx], next.Messages[idx+1:]...)
		}
	}

	switch ev.Type {
	case storage.EventDelete:
		delete(next.Analyzing, m.ID)
		remove()
		return next
	case storage.EventInsert, storage.EventUpdate:
		if m.RiskLevel == models.RiskPending {
			if ev.Type == storage.EventInsert {
				next.Analyzing[m.ID] = struct{}{}
			}
			return next
		}
		delete(next.Analyzing, m.ID)
	default:
		return next
	}

	switch {
	case pred(m) && idx >= 0:
		next.Messages[idx] = m
	case pred(m):
		next.Messages = insertNewestFirst(next.Messages, m)
	default:
		remove()
	}
	return next
}

func insertNewestFirst(list []*models.Message, m *models.Message) []*models.Message {
	i := sort.Search(len(list), func(i int) bool {
		return !list[i].SentAt.After(m.SentAt)
	})
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = m
	return list
}
