// Package catalog holds action templates grouped into named action sets,
// loads them from data files and keeps them current when files change.
package catalog

import (
	"fmt"
	"math"
	"strings"

	"github.com/jllopis/arbiter/pkg/lod"
)

// DefaultPriority applies when a template declares no priority.
const DefaultPriority = 1.0

// ConsiderationSpec describes one scoring factor of a template.
type ConsiderationSpec struct {
	Consideration string  `json:"consideration" yaml:"consideration"`
	Curve         string  `json:"curve" yaml:"curve"`
	Min           float64 `json:"min" yaml:"min"`
	Max           float64 `json:"max" yaml:"max"`
}

// Template is an immutable action descriptor.
type Template struct {
	Name           string              `json:"name" yaml:"name"`
	ContextFetcher string              `json:"context_fetcher" yaml:"context_fetcher"`
	Considerations []ConsiderationSpec `json:"considerations,omitempty" yaml:"considerations,omitempty"`
	Priority       float64             `json:"priority,omitempty" yaml:"priority,omitempty"`
	ActionKey      string              `json:"action_key" yaml:"action_key"`
	LODMin         *lod.Level          `json:"lod_min,omitempty" yaml:"lod_min,omitempty"`
	LODMax         *lod.Level          `json:"lod_max,omitempty" yaml:"lod_max,omitempty"`
}

// Identity is the equality key of a template: name plus execution key.
type Identity struct {
	Name      string
	ActionKey string
}

// Identity returns the template's equality key.
func (t Template) Identity() Identity {
	return Identity{Name: t.Name, ActionKey: t.ActionKey}
}

// Equal reports whether two templates share name and action key.
func (t Template) Equal(o Template) bool {
	return t.Identity() == o.Identity()
}

// Band returns the template's level-of-detail eligibility band.
func (t Template) Band() lod.Band {
	return lod.Band{Min: t.LODMin, Max: t.LODMax}
}

// Validate checks the template and fills defaults. A zero priority becomes
// DefaultPriority. Inverted consideration bounds are accepted here and
// corrected when scoring.
func (t *Template) Validate() error {
	if t == nil {
		return fmt.Errorf("template is nil")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	if strings.TrimSpace(t.ActionKey) == "" {
		return fmt.Errorf("template %q missing action_key", t.Name)
	}
	if strings.TrimSpace(t.ContextFetcher) == "" {
		return fmt.Errorf("template %q missing context_fetcher", t.Name)
	}
	if t.Priority == 0 {
		t.Priority = DefaultPriority
	}
	if t.Priority < 0 || math.IsNaN(t.Priority) || math.IsInf(t.Priority, 0) {
		return fmt.Errorf("template %q priority must be a positive finite number, got %v", t.Name, t.Priority)
	}
	for i, c := range t.Considerations {
		if strings.TrimSpace(c.Consideration) == "" {
			return fmt.Errorf("template %q consideration %d missing consideration key", t.Name, i)
		}
		if strings.TrimSpace(c.Curve) == "" {
			return fmt.Errorf("template %q consideration %q missing curve", t.Name, c.Consideration)
		}
		if math.IsNaN(c.Min) || math.IsNaN(c.Max) {
			return fmt.Errorf("template %q consideration %q has NaN bounds", t.Name, c.Consideration)
		}
	}
	if err := t.Band().Validate(); err != nil {
		return fmt.Errorf("template %q: %w", t.Name, err)
	}
	return nil
}

// ActionSet is a named, optionally versioned group of templates. Agents
// reference action sets as their behavior sources.
type ActionSet struct {
	Name    string     `json:"name" yaml:"name"`
	Version string     `json:"version,omitempty" yaml:"version,omitempty"`
	Actions []Template `json:"actions" yaml:"actions"`
}

// Validate ensures the set and each of its templates are well-formed.
func (s *ActionSet) Validate() error {
	if s == nil {
		return fmt.Errorf("action set is nil")
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("action set name is required")
	}
	seen := make(map[string]struct{}, len(s.Actions))
	for i := range s.Actions {
		if err := s.Actions[i].Validate(); err != nil {
			return fmt.Errorf("action set %q: %w", s.Name, err)
		}
		name := s.Actions[i].Name
		if _, dup := seen[name]; dup {
			return fmt.Errorf("action set %q: duplicate template %q", s.Name, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func (s ActionSet) clone() ActionSet {
	out := s
	out.Actions = make([]Template, len(s.Actions))
	for i, t := range s.Actions {
		t.Considerations = append([]ConsiderationSpec(nil), t.Considerations...)
		out.Actions[i] = t
	}
	return out
}
