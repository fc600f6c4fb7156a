package entity

import (
	"encoding/json"
	"fmt"
)

// StepKind is the wire name of a test step.
type StepKind string

const (
	StepNavigate StepKind = "navigate"
	StepClick    StepKind = "click"
	StepType     StepKind = "type"
	StepWait     StepKind = "wait"
	StepAssert   StepKind = "assert"
)

// Step is one instruction of a test case. The set of implementations is closed.
type Step interface {
	Kind() StepKind
	Meta() StepMeta
	isStep()
}

// StepMeta carries the human-readable parts shared by every step.
type StepMeta struct {
	Description string
	Expected    string
}

func (m StepMeta) Meta() StepMeta { return m }

// NavigateStep loads URL in the page.
type NavigateStep struct {
	StepMeta
	URL string
}

// ClickStep clicks the first element matching Selector.
type ClickStep struct {
	StepMeta
	Selector string
}

// TypeStep replaces the value of the input matching Selector with Text.
type TypeStep struct {
	StepMeta
	Selector string
	Text     string
}

// WaitStep pauses for Value milliseconds. Value is kept raw; the executor
// substitutes a default when it does not parse.
type WaitStep struct {
	StepMeta
	Value string
}

// AssertStep passes when an element matching Selector becomes visible.
type AssertStep struct {
	StepMeta
	Selector string
}

// UnknownStep holds a persisted step whose type is not recognised.
type UnknownStep struct {
	StepMeta
	Type     string
	Selector string
	Value    string
}

func (NavigateStep) Kind() StepKind  { return StepNavigate }
func (ClickStep) Kind() StepKind     { return StepClick }
func (TypeStep) Kind() StepKind      { return StepType }
func (WaitStep) Kind() StepKind      { return StepWait }
func (AssertStep) Kind() StepKind    { return StepAssert }
func (s UnknownStep) Kind() StepKind { return StepKind(s.Type) }

func (NavigateStep) isStep() {}
func (ClickStep) isStep()    {}
func (TypeStep) isStep()     {}
func (WaitStep) isStep()     {}
func (AssertStep) isStep()   {}
func (UnknownStep) isStep()  {}

// StepJSON is the persisted and AI-facing shape of a step.
type StepJSON struct {
	Type        string `json:"type" validate:"required,oneof=navigate click type wait assert"`
	Selector    string `json:"selector,omitempty" validate:"required_if=Type click,required_if=Type type,required_if=Type assert"`
	Value       string `json:"value,omitempty" validate:"required_if=Type navigate,required_if=Type type"`
	Description string `json:"description" validate:"required"`
	Expected    string `json:"expected,omitempty"`
}

// ToStep converts the wire shape into a typed step.
func (j StepJSON) ToStep() Step {
	meta := StepMeta{Description: j.Description, Expected: j.Expected}
	switch StepKind(j.Type) {
	case StepNavigate:
		return NavigateStep{StepMeta: meta, URL: j.Value}
	case StepClick:
		return ClickStep{StepMeta: meta, Selector: j.Selector}
	case StepType:
		return TypeStep{StepMeta: meta, Selector: j.Selector, Text: j.Value}
	case StepWait:
		return WaitStep{StepMeta: meta, Value: j.Value}
	case StepAssert:
		return AssertStep{StepMeta: meta, Selector: j.Selector}
	default:
		return UnknownStep{StepMeta: meta, Type: j.Type, Selector: j.Selector, Value: j.Value}
	}
}

// StepToJSON converts a typed step into its wire shape.
func StepToJSON(s Step) StepJSON {
	m := s.Meta()
	j := StepJSON{Type: string(s.Kind()), Description: m.Description, Expected: m.Expected}
	switch v := s.(type) {
	case NavigateStep:
		j.Value = v.URL
	case ClickStep:
		j.Selector = v.Selector
	case TypeStep:
		j.Selector, j.Value = v.Selector, v.Text
	case WaitStep:
		j.Value = v.Value
	case AssertStep:
		j.Selector = v.Selector
	case UnknownStep:
		j.Selector, j.Value = v.Selector, v.Value
	}
	return j
}

// Steps is an ordered step sequence that serialises as a JSON array.
type Steps []Step

func (s Steps) MarshalJSON() ([]byte, error) {
	out := make([]StepJSON, len(s))
	for i, step := range s {
		if step == nil {
			return nil, fmt.Errorf("step %d is nil", i)
		}
		out[i] = StepToJSON(step)
	}
	return json.Marshal(out)
}

func (s *Steps) UnmarshalJSON(data []byte) error {
	var raw []StepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	steps := make(Steps, len(raw))
	for i, j := range raw {
		steps[i] = j.ToStep()
	}
	*s = steps
	return nil
}
