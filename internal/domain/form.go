package domain

import "time"

type FormKind string

const (
	FormKindSimple FormKind = "simple"
	FormKindModal  FormKind = "modal"
	FormKindCustom FormKind = "custom"
)

type ComponentKind string

const (
	ComponentInput    ComponentKind = "input"
	ComponentToggle   ComponentKind = "toggle"
	ComponentDropdown ComponentKind = "dropdown"
	ComponentSlider   ComponentKind = "slider"
	ComponentLabel    ComponentKind = "label"
)

type Button struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Image string `json:"image,omitempty"`
}

type Component struct {
	ID          string        `json:"id"`
	Kind        ComponentKind `json:"kind"`
	Label       string        `json:"label"`
	Placeholder string        `json:"placeholder,omitempty"`
	Default     any           `json:"default,omitempty"`
	Options     []string      `json:"options,omitempty"`
	Min         float64       `json:"min,omitempty"`
	Max         float64       `json:"max,omitempty"`
}

// Form is the built artifact handed to a Sender. Callers share *Form values
// coming out of the artifact cache and must treat them as read-only.
type Form struct {
	Kind        FormKind    `json:"kind"`
	Title       string      `json:"title"`
	Content     string      `json:"content,omitempty"`
	Buttons     []Button    `json:"buttons,omitempty"`
	Components  []Component `json:"components,omitempty"`
	Fingerprint string      `json:"fingerprint,omitempty"`
	BuiltAt     time.Time   `json:"built_at"`
}

func (f *Form) ButtonIndex(id string) int {
	if f == nil {
		return -1
	}
	for i, button := range f.Buttons {
		if button.ID == id {
			return i
		}
	}
	return -1
}

type Response struct {
	Frame  uint64         `json:"frame,omitempty"`
	Closed bool           `json:"closed,omitempty"`
	Button string         `json:"button,omitempty"`
	Values map[string]any `json:"values,omitempty"`
}

func (r Response) Value(id string) any {
	if r.Values == nil {
		return nil
	}
	return r.Values[id]
}

func (r Response) Text(id string) string {
	value, _ := r.Value(id).(string)
	return value
}

type Delivery struct {
	Session SessionID `json:"session"`
	Frame   uint64    `json:"frame"`
	Form    *Form     `json:"form"`
}
