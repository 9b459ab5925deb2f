package terminal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/formflow/internal/domain"
)

// ParseInput turns a typed line into a response for delivery. Simple forms
// take a button number; custom forms take "id=value" pairs separated by
// spaces; "back" or an empty line closes the form.
func ParseInput(delivery domain.Delivery, line string) (domain.Response, error) {
	resp := domain.Response{Frame: delivery.Frame}
	line = strings.TrimSpace(line)
	if line == "" || strings.EqualFold(line, "back") {
		resp.Closed = true
		return resp, nil
	}

	f := delivery.Form
	if f == nil {
		return resp, fmt.Errorf("parse input: no form on screen")
	}

	if len(f.Buttons) > 0 {
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(f.Buttons) {
			return resp, fmt.Errorf("parse input: choose 1-%d", len(f.Buttons))
		}
		resp.Button = f.Buttons[n-1].ID
		return resp, nil
	}

	resp.Values = make(map[string]any, len(f.Components))
	for _, field := range strings.Fields(line) {
		id, raw, ok := strings.Cut(field, "=")
		if !ok {
			return resp, fmt.Errorf("parse input: %q is not id=value", field)
		}
		component, found := componentByID(f, id)
		if !found {
			return resp, fmt.Errorf("parse input: unknown field %q", id)
		}
		value, err := parseValue(component, raw)
		if err != nil {
			return resp, fmt.Errorf("parse input: field %q: %w", id, err)
		}
		resp.Values[id] = value
	}
	return resp, nil
}

func componentByID(f *domain.Form, id string) (domain.Component, bool) {
	for _, c := range f.Components {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Component{}, false
}

func parseValue(c domain.Component, raw string) (any, error) {
	switch c.Kind {
	case domain.ComponentToggle:
		return strconv.ParseBool(raw)
	case domain.ComponentSlider:
		return strconv.ParseFloat(raw, 64)
	case domain.ComponentDropdown:
		for i, option := range c.Options {
			if strings.EqualFold(option, raw) {
				return i, nil
			}
		}
		return strconv.Atoi(raw)
	default:
		return raw, nil
	}
}
