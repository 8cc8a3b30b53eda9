package ui

import (
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
)

type formID int

const (
	formCredentials formID = iota
	formCode
	formSecondFactor
	formSetup
)

type formField struct {
	label string
	input textinput.Model
}

// FormModel is a vertical stack of labelled text inputs. Enter moves to the
// next field and submits from the last one.
type FormModel struct {
	id     formID
	title  string
	hint   string
	err    string
	fields []formField
	focus  int
}

func newField(label, placeholder, value string, secret bool) formField {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = placeholder
	ti.CharLimit = 256
	ti.SetValue(value)
	if secret {
		ti.EchoMode = textinput.EchoPassword
	}
	return formField{label: label, input: ti}
}

func NewFormModel(id formID, title, hint string, fields ...formField) FormModel {
	f := FormModel{id: id, title: title, hint: hint, fields: fields}
	if len(f.fields) > 0 {
		f.fields[0].input.Focus()
	}
	return f
}

func (f FormModel) Update(msg tea.Msg) (FormModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			if f.focus == len(f.fields)-1 {
				values := f.Values()
				id := f.id
				return f, func() tea.Msg { return formSubmittedMsg{id: id, values: values} }
			}
			return f.move(1), nil
		case "down", "tab":
			return f.move(1), nil
		case "up", "shift+tab":
			return f.move(-1), nil
		}
	}

	var cmd tea.Cmd
	f.fields[f.focus].input, cmd = f.fields[f.focus].input.Update(msg)
	return f, cmd
}

func (f FormModel) move(delta int) FormModel {
	f.fields[f.focus].input.Blur()
	f.focus = (f.focus + delta + len(f.fields)) % len(f.fields)
	f.fields[f.focus].input.Focus()
	return f
}

// Values returns the trimmed text of every field in order.
func (f FormModel) Values() []string {
	out := make([]string, len(f.fields))
	for i, fl := range f.fields {
		out[i] = strings.TrimSpace(fl.input.Value())
	}
	return out
}

func (f FormModel) SetError(msg string) FormModel {
	f.err = msg
	return f
}

func (f FormModel) SetHint(hint string) FormModel {
	f.hint = hint
	return f
}

func (f FormModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(f.title))
	b.WriteString("\n\n")
	for i, fl := range f.fields {
		label := labelStyle.Render(fl.label)
		if i == f.focus {
			label = activeLabel.Render(fl.label)
		}
		b.WriteString(label + fl.input.View() + "\n")
	}
	if f.err != "" {
		b.WriteString("\n" + errStyle.Render(f.err) + "\n")
	}
	if f.hint != "" {
		b.WriteString("\n" + hintStyle.Render(f.hint))
	}
	return b.String()
}
