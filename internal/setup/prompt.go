package setup

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"fbpages/internal/config"
)

type inputField struct {
	input   textinput.Model
	focused bool
}

func newInputField(placeholder string, echo textinput.EchoMode) *inputField {
	in := textinput.New()
	in.Placeholder = placeholder
	in.EchoMode = echo
	if echo == textinput.EchoPassword {
		in.EchoCharacter = '•'
	}
	return &inputField{input: in}
}

func (f *inputField) focus() tea.Cmd {
	f.focused = true
	f.input.Focus()
	return nil
}

func (f *inputField) blur() {
	f.focused = false
	f.input.Blur()
}

func (f *inputField) value() string { return strings.TrimSpace(f.input.Value()) }

func (f *inputField) setValue(v string) { f.input.SetValue(v) }

func (f *inputField) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	return cmd
}

// inputGroup moves focus through a fixed list of fields.
type inputGroup struct {
	fields  []*inputField
	current int
}

func newInputGroup(fields ...*inputField) *inputGroup {
	return &inputGroup{fields: fields}
}

func (g *inputGroup) focusFirst() tea.Cmd {
	for _, f := range g.fields {
		f.blur()
	}
	g.current = 0
	return g.fields[0].focus()
}

// next focuses the following field and reports false when none is left.
func (g *inputGroup) next() bool {
	if g.current >= len(g.fields)-1 {
		return false
	}
	g.fields[g.current].blur()
	g.current++
	g.fields[g.current].focus()
	return true
}

func (g *inputGroup) prev() {
	if g.current == 0 {
		return
	}
	g.fields[g.current].blur()
	g.current--
	g.fields[g.current].focus()
}

func (g *inputGroup) values() []string {
	out := make([]string, len(g.fields))
	for i, f := range g.fields {
		out[i] = f.value()
	}
	return out
}

type credentialsModel struct {
	token     *inputField
	pageID    *inputField
	group     *inputGroup
	errMsg    string
	done      bool
	cancelled bool
}

func newCredentialsModel(current config.Credentials) *credentialsModel {
	token := newInputField("long-lived page access token", textinput.EchoPassword)
	page := newInputField("numeric page id, e.g. 1122334455", textinput.EchoNormal)
	if current.AccessToken != "" && current.AccessToken != config.AccessTokenPlaceholder {
		token.setValue(current.AccessToken)
	}
	if current.PageID != "" && current.PageID != config.PageIDPlaceholder {
		page.setValue(current.PageID)
	}
	m := &credentialsModel{token: token, pageID: page, group: newInputGroup(token, page)}
	m.group.focusFirst()
	return m
}

func (m *credentialsModel) Init() tea.Cmd { return textinput.Blink }

func (m *credentialsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.cancelled = true
		return m, tea.Quit
	case tea.KeyShiftTab, tea.KeyUp:
		m.group.prev()
		return m, nil
	case tea.KeyTab, tea.KeyDown:
		m.group.next()
		return m, nil
	case tea.KeyEnter:
		if m.group.fields[m.group.current].value() == "" {
			m.errMsg = "This field is required."
			return m, nil
		}
		m.errMsg = ""
		if m.group.next() {
			return m, nil
		}
		if m.token.value() == "" {
			m.group.focusFirst()
			m.errMsg = "The access token is required."
			return m, nil
		}
		m.done = true
		return m, tea.Quit
	}
	return m, m.group.fields[m.group.current].update(msg)
}

func (m *credentialsModel) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "Facebook credentials")
	fmt.Fprintln(b, "The token is stored in secrets.toml and never printed.")
	fmt.Fprintln(b)
	fmt.Fprintln(b, "Access token")
	fmt.Fprintln(b, m.token.input.View())
	fmt.Fprintln(b, "Page id")
	fmt.Fprintln(b, m.pageID.input.View())
	if m.errMsg != "" {
		fmt.Fprintf(b, "\n%s\n", m.errMsg)
	}
	fmt.Fprintln(b, "\nEnter to continue · Tab to switch field · Esc to cancel")
	return b.String()
}

func (m *credentialsModel) credentials() config.Credentials {
	v := m.group.values()
	return config.Credentials{AccessToken: v[0], PageID: v[1]}
}

// TerminalPrompt asks for credentials with a bubbletea form.
func TerminalPrompt(current config.Credentials) (config.Credentials, error) {
	res, err := tea.NewProgram(newCredentialsModel(current)).Run()
	if err != nil {
		return config.Credentials{}, err
	}
	m, ok := res.(*credentialsModel)
	if !ok || m.cancelled || !m.done {
		return config.Credentials{}, ErrCancelled
	}
	return m.credentials(), nil
}
