package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fbkclanna/lockscan/internal/request"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
	"github.com/fbkclanna/lockscan/internal/validate"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

var errAborted = errors.New("aborted")

// inputModel reads one line of text. An empty answer takes the default.
type inputModel struct {
	textInput textinput.Model
	title     string
	def       string
	validate  func(string) error
	errMsg    string
	done      bool
	aborted   bool
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) value() string {
	v := strings.TrimSpace(m.textInput.Value())
	if v == "" {
		return m.def
	}
	return v
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		case "enter":
			if m.validate != nil {
				if err := m.validate(m.value()); err != nil {
					m.errMsg = err.Error()
					return m, nil
				}
			}
			m.done = true
			return m, tea.Quit
		}
	}
	m.errMsg = ""
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title) + "\n")
	b.WriteString(m.textInput.View() + "\n")
	if m.errMsg != "" {
		b.WriteString(errStyle.Render(m.errMsg) + "\n")
	}
	return b.String()
}

// confirmModel is a yes/no question.
type confirmModel struct {
	title   string
	value   bool
	done    bool
	aborted bool
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "esc":
		m.aborted = true
		return m, tea.Quit
	case "enter":
		m.done = true
		return m, tea.Quit
	case "y", "Y":
		m.value = true
		m.done = true
		return m, tea.Quit
	case "n", "N":
		m.value = false
		m.done = true
		return m, tea.Quit
	case "left", "right", "tab", "h", "l":
		m.value = !m.value
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done {
		return ""
	}
	yes, no := " Yes ", " No "
	if m.value {
		yes = selectedStyle.Render(yes)
	} else {
		no = selectedStyle.Render(no)
	}
	return fmt.Sprintf("%s %s / %s\n", titleStyle.Render(m.title), yes, no)
}

// choiceModel picks one entry of a list with the arrow keys.
type choiceModel struct {
	title   string
	choices []string
	cursor  int
	done    bool
	aborted bool
}

func (m choiceModel) Init() tea.Cmd {
	return nil
}

func (m choiceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "esc":
		m.aborted = true
		return m, tea.Quit
	case "enter":
		m.done = true
		return m, tea.Quit
	case "up", "k", "shift+tab":
		m.cursor = (m.cursor + len(m.choices) - 1) % len(m.choices)
	case "down", "j", "tab":
		m.cursor = (m.cursor + 1) % len(m.choices)
	}
	return m, nil
}

func (m choiceModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title) + "\n")
	for i, c := range m.choices {
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> ") + selectedStyle.Render(c) + "\n")
		} else {
			b.WriteString("  " + c + "\n")
		}
	}
	return b.String()
}

func promptInput(title, def string, validate func(string) error) (string, error) {
	ti := textinput.New()
	ti.Placeholder = def
	ti.Focus()

	result, err := tea.NewProgram(inputModel{textInput: ti, title: title, def: def, validate: validate}).Run()
	if err != nil {
		return "", err
	}
	rm := result.(inputModel)
	if rm.aborted {
		return "", errAborted
	}
	return rm.value(), nil
}

func promptConfirm(title string, def bool) (bool, error) {
	result, err := tea.NewProgram(confirmModel{title: title, value: def}).Run()
	if err != nil {
		return false, err
	}
	rm := result.(confirmModel)
	if rm.aborted {
		return false, errAborted
	}
	return rm.value, nil
}

func promptChoice(title string, choices []string) (string, error) {
	result, err := tea.NewProgram(choiceModel{title: title, choices: choices}).Run()
	if err != nil {
		return "", err
	}
	rm := result.(choiceModel)
	if rm.aborted {
		return "", errAborted
	}
	return rm.choices[rm.cursor], nil
}

// packagePathValidator accepts existing directories inside src that do not
// already hold a package of type typ.
func packagePathValidator(src rootedpath.RootedPath, typ request.PackageType, seen map[string]bool) func(string) error {
	return func(s string) error {
		if err := validate.CheckSaneRelpath(s); err != nil {
			return err
		}
		dir, err := src.Join(s)
		if err != nil {
			return err
		}
		if !dir.IsDir() {
			return fmt.Errorf("%s is not a directory", s)
		}
		p := request.Package{Type: typ, Path: cleanPackagePath(s)}
		if seen[p.Key()] {
			return fmt.Errorf("%s is already in the request", p.Key())
		}
		return nil
	}
}

// cleanPackagePath normalises a package path; the source root becomes "".
func cleanPackagePath(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	if p == "." {
		return ""
	}
	return p
}

// interactivePackages asks which detected packages to keep, then lets the
// user add more.
func interactivePackages(src rootedpath.RootedPath, detected []request.Package) ([]request.Package, error) {
	var pkgs []request.Package
	seen := make(map[string]bool)

	for _, p := range detected {
		ok, err := promptConfirm(fmt.Sprintf("Include %s package at %s?", p.Type, p.EffectivePath()), true)
		if err != nil {
			return nil, err
		}
		if ok {
			seen[p.Key()] = true
			pkgs = append(pkgs, p)
		}
	}

	types := make([]string, len(request.Types))
	for i, t := range request.Types {
		types[i] = string(t)
	}

	for {
		more, err := promptConfirm("Add another package?", len(pkgs) == 0)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		typ, err := promptChoice("Package type", types)
		if err != nil {
			return nil, err
		}
		path, err := promptInput("Path inside the source directory", ".", packagePathValidator(src, request.PackageType(typ), seen))
		if err != nil {
			return nil, err
		}
		p := request.Package{Type: request.PackageType(typ), Path: cleanPackagePath(path)}
		seen[p.Key()] = true
		pkgs = append(pkgs, p)
		fmt.Printf("  added %s\n", p.Key())
	}

	if len(pkgs) == 0 {
		return nil, errors.New("no packages selected")
	}
	return pkgs, nil
}
