package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/incident-bridge/errors"
	"github.com/wippyai/incident-bridge/internal/app"
	"github.com/wippyai/incident-bridge/runtime"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#C2410C")).
			Padding(0, 1)

	opStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#C2410C"))

	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type screen int

const (
	screenOperations screen = iota
	screenArguments
	screenResult
)

type console struct {
	app      *app.App
	err      error
	result   string
	ops      []*runtime.Signature
	inputs   []textinput.Model
	history  []string
	selected int
	focus    int
	screen   screen
}

type invokedMsg struct {
	err    error
	result string
}

func newConsole(a *app.App) *console {
	return &console{app: a, ops: a.Incidents.Operations()}
}

func (c *console) Init() tea.Cmd {
	return nil
}

func (c *console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return c, tea.Quit

		case "q":
			if c.screen != screenArguments {
				return c, tea.Quit
			}

		case "up", "k":
			if c.screen == screenOperations && c.selected > 0 {
				c.selected--
			}

		case "down", "j":
			if c.screen == screenOperations && c.selected < len(c.ops)-1 {
				c.selected++
			}

		case "enter":
			switch c.screen {
			case screenOperations:
				c.openArguments()
				return c, nil
			case screenArguments:
				return c, c.invoke(c.ops[c.selected], c.values())
			case screenResult:
				c.screen = screenOperations
			}

		case "tab", "shift+tab":
			if c.screen == screenArguments && len(c.inputs) > 1 {
				step := 1
				if msg.String() == "shift+tab" {
					step = len(c.inputs) - 1
				}
				c.inputs[c.focus].Blur()
				c.focus = (c.focus + step) % len(c.inputs)
				c.inputs[c.focus].Focus()
			}

		case "esc":
			c.screen = screenOperations
			c.inputs = nil
		}

	case invokedMsg:
		c.result, c.err = msg.result, msg.err
		c.screen = screenResult
		c.record(msg)
	}

	if c.screen == screenArguments {
		cmds := make([]tea.Cmd, len(c.inputs))
		for i := range c.inputs {
			c.inputs[i], cmds[i] = c.inputs[i].Update(msg)
		}
		return c, tea.Batch(cmds...)
	}
	return c, nil
}

func (c *console) openArguments() {
	sig := c.ops[c.selected]
	c.inputs = make([]textinput.Model, len(sig.ParamNames))
	for i, name := range sig.ParamNames {
		ti := textinput.New()
		ti.Prompt = name + ": "
		ti.Placeholder = "string"
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		c.inputs[i] = ti
	}
	c.focus = 0
	c.screen = screenArguments
}

func (c *console) values() []string {
	out := make([]string, len(c.inputs))
	for i, in := range c.inputs {
		out[i] = in.Value()
	}
	return out
}

func (c *console) invoke(sig *runtime.Signature, args []string) tea.Cmd {
	return func() tea.Msg {
		result, err := c.app.Incidents.Invoke(context.Background(), sig, args...)
		return invokedMsg{result: result, err: err}
	}
}

func (c *console) record(msg invokedMsg) {
	line := c.ops[c.selected].Operation + " -> "
	if msg.err != nil {
		line += "error " + string(errors.KindOf(msg.err))
	} else {
		line += msg.result
	}
	c.history = append(c.history, line)
	if len(c.history) > 5 {
		c.history = c.history[1:]
	}
}

func (c *console) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Incident Bridge"))
	b.WriteString(" ")
	b.WriteString(kindStyle.Render(fmt.Sprintf("api %s, %d attached", runtime.APIVersion, c.app.Loader.Handle().Attached())))
	b.WriteString("\n\n")

	switch c.screen {
	case screenOperations:
		b.WriteString("Select an operation:\n\n")
		for i, sig := range c.ops {
			line := formatOperation(sig)
			if i == c.selected {
				b.WriteString(cursorStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		if len(c.history) > 0 {
			b.WriteString("\nRecent:\n")
			for _, h := range c.history {
				b.WriteString(hintStyle.Render("  " + h))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("↑/↓ select • enter choose • q quit"))

	case screenArguments:
		fmt.Fprintf(&b, "Calling %s\n\n", opStyle.Render(c.ops[c.selected].Operation))
		for _, in := range c.inputs {
			b.WriteString(in.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("tab next field • enter call • esc back"))

	case screenResult:
		fmt.Fprintf(&b, "Result of %s:\n\n", opStyle.Render(c.ops[c.selected].Operation))
		if c.err != nil {
			b.WriteString(failStyle.Render(fmt.Sprintf("%s: %v", errors.KindOf(c.err), c.err)))
		} else {
			b.WriteString(okStyle.Render(c.result))
		}
		b.WriteString("\n\n")
		b.WriteString(hintStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatOperation(sig *runtime.Signature) string {
	return opStyle.Render(sig.Operation) + "(" + strings.Join(sig.ParamNames, ", ") + ") " + kindStyle.Render("-> string")
}

func runInteractive(a *app.App) error {
	p := tea.NewProgram(newConsole(a), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
