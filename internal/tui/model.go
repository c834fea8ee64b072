// Package tui implements the interactive terminal form of rfctl.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"google.golang.org/grpc/status"

	"github.com/radio-control/rfcontrol/internal/control"
	"github.com/radio-control/rfcontrol/internal/device"
	"github.com/radio-control/rfcontrol/internal/jsonrpc"
)

// Input fields
const (
	fieldFrequency = iota
	fieldGain
	fieldDeviceID
	fieldCount
)

// Defaults pre-fills the form.
type Defaults struct {
	FrequencyMHz float64
	GainDB       float64
	DeviceID     string
}

// Model is the Bubble Tea model of the control form.
type Model struct {
	ctl     control.Controller
	target  string
	timeout time.Duration

	inputs []textinput.Model
	focus  int

	busy      bool
	response  []string
	status    string
	statusErr bool
	quitting  bool
}

type applyResultMsg struct {
	resp *control.SettingsResponse
	err  error
}

type statusResultMsg struct {
	resp *control.StatusResponse
	err  error
}

// New creates the form. target is shown in the title bar.
func New(ctl control.Controller, target string, defaults Defaults, timeout time.Duration) Model {
	placeholders := []string{"915.0", "20.0", "DEV001"}
	values := []string{
		device.FormatFloat(defaults.FrequencyMHz),
		device.FormatFloat(defaults.GainDB),
		defaults.DeviceID,
	}

	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 32
		ti.Width = 20
		ti.SetValue(values[i])
		inputs[i] = ti
	}
	inputs[fieldFrequency].Focus()

	return Model{
		ctl:     ctl,
		target:  target,
		timeout: timeout,
		inputs:  inputs,
		status:  "Ready",
	}
}

// Run starts the form and blocks until the user quits.
func Run(ctl control.Controller, target string, defaults Defaults, timeout time.Duration) error {
	_, err := tea.NewProgram(New(ctl, target, defaults, timeout)).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "tab", "down":
			m.setFocus((m.focus + 1) % fieldCount)
			return m, nil
		case "shift+tab", "up":
			m.setFocus((m.focus + fieldCount - 1) % fieldCount)
			return m, nil
		case "enter":
			return m.apply()
		case "ctrl+r":
			return m.getStatus()
		}

	case applyResultMsg:
		m.busy = false
		m.showResult(msg.resp, msg.err)
		return m, nil

	case statusResultMsg:
		m.busy = false
		var resp *control.SettingsResponse
		if msg.resp != nil {
			resp = &control.SettingsResponse{Success: msg.resp.Success, StatusText: msg.resp.StatusText}
		}
		m.showResult(resp, msg.err)
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) setFocus(field int) {
	m.inputs[m.focus].Blur()
	m.focus = field
	m.inputs[m.focus].Focus()
}

func (m Model) apply() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}

	freq, errFreq := strconv.ParseFloat(strings.TrimSpace(m.inputs[fieldFrequency].Value()), 64)
	gain, errGain := strconv.ParseFloat(strings.TrimSpace(m.inputs[fieldGain].Value()), 64)
	if errFreq != nil || errGain != nil {
		m.response = []string{"Input Error: Frequency and Gain must be valid numbers."}
		m.status = "Error: Invalid input"
		m.statusErr = true
		return m, nil
	}

	req := control.SettingsRequest{
		FrequencyMHz: freq,
		GainDB:       gain,
		DeviceID:     strings.TrimSpace(m.inputs[fieldDeviceID].Value()),
	}
	m.busy = true
	m.response = nil
	m.status = "Sending request..."
	m.statusErr = false

	ctl, timeout := m.ctl, m.timeout
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, err := ctl.ApplySettings(ctx, req)
		return applyResultMsg{resp: resp, err: err}
	}
}

func (m Model) getStatus() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}

	req := control.StatusRequest{DeviceID: strings.TrimSpace(m.inputs[fieldDeviceID].Value())}
	m.busy = true
	m.response = nil
	m.status = "Getting device status..."
	m.statusErr = false

	ctl, timeout := m.ctl, m.timeout
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, err := ctl.GetStatus(ctx, req)
		return statusResultMsg{resp: resp, err: err}
	}
}

func (m *Model) showResult(resp *control.SettingsResponse, err error) {
	m.response = nil
	if resp != nil {
		m.response = append(m.response,
			fmt.Sprintf("Success: %t", resp.Success),
			fmt.Sprintf("Device Status: %s", resp.StatusText))
	}
	if err != nil {
		m.response = append(m.response, DescribeError(err))
		m.status = "Request failed"
		m.statusErr = true
		return
	}
	m.status = "Request complete"
	m.statusErr = false
}

// DescribeError renders a client error the way rfctl reports it.
func DescribeError(err error) string {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Sprintf("RPC failed: %s - %s", rpcErr.CodeName(), rpcErr.Message)
	}
	if st, ok := status.FromError(err); ok {
		return fmt.Sprintf("RPC failed: %s - %s", st.Code(), st.Message())
	}
	return fmt.Sprintf("An unexpected error occurred: %v", err)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true).
			Width(18)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("RF Device Control - " + m.target))
	s.WriteString("\n\n")

	labels := [fieldCount]string{"Frequency (MHz):", "Gain (dB):", "Device ID:"}
	var form strings.Builder
	for i, in := range m.inputs {
		form.WriteString(labelStyle.Render(labels[i]))
		form.WriteString(in.View())
		if i < len(m.inputs)-1 {
			form.WriteString("\n")
		}
	}
	s.WriteString(boxStyle.Render(form.String()))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Server Response"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(strings.Join(m.response, "\n")))
	s.WriteString("\n")

	if m.statusErr {
		s.WriteString(errorStyle.Render(m.status))
	} else {
		s.WriteString(statusStyle.Render(m.status))
	}
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("tab: next field  enter: set RF settings  ctrl+r: get device status  esc: quit"))
	s.WriteString("\n")

	return s.String()
}
