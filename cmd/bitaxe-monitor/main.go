// Bitaxe core: a Bitcoin ASIC mining appliance firmware core.
// Copyright (C) 2026  Axeforge contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Command bitaxe-monitor is a bench/operator TUI that attaches to a
// running bitaxed's diagnostic socket and renders live hashrate,
// temperature, and job telemetry.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/axeforge/bitaxe-core/internal/diag"
)

var socketPath = flag.String("diag-socket", "/tmp/bitaxed.sock", "diagnostic socket path a bitaxed instance is serving")

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFFF00")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	valueStyle = lipgloss.NewStyle().Bold(true)

	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	hardStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

type snapshotMsg diag.Snapshot
type connErrMsg struct{ err error }
type connectedMsg struct{ conn net.Conn }

type model struct {
	socketPath string
	conn       net.Conn
	reader     *bufio.Reader
	last       diag.Snapshot
	connErr    error
	spinner    spinner.Model
}

func initialModel(path string) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = labelStyle
	return model{socketPath: path, spinner: sp}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.dial(), m.spinner.Tick)
}

func (m model) dial() tea.Cmd {
	path := m.socketPath
	return func() tea.Msg {
		conn, err := net.Dial("unix", path)
		if err != nil {
			return connErrMsg{err}
		}
		return connectedMsg{conn}
	}
}

func (m model) readOne(r *bufio.Reader) tea.Cmd {
	return func() tea.Msg {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return connErrMsg{err}
		}
		var snap diag.Snapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			return connErrMsg{err}
		}
		return snapshotMsg(snap)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}

	case connectedMsg:
		m.conn = msg.conn
		m.reader = bufio.NewReader(msg.conn)
		m.connErr = nil
		return m, m.readOne(m.reader)

	case connErrMsg:
		m.connErr = msg.err
		if m.conn != nil {
			m.conn.Close()
			m.conn = nil
		}
		return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg { return retryMsg{} })

	case retryMsg:
		return m, m.dial()

	case snapshotMsg:
		m.last = diag.Snapshot(msg)
		return m, m.readOne(m.reader)
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

type retryMsg struct{}

func (m model) View() string {
	header := headerStyle.Render(fmt.Sprintf(" bitaxe-monitor  %s ", m.socketPath))

	if m.connErr != nil {
		return header + "\n\n" + errStyle.Render(fmt.Sprintf("disconnected: %v (retrying...)", m.connErr)) + "\n"
	}
	if m.conn == nil {
		return header + "\n\n" + m.spinner.View() + " " + labelStyle.Render("connecting...") + "\n"
	}

	s := m.last
	row := func(label, value string) string {
		return labelStyle.Render(fmt.Sprintf("%-18s", label)) + valueStyle.Render(value) + "\n"
	}

	overheat := "normal"
	style := valueStyle
	switch s.OverheatSeverity {
	case diag.SeveritySoft:
		overheat, style = "SOFT THROTTLE", warnStyle
	case diag.SeverityHard:
		overheat, style = "HARD SHUTDOWN", hardStyle
	}

	out := header + "\n\n"
	out += row("hashrate (1m)", fmt.Sprintf("%.2f GH/s", s.Hashrate1mGHs))
	out += row("hashrate (1h)", fmt.Sprintf("%.2f GH/s", s.Hashrate1hGHs))
	out += row("chip temp", fmt.Sprintf("%.1f C", s.ChipTempC))
	out += row("vr temp", fmt.Sprintf("%.1f C", s.VRTempC))
	out += row("power", fmt.Sprintf("%.2f W", s.PowerW))
	out += row("rail", fmt.Sprintf("%d mV  %d mA", s.RailVoltageMV, s.RailCurrentMA))
	out += row("core voltage", fmt.Sprintf("%d mV", s.CoreVoltageMV))
	out += row("frequency", fmt.Sprintf("%.0f MHz", s.FrequencyMHz))
	out += row("fan", fmt.Sprintf("%.0f%%  %d RPM", s.FanPercent, s.FanRPM))
	out += row("best share (session)", fmt.Sprintf("%.0f", s.BestSessionDifficulty))
	out += row("best share (all-time)", fmt.Sprintf("%.0f", s.BestAllTimeDifficulty))
	out += labelStyle.Render("overheat: ") + style.Render(overheat) + "\n"
	out += "\n" + labelStyle.Render("press q to quit")
	return out
}

func main() {
	flag.Parse()
	p := tea.NewProgram(initialModel(*socketPath))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "bitaxe-monitor: %v\n", err)
		os.Exit(1)
	}
}
