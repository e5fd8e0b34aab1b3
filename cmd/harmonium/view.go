package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"harmonium/internal/harmonium"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Bold(true)
	noteStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("16")).Background(lipgloss.Color("114")).Padding(0, 1)
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
)

const meterWidth = 32

// meter renders frac in [0, 1] as a horizontal bar.
func meter(frac float64, width int) string {
	if math.IsNaN(frac) {
		frac = 0
	}
	frac = math.Max(0, math.Min(frac, 1))
	full := int(math.Round(frac * float64(width)))
	return strings.Repeat("█", full) + dimStyle.Render(strings.Repeat("░", width-full))
}

func row(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}

func (m model) View() string {
	v := m.inst.View()

	meterW := meterWidth
	if m.width > 0 && m.width < meterWidth+44 {
		meterW = max(8, m.width-44)
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(headerStyle.Render(fmt.Sprintf("harmonium v%s", version)))
	out.WriteString("\n\n")

	// Sensor
	status := v.SensorStatus
	if status == "" {
		status = "Waiting for sensor..."
	}
	var sensor strings.Builder
	sensor.WriteString(row("sensor", okStyle.Render(status)))
	if v.SensorError != "" {
		sensor.WriteString(row("", errorStyle.Render(v.SensorError)))
	}
	if v.SensorClosed {
		sensor.WriteString(row("", errorStyle.Render("Sensor stopped")))
	}
	for _, n := range m.notices {
		sensor.WriteString(row("", dimStyle.Render(n)))
	}
	out.WriteString(panelStyle.Render(strings.TrimRight(sensor.String(), "\n")))
	out.WriteString("\n")

	// Bellows
	var bel strings.Builder
	bel.WriteString(row("amplitude", fmt.Sprintf("%s %.3f", meter(v.Output.Amp, meterW), v.Output.Amp)))
	bel.WriteString(row("target", fmt.Sprintf("%s %.3f", meter(v.Output.TargetAmp, meterW), v.Output.TargetAmp)))
	bel.WriteString(row("volume", fmt.Sprintf("%s %.3f", meter(v.Volume/2, meterW), v.Volume)))
	bel.WriteString(row("angle", fmt.Sprintf("%7.2f deg", v.Output.AngleDeg)))
	bel.WriteString(row("velocity", fmt.Sprintf("%7.2f deg/s", v.Output.VelocityDegPerS)))
	bel.WriteString(row("speed", fmt.Sprintf("%7.2f raw  %7.2f smooth", v.Output.SpeedRaw, v.Output.SpeedSmooth)))
	bel.WriteString(row("dt", fmt.Sprintf("%7.1f ms   %s", v.Output.Dt*1000, v.Phase)))
	out.WriteString(panelStyle.Render(strings.TrimRight(bel.String(), "\n")))
	out.WriteString("\n")

	// Parameters
	var params strings.Builder
	for i, t := range harmonium.Tunables {
		line := fmt.Sprintf("%-10s %8.3f %s", t.Name, t.Get(v.Params), t.Unit)
		if i == m.selected {
			params.WriteString(selectedStyle.Render("> "+line) + "\n")
		} else {
			params.WriteString("  " + line + "\n")
		}
	}
	params.WriteString(fmt.Sprintf("  %-10s %8.3f", "gain", v.MasterGain))
	out.WriteString(panelStyle.Render(params.String()))
	out.WriteString("\n")

	// Notes
	var notes strings.Builder
	notes.WriteString(labelStyle.Render("notes"))
	if len(v.Notes) == 0 {
		notes.WriteString(dimStyle.Render("-"))
	}
	for _, n := range v.Notes {
		notes.WriteString(noteStyle.Render(n) + " ")
	}
	notes.WriteString("\n")
	notes.WriteString(row("key map", dimStyle.Render(fmt.Sprintf("%d keys  %s", v.KeyMapSize, v.KeyMapPath))))
	for _, e := range v.NoteErrors {
		notes.WriteString(row("", errorStyle.Render(e)))
	}
	if v.Message != "" {
		notes.WriteString(row("", v.Message))
	}
	out.WriteString(panelStyle.Render(strings.TrimRight(notes.String(), "\n")))
	out.WriteString("\n\n")

	help := "keys:play  up/down:select  left/right:adjust  pgup/pgdn:gain  ctrl+r:reset  ctrl+k:reload  ctrl+x:stop all  esc:quit"
	out.WriteString(dimStyle.Render(help))
	out.WriteString("\n")

	return out.String()
}
