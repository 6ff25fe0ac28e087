package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/MrWong99/flowlyrics/internal/app"
	"github.com/MrWong99/flowlyrics/internal/config"
	"github.com/MrWong99/flowlyrics/internal/lyric/fit"
	"github.com/MrWong99/flowlyrics/internal/pipeline"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle   = cellStyle.Foreground(lipgloss.Color("#8C8C8C"))
	stressStyle  = cellStyle.Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	winnerStyle  = cellStyle.Foreground(lipgloss.Color("#52C41A")).Bold(true)
	invalidStyle = cellStyle.Foreground(lipgloss.Color("#FF4D4F"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A4A4A"))
	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")).Width(18)
)

// renderGrid draws one table row per segment.
func renderGrid(g rhythm.Grid) string {
	header := headerStyle.Render(fmt.Sprintf("tempo %.1f BPM · %.2fs · %d syllables · %s",
		g.Tempo, g.Duration, g.Len(), g.StressPattern()))
	if g.IsEmpty() {
		return header + "\n" + mutedStyle.Render("no syllables detected")
	}

	rows := make([][]string, 0, len(g.Segments))
	for i, s := range g.Segments {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%.3f", s.Start),
			fmt.Sprintf("%.3f", s.Duration),
			mark(s.IsStressed, "DA", "da"),
			mark(s.IsSustained, "sustain", ""),
			string(s.PitchContour),
			s.ObservedPhonemes,
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("#", "start", "dur", "stress", "hold", "pitch", "phonemes").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case row >= 0 && row < len(g.Segments) && g.Segments[row].IsStressed:
				return stressStyle
			default:
				return mutedStyle
			}
		})
	return header + "\n" + t.Render()
}

// renderResults draws one row per validated line and highlights winner.
func renderResults(results []fit.Result, winner int) string {
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		verdict := "ok"
		if !r.IsValid {
			verdict = r.Reason
		}
		if i == winner {
			verdict = "best"
		}
		rows = append(rows, []string{
			r.Text,
			strconv.Itoa(r.SyllableCount),
			fit.StressMarkers(r.Stress),
			fmt.Sprintf("%.2f", r.GrooveScore),
			fmt.Sprintf("%.2f", r.PhoneticScore),
			fmt.Sprintf("%.2f", r.CombinedScore),
			verdict,
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("line", "syl", "stress", "groove", "phonetic", "score", "").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case row == winner:
				return winnerStyle
			case row >= 0 && row < len(results) && !results[row].IsValid:
				return invalidStyle
			default:
				return cellStyle
			}
		})
	return t.Render()
}

func renderMetadata(m pipeline.Metadata) string {
	return headerStyle.Render(fmt.Sprintf("tempo %.1f BPM · %.2fs · %d syllables", m.Tempo, m.Duration, m.SyllableTarget)) +
		"\n" + mutedStyle.Render("stress "+m.StressPattern) +
		"\n" + mutedStyle.Render("pitch  "+m.PitchPattern)
}

func renderBest(line string, score float64, ok bool) string {
	if !ok {
		return invalidStyle.Render("no candidate fits the grid")
	}
	return winnerStyle.Render(fmt.Sprintf("%s  (%.2f)", line, score))
}

func mark(on bool, yes, no string) string {
	if on {
		return yes
	}
	return no
}

// printStartupSummary writes the serve banner.
func printStartupSummary(w io.Writer, cfg *config.Config, ps *app.Providers) {
	llms := "(mock)"
	if len(cfg.LLM) > 0 {
		names := make([]string, 0, len(cfg.LLM))
		for _, e := range cfg.LLM {
			if e.Model != "" {
				names = append(names, e.Name+"/"+e.Model)
			} else {
				names = append(names, e.Name)
			}
		}
		llms = strings.Join(names, " → ")
	}
	storeDriver := string(cfg.Store.Driver)
	if storeDriver == "" {
		storeDriver = "(disabled)"
	}

	lines := []string{
		headerStyle.Render("flowlyrics " + version),
		line("Listen addr", cfg.Server.ListenAddr),
		line("LLM", llms),
		line("Recognizer", ps.Recognizer.Backend.String()),
		line("G2P", cfg.G2P.Name),
		line("Store", storeDriver),
		line("Analysis", fmt.Sprintf("v%d @ %d Hz", cfg.Analysis.Version, cfg.Analysis.SampleRate)),
	}
	if cfg.Server.TLS != nil {
		lines = append(lines, line("TLS", "enabled"))
	}
	fmt.Fprintln(w, summaryStyle.Render(strings.Join(lines, "\n")))
}

func line(label, value string) string {
	return labelStyle.Render(label) + value
}
