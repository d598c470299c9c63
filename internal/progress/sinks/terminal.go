package sinks

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/JakeFAU/scholar-citation-crawler/internal/progress"
)

const barWidth = 30

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7BD88F"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
)

// TerminalSink draws a one-line progress bar per stage, redrawn in place.
type TerminalSink struct {
	mu   sync.Mutex
	out  io.Writer
	open bool // a bar line is waiting for its newline
}

// NewTerminalSink writes to out (usually os.Stderr).
func NewTerminalSink(out io.Writer) *TerminalSink {
	return &TerminalSink{out: out}
}

// Consume renders each event.
func (s *TerminalSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if err := s.render(evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *TerminalSink) render(evt progress.Event) error {
	switch evt.Stage {
	case progress.StageCrawl, progress.StageEnrich:
		label := "Crawling "
		if evt.Stage == progress.StageEnrich {
			label = "Enriching"
		}
		line := fmt.Sprintf("\r%s %s %d/%d %s",
			labelStyle.Render(label),
			barStyle.Render(Bar(evt.Fraction(), barWidth)),
			evt.Completed, evt.Total,
			mutedStyle.Render(fmt.Sprintf("(%d%%)", int(math.Round(evt.Fraction()*100)))),
		)
		s.open = evt.Completed < evt.Total
		if !s.open {
			line += "\n"
		}
		return s.write(line)
	case progress.StageRunStart:
		return s.line(labelStyle.Render("Run "+evt.RunID) + mutedStyle.Render(fmt.Sprintf(" %d targets", evt.Total)))
	case progress.StageExport:
		return s.line(mutedStyle.Render(fmt.Sprintf("Exported %d artifacts", evt.Total)))
	case progress.StageRunDone:
		return s.line(labelStyle.Render("Done") + mutedStyle.Render(" in "+evt.Dur.Round(time.Second).String()))
	case progress.StageRunError:
		return s.line(errorStyle.Render("Failed") + mutedStyle.Render(": "+evt.Note))
	}
	return nil
}

func (s *TerminalSink) line(text string) error {
	prefix := ""
	if s.open {
		prefix = "\n"
		s.open = false
	}
	return s.write(prefix + text + "\n")
}

func (s *TerminalSink) write(text string) error {
	if _, err := io.WriteString(s.out, text); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

// Close terminates a pending bar line.
func (s *TerminalSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		s.open = false
		return s.write("\n")
	}
	return nil
}

// Bar renders fraction as a width-cell bar.
func Bar(fraction float64, width int) string {
	fraction = math.Max(0, math.Min(1, fraction))
	filled := int(math.Round(fraction * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
