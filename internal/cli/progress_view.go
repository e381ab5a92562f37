// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/channelchat/internal/ingest"
)

// =============================================================================
// MESSAGES
// =============================================================================

// eventMsg carries one ingestion event into the view.
type eventMsg ingest.Event

// streamDoneMsg signals that the job has returned.
type streamDoneMsg struct{ err error }

// =============================================================================
// MODEL
// =============================================================================

// harvestModel renders a running ingestion job.
type harvestModel struct {
	bar     progress.Model
	spinner spinner.Model

	channel string
	message string
	percent float64
	failed  bool

	done    bool
	aborted bool
}

func newHarvestModel() harvestModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = TitleStyle

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 50

	return harvestModel{
		bar:     p,
		spinner: s,
		message: "Starting...",
	}
}

func (m harvestModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m harvestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.aborted = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = max(20, min(msg.Width-20, 100))
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		ev := ingest.Event(msg)
		if ev.ChannelTitle != "" {
			m.channel = ev.ChannelTitle
		}
		if ev.Message != "" {
			m.message = ev.Message
		}
		if ev.Percent != nil {
			m.percent = float64(*ev.Percent) / 100
		}
		switch ev.Type {
		case ingest.EventComplete:
			m.percent = 1
		case ingest.EventError:
			m.failed = true
		}
		return m, nil

	case streamDoneMsg:
		m.done = true
		if msg.err != nil && !m.failed {
			m.failed = true
			m.message = msg.err.Error()
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m harvestModel) View() string {
	var b strings.Builder

	title := "Harvesting"
	if m.channel != "" {
		title += " " + m.channel
	}
	if m.done {
		b.WriteString(TitleStyle.Render(title))
	} else {
		b.WriteString(m.spinner.View() + " " + TitleStyle.Render(title))
	}
	b.WriteString("\n\n")
	b.WriteString("  " + m.bar.ViewAs(m.percent))
	b.WriteString("\n\n")

	switch {
	case m.failed:
		b.WriteString("  " + ErrorStyle.Render(m.message))
	default:
		b.WriteString("  " + DimStyle.Render(m.message))
	}
	b.WriteString("\n")
	if !m.done {
		b.WriteString("\n" + DimStyle.Render("  q to cancel") + "\n")
	}
	return b.String()
}

// =============================================================================
// PROGRAM
// =============================================================================

// runProgressView runs stream behind a progress bar. Every event goes to
// record before the view sees it. Quitting the view cancels the job.
func runProgressView(ctx context.Context, out io.Writer, stream eventStream, record func(ingest.Event)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newHarvestModel(), tea.WithOutput(out))

	errc := make(chan error, 1)
	go func() {
		err := stream(ctx, func(ev ingest.Event) error {
			record(ev)
			p.Send(eventMsg(ev))
			return nil
		})
		p.Send(streamDoneMsg{err: err})
		errc <- err
	}()

	final, runErr := p.Run()
	cancel()
	streamErr := <-errc

	if runErr != nil {
		return fmt.Errorf("progress view: %w", runErr)
	}
	if m, ok := final.(harvestModel); ok && m.aborted {
		return ErrHarvestCancelled
	}
	return streamErr
}
