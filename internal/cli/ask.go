// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jeranaias/channelchat/internal/progress"
	"github.com/jeranaias/channelchat/internal/server"
	"github.com/jeranaias/channelchat/internal/storage"
	"github.com/jeranaias/channelchat/internal/util"
)

// DefaultServerURL is where ask looks for a server when --server is unset.
const DefaultServerURL = "http://127.0.0.1:8080"

// ErrTurnFailed is returned when the server finished the turn with an error.
var ErrTurnFailed = errors.New("turn ended with an error")

type askOptions struct {
	serverURL  string
	sessionID  string
	userName   string
	attach     []string
	saveImages string
	raw        bool
}

func newAskCommand() *cobra.Command {
	a := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Send one chat turn to a channelchat server",
		Long: `Send one message to a session on a running server and print the answer.

Without --session a new session is created and its id printed to stderr, so
the next ask can continue the conversation. Files given with --attach are
uploaded first: .csv and .json become the session dataset, images go with
this turn.`,
		Example: `  channelchat ask --attach videos.json "which video has the most views?"
  channelchat ask --session 3f2a... "plot views over time"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" && len(a.attach) == 0 {
				return errors.New("a question or --attach is required")
			}
			out := cmd.OutOrStdout()
			return runAsk(cmd.Context(), out, cmd.ErrOrStderr(), a, text, !a.raw && isTerminal(out))
		},
	}

	cmd.Flags().StringVar(&a.serverURL, "server", DefaultServerURL, "channelchat server URL")
	cmd.Flags().StringVarP(&a.sessionID, "session", "s", "", "Continue this session")
	cmd.Flags().StringVar(&a.userName, "user", "", "User name for a new session")
	cmd.Flags().StringSliceVarP(&a.attach, "attach", "a", nil, "Upload a dataset or image first (repeatable)")
	cmd.Flags().StringVar(&a.saveImages, "save-images", "", "Write returned images into this directory")
	cmd.Flags().BoolVar(&a.raw, "raw", false, "Print the answer without markdown rendering")
	return cmd
}

func runAsk(ctx context.Context, out, errOut io.Writer, a *askOptions, text string, tty bool) error {
	c := newAPIClient(a.serverURL, nil)

	sessionID := a.sessionID
	if sessionID == "" {
		st, err := c.createSession(ctx, a.userName)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		sessionID = st.ID
		fmt.Fprintln(errOut, DimStyle.Render("session "+sessionID))
	}

	for _, path := range a.attach {
		res, err := c.attach(ctx, sessionID, path)
		if err != nil {
			return fmt.Errorf("failed to attach %s: %w", path, err)
		}
		fmt.Fprintln(errOut, DimStyle.Render(describeAttachment(res)))
	}

	resp, err := c.post(ctx, "/api/sessions/"+sessionID+"/turns", server.TurnRequest{Text: text})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var (
		final   *storage.Turn
		printed string
		mode    string
	)
	for ev, err := range progress.Events[server.TurnEvent](resp.Body) {
		if err != nil {
			return err
		}
		if ev.Mode != "" && ev.Mode != mode {
			mode = ev.Mode
			if tty {
				fmt.Fprintln(errOut, DimStyle.Render("mode: "+mode))
			}
		}
		switch ev.Type {
		case server.TurnEventUpdate:
			if !tty && ev.Turn != nil {
				printed = printDelta(out, printed, ev.Turn.Content)
			}
		case server.TurnEventError:
			return errors.New(ev.Message)
		case server.TurnEventComplete:
			final = ev.Turn
		}
		if ev.Terminal() {
			break
		}
	}
	if final == nil {
		return ErrStreamTruncated
	}

	if tty {
		fmt.Fprintln(out, renderMarkdown(final.Content, terminalWidth(out)))
		printExtras(out, final)
	} else {
		if strings.HasPrefix(final.Content, printed) {
			fmt.Fprint(out, final.Content[len(printed):])
		} else {
			fmt.Fprint(out, "\n"+final.Content)
		}
		fmt.Fprintln(out)
	}

	if a.saveImages != "" {
		for i, img := range final.Images {
			path := filepath.Join(a.saveImages, fmt.Sprintf("%s-%d%s", final.ID, i+1, imageExt(img.MIMEType)))
			if err := util.AtomicWriteFile(path, img.Data, 0644); err != nil {
				return fmt.Errorf("failed to save image: %w", err)
			}
			fmt.Fprintln(errOut, DimStyle.Render("saved "+path))
		}
	}

	if final.Status == storage.StatusError {
		return ErrTurnFailed
	}
	return nil
}

// printDelta writes the part of content not yet printed. Content that no
// longer extends what was printed is left for the final event.
func printDelta(out io.Writer, printed, content string) string {
	if !strings.HasPrefix(content, printed) {
		return printed
	}
	fmt.Fprint(out, content[len(printed):])
	return content
}

func describeAttachment(res server.AttachmentResponse) string {
	if res.Kind == "image" {
		return fmt.Sprintf("attached image %s", res.Name)
	}
	return fmt.Sprintf("attached %s dataset %s (%d records, %d fields)", res.Kind, res.Name, res.Records, len(res.Fields))
}

// printExtras lists the structured output that does not render as text.
func printExtras(out io.Writer, t *storage.Turn) {
	var lines []string
	for _, tc := range t.ToolCalls {
		status := "ok"
		if tc.Failed {
			status = "fail"
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", RenderStatus(status), tc.Name, DimStyle.Render(fmt.Sprintf("%dms", tc.DurationMs))))
	}
	if n := len(t.Charts); n > 0 {
		lines = append(lines, RenderLabel("Charts", fmt.Sprint(n)))
	}
	if n := len(t.Cards); n > 0 {
		lines = append(lines, RenderLabel("Cards", fmt.Sprint(n)))
	}
	if n := len(t.Images); n > 0 {
		lines = append(lines, RenderLabel("Images", fmt.Sprint(n)))
	}
	if g := t.Grounding; g != nil {
		for _, src := range g.Sources {
			lines = append(lines, DimStyle.Render(src.Title+" "+src.URI))
		}
	}
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(out, RenderSeparator(min(terminalWidth(out)-4, 70)))
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
}

// renderMarkdown renders markdown for the terminal, returning content
// unchanged when rendering fails.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

func imageExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
