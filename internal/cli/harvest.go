// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/channelchat/internal/config"
	"github.com/jeranaias/channelchat/internal/ingest"
	"github.com/jeranaias/channelchat/internal/logging"
	"github.com/jeranaias/channelchat/internal/progress"
	"github.com/jeranaias/channelchat/internal/util"
	"github.com/jeranaias/channelchat/internal/youtube"
)

// ErrHarvestCancelled is returned when the user quits the progress view.
var ErrHarvestCancelled = errors.New("harvest cancelled")

type harvestOptions struct {
	limit     int
	serverURL string
	out       string
	plain     bool
}

func newHarvestCommand(root *rootOptions) *cobra.Command {
	h := &harvestOptions{}

	cmd := &cobra.Command{
		Use:   "harvest <channel-url>",
		Short: "Collect a channel's videos and transcripts",
		Long: `Collect video metadata and transcripts for a channel.

The channel can be a URL (youtube.com/@handle, youtube.com/channel/ID) or a
bare @handle. Without --server the pipeline runs in this process and needs
YOUTUBE_API_KEY.

On a terminal a progress bar is shown. Otherwise every event is written to
stdout as an event-stream frame, ending with the complete or error event.`,
		Example: `  channelchat harvest https://www.youtube.com/@gophercon --limit 25 --out videos.json
  channelchat harvest @gophercon --server http://127.0.0.1:8080 | tail -1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ingest.Request{Reference: args[0], Limit: ingest.ClampLimit(h.limit)}

			var stream eventStream
			if h.serverURL != "" {
				stream = remoteStream(newAPIClient(h.serverURL, nil), req)
			} else {
				cfg, err := root.load()
				if err != nil {
					return err
				}
				logger := zap.NewNop()
				if root.verbose {
					if logger, _, err = logging.New(cfg.Log); err != nil {
						return err
					}
					defer logger.Sync()
				}
				stream = localStream(cfg, logger, req)
			}

			tty := !h.plain && isTerminal(cmd.OutOrStdout())
			return runHarvest(cmd.Context(), cmd.OutOrStdout(), h, tty, stream)
		},
	}

	cmd.Flags().IntVarP(&h.limit, "limit", "n", 0, fmt.Sprintf("Videos to collect (default %d, max %d)", ingest.DefaultLimit, ingest.MaxLimit))
	cmd.Flags().StringVar(&h.serverURL, "server", "", "Run on a channelchat server instead of in-process")
	cmd.Flags().StringVarP(&h.out, "out", "o", "", "Write the collected videos to this JSON file")
	cmd.Flags().BoolVar(&h.plain, "plain", false, "Write raw event frames even on a terminal")
	return cmd
}

// =============================================================================
// EVENT SOURCES
// =============================================================================

// eventStream runs one ingestion job, delivering its events to emit.
type eventStream func(ctx context.Context, emit ingest.EmitFunc) error

// localStream runs the pipeline in-process against the YouTube Data API.
func localStream(cfg *config.Config, logger *zap.Logger, req ingest.Request) eventStream {
	return func(ctx context.Context, emit ingest.EmitFunc) error {
		src, err := youtube.New(ctx, youtube.Options{
			APIKey:         cfg.YouTube.APIKey,
			TranscriptLang: cfg.YouTube.TranscriptLang,
		})
		if err != nil {
			if errors.Is(err, youtube.ErrNoAPIKey) {
				return fmt.Errorf("YOUTUBE_API_KEY is not set (or use --server): %w", err)
			}
			return err
		}
		p := ingest.NewPipeline(src,
			ingest.WithPageSize(cfg.YouTube.PageSize),
			ingest.WithBatchSize(cfg.YouTube.DetailBatch),
			ingest.WithArtifactRate(youtube.DefaultArtifactRate),
			ingest.WithLogger(logger),
		)
		_, err = p.Run(ctx, req, emit)
		return err
	}
}

// remoteStream runs the job on a server and relays its event stream.
func remoteStream(c *apiClient, req ingest.Request) eventStream {
	return func(ctx context.Context, emit ingest.EmitFunc) error {
		resp, err := c.post(ctx, "/api/youtube/channel-data", req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		for ev, err := range progress.Events[ingest.Event](resp.Body) {
			if err != nil {
				return err
			}
			if err := emit(ev); err != nil {
				return err
			}
			if ev.Terminal() {
				return nil
			}
		}
		return ErrStreamTruncated
	}
}

// =============================================================================
// HARVEST
// =============================================================================

func runHarvest(ctx context.Context, out io.Writer, h *harvestOptions, tty bool, stream eventStream) error {
	var final ingest.Event
	record := func(ev ingest.Event) {
		if ev.Terminal() {
			final = ev
		}
	}

	var err error
	if tty {
		err = runProgressView(ctx, out, stream, record)
	} else {
		fw := progress.NewWriter(out)
		err = stream(ctx, func(ev ingest.Event) error {
			record(ev)
			return fw.Send(ev)
		})
	}

	switch {
	case final.Type == ingest.EventError:
		return errors.New(final.Message)
	case final.Type == ingest.EventComplete:
	case err != nil:
		return err
	default:
		return ErrStreamTruncated
	}

	if h.out != "" {
		if err := writeItems(h.out, final.Data); err != nil {
			return err
		}
	}
	if tty {
		printHarvestSummary(out, final, h.out)
	}
	return nil
}

// writeItems exports items as an indented JSON array.
func writeItems(path string, items []ingest.Item) error {
	if items == nil {
		items = []ingest.Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode videos: %w", err)
	}
	if err := util.AtomicWriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func printHarvestSummary(out io.Writer, final ingest.Event, path string) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, TitleStyle.Render(cmp.Or(final.ChannelTitle, "Harvest complete")))
	fmt.Fprintln(out, RenderSeparator(min(terminalWidth(out)-4, 70)))

	transcripts := 0
	for _, it := range final.Data {
		if it.Artifact.OK() {
			transcripts++
		}
	}
	fmt.Fprintln(out, RenderLabel("Videos", fmt.Sprint(len(final.Data))))
	fmt.Fprintln(out, RenderLabel("Transcripts", fmt.Sprintf("%d/%d", transcripts, len(final.Data))))
	if path != "" {
		fmt.Fprintln(out, RenderLabel("Saved", path))
	}

	width := terminalWidth(out) - 16
	for i, it := range final.Data {
		if i == 10 {
			fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("  ... and %d more", len(final.Data)-i)))
			break
		}
		fmt.Fprintf(out, "  %s %s\n",
			DimStyle.Render(it.ReleaseDate),
			util.TruncateWidth(it.Title, width))
	}
	fmt.Fprintln(out, SuccessStyle.Render(final.Message))
}
