package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mpratt/lifelogd/internal/config"
	"github.com/mpratt/lifelogd/internal/ingest"
	"github.com/mpratt/lifelogd/internal/logger"
	"github.com/mpratt/lifelogd/internal/mcp"
	"github.com/mpratt/lifelogd/internal/resolver"
	"github.com/mpratt/lifelogd/internal/search"
	"github.com/mpratt/lifelogd/internal/storage"
	"github.com/mpratt/lifelogd/pkg/types"
)

type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "lifelogd",
		Short:   "Ingest, cluster, and search lifelog transcripts",
		Version: versionString(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = log
			return nil
		},
		SilenceUsage: true,
	}

	root.AddCommand(
		newIngestCmd(a),
		newSearchCmd(a),
		newContextCmd(a),
		newStatusCmd(a),
		newPurgeCmd(a),
		newServeCmd(a),
	)
	return root
}

// openStore opens the configured database, creating its directory if needed.
func (a *app) openStore() (*storage.Store, error) {
	if dir := filepath.Dir(a.cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return storage.New(a.cfg.DBPath)
}

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <batch.json>",
		Short: "Ingest a JSON batch of raw lifelog records ('-' reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read batch: %w", err)
			}

			var batch []types.RawLifelog
			if err := json.Unmarshal(data, &batch); err != nil {
				return fmt.Errorf("failed to decode batch: %w", err)
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			pipeline, err := ingest.New(cmd.Context(), store, a.cfg.GapThreshold, a.log)
			if err != nil {
				return err
			}

			result, err := pipeline.Ingest(cmd.Context(), batch)
			if err != nil {
				return fmt.Errorf("batch halted after %d records: %w", result.Ingested, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d, skipped %d, failed %d (%s)\n",
				result.Ingested, result.Skipped, result.Failed, result.Duration)
			return nil
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over stored utterances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			searcher, err := search.New(store)
			if err != nil {
				return err
			}

			resp, err := searcher.Search(cmd.Context(), search.Request{Query: args[0], Limit: limit})
			if err != nil {
				return err
			}
			for _, hit := range resp.Results {
				ts := ""
				if hit.StartTime != nil {
					ts = hit.StartTime.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[conv %d #%d] %s  %s\n", hit.ConversationID, hit.Seq, ts, hit.Text)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d results (%s)\n", len(resp.Results), resp.Duration)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (defaults to LIFELOG_SEARCH_LIMIT)")
	return cmd
}

func newContextCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "context <conversation-id|external-log-id>",
		Short: "Reconstruct the logical event or neighborhood around a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			anchorID, err := lookupConversationID(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}

			r := resolver.New(store, a.cfg.ContextWindow)
			resolved, err := r.Resolve(cmd.Context(), anchorID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if resolved.Anchor.LogicalEventID != nil {
				fmt.Fprintf(out, "logical event %s (%d conversations)\n",
					*resolved.Anchor.LogicalEventID, len(resolved.Event))
			} else {
				fmt.Fprintf(out, "no logical event; %d preceding, %d succeeding within %s\n",
					len(resolved.Preceding), len(resolved.Succeeding), a.cfg.ContextWindow)
			}
			fmt.Fprint(out, resolved.Transcript)
			return nil
		},
	}
}

// lookupConversationID accepts either a numeric surrogate id or an external
// log id.
func lookupConversationID(ctx context.Context, store *storage.Store, arg string) (int64, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if _, err := store.GetConversation(ctx, id); err == nil {
			return id, nil
		}
	}
	c, err := store.GetConversationByExternalID(ctx, arg)
	if err != nil {
		return 0, fmt.Errorf("conversation %q: %w", arg, err)
	}
	return c.ID, nil
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report stored row counts and database size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			status, err := store.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "conversations:  %d (%d pending)\n", status.Conversations, status.Pending)
			fmt.Fprintf(out, "speakers:       %d\n", status.Speakers)
			fmt.Fprintf(out, "utterances:     %d\n", status.Utterances)
			fmt.Fprintf(out, "logical events: %d\n", status.LogicalEvents)
			fmt.Fprintf(out, "database size:  %.2f MB\n", status.SizeMB)
			return nil
		},
	}
}

func newPurgeCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every conversation and its utterances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge without --yes")
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			n, err := store.PurgeConversations(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d conversations\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the store to MCP clients over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			server, err := mcp.NewServer(ctx, store, a.cfg, a.log)
			if err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				a.log.Info().Str("version", versionString()).Msg("MCP server ready, listening on stdio")
				errChan <- server.Serve(ctx)
			}()

			select {
			case sig := <-sigChan:
				a.log.Info().Str("signal", sig.String()).Msg("shutting down")
				cancel()
				return nil
			case err := <-errChan:
				return err
			}
		},
	}
}
