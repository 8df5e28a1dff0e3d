package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/iksnae/copilot-session/internal"
	"github.com/iksnae/copilot-session/internal/api"
	"github.com/iksnae/copilot-session/internal/export"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	format       string
	outputDir    string
	exportMode   string
	exportID     int64
	exportCached bool
	clearCache   bool
)

// historyFetchLimit bounds concurrent history requests during export
const historyFetchLimit = 4

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export sessions to file",
	Long: `Export chat sessions to various formats (jsonl, md, yaml, json).

You can export all sessions, filter by mode, or export a specific session by ID.
Use 'copilot-session sessions' to see available session IDs.

--cached exports the transcripts cached by earlier runs without contacting
the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		open := newApp
		if exportCached {
			open = newOfflineApp
		}
		a, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if clearCache {
			if exportCached {
				return fmt.Errorf("--clear-cache cannot be combined with --cached")
			}
			if err := a.cache.ClearCache(); err != nil {
				internal.LogWarn("Failed to clear cache: %v", err)
			} else {
				internal.LogInfo("Cache cleared")
			}
		}

		var conversations []*internal.Conversation
		if exportCached {
			if err := a.checkCache(); err != nil {
				return err
			}
			conversations, err = a.cache.LoadAllConversations()
			if err != nil {
				return fmt.Errorf("failed to load cache: %w", err)
			}
			internal.LogInfo("Loaded %d session(s) from cache", len(conversations))
		} else {
			conversations, err = fetchConversations(cmd.Context(), a)
			if err != nil {
				return err
			}
		}

		if exportMode != "" {
			filtered := make([]*internal.Conversation, 0, len(conversations))
			for _, conv := range conversations {
				if conv.Mode == exportMode {
					filtered = append(filtered, conv)
				}
			}
			conversations = filtered
		}

		if exportID != 0 {
			filtered := make([]*internal.Conversation, 0, 1)
			for _, conv := range conversations {
				if conv.ID == exportID {
					filtered = append(filtered, conv)
					break
				}
			}
			if len(filtered) == 0 {
				return fmt.Errorf("session not found: %d (use 'copilot-session sessions' to see available sessions)", exportID)
			}
			conversations = filtered
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		exported := 0
		err = internal.ShowProgress(cmd.Context(), fmt.Sprintf("Exporting %d session(s) to %s", len(conversations), outputDir), func() error {
			for _, conv := range conversations {
				path, err := export.WriteFile(exporter, conv, outputDir)
				if err != nil {
					internal.LogError("Failed to export session %d: %v", conv.ID, err)
					continue
				}
				internal.LogDebug("wrote %s", path)
				exported++
			}
			return nil
		})
		if err != nil {
			return err
		}

		internal.PrintSuccess(fmt.Sprintf("Export complete: %d session(s) exported to %s", exported, outputDir))
		return nil
	},
}

// fetchConversations lists the sessions and loads every history, caching
// each transcript on the way
func fetchConversations(ctx context.Context, a *app) ([]*internal.Conversation, error) {
	if err := a.requireLogin(); err != nil {
		return nil, err
	}

	var (
		sessions      []internal.Session
		conversations []*internal.Conversation
	)
	steps := []internal.ProgressStep{
		{
			Message: "Listing sessions",
			Fn: func() error {
				var err error
				sessions, err = a.store.ListSessions(ctx)
				return err
			},
		},
		{
			Message: "Loading histories",
			Fn: func() error {
				var err error
				conversations, err = loadHistories(ctx, a.client, sessions)
				return err
			},
		},
		{
			Message: "Caching sessions",
			Fn: func() error {
				if !a.claimCache() {
					return nil
				}
				if err := a.cache.SaveSessions(sessions, a.cfg.BaseURL, a.username()); err != nil {
					internal.LogWarn("Failed to save cache: %v", err)
				}
				for _, conv := range conversations {
					if err := a.cache.SaveConversation(conv); err != nil {
						internal.LogWarn("Failed to cache session %d: %v", conv.ID, err)
					}
				}
				return nil
			},
		},
	}
	if err := internal.ShowProgressWithSteps(ctx, steps); err != nil {
		return nil, err
	}
	return conversations, nil
}

// loadHistories fetches the histories of sessions concurrently. The result
// keeps the order of sessions.
func loadHistories(ctx context.Context, client *api.Client, sessions []internal.Session) ([]*internal.Conversation, error) {
	conversations := make([]*internal.Conversation, len(sessions))
	normalizer := internal.NewNormalizer()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyFetchLimit)
	for i, session := range sessions {
		g.Go(func() error {
			history, err := client.History(gctx, session.ID)
			if err != nil {
				return fmt.Errorf("session %d: %w", session.ID, err)
			}
			mu.Lock()
			defer mu.Unlock()
			conversations[i] = normalizer.NormalizeConversation(session, history)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return conversations, nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().StringVar(&exportMode, "mode", "", "Filter by session mode")
	exportCmd.Flags().Int64Var(&exportID, "session-id", 0, "Export a specific session by ID")
	exportCmd.Flags().BoolVar(&exportCached, "cached", false, "Export cached transcripts without contacting the server")
	exportCmd.Flags().BoolVar(&clearCache, "clear-cache", false, "Clear the cache before running")
}
