package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/copilot-session/internal"
	"github.com/spf13/cobra"
)

var (
	sessionsCached     bool
	sessionsClearCache bool
	createMode         string
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"list"},
	Short:   "List your chat sessions",
	Long: `List your chat sessions, newest first.

The list is cached locally; --cached shows the cached list without
contacting the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		open := newApp
		if sessionsCached {
			open = newOfflineApp
		}
		a, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if sessionsClearCache {
			if err := a.cache.ClearCache(); err != nil {
				internal.LogWarn("Failed to clear cache: %v", err)
			} else {
				internal.LogInfo("Cache cleared")
			}
		}

		if sessionsCached {
			if err := a.checkCache(); err != nil {
				return err
			}
			index, err := a.cache.LoadIndex()
			if err != nil {
				return fmt.Errorf("failed to load cache: %w", err)
			}
			counts := make(map[int64]int, len(index.Sessions))
			sessions := make([]internal.Session, 0, len(index.Sessions))
			for _, entry := range index.Sessions {
				counts[entry.ID] = entry.MessageCount
				sessions = append(sessions, internal.Session{
					ID:        entry.ID,
					Title:     entry.Title,
					Mode:      entry.Mode,
					CreatedAt: entry.CreatedAt,
					UpdatedAt: entry.UpdatedAt,
				})
			}
			displaySessions(cmd.OutOrStdout(), sessions, counts, time.Now())
			return nil
		}

		if err := a.requireLogin(); err != nil {
			return err
		}
		sessions, err := a.store.ListSessions(cmd.Context())
		if err != nil {
			return err
		}

		if a.claimCache() {
			if err := a.cache.SaveSessions(sessions, a.cfg.BaseURL, a.username()); err != nil {
				internal.LogWarn("Failed to cache session list: %v", err)
			}
		}
		displaySessions(cmd.OutOrStdout(), sessions, nil, time.Now())
		return nil
	},
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if createMode != "" && !internal.ValidChatMode(createMode) {
			return fmt.Errorf("unknown mode %q (supported: %s)", createMode, strings.Join(internal.ChatModes, ", "))
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		title := ""
		if len(args) > 0 {
			title = args[0]
		}
		session, err := a.store.CreateSessionWithMode(cmd.Context(), title, createMode)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✅ Created session %d (%s)", session.ID, session.DisplayTitle())))
		return nil
	},
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <session-id> <title>",
	Short: "Rename a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		session, err := a.store.RenameSession(cmd.Context(), id, args[1])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✅ Renamed session %d to %s", session.ID, session.DisplayTitle())))
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		if err := a.store.DeleteSession(cmd.Context(), id); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✅ Deleted session %d", id)))
		return nil
	},
}

func parseSessionID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid session id %q", raw)
	}
	return id, nil
}

// displaySessions prints the session table. counts holds cached message
// counts and may be nil.
func displaySessions(out io.Writer, sessions []internal.Session, counts map[int64]int, now time.Time) {
	if len(sessions) == 0 {
		_, _ = fmt.Fprintln(out, headerStyle.Render("📋 No sessions found"))
		return
	}

	_, _ = fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📋 Found %d session(s)", len(sessions))))
	_, _ = fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	columns := []string{"ID", "Title", "Mode", "Updated"}
	if counts != nil {
		columns = append(columns, "Messages")
	}
	for _, c := range columns {
		_, _ = fmt.Fprint(w, titleStyle.Render(c)+"\t")
	}
	_, _ = fmt.Fprintln(w)

	for _, s := range sessions {
		title := s.DisplayTitle()
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		mode := s.Mode
		if mode == "" {
			mode = "—"
		}
		when := s.UpdatedAt
		if when.IsZero() {
			when = s.CreatedAt
		}

		row := []string{
			idStyle.Render(strconv.FormatInt(s.ID, 10)),
			lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Render(title),
			modeStyle.Render(mode),
			dateStyle.Render(formatWhen(when, now)),
		}
		if counts != nil {
			row = append(row, countStyle.Render(strconv.Itoa(counts[s.ID])))
		}
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t")+"\t")
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, idStyle.Render("💡 Tip: Use the ID (e.g., ")+
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render(strconv.FormatInt(sessions[0].ID, 10))+
		idStyle.Render(") with `copilot-session history <id>` or `chat --session <id>`"))
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd, sessionsRenameCmd, sessionsDeleteCmd)

	sessionsCmd.Flags().BoolVar(&sessionsCached, "cached", false, "Show the cached list without contacting the server")
	sessionsCmd.Flags().BoolVar(&sessionsClearCache, "clear-cache", false, "Clear the cache before running")
	sessionsCreateCmd.Flags().StringVar(&createMode, "mode", "", "Session mode (chat, code_generate, code_explain, ...)")
}
