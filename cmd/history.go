package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/copilot-session/internal"
	"github.com/spf13/cobra"
)

var (
	limit         int
	since         string
	historyCached bool
	historyRender bool
)

var (
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:     "history <session-id>",
	Aliases: []string{"show"},
	Short:   "Show the transcript of a session",
	Long: `Load a session's history and display it.

The transcript is cached after loading; --cached shows the cached copy
without contacting the server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}

		var sinceTime time.Time
		if since != "" {
			sinceTime, err = time.Parse(time.RFC3339, since)
			if err != nil {
				return fmt.Errorf("invalid --since timestamp format (expected RFC3339): %w", err)
			}
		}

		open := newApp
		if historyCached {
			open = newOfflineApp
		}
		a, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		var conv *internal.Conversation
		if historyCached {
			if err := a.checkCache(); err != nil {
				return err
			}
			conv, err = a.cache.LoadConversation(id)
			if err != nil {
				return fmt.Errorf("session %d is not cached: %w", id, err)
			}
			internal.LogInfo("Showing cached copy of session %d", id)
		} else {
			conv, err = loadConversation(cmd, a, id)
			if err != nil {
				return err
			}
			a.cacheConversation(conv.Session)
		}

		out := cmd.OutOrStdout()
		displaySessionHeader(out, conv)

		messagesToShow := conv.Messages
		if !sinceTime.IsZero() {
			filtered := make([]internal.Message, 0, len(messagesToShow))
			for _, msg := range messagesToShow {
				if !msg.CreatedAt.IsZero() && !msg.CreatedAt.Before(sinceTime) {
					filtered = append(filtered, msg)
				}
			}
			messagesToShow = filtered
		}

		totalFiltered := len(messagesToShow)
		if limit > 0 && limit < len(messagesToShow) {
			messagesToShow = messagesToShow[:limit]
		}

		var renderer *glamour.TermRenderer
		if historyRender {
			renderer, err = newMarkdownRenderer(out)
			if err != nil {
				internal.LogWarn("Markdown rendering unavailable: %v", err)
			}
		}

		for i, msg := range messagesToShow {
			displayMessage(out, renderer, i+1, msg, totalFiltered)
		}

		if limit > 0 && limit < totalFiltered {
			remaining := totalFiltered - limit
			_, _ = fmt.Fprintln(out)
			_, _ = fmt.Fprintln(out, lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Italic(true).
				Render(fmt.Sprintf("... (%d more message(s))", remaining)))
		}

		return nil
	},
}

// loadConversation selects a session in the store and returns it with its
// normalized transcript
func loadConversation(cmd *cobra.Command, a *app, id int64) (*internal.Conversation, error) {
	if err := a.requireLogin(); err != nil {
		return nil, err
	}

	var session *internal.Session
	err := internal.ShowProgressWithSteps(cmd.Context(), []internal.ProgressStep{
		{
			Message: fmt.Sprintf("Fetching session %d", id),
			Fn: func() error {
				var err error
				session, err = a.store.GetSession(cmd.Context(), id)
				return err
			},
		},
		{
			Message: "Loading history",
			Fn: func() error {
				return a.store.SelectSession(cmd.Context(), id)
			},
		},
	})
	if err != nil {
		return nil, err
	}

	messages, _ := a.store.Transcript(id)
	return &internal.Conversation{Session: *session, Messages: messages}, nil
}

// newMarkdownRenderer picks a glamour style for out
func newMarkdownRenderer(out io.Writer) (*glamour.TermRenderer, error) {
	if internal.IsTerminal(out) {
		return glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	}
	return glamour.NewTermRenderer(glamour.WithStylePath("notty"), glamour.WithWordWrap(80))
}

func displaySessionHeader(out io.Writer, conv *internal.Conversation) {
	if conv == nil {
		return
	}
	_, _ = fmt.Fprintln(out, sessionHeaderStyle.Render(fmt.Sprintf("💬 %s", conv.DisplayTitle())))

	metaParts := []string{fmt.Sprintf("Session: %d", conv.ID)}
	if !conv.CreatedAt.IsZero() {
		metaParts = append(metaParts, fmt.Sprintf("Created: %s", conv.CreatedAt.Format(time.RFC3339)))
	}
	metaParts = append(metaParts, fmt.Sprintf("Messages: %d", len(conv.Messages)))
	if conv.Mode != "" {
		metaParts = append(metaParts, fmt.Sprintf("Mode: %s", conv.Mode))
	}
	_, _ = fmt.Fprintln(out, sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	_, _ = fmt.Fprintln(out)
}

func displayMessage(out io.Writer, renderer *glamour.TermRenderer, index int, msg internal.Message, total int) {
	var actorStyle lipgloss.Style
	var actorLabel string

	switch msg.Role {
	case internal.RoleUser:
		actorStyle = userMessageStyle
		actorLabel = "👤 User"
	case internal.RoleAssistant:
		actorStyle = assistantMessageStyle
		actorLabel = "🤖 Assistant"
	default:
		actorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
		actorLabel = fmt.Sprintf("🔧 %s", msg.Role)
	}

	header := actorStyle.Render(actorLabel) + " " + timestampStyle.Render(fmt.Sprintf("[%d/%d]", index, total))
	if !msg.CreatedAt.IsZero() {
		header += " " + timestampStyle.Render(msg.CreatedAt.Local().Format("15:04:05"))
	}
	_, _ = fmt.Fprintln(out, header)

	content := strings.TrimSpace(msg.Content)
	switch {
	case content == "":
		_, _ = fmt.Fprintln(out, messageContentStyle.Foreground(lipgloss.Color("240")).Render("(empty message)"))
	case renderer != nil && msg.Role == internal.RoleAssistant:
		rendered, err := renderer.Render(content)
		if err != nil {
			internal.LogDebug("render message %d: %v", msg.ID, err)
			rendered = wrapText(content, 80)
		}
		_, _ = fmt.Fprint(out, rendered)
	default:
		_, _ = fmt.Fprintln(out, messageContentStyle.Render(wrapText(content, 80)))
	}

	_, _ = fmt.Fprintln(out)
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		words := strings.Fields(line)
		currentLine := ""
		for _, word := range words {
			if len(currentLine)+len(word)+1 > width {
				if currentLine != "" {
					wrapped = append(wrapped, currentLine)
				}
				currentLine = word
				continue
			}
			if currentLine == "" {
				currentLine = word
			} else {
				currentLine += " " + word
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of messages to show")
	historyCmd.Flags().StringVar(&since, "since", "", "Show messages since timestamp (RFC3339)")
	historyCmd.Flags().BoolVar(&historyCached, "cached", false, "Show the cached transcript without contacting the server")
	historyCmd.Flags().BoolVar(&historyRender, "render", false, "Render assistant replies as Markdown")
}
