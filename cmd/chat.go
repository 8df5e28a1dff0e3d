package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/iksnae/copilot-session/internal"
	"github.com/iksnae/copilot-session/internal/api"
	"github.com/iksnae/copilot-session/internal/stream"
	"github.com/spf13/cobra"
)

var (
	chatSession  int64
	chatNew      bool
	chatNoStream bool
	chatMode     string
	chatRAG      bool
	chatCopy     bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message and stream the reply",
	Long: `Send a message and print the assistant's reply as it arrives.

Without --session or --new the turn runs outside any saved session.
Ctrl-C stops the reply and keeps what was received so far.

--mode and --rag send the message without streaming, as does a mode other
than chat set in config.yaml.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")
		if chatMode != "" && !internal.ValidChatMode(chatMode) {
			return fmt.Errorf("unknown mode %q (supported: %s)", chatMode, strings.Join(internal.ChatModes, ", "))
		}
		if chatSession != 0 && chatNew {
			return fmt.Errorf("--session and --new are mutually exclusive")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		session, err := openChatSession(ctx, a, message)
		if err != nil {
			return err
		}
		var sessionID int64
		if session != nil {
			sessionID = session.ID
			defer a.cacheConversation(*session)
		}

		ctrl, err := a.controller()
		if err != nil {
			return err
		}

		mode := chatMode
		if mode == "" && a.cfg.Mode != internal.ModeChat {
			mode = a.cfg.Mode
		}

		out := cmd.OutOrStdout()
		var reply string
		if chatNoStream || mode != "" || chatRAG {
			reply, err = sendWhole(ctx, ctrl, sessionID, mode, message, out)
		} else {
			reply, err = streamReply(ctx, ctrl, sessionID, message, out)
		}
		if err != nil {
			return err
		}

		if chatCopy && reply != "" {
			if err := clipboard.WriteAll(reply); err != nil {
				internal.LogWarn("Failed to copy reply to clipboard: %v", err)
			} else {
				internal.PrintInfo("Reply copied to clipboard")
			}
		}
		return nil
	},
}

// openChatSession selects or creates the session the turn belongs to. nil
// means the turn runs outside any saved session.
func openChatSession(ctx context.Context, a *app, message string) (*internal.Session, error) {
	switch {
	case chatNew:
		session, err := a.store.CreateSessionWithMode(ctx, sessionTitle(message), chatMode)
		if err != nil {
			return nil, err
		}
		if err := a.store.SelectSession(ctx, session.ID); err != nil {
			return nil, err
		}
		internal.LogInfo("Created session %d", session.ID)
		return session, nil
	case chatSession != 0:
		session, err := a.store.GetSession(ctx, chatSession)
		if err != nil {
			return nil, err
		}
		if err := a.store.SelectSession(ctx, chatSession); err != nil {
			return nil, err
		}
		return session, nil
	default:
		return nil, nil
	}
}

// sessionTitle derives a title from the first line of message
func sessionTitle(message string) string {
	title := strings.TrimSpace(strings.SplitN(message, "\n", 2)[0])
	if r := []rune(title); len(r) > 40 {
		title = string(r[:37]) + "..."
	}
	return title
}

// streamReply prints fragments as they arrive and waits for the handle to stop
func streamReply(ctx context.Context, ctrl *stream.Controller, sessionID int64, message string, out io.Writer) (string, error) {
	var failure error
	h, err := ctrl.Submit(ctx, sessionID, message, stream.Callbacks{
		OnFragment: func(text string) {
			_, _ = fmt.Fprint(out, text)
		},
		OnError: func(err error) {
			failure = err
		},
	})
	if err != nil {
		return "", err
	}

	<-h.Done()
	_, _ = fmt.Fprintln(out)

	switch h.State() {
	case stream.StateCompleted:
		return h.Content(), nil
	case stream.StateErrored:
		if internal.IsUnauthorized(failure) {
			return "", fmt.Errorf("%w, run `copilot-session login` again", failure)
		}
		if partial := h.Content(); partial != "" {
			internal.LogWarn("Reply interrupted after %d characters", len(partial))
		}
		return "", failure
	default:
		if h.Err() != nil {
			internal.LogWarn("Reply stopped: %v", h.Err())
		} else {
			internal.PrintWarning("Reply cancelled")
		}
		return h.Content(), nil
	}
}

// sendWhole sends message without streaming and prints the full reply
func sendWhole(ctx context.Context, ctrl *stream.Controller, sessionID int64, mode, message string, out io.Writer) (string, error) {
	var (
		reply *api.ChatReply
		err   error
	)
	progress := "Waiting for reply"
	switch {
	case chatRAG:
		progress = "Searching the knowledge base"
		err = internal.ShowProgress(ctx, progress, func() error {
			reply, err = ctrl.RAGChat(ctx, sessionID, message)
			return err
		})
	case mode != "":
		err = internal.ShowProgress(ctx, progress, func() error {
			reply, err = ctrl.ChatWithMode(ctx, sessionID, mode, message)
			return err
		})
	default:
		err = internal.ShowProgress(ctx, progress, func() error {
			reply, err = ctrl.Chat(ctx, sessionID, message)
			return err
		})
	}
	if err != nil {
		return "", err
	}

	_, _ = fmt.Fprintln(out, reply.Reply)
	if reply.Context != "" {
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, sectionStyle.Render("Sources"))
		_, _ = fmt.Fprintln(out, infoStyle.Render(wrapText(reply.Context, 80)))
	}
	return reply.Reply, nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().Int64VarP(&chatSession, "session", "s", 0, "Session to chat in")
	chatCmd.Flags().BoolVar(&chatNew, "new", false, "Create a new session titled after the message")
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "Wait for the whole reply instead of streaming")
	chatCmd.Flags().StringVar(&chatMode, "mode", "", "Task mode (code_generate, code_explain, code_optimize, code_vuln, code_test)")
	chatCmd.Flags().BoolVar(&chatRAG, "rag", false, "Answer from the knowledge base")
	chatCmd.Flags().BoolVar(&chatCopy, "copy", false, "Copy the reply to the clipboard")
}
