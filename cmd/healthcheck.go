package cmd

import (
	"fmt"
	"time"

	"github.com/iksnae/copilot-session/internal"
	"github.com/iksnae/copilot-session/internal/auth"
	"github.com/spf13/cobra"
)

var (
	healthcheckDetails bool
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check configuration, local state and backend reachability",
	Long: `Check the health of copilot-session by verifying:
  • Configuration resolution
  • State database accessibility
  • Backend reachability
  • Stored login

This command is useful for debugging connection issues, especially in CI/CD environments.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, sectionStyle.Render("🔍 Copilot Session Health Check"))
		_, _ = fmt.Fprintln(out)

		// Step 1: Configuration
		_, _ = fmt.Fprintln(out, infoStyle.Render("Step 1: Resolving configuration..."))
		cfg, err := loadConfig()
		if err != nil {
			_, _ = fmt.Fprintln(out, errorStyle.Render("❌ Invalid configuration:"), err)
			return fmt.Errorf("health check failed: %w", err)
		}
		_, _ = fmt.Fprintln(out, successStyle.Render("✅ Configuration loaded"))
		if healthcheckDetails {
			_, _ = fmt.Fprintf(out, "   Base URL:  %s\n", cfg.BaseURL)
			_, _ = fmt.Fprintf(out, "   Transport: %s\n", cfg.Transport)
			_, _ = fmt.Fprintf(out, "   Timeout:   %s\n", cfg.Timeout)
			_, _ = fmt.Fprintf(out, "   Cache dir: %s\n", cfg.CacheDir)
		}
		_, _ = fmt.Fprintln(out)

		// Step 2: State database
		_, _ = fmt.Fprintln(out, infoStyle.Render("Step 2: Opening state database..."))
		a, err := newOfflineApp(cmd.Context())
		if err != nil {
			_, _ = fmt.Fprintln(out, errorStyle.Render("❌ Failed to open state database:"), err)
			return fmt.Errorf("health check failed: %w", err)
		}
		defer a.close()
		_, _ = fmt.Fprintln(out, successStyle.Render("✅ State database ready"))
		if healthcheckDetails {
			if paths, err := internal.GetStatePaths(a.cfg.StateDir); err == nil {
				_, _ = fmt.Fprintf(out, "   Database: %s\n", paths.StateDBPath())
			}
		}
		_, _ = fmt.Fprintln(out)

		// Step 3: Backend
		_, _ = fmt.Fprintln(out, infoStyle.Render("Step 3: Contacting backend..."))
		start := time.Now()
		reachable := true
		if err := a.client.Health(cmd.Context()); err != nil {
			reachable = false
			_, _ = fmt.Fprintln(out, errorStyle.Render("❌ Backend unreachable:"), err)
		} else {
			_, _ = fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Backend healthy (%s)", time.Since(start).Round(time.Millisecond))))
		}
		_, _ = fmt.Fprintln(out)

		// Step 4: Login. Restoring needs the backend; an unreachable one
		// would log the user out.
		_, _ = fmt.Fprintln(out, infoStyle.Render("Step 4: Checking stored login..."))
		loggedIn := false
		token, err := internal.NewStorage(a.db).LoadToken()
		switch {
		case err != nil:
			_, _ = fmt.Fprintln(out, warningStyle.Render("⚠️  Failed to read stored token:"), err)
		case token == "":
			_, _ = fmt.Fprintln(out, warningStyle.Render("⚠️  Not logged in"))
		case !reachable:
			_, _ = fmt.Fprintln(out, warningStyle.Render("⚠️  Token stored, not verified while the backend is unreachable"))
		default:
			if err := a.auth.Restore(cmd.Context()); err != nil || !a.auth.Authenticated() {
				_, _ = fmt.Fprintln(out, warningStyle.Render("⚠️  Stored token was rejected, log in again"))
				break
			}
			loggedIn = true
			_, _ = fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Logged in as %s", a.username())))
		}
		if healthcheckDetails && token != "" {
			if claims, err := auth.TokenClaims(token); err == nil && claims.ExpiresAt != nil {
				_, _ = fmt.Fprintf(out, "   Token expires: %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
			}
		}
		_, _ = fmt.Fprintln(out)

		// Summary
		_, _ = fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		_, _ = fmt.Fprintln(out)

		switch {
		case reachable && loggedIn:
			_, _ = fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
			_, _ = fmt.Fprintln(out, successStyle.Render("   • Backend: Reachable"))
			_, _ = fmt.Fprintln(out, successStyle.Render("   • Login: Valid"))
			return nil
		case reachable:
			_, _ = fmt.Fprintln(out, warningStyle.Render("⚠️  Backend reachable but not logged in"))
			_, _ = fmt.Fprintln(out, "   • Run `copilot-session login` to start chatting")
			return nil
		default:
			_, _ = fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
			_, _ = fmt.Fprintf(out, "   • Cannot reach %s\n", a.cfg.BaseURL)
			if sessions, err := a.cache.CachedSessions(); err == nil && len(sessions) > 0 && a.checkCache() == nil {
				_, _ = fmt.Fprintf(out, "   • %d cached session(s) are available with --cached\n", len(sessions))
			}
			return fmt.Errorf("health check failed: backend unreachable")
		}
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckDetails, "details", "d", false, "Show detailed diagnostic information")
}
