package cmd

import (
	"fmt"
	"time"

	"github.com/iksnae/copilot-session/internal/api"
	"github.com/iksnae/copilot-session/internal/auth"
	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginPassword string

	registerNickname string
	registerEmail    string

	profileNickname string
	profileEmail    string

	oldPassword string
	newPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and remember the token",
	Long: `Log in with username and password. The token is stored in the local
state database so later commands stay logged in.

The password is read from stdin when --password is not given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		password, err := readSecret(loginPassword, "Password: ")
		if err != nil {
			return err
		}

		result, err := a.auth.Login(cmd.Context(), loginUsername, password)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Logged in as %s", result.User.DisplayName())))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		a.auth.Logout()
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✅ Logged out"))
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create an account",
	Long:  `Create an account. Registration does not log you in; run login afterwards.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		password, err := readSecret(loginPassword, "Password: ")
		if err != nil {
			return err
		}

		profile, err := a.auth.Register(cmd.Context(), api.RegisterRequest{
			Username: args[0],
			Password: password,
			Nickname: registerNickname,
			Email:    registerEmail,
		})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✅ Registered %s", profile.Username)))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		cred := a.auth.Credential()
		if cred.Empty() {
			_, _ = fmt.Fprintln(out, warningStyle.Render("⚠️  Not logged in"))
			return nil
		}
		if cred.Profile == nil {
			return fmt.Errorf("profile could not be resolved")
		}

		p := cred.Profile
		_, _ = fmt.Fprintln(out, titleStyle.Render(p.DisplayName()))
		_, _ = fmt.Fprintf(out, "   Username: %s\n", p.Username)
		_, _ = fmt.Fprintf(out, "   ID:       %d\n", p.ID)
		if p.Email != "" {
			_, _ = fmt.Fprintf(out, "   Email:    %s\n", p.Email)
		}
		if claims, err := auth.TokenClaims(cred.Token); err == nil && claims.ExpiresAt != nil {
			_, _ = fmt.Fprintf(out, "   Expires:  %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
		}
		_, _ = fmt.Fprintf(out, "   Server:   %s\n", a.cfg.BaseURL)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your profile",
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change nickname and email",
	RunE: func(cmd *cobra.Command, args []string) error {
		if profileNickname == "" && profileEmail == "" {
			return fmt.Errorf("nothing to update, pass --nickname and/or --email")
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		nickname, email := profileNickname, profileEmail
		if current := a.auth.Profile(); current != nil {
			if nickname == "" {
				nickname = current.Nickname
			}
			if email == "" {
				email = current.Email
			}
		}

		profile, err := a.auth.UpdateProfile(cmd.Context(), nickname, email)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✅ Profile updated for %s", profile.DisplayName())))
		return nil
	},
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change your password",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireLogin(); err != nil {
			return err
		}

		current, err := readSecret(oldPassword, "Current password: ")
		if err != nil {
			return err
		}
		next, err := readSecret(newPassword, "New password: ")
		if err != nil {
			return err
		}

		if err := a.auth.ChangePassword(cmd.Context(), current, next); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✅ Password changed"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, registerCmd, whoamiCmd, profileCmd, passwordCmd)
	profileCmd.AddCommand(profileUpdateCmd)

	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (read from stdin when omitted)")
	_ = loginCmd.MarkFlagRequired("username")

	registerCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (read from stdin when omitted)")
	registerCmd.Flags().StringVar(&registerNickname, "nickname", "", "Display name")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "Email address")

	profileUpdateCmd.Flags().StringVar(&profileNickname, "nickname", "", "New display name")
	profileUpdateCmd.Flags().StringVar(&profileEmail, "email", "", "New email address")

	passwordCmd.Flags().StringVar(&oldPassword, "old", "", "Current password (read from stdin when omitted)")
	passwordCmd.Flags().StringVar(&newPassword, "new", "", "New password (read from stdin when omitted)")
}
