package cli

import (
	"fmt"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mirono/webtrees/pkg/client"
)

var (
	userEmail    string
	userName     string
	userRealName string
	userPassword string
	userRole     string
	userLanguage string
	userSearch   string
	userRoleFlag string
	userPage     int
	userPageSize int
)

// NewUserCmd creates the user command covering accounts, sessions and the
// password-reset flow.
func NewUserCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts and sessions",
		Long:  "Create, list and administer accounts, log in and out, and drive the email based password-reset flow.",
	}

	loginCmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and print a bearer token",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserLogin,
	}
	loginCmd.Flags().StringVar(&userPassword, "password", "", "Password (prompted when omitted)")

	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the session behind the current token",
		RunE:  runUserWhoami,
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account (admin only)",
		RunE:  runUserCreate,
	}
	createCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	createCmd.Flags().StringVar(&userName, "username", "", "Login name (required)")
	createCmd.Flags().StringVar(&userRealName, "real-name", "", "Display name")
	createCmd.Flags().StringVar(&userPassword, "password", "", "Password (prompted when omitted)")
	createCmd.Flags().StringVar(&userRole, "role", "member", "Role: visitor|member|editor|moderator|manager|admin")
	createCmd.Flags().StringVar(&userLanguage, "language", "", "Preferred language tag")
	createCmd.MarkFlagRequired("email")
	createCmd.MarkFlagRequired("username")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts (admin only)",
		RunE:  runUserList,
	}
	listCmd.Flags().StringVar(&userSearch, "search", "", "Match against username, real name or email")
	listCmd.Flags().StringVar(&userRoleFlag, "role", "", "Filter by role")
	listCmd.Flags().IntVar(&userPage, "page", 1, "Page number")
	listCmd.Flags().IntVar(&userPageSize, "page-size", 20, "Results per page")

	getCmd := &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserGet,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete an account (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserDelete,
	}

	setPasswordCmd := &cobra.Command{
		Use:   "set-password <user-id>",
		Short: "Replace an account's password",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserSetPassword,
	}
	setPasswordCmd.Flags().StringVar(&userPassword, "password", "", "New password (prompted when omitted)")

	resetCmd := &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Request a password-reset email",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserResetPassword,
	}

	userCmd.AddCommand(loginCmd, whoamiCmd, createCmd, listCmd, getCmd, deleteCmd, setPasswordCmd, resetCmd)
	return userCmd
}

func runUserLogin(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	password, err := resolvePassword(cmd, userPassword)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	session, err := cliCtx.Client.Auth().Login(ctx, args[0], password)
	if err != nil {
		return err
	}
	if cliCtx.OutputFormat == "json" {
		return PrintResult(cmd, session)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s), session expires %s.\n",
		session.User.Username, session.User.Role, session.ExpiresAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(cmd.OutOrStdout(), "export WEBTREES_TOKEN=%s\n", session.Token)
	return nil
}

func runUserWhoami(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	info, err := cliCtx.Client.Auth().CurrentSession(ctx)
	if err != nil {
		return err
	}
	return PrintResult(cmd, info)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	password, err := resolvePassword(cmd, userPassword)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	user, err := cliCtx.Client.Users().Register(ctx, &client.RegisterUserRequest{
		Email:    userEmail,
		Username: userName,
		RealName: userRealName,
		Password: password,
		Role:     userRole,
		Language: userLanguage,
	})
	if err != nil {
		return err
	}
	if cliCtx.OutputFormat == "json" {
		return PrintResult(cmd, user)
	}
	PrintSuccess(cmd, fmt.Sprintf("created user %s (%s)", user.Username, user.ID))
	return nil
}

// userList adapts accounts for table output.
type userList []client.User

func (ul userList) TableHeaders() []string {
	return []string{"ID", "USERNAME", "REAL NAME", "EMAIL", "ROLE", "STATUS"}
}

func (ul userList) TableRows() [][]string {
	rows := make([][]string, 0, len(ul))
	for _, u := range ul {
		rows = append(rows, []string{u.ID, u.Username, u.RealName, u.Email, u.Role, u.Status})
	}
	return rows
}

func runUserList(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	users, page, err := cliCtx.Client.Users().List(ctx, client.UserListOptions{
		Search: userSearch,
		Role:   userRoleFlag,
		Page:   client.Pagination{Page: userPage, PageSize: userPageSize},
	})
	if err != nil {
		return err
	}
	if cliCtx.OutputFormat != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "Page %d of %d (%d users)\n",
			page.Page, page.TotalPages, page.Total)
	}
	return PrintResult(cmd, userList(users))
}

func runUserGet(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	user, err := cliCtx.Client.Users().Get(ctx, args[0])
	if err != nil {
		return err
	}
	return PrintResult(cmd, user)
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	if err := cliCtx.Client.Users().Delete(ctx, args[0]); err != nil {
		return err
	}
	PrintSuccess(cmd, "deleted user "+args[0])
	return nil
}

func runUserSetPassword(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	password, err := resolvePassword(cmd, userPassword)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	if err := cliCtx.Client.Users().SetPassword(ctx, args[0], password); err != nil {
		return err
	}
	PrintSuccess(cmd, "password updated for user "+args[0])
	return nil
}

func runUserResetPassword(cmd *cobra.Command, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	if err := cliCtx.Client.Auth().RequestPasswordReset(ctx, args[0]); err != nil {
		return err
	}
	PrintSuccess(cmd, "if "+args[0]+" belongs to an account, a reset link is on its way")
	return nil
}

// resolvePassword returns the flag value or prompts on the terminal. A
// non-terminal stdin reads one line instead, so scripts can pipe the
// password in.
func resolvePassword(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if term.IsTerminal(int(syscall.Stdin)) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}
	var password string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &password); err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

func parseTreeID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid tree id %q", value)
	}
	return id, nil
}
