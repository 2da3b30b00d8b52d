package cli

import (
	"github.com/spf13/cobra"

	"github.com/codegate-dev/codegate/pkg/sdd"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the active spec-change session",
}

var sessionOpenCmd = &cobra.Command{
	Use:   "open <change-id>",
	Short: "Open a session for a spec change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := sdd.NewSessionStore(repoRoot).Open(args[0], sdd.DefaultTTL)
		if err != nil {
			return err
		}
		return printJSON(cmd, session)
	},
}

var sessionRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Extend the active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := sdd.NewSessionStore(repoRoot).Refresh(sdd.DefaultTTL)
		if err != nil {
			return err
		}
		return printJSON(cmd, session)
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sdd.NewSessionStore(repoRoot).Close()
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := sdd.NewSessionStore(repoRoot).Read()
		if err != nil {
			return err
		}
		return printJSON(cmd, session)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionOpenCmd, sessionRefreshCmd, sessionCloseCmd, sessionStatusCmd)
}
