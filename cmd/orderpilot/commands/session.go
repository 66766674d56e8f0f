package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orderpilot/orderpilot/pkg/creds"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage cached authentication state",
	}

	cmd.AddCommand(newSessionStatusCommand())
	cmd.AddCommand(newSessionClearCommand())

	return cmd
}

func newSessionStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether cached authentication state exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd.Root().Version)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			cache := creds.NewFileCache(a.cfg.Credentials.Path, a.cfg.Credentials.MaxAge)
			state, err := cache.Load(cmd.Context())
			if err != nil {
				return err
			}
			if len(state) == 0 {
				fmt.Println("No cached session state")
				return nil
			}
			fmt.Printf("Cached session state present (%d bytes)\n", len(state))
			return nil
		},
	}
}

func newSessionClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove cached authentication state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd.Root().Version)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			cache := creds.NewFileCache(a.cfg.Credentials.Path, a.cfg.Credentials.MaxAge)
			if err := cache.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Session state cleared")
			return nil
		},
	}
}
