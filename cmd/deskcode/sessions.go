package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(root, func(ctx context.Context, c clientEnv) error {
				sessions, err := c.client.ListSessions(ctx)
				if err != nil {
					return err
				}
				for _, s := range sessions {
					title := s.Title
					if title == "" {
						title = "(untitled)"
					}
					updated := time.UnixMilli(s.Time.Updated).Format("2006-01-02 15:04")
					fmt.Printf("%s  %s  %s\n", s.ID, updated, title)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(root, func(ctx context.Context, c clientEnv) error {
				return c.client.DeleteSession(ctx, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <session-id> <title>",
		Short: "Rename a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(root, func(ctx context.Context, c clientEnv) error {
				_, err := c.client.UpdateSessionTitle(ctx, args[0], args[1])
				return err
			})
		},
	})

	return cmd
}
