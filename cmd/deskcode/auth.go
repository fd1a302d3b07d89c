package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAuthCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Store provider credentials on the server",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "login <provider>",
		Short: "Store an API key for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(root, func(ctx context.Context, c clientEnv) error {
				key, err := promptSecret(fmt.Sprintf("API key for %s: ", args[0]))
				if err != nil {
					return err
				}
				if key == "" {
					return fmt.Errorf("no key entered")
				}
				if err := c.client.SetAuth(ctx, args[0], key); err != nil {
					return err
				}
				fmt.Println("key stored")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "oauth <provider>",
		Short: "Start an OAuth authorization flow for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(root, func(ctx context.Context, c clientEnv) error {
				auth, err := c.client.AuthorizeOAuth(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println("open this URL to authorize:")
				fmt.Println("  " + auth.URL)
				if auth.Instructions != "" {
					fmt.Println(auth.Instructions)
				}
				return nil
			})
		},
	})

	return cmd
}

// promptSecret reads a line without echo when stdin is a terminal.
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
