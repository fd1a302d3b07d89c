package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"deskcode/opencode"
)

// clientEnv bundles what a one-shot command needs.
type clientEnv struct {
	client *opencode.Client
}

// withClient runs fn against a connected client, handling config load,
// server spawn, and cleanup.
func withClient(root *rootFlags, fn func(ctx context.Context, c clientEnv) error) error {
	ctx := context.Background()

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	client, cleanup, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(ctx, clientEnv{client: client})
}

func newModelsCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available providers and models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(root, func(ctx context.Context, c clientEnv) error {
				resp, err := c.client.Providers(ctx)
				if err != nil {
					return err
				}
				for _, p := range resp.Providers {
					for _, m := range p.Models {
						marker := " "
						if p.ID+"/"+m.ID == resp.Default {
							marker = "*"
						}
						fmt.Printf("%s %s/%s\n", marker, p.ID, m.ID)
					}
				}
				return nil
			})
		},
	}
}
