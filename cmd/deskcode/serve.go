package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"deskcode/opencode"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run a local agent server in the foreground",
		Long: `Serve spawns the agent server for the project directory and keeps it
running until interrupted. Useful for attaching multiple deskcode instances
to one server via --server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}

			binary, err := opencode.LookupBinary(ctx, "")
			if err != nil {
				return err
			}
			fmt.Printf("opencode %s (%s)\n", binary.Version, binary.Path)

			server := opencode.NewServer()
			info, err := server.Start(ctx, opencode.ServerConfig{
				ProjectPath: cfg.ProjectPath,
				APIKeys:     cfg.APIKeys,
			})
			if err != nil {
				return err
			}
			defer server.Stop()

			fmt.Printf("agent server running at %s (project %s)\n", info.URL, info.ProjectPath)
			<-ctx.Done()
			return nil
		},
	}
}
