// Command deskcode is a terminal chat client for a locally running OpenCode
// agent server.
//
// Commands:
//   - chat: interactive conversation with streamed responses
//   - sessions: list, rename, and delete sessions
//   - models: list providers and models the server can dispatch to
//   - auth: store provider credentials on the server
//   - serve: run a local agent server in the foreground
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"deskcode/config"
	"deskcode/opencode"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	serverURL  string
	project    string
	model      string
	verbose    bool
}

func main() {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "deskcode",
		Short: "Terminal chat client for an OpenCode agent server",
		Long: `deskcode proxies conversation turns to a locally running agent server
and renders the streamed responses (text, reasoning, tool activity) as they
arrive.

With --server it attaches to an already running server; otherwise it spawns
one for the project directory.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default: user config dir)")
	pf.StringVar(&flags.serverURL, "server", "", "URL of a running agent server")
	pf.StringVar(&flags.project, "project", "", "project directory for a spawned server")
	pf.StringVar(&flags.model, "model", "", "model reference, provider/model")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "show reasoning and tool detail")

	rootCmd.AddCommand(newChatCmd(flags))
	rootCmd.AddCommand(newSessionsCmd(flags))
	rootCmd.AddCommand(newModelsCmd(flags))
	rootCmd.AddCommand(newAuthCmd(flags))
	rootCmd.AddCommand(newServeCmd(flags))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and folds command-line overrides in.
func loadConfig(flags *rootFlags) (config.Config, error) {
	path := flags.configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if flags.serverURL != "" {
		cfg.ServerURL = flags.serverURL
	}
	if flags.project != "" {
		cfg.ProjectPath = flags.project
	}
	if flags.model != "" {
		cfg.Model = flags.model
	}
	if cfg.ProjectPath == "" {
		cfg.ProjectPath, _ = os.Getwd()
	}
	return cfg, nil
}

// connect returns a client for the configured server, spawning a local one
// when no URL is configured. The returned cleanup stops a spawned server
// and is a no-op otherwise.
func connect(ctx context.Context, cfg config.Config) (*opencode.Client, func(), error) {
	if cfg.ServerURL != "" {
		client, err := opencode.NewClient(cfg.ServerURL)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}

	server := opencode.NewServer()
	info, err := server.Start(ctx, opencode.ServerConfig{
		ProjectPath: cfg.ProjectPath,
		APIKeys:     cfg.APIKeys,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start agent server: %w", err)
	}

	client, err := opencode.NewClient(info.URL)
	if err != nil {
		server.Stop()
		return nil, nil, err
	}
	return client, func() {
		if err := server.Stop(); err != nil {
			slog.Warn("stop agent server", "error", err)
		}
	}, nil
}
