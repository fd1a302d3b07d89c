package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"deskcode/chat"
	"deskcode/opencode"
	"deskcode/render"
)

type chatFlags struct {
	session     string
	permissions string
}

func newChatCmd(root *rootFlags) *cobra.Command {
	flags := &chatFlags{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Chat opens an interactive prompt against the agent server. Responses
stream in as they are produced, including tool activity.

Slash commands inside the prompt:
  /new             start a new session
  /sessions        list sessions
  /switch <id>     switch to a session
  /regen           regenerate the last response
  /abort           cancel the in-flight turn
  /model <ref>     change the model (provider/model)
  /quit            exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(root, flags)
		},
	}

	cmd.Flags().StringVar(&flags.session, "session", "", "resume an existing session id")
	cmd.Flags().StringVar(&flags.permissions, "permissions", "approve",
		"permission policy for agent actions: approve or deny")
	return cmd
}

func runChat(root *rootFlags, flags *chatFlags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	client, cleanup, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	r := render.NewRenderer(os.Stdout, root.verbose, false)

	conv := chat.NewConversation(client,
		chat.WithModel(cfg.Model, cfg.DefaultProvider),
		chat.WithSystemPrompt(cfg.SystemPrompt),
		chat.WithTurnTimeout(cfg.TurnTimeout()),
		chat.WithPermissionHandler(permissionPolicy(ctx, client, r, flags.permissions)),
	)

	if err := conv.Sessions().Refresh(ctx); err != nil {
		return err
	}
	if flags.session != "" {
		if err := conv.Sessions().SwitchTo(ctx, flags.session); err != nil {
			return err
		}
		r.Transcript(conv.Store().Messages())
	}

	go pumpEvents(ctx, client, conv, r)

	if session, ok := conv.Sessions().Current(); ok {
		r.SessionHeader(session, conv.Turns().Model())
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := replCommand(ctx, conv, r, line); quit {
				return nil
			}
			continue
		}

		if err := conv.Turns().SendMessage(ctx, line); err != nil {
			r.Error(err.Error())
			continue
		}
		waitForTurn(ctx, conv, r)
	}
}

// Reconnect delays for the event stream: doubling from one second, capped
// so an extended outage keeps probing.
const (
	streamRetryMin = time.Second
	streamRetryMax = 30 * time.Second
)

// nextRetryDelay doubles the previous reconnect delay up to the cap. A
// non-positive previous delay (fresh failure after a healthy stream) starts
// the sequence over.
func nextRetryDelay(prev time.Duration) time.Duration {
	if prev <= 0 {
		return streamRetryMin
	}
	next := prev * 2
	if next > streamRetryMax {
		return streamRetryMax
	}
	return next
}

// pumpEvents applies stream events serially and resubscribes with a full
// history reload after a dropped connection; missed events are not
// replayable. Resubscribe attempts back off so an unreachable server is
// probed, not hammered.
func pumpEvents(ctx context.Context, client *opencode.Client, conv *chat.Conversation, r *render.Renderer) {
	var delay time.Duration
	for {
		events, errs := client.Subscribe(ctx)
		for ev := range events {
			conv.Apply(ev)
			delay = 0
		}
		if err, ok := <-errs; ok && err != nil && ctx.Err() == nil {
			r.Status("event stream dropped, reconnecting")
		}
		if ctx.Err() != nil {
			return
		}

		delay = nextRetryDelay(delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if id, ok := conv.Sessions().CurrentID(); ok {
			if err := conv.Sessions().SwitchTo(ctx, id); err != nil && ctx.Err() == nil {
				r.Error(err.Error())
			}
		}
	}
}

// waitForTurn blocks until the in-flight turn resolves, streaming text
// deltas as they land in the store.
func waitForTurn(ctx context.Context, conv *chat.Conversation, r *render.Renderer) {
	var streamed string
	for conv.Loading() {
		select {
		case <-ctx.Done():
			return
		case <-conv.Updates():
			if active, ok := conv.ActiveMessage(); ok {
				streamed = active.ID
				r.StreamDelta(active)
			}
		}
	}
	if streamed != "" {
		if final, ok := conv.Store().Get(streamed); ok {
			r.StreamDelta(final)
		}
		r.FinishStream(streamed)
	}
	if msg := conv.LastError(); msg != "" {
		r.Error(msg)
	}
}

// replCommand handles a slash command; returns true on /quit.
func replCommand(ctx context.Context, conv *chat.Conversation, r *render.Renderer, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/new":
		if _, err := conv.Sessions().Create(ctx, arg); err != nil {
			r.Error(err.Error())
		} else if session, ok := conv.Sessions().Current(); ok {
			r.SessionHeader(session, conv.Turns().Model())
		}

	case "/sessions":
		for _, s := range conv.Sessions().List() {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			r.Status(fmt.Sprintf("%s  %s  %s", s.ID, s.UpdatedAt.Format("2006-01-02 15:04"), title))
		}

	case "/switch":
		if arg == "" {
			r.Error("usage: /switch <session-id>")
			break
		}
		if err := conv.Sessions().SwitchTo(ctx, arg); err != nil {
			r.Error(err.Error())
			break
		}
		r.Transcript(conv.Store().Messages())

	case "/regen":
		if err := conv.Turns().RegenerateLastMessage(ctx); err != nil {
			r.Error(err.Error())
			break
		}
		waitForTurn(ctx, conv, r)

	case "/abort":
		if err := conv.Turns().AbortSession(ctx); err != nil {
			r.Error(err.Error())
		}

	case "/model":
		if arg == "" {
			r.Status("model: " + conv.Turns().Model())
			break
		}
		conv.Turns().SetModel(arg)
		r.Status("model set to " + arg)

	default:
		r.Error("unknown command " + cmd)
	}
	return false
}

// permissionPolicy builds the approval collaborator for the chat loop. The
// REPL owns stdin, so approval is a policy decision rather than an
// interactive prompt: approve answers once, deny rejects.
func permissionPolicy(ctx context.Context, client *opencode.Client, r *render.Renderer, policy string) chat.PermissionHandler {
	reply := opencode.PermissionOnce
	if policy == "deny" {
		reply = opencode.PermissionReject
	}

	return chat.PermissionHandlerFunc(func(req opencode.PermissionRequest) {
		desc := req.Description
		if desc == "" {
			desc = req.Type
		}
		if req.Command != "" {
			desc += ": " + req.Command
		} else if req.Path != "" {
			desc += ": " + req.Path
		}
		r.Status(fmt.Sprintf("permission %s → %s", desc, reply))

		go func() {
			if err := client.RespondPermission(ctx, req.ID, reply); err != nil {
				r.Error("permission response failed: " + err.Error())
			}
		}()
	})
}
