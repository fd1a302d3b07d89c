// Package render provides ANSI-colored terminal rendering of a reconciled
// conversation transcript.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"deskcode/chat"
)

// ANSI color codes - chosen to work on both light and dark backgrounds
const (
	colorReset   = "\x1b[0m"
	colorDim     = "\x1b[2m"
	colorBold    = "\x1b[1m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// Renderer writes transcript snapshots and streaming deltas to a terminal.
type Renderer struct {
	out     io.Writer
	mu      sync.Mutex
	printed map[string]int // message id → rendered content length
	verbose bool
	noColor bool
}

// NewRenderer creates a renderer writing to out. If verbose is true, tool
// inputs and outputs are shown in full. If noColor is true (or out is not
// a terminal), ANSI codes are suppressed.
func NewRenderer(out io.Writer, verbose, noColor bool) *Renderer {
	if !noColor {
		noColor = !isTerminal(out)
	}
	return &Renderer{
		out:     out,
		verbose: verbose,
		noColor: noColor,
		printed: make(map[string]int),
	}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

func (r *Renderer) color(c string) string {
	if r.noColor {
		return ""
	}
	return c
}

// Transcript prints a full conversation snapshot, message by message.
func (r *Renderer) Transcript(messages []chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range messages {
		r.message(m)
	}
	r.printed = make(map[string]int)
}

// StreamDelta prints the unseen suffix of the active assistant message's
// text. Safe to call on every update signal: already-printed content is
// tracked per message id and not repeated.
func (r *Renderer) StreamDelta(m chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := r.printed[m.ID]
	if len(m.Content) <= seen {
		return
	}
	fmt.Fprint(r.out, m.Content[seen:])
	r.printed[m.ID] = len(m.Content)
}

// FinishStream ends the streamed message with a newline and forgets its
// progress tracking.
func (r *Renderer) FinishStream(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.printed[messageID]; ok {
		fmt.Fprintln(r.out)
		delete(r.printed, messageID)
	}
}

// SessionHeader prints the selected session's identity line.
func (r *Renderer) SessionHeader(s chat.Session, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	title := s.Title
	if title == "" {
		title = s.ID
	}
	fmt.Fprintf(r.out, "%s[session=%s model=%s]%s\n",
		r.color(colorGray), title, model, r.color(colorReset))
}

// Error prints a user-visible error line.
func (r *Renderer) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%serror:%s %s\n", r.color(colorRed), r.color(colorReset), msg)
}

// Status prints a dim status line.
func (r *Renderer) Status(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s%s%s\n", r.color(colorDim), msg, r.color(colorReset))
}

func (r *Renderer) message(m chat.Message) {
	switch m.Role {
	case chat.RoleUser:
		fmt.Fprintf(r.out, "%s> %s%s\n", r.color(colorBold), m.Content, r.color(colorReset))
	case chat.RoleAssistant:
		for _, p := range m.Parts {
			r.part(p)
		}
		if m.Status == chat.StatusError {
			fmt.Fprintf(r.out, "%s[turn failed]%s\n", r.color(colorRed), r.color(colorReset))
		}
		fmt.Fprintln(r.out)
	}
}

func (r *Renderer) part(p chat.Part) {
	switch p.Type {
	case chat.PartText:
		fmt.Fprintln(r.out, p.Content)

	case chat.PartReasoning:
		if r.verbose {
			fmt.Fprintf(r.out, "%s%s%s\n", r.color(colorGray), p.Content, r.color(colorReset))
		}

	case chat.PartToolInvocation:
		fmt.Fprintf(r.out, "%s⚙ %s (%s)%s\n",
			r.color(colorYellow), p.ToolName, p.ToolStatus, r.color(colorReset))
		if r.verbose && p.ToolInput != "" {
			fmt.Fprintln(r.out, indent(p.ToolInput))
		}

	case chat.PartToolResult:
		if p.ToolStatus == "error" {
			fmt.Fprintf(r.out, "%s✗ %s: %s%s\n",
				r.color(colorRed), p.ToolName, p.ToolError, r.color(colorReset))
			return
		}
		fmt.Fprintf(r.out, "%s✓ %s%s\n", r.color(colorGreen), p.ToolName, r.color(colorReset))
		if r.verbose && p.ToolOutput != "" {
			fmt.Fprintln(r.out, indent(p.ToolOutput))
		}
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
