package opencode

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"deskcode/opencode/internal/procattr"
)

// apiKeyEnv maps provider ids to the environment variable the server reads
// their API key from.
var apiKeyEnv = map[string]string{
	"openrouter": "OPENROUTER_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"google":     "GOOGLE_API_KEY",
}

// ServerConfig controls how the local agent server is spawned.
type ServerConfig struct {
	// ProjectPath is the working directory the server operates on.
	ProjectPath string

	// Binary is the server executable. Defaults to "opencode".
	Binary string

	// APIKeys maps provider ids to keys exported into the server's
	// environment. Unknown provider ids are skipped.
	APIKeys map[string]string

	// ReadyTimeout bounds the wait for the HTTP endpoint to come up.
	// Defaults to 30 seconds.
	ReadyTimeout time.Duration
}

// ServerInfo describes a running (or stopped) local server.
type ServerInfo struct {
	URL         string
	ProjectPath string
	Port        int
	Running     bool
}

// Server manages the lifecycle of a locally spawned agent server process.
// A single Server value can be restarted across different project paths;
// starting it for the path it is already serving is a no-op that returns
// the running instance's info.
type Server struct {
	mu          sync.Mutex
	cmd         *exec.Cmd
	projectPath string
	port        int
	running     bool
}

// NewServer returns an unstarted server manager.
func NewServer() *Server {
	return &Server{}
}

// Start spawns the server for the given project path and waits until its
// HTTP endpoint responds. If a server is already running for the same path
// its info is returned unchanged; a server for a different path is stopped
// first.
func (s *Server) Start(ctx context.Context, cfg ServerConfig) (ServerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && s.projectPath == cfg.ProjectPath {
		return s.infoLocked(), nil
	}
	if s.running {
		s.stopLocked()
	}

	port, err := pickPort()
	if err != nil {
		return ServerInfo{}, err
	}

	binary := cfg.Binary
	if binary == "" {
		binary = "opencode"
	}

	cmd := exec.CommandContext(ctx, binary, serveArgs(port)...)
	cmd.Dir = cfg.ProjectPath
	cmd.Env = append(os.Environ(), keyEnviron(cfg.APIKeys)...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	procattr.Apply(cmd)

	if err := cmd.Start(); err != nil {
		return ServerInfo{}, fmt.Errorf("start %s: %w", binary, err)
	}

	s.cmd = cmd
	s.projectPath = cfg.ProjectPath
	s.port = port
	s.running = true

	timeout := cfg.ReadyTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if err := waitReady(ctx, s.urlLocked(), timeout); err != nil {
		s.stopLocked()
		return ServerInfo{}, err
	}

	slog.Info("agent server started", "port", port, "project", cfg.ProjectPath)
	return s.infoLocked(), nil
}

// Stop terminates the server's process group. It is a no-op if nothing is
// running.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.stopLocked()
	return nil
}

// Info reports the current server state.
func (s *Server) Info() ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Server) infoLocked() ServerInfo {
	info := ServerInfo{
		ProjectPath: s.projectPath,
		Port:        s.port,
		Running:     s.running,
	}
	if s.running {
		info.URL = s.urlLocked()
	}
	return info
}

func (s *Server) urlLocked() string {
	return "http://127.0.0.1:" + strconv.Itoa(s.port)
}

func (s *Server) stopLocked() {
	if s.cmd != nil && s.cmd.Process != nil {
		if err := procattr.SignalGroup(s.cmd.Process, syscall.SIGTERM); err != nil {
			slog.Debug("terminate server group", "error", err)
		}

		done := make(chan struct{})
		go func(cmd *exec.Cmd) {
			cmd.Wait()
			close(done)
		}(s.cmd)

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			procattr.KillGroup(s.cmd.Process)
			<-done
		}
	}
	s.cmd = nil
	s.running = false
}

// serveArgs builds the argument list for the serve subcommand.
func serveArgs(port int) []string {
	return []string{
		"serve",
		"--port", strconv.Itoa(port),
		"--hostname", "127.0.0.1",
	}
}

// keyEnviron converts provider API keys into KEY=value environment entries.
// Providers without a known env var are skipped.
func keyEnviron(keys map[string]string) []string {
	var env []string
	for provider, key := range keys {
		if key == "" {
			continue
		}
		name, ok := apiKeyEnv[provider]
		if !ok {
			continue
		}
		env = append(env, name+"="+key)
	}
	return env
}

// BinaryInfo describes an installed server executable.
type BinaryInfo struct {
	Path    string
	Version string
}

// LookupBinary resolves the server executable on PATH and reports its
// version. An empty binary name defaults to "opencode". Returns
// ErrNotInstalled when the executable cannot be found.
func LookupBinary(ctx context.Context, binary string) (BinaryInfo, error) {
	if binary == "" {
		binary = "opencode"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return BinaryInfo{}, fmt.Errorf("%w: %s", ErrNotInstalled, binary)
	}

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return BinaryInfo{}, fmt.Errorf("%s --version: %w", binary, err)
	}
	return BinaryInfo{
		Path:    path,
		Version: strings.TrimSpace(string(out)),
	}, nil
}

// pickPort reserves a free loopback port by binding and releasing it.
func pickPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, ErrNoPort
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// waitReady polls the server until it answers HTTP or the timeout elapses.
func waitReady(ctx context.Context, baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: time.Second}

	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/session", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("server at %s not ready after %s", baseURL, timeout)
}
