package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	gossh "golang.org/x/crypto/ssh"
)

// Runner executes control-plane commands on a remote host. It satisfies
// the lxd.Runner contract.
type Runner struct {
	config *Config

	mu          sync.Mutex
	client      *gossh.Client
	connectedAt time.Time
}

// NewRunner creates a remote runner for the given host configuration.
func NewRunner(config *Config) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ssh config: %w", err)
	}
	return &Runner{config: config}, nil
}

// Connect establishes the SSH connection if not already connected.
func (r *Runner) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectLocked(ctx)
}

func (r *Runner) connectLocked(_ context.Context) error {
	if r.client != nil {
		return nil
	}

	cfg, err := r.config.clientConfig()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.config.Host, r.config.Port)
	client, err := gossh.Dial("tcp", addr, cfg)
	if err != nil {
		return fmt.Errorf("cannot connect to %s: %w", addr, err)
	}

	r.client = client
	r.connectedAt = time.Now()
	log.Debug().Str("host", addr).Msg("connected to remote lxd host")
	return nil
}

// Close tears down the connection.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

// Run executes a command on the remote host with optional stdin, capturing
// stdout and stderr. A command still running when ctx expires is killed by
// closing its session.
func (r *Runner) Run(ctx context.Context, stdin string, name string, args ...string) (string, string, error) {
	r.mu.Lock()
	if err := r.connectLocked(ctx); err != nil {
		r.mu.Unlock()
		return "", "", err
	}
	client := r.client
	r.mu.Unlock()

	session, err := client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("cannot create session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}

	cmd := buildCommandLine(name, args)

	if err := session.Start(cmd); err != nil {
		return "", "", fmt.Errorf("cannot start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Close()
		<-done
		err = ctx.Err()
	}

	if err != nil {
		return stdout.String(), stderr.String(),
			fmt.Errorf("%s: %w: %s", cmd, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), stderr.String(), nil
}

// Upload stages a payload on the remote host over sftp.
func (r *Runner) Upload(ctx context.Context, content io.Reader, remotePath string) error {
	r.mu.Lock()
	if err := r.connectLocked(ctx); err != nil {
		r.mu.Unlock()
		return err
	}
	client := r.client
	r.mu.Unlock()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("cannot create sftp client: %w", err)
	}
	defer sftpClient.Close()

	f, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("cannot create remote file %s: %w", remotePath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		return fmt.Errorf("cannot write remote file %s: %w", remotePath, err)
	}
	return nil
}

// buildCommandLine renders a shell-safe command line from an argv vector.
func buildCommandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(name))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// shellQuote single-quotes an argument for the remote shell.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'`$\\&|;<>(){}[]*?~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
