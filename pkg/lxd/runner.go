// Package lxd drives the LXD container host control plane through the lxc
// command-line client. It covers the profile registry, container lifecycle
// and in-container command execution used by the provisioners.
package lxd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner executes a control-plane command and returns captured output.
// LocalRunner runs commands on this machine; transports/ssh provides a
// Runner that executes them on a remote LXD host.
type Runner interface {
	Run(ctx context.Context, stdin string, name string, args ...string) (stdout, stderr string, err error)
}

// Uploader is implemented by runners that can stage file payloads on the
// control-plane host (the ssh transport, over sftp). Container file writes
// prefer staging plus `lxc file push` over streaming through exec stdin.
type Uploader interface {
	Upload(ctx context.Context, content io.Reader, remotePath string) error
}

// LocalRunner executes commands on the local machine.
type LocalRunner struct{}

// Run executes the command with optional stdin and captures output.
func (LocalRunner) Run(ctx context.Context, stdin string, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	log.Debug().
		Str("command", name).
		Strs("args", args).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("executed control-plane command")

	if err != nil {
		return stdout.String(), stderr.String(),
			fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), stderr.String(), nil
}
