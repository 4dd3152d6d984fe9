// Package ssh provides a control-plane runner that executes lxc commands on
// a remote LXD host over SSH, with sftp for staging file payloads.
package ssh

import (
	"fmt"
	"os"
	"time"

	gossh "golang.org/x/crypto/ssh"
)

// Config describes the remote LXD host connection.
type Config struct {
	// Host is the remote address.
	Host string

	// Port is the SSH port; defaults to 22.
	Port int

	// User is the login user.
	User string

	// KeyPath is a private key file; takes precedence over Password.
	KeyPath string

	// Password is used when no key is configured.
	Password string

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.KeyPath == "" && c.Password == "" {
		return fmt.Errorf("either key_path or password is required")
	}
	if c.Port == 0 {
		c.Port = 22
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	return nil
}

// clientConfig builds the ssh client configuration.
func (c *Config) clientConfig() (*gossh.ClientConfig, error) {
	var auth []gossh.AuthMethod

	if c.KeyPath != "" {
		key, err := os.ReadFile(c.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("cannot read private key: %w", err)
		}
		signer, err := gossh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("cannot parse private key: %w", err)
		}
		auth = append(auth, gossh.PublicKeys(signer))
	}
	if c.Password != "" {
		auth = append(auth, gossh.Password(c.Password))
	}

	return &gossh.ClientConfig{
		User: c.User,
		Auth: auth,
		// The benchmark hosts are disposable test machines.
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         c.ConnectTimeout,
	}, nil
}
