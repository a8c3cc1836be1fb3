package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/jbweber/k93s/internal/config"
)

// DefaultSSHTimeout bounds the TCP connect and handshake.
const DefaultSSHTimeout = 15 * time.Second

// SSHConfig contains SSH connection parameters.
type SSHConfig struct {
	Host    string
	Port    int
	User    string
	KeyPath string
	Timeout time.Duration
}

// SSH executes commands on a remote host. The connection is reused across
// Execute calls until Close.
type SSH struct {
	client *ssh.Client
	host   string
	logger zerolog.Logger
}

// NewSSH connects to the host described by cfg.
func NewSSH(ctx context.Context, cfg SSHConfig, logger zerolog.Logger) (*SSH, error) {
	log := logger.With().Str("executor", "ssh").Str("host", cfg.Host).Logger()

	clientConfig, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	log.Debug().Str("addr", addr).Msg("establishing SSH connection")

	dialer := net.Dialer{Timeout: clientConfig.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed SSH handshake with %s: %w", addr, err)
	}

	log.Debug().Str("addr", addr).Msg("SSH connection established")
	return &SSH{
		client: ssh.NewClient(c, chans, reqs),
		host:   cfg.Host,
		logger: log,
	}, nil
}

// clientConfig builds the client configuration, loading the private key.
func clientConfig(cfg SSHConfig) (*ssh.ClientConfig, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SSH host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("SSH user is required")
	}

	keyPath, err := config.ResolvePath(cfg.KeyPath)
	if err != nil {
		return nil, err
	}
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key %s: %w", keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key %s: %w", keyPath, err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultSSHTimeout
	}

	return &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// lab VMs are recreated with fresh host keys on every spinup
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106
		Timeout:         timeout,
	}, nil
}

// Close closes the SSH connection.
func (e *SSH) Close() error {
	if e.client != nil {
		e.logger.Debug().Msg("closing SSH connection")
		return e.client.Close()
	}
	return nil
}

func (e *SSH) Name() string {
	return fmt.Sprintf("ssh-%s", e.host)
}

func (e *SSH) Execute(
	ctx context.Context,
	stdout, stderr io.Writer,
	command string, args ...string,
) (int, error) {
	cmdStr := CommandString(command, args)
	e.logger.Debug().Str("cmd", cmdStr).Msg("executing command via SSH")

	session, err := e.client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmdStr) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return -1, ctx.Err()
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			exitCode := exitErr.ExitStatus()
			e.logger.Warn().Str("cmd", cmdStr).Int("exit_code", exitCode).Msg("SSH command failed")
			return exitCode, fmt.Errorf("command exited with code %d: %w", exitCode, err)
		}

		e.logger.Error().Err(err).Str("cmd", cmdStr).Msg("SSH command execution error")
		return -1, fmt.Errorf("command execution failed: %w", err)
	}

	e.logger.Debug().Str("cmd", cmdStr).Msg("SSH command succeeded")
	return 0, nil
}
