package libvirt

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

const (
	// DefaultURI is used when the cluster document does not set libvirt_uri.
	DefaultURI = "qemu:///system"
	// SystemSocket is the socket of the system libvirt daemon.
	SystemSocket = "/var/run/libvirt/libvirt-sock"

	defaultTimeout = 5 * time.Second
)

// Client wraps a go-libvirt connection.
type Client struct {
	libvirt *libvirt.Libvirt
	socket  string
}

// SocketPath maps a local libvirt URI to the UNIX socket of its daemon.
// Only local qemu URIs are supported; an explicit ?socket= parameter wins.
func SocketPath(uri string) (string, error) {
	if uri == "" {
		uri = DefaultURI
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid libvirt URI %q: %w", uri, err)
	}

	if s := u.Query().Get("socket"); s != "" {
		return s, nil
	}

	switch u.Scheme {
	case "qemu", "qemu+unix":
	default:
		return "", fmt.Errorf("unsupported libvirt URI %q: only local qemu connections are supported", uri)
	}
	if u.Host != "" {
		return "", fmt.Errorf("unsupported libvirt URI %q: remote hosts are not supported", uri)
	}

	switch u.Path {
	case "/system":
		return SystemSocket, nil
	case "/session":
		runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
		if runtimeDir == "" {
			runtimeDir = filepath.Join("/run/user", fmt.Sprint(os.Getuid()))
		}
		return filepath.Join(runtimeDir, "libvirt", "libvirt-sock"), nil
	default:
		return "", fmt.Errorf("unsupported libvirt URI %q: expected /system or /session", uri)
	}
}

// Connect establishes a connection to the libvirt daemon behind socketPath.
// It returns a Client that must be closed via Close() when done.
//
// If socketPath is empty, the system daemon is used. If timeout is zero,
// defaults to 5 seconds.
func Connect(socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = SystemSocket
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)

	l := libvirt.NewWithDialer(dialer)
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
	}

	return &Client{libvirt: l, socket: socketPath}, nil
}

// ConnectURI connects to the daemon for a libvirt URI such as
// qemu:///system. The attempt is abandoned when ctx is cancelled.
func ConnectURI(ctx context.Context, uri string, timeout time.Duration) (*Client, error) {
	socketPath, err := SocketPath(uri)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("connection cancelled: %w", err)
	}

	type result struct {
		client *Client
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		c, err := Connect(socketPath, timeout)
		resultCh <- result{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if res := <-resultCh; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		return res.client, res.err
	}
}

// Close closes the libvirt connection and releases resources.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	if c.libvirt == nil {
		return nil
	}

	l := c.libvirt
	c.libvirt = nil
	if err := l.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}

	return nil
}

// Libvirt returns the underlying go-libvirt client. Consumers declare the
// subset of its methods they need as their own interface.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// Socket returns the socket path the client is connected to.
func (c *Client) Socket() string {
	return c.socket
}

// Ping verifies the connection is still alive.
func (c *Client) Ping() error {
	if c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}

	return nil
}
