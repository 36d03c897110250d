// Package remote deploys the released image to a single target host by
// executing docker CLI commands over SSH.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// =============================================================================
// Deployer
// =============================================================================

// Config configures the SSH deployer.
type Config struct {
	Host           string
	Port           int // Default: 22
	User           string
	KeyPath        string        // Path to the PEM-encoded private key
	Container      ContainerSpec // Target container name and port binding
	ConnectTimeout time.Duration // Default: 10 seconds
	CommandTimeout time.Duration // Default: 120 seconds (pull can be slow)
}

// Deployer replaces the running container on a fixed host over SSH. At most
// one instance with the configured name exists at any time; the deployer
// enforces this by removing any prior instance before starting the new one.
type Deployer struct {
	config    Config
	signer    ssh.Signer
	logger    *slog.Logger
	sshClient *ssh.Client
	mu        sync.Mutex // Protects sshClient
}

// NewDeployer creates an SSH deployer. The private key is read and parsed
// eagerly so that credential problems surface before the pipeline starts.
func NewDeployer(config Config, logger *slog.Logger) (*Deployer, error) {
	key, err := os.ReadFile(config.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read SSH private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse SSH private key: %w", err)
	}

	if config.Port == 0 {
		config.Port = 22
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.CommandTimeout == 0 {
		config.CommandTimeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Deployer{
		config: config,
		signer: signer,
		logger: logger.With("component", "deployer", "host", config.Host),
	}, nil
}

// =============================================================================
// Connection Management
// =============================================================================

// connect establishes the SSH connection if not already connected.
func (d *Deployer) connect(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sshClient != nil {
		// Check if connection is still alive
		_, _, err := d.sshClient.SendRequest("keepalive@shipper", true, nil)
		if err == nil {
			return nil
		}
		// Connection dead, reconnect
		d.sshClient.Close()
		d.sshClient = nil
	}

	config := &ssh.ClientConfig{
		User:            d.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(d.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: Store and verify host keys
		Timeout:         d.config.ConnectTimeout,
	}

	addr := net.JoinHostPort(d.config.Host, strconv.Itoa(d.config.Port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("SSH dial %s: %w", addr, err)
	}

	d.sshClient = client
	return nil
}

// Close closes the SSH connection.
func (d *Deployer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sshClient != nil {
		err := d.sshClient.Close()
		d.sshClient = nil
		return err
	}
	return nil
}

// =============================================================================
// Deploy
// =============================================================================

// Deploy pulls imageRef on the host, replaces the named container instance and
// starts the new one bound to the fixed port. Each step is a discrete remote
// operation; the first failure aborts the deploy.
func (d *Deployer) Deploy(ctx context.Context, imageRef string) error {
	name := d.config.Container.Name

	if err := d.run(ctx, PullCommand(imageRef)); err != nil {
		return fmt.Errorf("pull %s: %w", imageRef, err)
	}

	if err := d.run(ctx, StopCommand(name)); err != nil && !isAbsentError(err) {
		return fmt.Errorf("stop %s: %w", name, err)
	}
	if err := d.run(ctx, RemoveCommand(name)); err != nil && !isAbsentError(err) {
		return fmt.Errorf("remove %s: %w", name, err)
	}

	if err := d.run(ctx, RunCommand(imageRef, d.config.Container)); err != nil {
		return fmt.Errorf("run %s: %w", imageRef, err)
	}

	d.logger.Info("container replaced",
		"container", name,
		"image", imageRef,
		"port", d.config.Container.HostPort,
	)
	return nil
}

// =============================================================================
// Command Execution
// =============================================================================

// commandError carries the remote stderr so callers can classify failures.
type commandError struct {
	cmd    string
	stderr string
	err    error
}

func (e *commandError) Error() string {
	if e.stderr != "" {
		return fmt.Sprintf("%q: %v: %s", e.cmd, e.err, e.stderr)
	}
	return fmt.Sprintf("%q: %v", e.cmd, e.err)
}

func (e *commandError) Unwrap() error {
	return e.err
}

// isAbsentError reports whether a stop/rm failed only because there was no
// prior container instance.
func isAbsentError(err error) bool {
	cmdErr, ok := err.(*commandError)
	return ok && containerAbsent(cmdErr.stderr)
}

// run executes one command on the host, bounded by the command timeout and
// the caller's context.
func (d *Deployer) run(ctx context.Context, cmd string) error {
	if err := d.connect(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	session, err := d.sshClient.NewSession()
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.config.CommandTimeout):
		return fmt.Errorf("command timeout after %v: %q", d.config.CommandTimeout, cmd)
	case err := <-done:
		if err != nil {
			return &commandError{cmd: cmd, stderr: stderr.String(), err: err}
		}
	}

	d.logger.Debug("remote command succeeded", "cmd", cmd)
	return nil
}
