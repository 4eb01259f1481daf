package locality

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/alexisbeaulieu97/batchrun/internal/logger"
	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/scheduler"
	"github.com/alexisbeaulieu97/batchrun/internal/shell"
	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

const (
	defaultSSHPort    = 22
	defaultSSHTimeout = 30 * time.Second
)

// ConnectionDetails locate and authenticate against a remote host.
type ConnectionDetails struct {
	Host     string
	Port     int
	Username string
	Password string
	KeyFile  string
	Timeout  time.Duration
}

// Address returns host:port, defaulting the port to 22.
func (c ConnectionDetails) Address() string {
	port := c.Port
	if port == 0 {
		port = defaultSSHPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Remote runs commands over SSH. Host keys are not verified. One command runs at a time.
type Remote struct {
	details ConnectionDetails
	log     *logger.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// NewRemote creates a Remote that connects lazily through EstablishConnection.
func NewRemote(details ConnectionDetails, log *logger.Logger) *Remote {
	return &Remote{
		details: details,
		log:     log.Component("locality.remote").WithFields(map[string]any{"host": details.Host}),
	}
}

// Details returns the connection parameters.
func (r *Remote) Details() ConnectionDetails {
	return r.details
}

func (r *Remote) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if r.details.KeyFile != "" {
		key, err := os.ReadFile(r.details.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if r.details.Password != "" {
		auth = append(auth, ssh.Password(r.details.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("no password or key file configured")
	}

	timeout := r.details.Timeout
	if timeout <= 0 {
		timeout = defaultSSHTimeout
	}
	return &ssh.ClientConfig{
		User:            r.details.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

// EstablishConnection dials the host. Calling it while connected is a no-op.
func (r *Remote) EstablishConnection(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil
	}

	addr := r.details.Address()
	cfg, err := r.clientConfig()
	if err != nil {
		return batcherrors.NewConnectionError(addr, "connect", err)
	}

	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return batcherrors.NewConnectionError(addr, "connect", err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return batcherrors.NewConnectionError(addr, "connect", err)
	}

	r.client = ssh.NewClient(sshConn, chans, reqs)
	r.log.Info(fmt.Sprintf("connected to %s@%s", r.details.Username, addr))
	return nil
}

// Disconnect closes the transport.
func (r *Remote) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return batcherrors.NewConnectionError(r.details.Address(), "disconnect", err)
	}
	r.log.Info("disconnected")
	return nil
}

// Copy duplicates the connection parameters only; the copy starts disconnected.
func (r *Remote) Copy() Locality {
	return &Remote{details: r.details, log: r.log}
}

// Description is the remote host name.
func (r *Remote) Description() string {
	if r.details.Host == "" {
		return "unspecified remote host"
	}
	return r.details.Host
}

// Execute runs command on a fresh exec channel and returns its exit status.
func (r *Remote) Execute(ctx context.Context, name, command string, s scheduler.Scheduler) (*model.ExecutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil, batcherrors.NewConnectionError(r.details.Address(), "execute", errors.New("not connected"))
	}

	session, err := r.client.NewSession()
	if err != nil {
		return nil, batcherrors.NewProcessExecutionError(-1, "could not open exec channel", err).WithHost(r.details.Host)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Close()
		<-done
		return nil, ctx.Err()
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *ssh.ExitError
		var missing *ssh.ExitMissingError
		switch {
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitStatus()
		case errors.As(runErr, &missing):
			exitCode = -1
		default:
			return nil, batcherrors.NewProcessExecutionError(-1, "remote command failed", runErr).WithHost(r.details.Host)
		}
	}
	r.log.Info(fmt.Sprintf("command %q executed with exit status %d", command, exitCode))

	outLines := shell.SplitLines(stdout.String())
	errLines := shell.SplitLines(stderr.String())
	output := append(append([]string{}, outLines...), errLines...)

	result := model.NewExecutionResult(name, exitCode, output, "")
	if s != nil {
		lines := outLines
		if s.GeneratesJobIDFromError() {
			lines = errLines
		}
		if id, ok := scheduler.ExtractJobID(s, lines); ok {
			result.JobID = id
		}
	}
	return result, nil
}

// MonitoredExecute is unsupported: monitor files live on the remote filesystem.
func (r *Remote) MonitoredExecute(context.Context, string, string, scheduler.Scheduler) (*model.ExecutionResult, error) {
	return nil, batcherrors.NewUnsupportedError("monitored execute", "can't monitor progress on a remote session")
}

// Dispatch is unsupported on remote sessions.
func (r *Remote) Dispatch(context.Context, string, string, scheduler.Scheduler) (*model.ExecutionResult, error) {
	return nil, batcherrors.NewUnsupportedError("dispatch", "can't dispatch tasks on a remote session")
}
