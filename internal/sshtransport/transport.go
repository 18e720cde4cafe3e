// Package sshtransport implements the session engine's transport over SSH.
//
// Connect and Authenticate are split phases: Connect establishes the TCP
// connection (the transport is "connected"), Authenticate runs the SSH
// handshake over it (the transport is "authenticated"). A failed handshake
// consumes the underlying TCP connection, so Authenticate transparently
// redials before a retry; the engine's reconnect policy stays in charge of
// when an explicit disconnect+reconnect cycle happens.
package sshtransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
	"pkt.systems/remsh/core"
	"pkt.systems/remsh/internal/sshagent"
	"pkt.systems/remsh/schema"
)

// DefaultTerm is the terminal type requested when none is configured.
const DefaultTerm = "xterm-256color"

// pumpTick bounds how long the pump loop waits between polls of the
// continuation predicate when no pickup arrives.
const pumpTick = 100 * time.Millisecond

// Provider creates one transport handle per session.
type Provider struct {
	term string
	log  pslog.Logger
}

// NewProvider constructs a provider. term is the TERM name requested from
// the remote pty; empty means DefaultTerm.
func NewProvider(term string, log pslog.Logger) *Provider {
	if strings.TrimSpace(term) == "" {
		term = DefaultTerm
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Provider{term: term, log: log}
}

// New returns a fresh, unconfigured transport handle.
func (p *Provider) New() core.Transport {
	return &transport{
		term:   p.term,
		log:    p.log,
		pickup: make(chan struct{}, 1),
	}
}

type transport struct {
	term   string
	log    pslog.Logger
	pickup chan struct{}

	mu      sync.Mutex
	host    string
	port    int
	timeout time.Duration
	conn    net.Conn
	client  *ssh.Client
	banner  string
	lastErr error
}

func (t *transport) Configure(host string, port int, timeout time.Duration) {
	t.mu.Lock()
	t.host = host
	t.port = port
	t.timeout = timeout
	t.mu.Unlock()
}

func (t *transport) address() string {
	return fmt.Sprintf("%s:%d", t.host, t.port)
}

func (t *transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectLocked()
}

func (t *transport) connectLocked() error {
	if t.conn != nil || t.client != nil {
		t.disconnectLocked()
	}
	addr := t.address()
	dialer := net.Dialer{Timeout: t.timeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		t.lastErr = err
		t.log.Warn("transport dial failed", "address", addr, "err", err)
		return err
	}
	t.conn = conn
	t.log.Debug("transport dial ok", "address", addr)
	return nil
}

func (t *transport) Disconnect() {
	t.mu.Lock()
	t.disconnectLocked()
	t.mu.Unlock()
}

func (t *transport) disconnectLocked() {
	if t.client != nil {
		_ = t.client.Close()
		t.client = nil
		t.conn = nil
		return
	}
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}

func (t *transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil || t.client != nil
}

func (t *transport) IsAuthenticated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil
}

func (t *transport) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *transport) setLastError(err error) {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()
}

func (t *transport) RemoteBanner() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.banner
}

// Authenticate runs the SSH handshake for the identity over the current
// connection, redialing first when the previous handshake consumed it.
func (t *transport) Authenticate(identity schema.IdentityRecord) error {
	methods, closeAgent, err := authMethods(identity)
	if err != nil {
		return err
	}
	if closeAgent != nil {
		defer func() { _ = closeAgent() }()
	}

	t.mu.Lock()
	if t.client != nil {
		t.mu.Unlock()
		return nil
	}
	if t.conn == nil {
		if err := t.connectLocked(); err != nil {
			t.mu.Unlock()
			return fmt.Errorf("%w: %v", schema.ErrNotConnected, err)
		}
	}
	conn := t.conn
	addr := t.address()
	timeout := t.timeout
	t.mu.Unlock()

	cfg := &ssh.ClientConfig{
		User: identity.Username,
		Auth: methods,
		// TODO: verify host keys against a known_hosts file.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
		BannerCallback: func(message string) error {
			t.mu.Lock()
			t.banner = strings.TrimSpace(message)
			t.mu.Unlock()
			return nil
		},
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		// The handshake consumed the connection; the next attempt redials.
		t.mu.Lock()
		if t.conn == conn {
			_ = t.conn.Close()
			t.conn = nil
		}
		t.lastErr = err
		t.mu.Unlock()
		t.log.Debug("transport handshake failed", "address", addr, "user", identity.Username, "err", err)
		return err
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	t.mu.Lock()
	t.client = client
	if t.banner == "" {
		t.banner = strings.TrimSpace(string(sshConn.ServerVersion()))
	}
	t.mu.Unlock()
	t.log.Info("transport authenticated", "address", addr, "user", identity.Username)
	return nil
}

// authMethods builds the auth methods for an identity: stored key first,
// then password, then the user's ssh-agent when one is advertised. The
// returned close func, when non-nil, releases the agent connection.
func authMethods(identity schema.IdentityRecord) ([]ssh.AuthMethod, func() error, error) {
	var methods []ssh.AuthMethod
	if identity.PrivateKeyPEM != "" {
		signer, err := ssh.ParsePrivateKey([]byte(identity.PrivateKeyPEM))
		if err != nil {
			return nil, nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if identity.Password != "" {
		methods = append(methods, ssh.Password(identity.Password))
	}
	var closeAgent func() error
	if sshagent.Available() {
		method, closer, err := sshagent.AuthMethod()
		if err == nil {
			methods = append(methods, method)
			closeAgent = closer
		}
	}
	if len(methods) == 0 {
		return nil, nil, errors.New("identity has no authentication material")
	}
	return methods, closeAgent, nil
}

// RequestPickup wakes the pump loop to re-poll outbound data and terminal
// geometry. Non-blocking; wake-ups coalesce.
func (t *transport) RequestPickup() {
	select {
	case t.pickup <- struct{}{}:
	default:
	}
}

// RunInteractiveSession opens the shell channel and pumps it until the
// continuation predicate goes false or the remote ends the channel.
func (t *transport) RunInteractiveSession(hooks core.InteractiveHooks) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return schema.ErrNotConnected
	}

	sess, err := client.NewSession()
	if err != nil {
		t.setLastError(err)
		return err
	}
	defer func() { _ = sess.Close() }()

	size := schema.DefaultTerminalSize
	if hooks.Size != nil {
		size = hooks.Size()
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty(t.term, size.Height, size.Width, modes); err != nil {
		t.setLastError(err)
		return err
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		t.setLastError(err)
		return err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		t.setLastError(err)
		return err
	}
	if err := sess.Shell(); err != nil {
		t.setLastError(err)
		return err
	}
	if hooks.OnOpen != nil {
		hooks.OnOpen()
	}

	// Inbound: the reader hands each chunk to the output consumer and
	// does not read further until it returns.
	readDone := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 && hooks.Output != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				hooks.Output(chunk)
			}
			if err != nil {
				readDone <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(pumpTick)
	defer ticker.Stop()
	lastSize := size
	for {
		if hooks.Continue != nil && !hooks.Continue() {
			return nil
		}
		if hooks.WriteBuffer != nil {
			if data := hooks.WriteBuffer(); data != "" {
				if _, err := io.WriteString(stdin, data); err != nil {
					t.setLastError(err)
					return err
				}
			}
		}
		if hooks.Size != nil {
			if next := hooks.Size(); next != lastSize {
				lastSize = next
				if err := sess.WindowChange(next.Height, next.Width); err != nil {
					t.log.Warn("transport window change failed", "err", err)
				}
			}
		}
		select {
		case <-t.pickup:
		case <-ticker.C:
		case err := <-readDone:
			if err == nil || errors.Is(err, io.EOF) {
				return nil
			}
			t.setLastError(err)
			return err
		}
	}
}
