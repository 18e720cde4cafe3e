// Package sshagent talks to the user's running ssh-agent. Identities
// without stored authentication material can still authenticate when the
// agent advertised by SSH_AUTH_SOCK holds a usable key.
package sshagent

import (
	"errors"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// EnvAuthSock is the environment variable advertising the agent socket.
const EnvAuthSock = "SSH_AUTH_SOCK"

// ErrNoAgent indicates no agent socket is advertised in the environment.
var ErrNoAgent = errors.New("no ssh agent available")

// Available reports whether an agent socket is advertised.
func Available() bool {
	return os.Getenv(EnvAuthSock) != ""
}

// Signers returns the agent's signers plus a close func for the underlying
// connection. The connection must stay open while the signers are in use.
func Signers() ([]ssh.Signer, func() error, error) {
	socket := os.Getenv(EnvAuthSock)
	if socket == "" {
		return nil, nil, ErrNoAgent
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, nil, err
	}
	client := agent.NewClient(conn)
	signers, err := client.Signers()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return signers, conn.Close, nil
}

// AuthMethod returns a public-key auth method backed by the agent, plus a
// close func that releases the agent connection after the handshake.
func AuthMethod() (ssh.AuthMethod, func() error, error) {
	signers, closeConn, err := Signers()
	if err != nil {
		return nil, nil, err
	}
	if len(signers) == 0 {
		_ = closeConn()
		return nil, nil, errors.New("ssh agent holds no keys")
	}
	return ssh.PublicKeys(signers...), closeConn, nil
}
