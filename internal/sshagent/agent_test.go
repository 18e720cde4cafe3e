package sshagent

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"path/filepath"
	"runtime"
	"testing"

	"golang.org/x/crypto/ssh/agent"
)

func startKeyring(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("ssh agent sockets are not supported on windows")
	}
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyring := agent.NewKeyring()
	if err := keyring.Add(agent.AddedKey{PrivateKey: private}); err != nil {
		t.Fatalf("add key: %v", err)
	}
	socket := filepath.Join(t.TempDir(), "agent.sock")
	ln, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() { _ = agent.ServeAgent(keyring, conn) }()
		}
	}()
	return socket
}

func TestAvailability(t *testing.T) {
	t.Setenv(EnvAuthSock, "")
	if Available() {
		t.Fatalf("expected unavailable without socket env")
	}
	if _, _, err := Signers(); !errors.Is(err, ErrNoAgent) {
		t.Fatalf("expected ErrNoAgent, got %v", err)
	}
	t.Setenv(EnvAuthSock, "/tmp/some.sock")
	if !Available() {
		t.Fatalf("expected available with socket env")
	}
}

func TestSignersFromKeyring(t *testing.T) {
	socket := startKeyring(t)
	t.Setenv(EnvAuthSock, socket)

	signers, closeConn, err := Signers()
	if err != nil {
		t.Fatalf("Signers: %v", err)
	}
	defer func() { _ = closeConn() }()
	if len(signers) != 1 {
		t.Fatalf("expected one signer, got %d", len(signers))
	}
}

func TestAuthMethodFromKeyring(t *testing.T) {
	socket := startKeyring(t)
	t.Setenv(EnvAuthSock, socket)

	method, closeConn, err := AuthMethod()
	if err != nil {
		t.Fatalf("AuthMethod: %v", err)
	}
	defer func() { _ = closeConn() }()
	if method == nil {
		t.Fatalf("expected auth method")
	}
}
