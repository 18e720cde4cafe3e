package schema

import (
	"net"
	"strconv"
)

// MachineRecord describes a remote endpoint a session can connect to.
// IdentityID, when set, selects the explicit authentication path;
// otherwise the auto-auth candidate loop runs.
type MachineRecord struct {
	ID         MachineID
	Name       string
	Group      string
	Host       string
	Port       int
	IdentityID IdentityID
	LastBanner string
}

// Address returns the dialable host:port form.
func (m MachineRecord) Address() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// DisplayName returns the human-facing name, falling back to the address.
func (m MachineRecord) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Address()
}

// IdentityRecord holds a username plus its authentication material.
// Password and PrivateKeyPEM are both optional; at least one must be set
// for the record to be usable.
type IdentityRecord struct {
	ID            IdentityID
	Username      string
	Password      string
	PrivateKeyPEM string
	Description   string
}

// Describe returns the description, falling back to the username.
func (i IdentityRecord) Describe() string {
	if i.Description != "" {
		return i.Description
	}
	return i.Username
}

// CommandRecord describes a stored one-shot connection target. Sessions
// created from a command synthesize their machine descriptor on the fly;
// nothing is written back to the store for them.
type CommandRecord struct {
	ID         CommandID
	Name       string
	Host       string
	Port       int
	IdentityID IdentityID
}

// Machine synthesizes the machine descriptor a command session runs
// against. The derived id is never persisted.
func (c CommandRecord) Machine() MachineRecord {
	return MachineRecord{
		ID:         MachineID("command:" + string(c.ID)),
		Name:       c.Name,
		Host:       c.Host,
		Port:       c.Port,
		IdentityID: c.IdentityID,
	}
}
