// Package persist stores machine and identity records on disk. Records
// live in one JSON state file written atomically; identity secrets
// (passwords, private keys) are encrypted with per-identity kryptograf
// material before they touch the file.
package persist

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
	"pkt.systems/remsh/schema"
)

const (
	stateFile        = "records.json"
	descriptorPrefix = "remsh:identity:"
)

// storedIdentity is the on-disk shape of an identity: public fields in
// the clear, authentication material sealed into Secret.
type storedIdentity struct {
	ID          schema.IdentityID `json:"id"`
	Username    string            `json:"username"`
	Description string            `json:"description,omitempty"`
	Secret      string            `json:"secret,omitempty"`
}

type identitySecret struct {
	Password      string `json:"password,omitempty"`
	PrivateKeyPEM string `json:"private_key_pem,omitempty"`
}

type state struct {
	Machines      []schema.MachineRecord `json:"machines"`
	Identities    []storedIdentity       `json:"identities"`
	AutoAuthOrder []schema.IdentityID    `json:"auto_auth_order,omitempty"`
}

// Store persists machine and identity records to disk.
type Store struct {
	dir          string
	keyStorePath string
	timeout      time.Duration
	log          pslog.Logger

	mu    sync.Mutex
	state state
}

// NewStore constructs a store at dir with secrets keyed from keyStorePath.
func NewStore(dir, keyStorePath string, timeout time.Duration) (*Store, error) {
	return NewStoreWithLogger(dir, keyStorePath, timeout, nil)
}

// NewStoreWithLogger constructs a store with logging.
func NewStoreWithLogger(dir, keyStorePath string, timeout time.Duration, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if strings.TrimSpace(keyStorePath) == "" {
		return nil, errors.New("key store path is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if err := ensureKeyStore(keyStorePath); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	s := &Store{dir: dir, keyStorePath: keyStorePath, timeout: timeout, log: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func ensureKeyStore(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	store, err := keymgmt.LoadProto(path)
	if err != nil {
		return err
	}
	if _, err := store.EnsureRootKey(); err != nil {
		return err
	}
	return store.Commit()
}

func (s *Store) load() error {
	path := filepath.Join(s.dir, stateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss")
			}
			return nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "err", err)
		}
		return err
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "err", err)
		}
		return err
	}
	s.state = st
	if s.log != nil {
		s.log.Debug("state load ok", "machines", len(st.Machines), "identities", len(st.Identities))
	}
	return nil
}

// saveLocked writes the state file atomically. Callers hold s.mu.
func (s *Store) saveLocked() error {
	path := filepath.Join(s.dir, stateFile)
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "records-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (s *Store) save() error {
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Debug("state save ok")
	}
	return nil
}

// ConnectTimeout returns the configured global connection timeout.
func (s *Store) ConnectTimeout() time.Duration {
	if s.timeout <= 0 {
		return schema.DefaultConnectTimeout
	}
	return s.timeout
}

// Machine returns the machine record for id.
func (s *Store) Machine(id schema.MachineID) (schema.MachineRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.state.Machines {
		if m.ID == id {
			return m, true
		}
	}
	return schema.MachineRecord{}, false
}

// MachineByName resolves a machine by display name, falling back to host.
func (s *Store) MachineByName(name string) (schema.MachineRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.state.Machines {
		if m.Name == name {
			return m, true
		}
	}
	for _, m := range s.state.Machines {
		if m.Host == name {
			return m, true
		}
	}
	return schema.MachineRecord{}, false
}

// Machines returns all machine records.
func (s *Store) Machines() []schema.MachineRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.MachineRecord(nil), s.state.Machines...)
}

// AddMachine stores a machine record, assigning an id when empty.
func (s *Store) AddMachine(machine schema.MachineRecord) (schema.MachineRecord, error) {
	if strings.TrimSpace(machine.Host) == "" {
		return schema.MachineRecord{}, errors.New("machine host is required")
	}
	if machine.Port <= 0 {
		machine.Port = 22
	}
	if machine.ID == "" {
		machine.ID = schema.MachineID(newID())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Machines = append(s.state.Machines, machine)
	if err := s.save(); err != nil {
		return schema.MachineRecord{}, err
	}
	if s.log != nil {
		s.log.Info("machine add ok", "machine", machine.Name, "address", machine.Address())
	}
	return machine, nil
}

// SetLastBanner updates the persisted banner for a machine record.
func (s *Store) SetLastBanner(id schema.MachineID, banner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.Machines {
		if s.state.Machines[i].ID == id {
			s.state.Machines[i].LastBanner = banner
			return s.save()
		}
	}
	return schema.ErrMachineNotFound
}

// Identity returns the identity record for id, secrets decrypted.
func (s *Store) Identity(id schema.IdentityID) (schema.IdentityRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stored := range s.state.Identities {
		if stored.ID == id {
			record, err := s.openIdentity(stored)
			if err != nil {
				if s.log != nil {
					s.log.Warn("identity open failed", "identity", id, "err", err)
				}
				return schema.IdentityRecord{}, false
			}
			return record, true
		}
	}
	return schema.IdentityRecord{}, false
}

// Identities returns all identity records, secrets decrypted.
func (s *Store) Identities() []schema.IdentityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.IdentityRecord, 0, len(s.state.Identities))
	for _, stored := range s.state.Identities {
		record, err := s.openIdentity(stored)
		if err != nil {
			if s.log != nil {
				s.log.Warn("identity open failed", "identity", stored.ID, "err", err)
			}
			continue
		}
		out = append(out, record)
	}
	return out
}

// AddIdentity stores an identity record, sealing its secrets.
func (s *Store) AddIdentity(identity schema.IdentityRecord) (schema.IdentityRecord, error) {
	if strings.TrimSpace(identity.Username) == "" {
		return schema.IdentityRecord{}, schema.ErrMalformedIdentityRecord
	}
	if identity.ID == "" {
		identity.ID = schema.IdentityID(newID())
	}
	stored, err := s.sealIdentity(identity)
	if err != nil {
		if s.log != nil {
			s.log.Warn("identity seal failed", "identity", identity.ID, "err", err)
		}
		return schema.IdentityRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Identities = append(s.state.Identities, stored)
	if err := s.save(); err != nil {
		return schema.IdentityRecord{}, err
	}
	if s.log != nil {
		s.log.Info("identity add ok", "identity", identity.ID, "user", identity.Username)
	}
	return identity, nil
}

// SetAutoAuthOrder replaces the ordered auto-auth candidate list.
func (s *Store) SetAutoAuthOrder(ids []schema.IdentityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.AutoAuthOrder = append([]schema.IdentityID(nil), ids...)
	return s.save()
}

// AutoAuthCandidates returns the candidate identities in configured order.
func (s *Store) AutoAuthCandidates() []schema.IdentityRecord {
	s.mu.Lock()
	order := append([]schema.IdentityID(nil), s.state.AutoAuthOrder...)
	s.mu.Unlock()
	out := make([]schema.IdentityRecord, 0, len(order))
	for _, id := range order {
		if record, ok := s.Identity(id); ok {
			out = append(out, record)
		}
	}
	return out
}

func (s *Store) sealIdentity(identity schema.IdentityRecord) (storedIdentity, error) {
	stored := storedIdentity{
		ID:          identity.ID,
		Username:    identity.Username,
		Description: identity.Description,
	}
	if identity.Password == "" && identity.PrivateKeyPEM == "" {
		return stored, nil
	}
	plain, err := json.Marshal(identitySecret{
		Password:      identity.Password,
		PrivateKeyPEM: identity.PrivateKeyPEM,
	})
	if err != nil {
		return storedIdentity{}, err
	}
	material, root, err := s.materialFor(identity.ID)
	if err != nil {
		return storedIdentity{}, err
	}
	kg := kryptograf.New(root)
	var buf bytes.Buffer
	writer, err := kg.EncryptWriter(&buf, material)
	if err != nil {
		return storedIdentity{}, err
	}
	if _, err := writer.Write(plain); err != nil {
		_ = writer.Close()
		return storedIdentity{}, err
	}
	if err := writer.Close(); err != nil {
		return storedIdentity{}, err
	}
	stored.Secret = base64.StdEncoding.EncodeToString(buf.Bytes())
	return stored, nil
}

func (s *Store) openIdentity(stored storedIdentity) (schema.IdentityRecord, error) {
	record := schema.IdentityRecord{
		ID:          stored.ID,
		Username:    stored.Username,
		Description: stored.Description,
	}
	if stored.Secret == "" {
		return record, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(stored.Secret)
	if err != nil {
		return schema.IdentityRecord{}, err
	}
	material, root, err := s.materialFor(stored.ID)
	if err != nil {
		return schema.IdentityRecord{}, err
	}
	kg := kryptograf.New(root)
	reader, err := kg.DecryptReader(bytes.NewReader(sealed), material)
	if err != nil {
		return schema.IdentityRecord{}, err
	}
	plain, err := io.ReadAll(reader)
	if err != nil {
		return schema.IdentityRecord{}, err
	}
	var secret identitySecret
	if err := json.Unmarshal(plain, &secret); err != nil {
		return schema.IdentityRecord{}, err
	}
	record.Password = secret.Password
	record.PrivateKeyPEM = secret.PrivateKeyPEM
	return record, nil
}

func (s *Store) materialFor(id schema.IdentityID) (keymgmt.Material, keymgmt.RootKey, error) {
	store, err := keymgmt.LoadProto(s.keyStorePath)
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	root, err := store.EnsureRootKey()
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	descName := descriptorPrefix + string(id)
	material, err := store.EnsureDescriptor(descName, root, []byte(descName))
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	if err := store.Commit(); err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	return material, root, nil
}
