package core

import (
	"context"
	"errors"

	"pkt.systems/pslog"
	"pkt.systems/remsh/schema"
)

// Manager creates sessions and owns the registry they are dispatched
// through. One Manager serves one display chrome (a CLI, a window, a
// tab strip); each Create call yields exactly one session per live
// connection attempt.
type Manager struct {
	cfg      schema.ServiceConfig
	deps     SessionDeps
	registry *Registry
	log      pslog.Logger
	ownUI    bool
}

// NewManager constructs the session engine.
func NewManager(cfg schema.ServiceConfig, deps SessionDeps) (*Manager, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Transports == nil {
		return nil, errors.New("transport provider is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Surface == nil {
		return nil, errors.New("display surface is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
		deps.Logger = logger
	}
	ownUI := false
	if deps.UI == nil {
		deps.UI = NewUIRunner(logger)
		ownUI = true
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		registry: NewRegistry(logger),
		log:      logger,
		ownUI:    ownUI,
	}, nil
}

// Registry returns the dispatch registry for display surfaces.
func (m *Manager) Registry() *Registry { return m.registry }

// CreateForMachine constructs a session for a stored machine record and
// schedules its bootstrap. The only caller-observable side effect is the
// scheduled job.
func (m *Manager) CreateForMachine(ctx context.Context, id schema.MachineID) (*Session, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	machine, ok := m.deps.Store.Machine(id)
	if !ok {
		return nil, schema.ErrMachineNotFound
	}
	return m.create(schema.RemoteTypeMachine, machine, nil), nil
}

// CreateForCommand constructs a session for a stored command record,
// synthesizing its machine descriptor, and schedules its bootstrap.
func (m *Manager) CreateForCommand(ctx context.Context, command schema.CommandRecord) (*Session, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	cmd := command
	return m.create(schema.RemoteTypeCommand, cmd.Machine(), &cmd), nil
}

func (m *Manager) create(remote schema.RemoteType, machine schema.MachineRecord, command *schema.CommandRecord) *Session {
	s := newSession(remote, machine, command, m.cfg, m.deps, m.registry)
	m.registry.add(s)
	m.log.Info("session create", "session", s.ID(), "remote", remote, "address", machine.Address())
	s.worker.submit("bootstrap", s.bootstrap)
	return s
}

// Close shuts down the UI runner when the manager created it.
func (m *Manager) Close() {
	if m.ownUI {
		m.deps.UI.Close()
	}
}
