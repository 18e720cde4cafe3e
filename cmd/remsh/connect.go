package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/remsh/core"
	"pkt.systems/remsh/internal/appconfig"
	"pkt.systems/remsh/internal/console"
	"pkt.systems/remsh/internal/persist"
	"pkt.systems/remsh/internal/sshtransport"
	"pkt.systems/remsh/schema"
)

func newConnectCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "connect <machine>",
		Short: "Open an interactive shell session to a stored machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, store, err := openStore(cfgPath, logger)
			if err != nil {
				return err
			}
			machine, ok := store.MachineByName(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", schema.ErrMachineNotFound, args[0])
			}

			surface := console.New(logger)
			defer surface.Close()
			waiter := newCloseWaiter()

			manager, err := core.NewManager(schema.ServiceConfig{
				StateDir:       cfg.StateDir,
				KeyStorePath:   cfg.KeyStorePath,
				ConnectTimeout: time.Duration(cfg.Connect.TimeoutSeconds) * time.Second,
			}, core.SessionDeps{
				Transports: sshtransport.NewProvider(cfg.Terminal.Term, logger),
				Store:      store,
				Surface:    surface,
				Sink:       core.NewFanoutSink(waiter, logSink{log: logger}),
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			defer manager.Close()
			surface.SetRegistry(manager.Registry())

			session, err := manager.CreateForMachine(cmd.Context(), machine.ID)
			if err != nil {
				return err
			}
			defer session.Release()

			select {
			case <-waiter.done:
			case <-cmd.Context().Done():
				session.RequestClose()
				// Give the pump one iteration to observe the flag.
				select {
				case <-waiter.done:
				case <-time.After(2 * time.Second):
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config file")
	return cmd
}

func openStore(cfgPath string, logger pslog.Logger) (appconfig.Config, *persist.Store, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return appconfig.Config{}, nil, err
	}
	timeout := time.Duration(cfg.Connect.TimeoutSeconds) * time.Second
	store, err := persist.NewStoreWithLogger(cfg.StateDir, cfg.KeyStorePath, timeout, logger)
	if err != nil {
		return appconfig.Config{}, nil, err
	}
	return cfg, store, nil
}

// logSink records session lifecycle transitions.
type logSink struct {
	log pslog.Logger
}

func (s logSink) OnSessionChanged(event schema.SessionEvent) {
	s.log.Debug("session event", "session", event.ID, "closed", event.Closed, "token", event.Token)
}

// closeWaiter signals once a session that came up has closed again.
type closeWaiter struct {
	mu      sync.Mutex
	sawOpen bool
	closed  bool
	done    chan struct{}
}

func newCloseWaiter() *closeWaiter {
	return &closeWaiter{done: make(chan struct{})}
}

func (w *closeWaiter) OnSessionChanged(event schema.SessionEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if !event.Closed {
		w.sawOpen = true
		return
	}
	if w.sawOpen {
		w.closed = true
		close(w.done)
	}
}
