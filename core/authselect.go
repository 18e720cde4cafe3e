package core

import (
	"context"
	"fmt"
	"strings"

	"pkt.systems/pslog"
	"pkt.systems/remsh/schema"
)

// authSelector chooses and tries stored identities against a connected
// transport. Exactly one attempt sequence runs per bootstrap; it ends at
// the first success, or after the explicit-identity path fails, or after
// the auto-auth candidate list is exhausted.
type authSelector struct {
	store Store
	log   pslog.Logger
}

func newAuthSelector(store Store, log pslog.Logger) *authSelector {
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &authSelector{store: store, log: log}
}

// Authenticate runs the explicit path when the machine carries an
// associated identity, the auto-auth candidate loop otherwise. diag
// receives one line per attempted candidate plus malformed-record lines.
func (a *authSelector) Authenticate(t Transport, machine schema.MachineRecord, diag func(line string)) error {
	if machine.IdentityID != "" {
		return a.explicit(t, machine.IdentityID, diag)
	}
	return a.auto(t, diag)
}

// explicit resolves the associated identity and attempts it once. The
// outcome is final; there is no fallback into the auto-auth loop.
func (a *authSelector) explicit(t Transport, id schema.IdentityID, diag func(line string)) error {
	identity, ok := a.store.Identity(id)
	if !ok {
		diag("Malformed machine record: associated identity not found.")
		return schema.ErrMalformedMachineRecord
	}
	if strings.TrimSpace(identity.Username) == "" {
		diag("Malformed identity record: empty username.")
		return schema.ErrMalformedIdentityRecord
	}
	diag(fmt.Sprintf("Trying identity %s...", identity.Describe()))
	if err := t.Authenticate(identity); err != nil {
		a.log.Debug("auth attempt failed", "identity", identity.Describe(), "err", err)
		return fmt.Errorf("authenticate %s: %w", identity.Describe(), err)
	}
	return nil
}

// auto iterates the store's candidates in order. Before a candidate whose
// username differs from the immediately preceding attempted one, the
// transport is cycled through disconnect+reconnect: servers tend to
// penalize a channel after a failed attempt under a different username.
// That skip-reconnect-on-same-username rule is a policy choice, not a
// protocol requirement.
func (a *authSelector) auto(t Transport, diag func(line string)) error {
	candidates := a.store.AutoAuthCandidates()
	attempted := false
	prevUsername := ""
	for _, candidate := range candidates {
		if attempted && candidate.Username != prevUsername {
			t.Disconnect()
			if err := t.Connect(); err != nil {
				a.log.Warn("auth reconnect failed", "identity", candidate.Describe(), "err", err)
			}
		}
		diag(fmt.Sprintf("Trying identity %s...", candidate.Describe()))
		attempted = true
		prevUsername = candidate.Username
		if err := t.Authenticate(candidate); err != nil {
			a.log.Debug("auth attempt failed", "identity", candidate.Describe(), "err", err)
			continue
		}
		if t.IsConnected() && t.IsAuthenticated() {
			return nil
		}
	}
	// The transport stays in its last attempted connect state.
	return schema.ErrAuthFailed
}
