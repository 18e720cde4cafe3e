package schema

import "errors"

var (
	// ErrMachineNotFound indicates a machine record could not be found.
	ErrMachineNotFound = errors.New("machine not found")
	// ErrIdentityNotFound indicates an identity record could not be found.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrMalformedMachineRecord indicates an associated identity reference
	// that does not resolve to a real identity record.
	ErrMalformedMachineRecord = errors.New("machine record references unknown identity")
	// ErrMalformedIdentityRecord indicates an identity with an empty username.
	ErrMalformedIdentityRecord = errors.New("identity record has empty username")
	// ErrAuthFailed indicates the explicit identity was rejected or all
	// auto-auth candidates were exhausted without success.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrNotConnected indicates a transport operation before connect.
	ErrNotConnected = errors.New("not connected")
)
