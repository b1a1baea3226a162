package model

import "errors"

var (
	// ErrPrivilege means the process cannot query or manage the interface.
	ErrPrivilege = errors.New("insufficient privilege to manage wireguard interface")
	// ErrInterfaceNotFound means the named interface does not exist on the host.
	ErrInterfaceNotFound = errors.New("interface not found")
	// ErrNoPeer means the status query returned no peer for the interface.
	ErrNoPeer = errors.New("no peer configured")
	// ErrProbeInconclusive means the reachability probe could not complete.
	ErrProbeInconclusive = errors.New("reachability probe inconclusive")
	// ErrRestartFailed means the restart command reported failure.
	ErrRestartFailed = errors.New("restart command failed")
	// ErrStateLocked means another run holds the interface's state lock.
	ErrStateLocked = errors.New("state is locked by another run")
)
