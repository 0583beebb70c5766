// Package container defines the Container record and the small amount of
// state-machine bookkeeping (status, monitor generation) that the
// daemon/containers manager mutates. The record is plain data; the manager
// in daemon/containers is the only mutator.
package container

import (
	"time"

	apitypes "github.com/arca-project/arca/api/types"
)

// Status is a Container's lifecycle status.
type Status string

const (
	StatusCreated    Status = "created"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusRestarting Status = "restarting"
	StatusExited     Status = "exited"
	StatusDead       Status = "dead"
	StatusRemoving   Status = "removing"
)

// Running reports whether a runtime handle is expected to exist for this status.
func (s Status) Running() bool {
	return s == StatusRunning || s == StatusPaused || s == StatusRestarting
}

// Attachment is one network attachment: networkID mapped to its
// {ipv4, mac, aliases, vsock-port}.
type Attachment struct {
	NetworkID string
	IPv4      string
	MAC       string
	Aliases   []string
	VsockPort uint32
}

// State is the observed runtime state of a container.
type State struct {
	Status       Status
	Pid          int
	StartedAt    time.Time
	FinishedAt   time.Time
	ExitCode     int
	Error        string
	OOMKilled    bool
	RestartCount int
}

// Container is the full persisted+in-memory record for one container.
// State Store owns the persisted form; the Container Manager is the sole
// mutator.
type Container struct {
	ID    string
	Names []string

	ImageRef    string
	ImageDigest string

	Config     *apitypes.Config
	HostConfig *apitypes.HostConfig

	Attachments map[string]*Attachment // networkID -> attachment

	State State

	// MonitorGeneration is bumped every time a fresh Monitor task is
	// attached; a stale task compares its captured generation against the
	// live one before writing final state.
	MonitorGeneration uint64

	// RuntimeHandleID is the Runtime Adapter's opaque handle id, bound to
	// ID via the adapter's bijection. Empty when no VM currently exists for
	// this container (e.g. status=created, or after a daemon restart before
	// first re-creation).
	RuntimeHandleID string

	// LastUserAction records whether the most recent user-initiated
	// lifecycle call was "stop", used by the unless-stopped restart policy.
	LastUserAction string

	// NetworkOrder records attachment network IDs in declared order so
	// Start can attach eth0, eth1, ... deterministically.
	NetworkOrder []string
}
