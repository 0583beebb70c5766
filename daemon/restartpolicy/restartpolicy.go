// Package restartpolicy implements the restart-policy decision engine and
// backoff schedule for the four policy kinds: "no", "on-failure[:N]",
// "always", "unless-stopped".
package restartpolicy

import (
	"math/rand"
	"time"

	apitypes "github.com/arca-project/arca/api/types"
)

// Decision is the restart-policy engine's verdict after a container exits.
type Decision int

const (
	// Terminal means the container stays exited; no restart is scheduled.
	Terminal Decision = iota
	// Restart means a new start should be scheduled after Backoff.
	Restart
)

// Evaluate decides whether to restart a container that just exited with
// exitCode, given its restart policy, current restartCount, and whether the
// most recent user action was an explicit "stop" (needed for
// unless-stopped).
func Evaluate(policy apitypes.RestartPolicy, exitCode int, restartCount int, lastUserAction string) Decision {
	switch {
	case policy.IsAlways():
		return Restart
	case policy.IsUnlessStopped():
		if lastUserAction == "stop" {
			return Terminal
		}
		return Restart
	case policy.IsOnFailure():
		if exitCode == 0 {
			return Terminal
		}
		if policy.MaximumRetryCount == 0 {
			return Restart // 0 means unlimited
		}
		if restartCount < policy.MaximumRetryCount {
			return Restart
		}
		return Terminal
	default: // "no" or unset
		return Terminal
	}
}

// Backoff schedule: base 100ms, doubling per attempt, capped at 1
// minute, with ±20% jitter.
const (
	BaseDelay    = 100 * time.Millisecond
	MaxDelay     = time.Minute
	JitterFactor = 0.20
)

// Delay computes the backoff delay before restart attempt number attempt
// (0-indexed: the first restart after an exit is attempt 0).
func Delay(attempt int) time.Duration {
	d := BaseDelay
	for i := 0; i < attempt && d < MaxDelay; i++ {
		d *= 2
	}
	if d > MaxDelay {
		d = MaxDelay
	}
	jitter := (rand.Float64()*2 - 1) * JitterFactor // uniform in [-0.2, 0.2]
	d = time.Duration(float64(d) * (1 + jitter))
	if d < 0 {
		d = 0
	}
	return d
}
