package containers

import (
	"context"
	"fmt"
	"time"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/container"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/restartpolicy"
	"github.com/arca-project/arca/daemon/runtime"
	"github.com/arca-project/arca/daemon/store"
	"github.com/arca-project/arca/internal/errdefs"
	"github.com/containerd/log"
	"github.com/hashicorp/go-multierror"
)

// Start recreates the VM if needed, attaches networks in declared order
// (rolling back on failure), starts the VM, and spawns a fresh Monitor
// task. A manual Start resets restartCount to 0; the Monitor task's own
// restart-policy-driven restarts use startInternal directly and leave it
// untouched.
func (m *Manager) Start(ctx context.Context, id string) error {
	return m.startInternal(ctx, id, true)
}

func (m *Manager) startInternal(ctx context.Context, id string, resetRestartCount bool) error {
	m.locker.Lock(id)
	defer m.locker.Unlock(id)

	c, ok := m.Get(id)
	if !ok {
		return errdefs.NotFound(fmt.Errorf("no such container: %s", id))
	}
	if c.State.Status == container.StatusRunning {
		return errdefs.NotModified(fmt.Errorf("container %s is already running", id))
	}
	if resetRestartCount {
		c.State.RestartCount = 0
		c.LastUserAction = "start" // clears a prior "stop" so unless-stopped resumes restarting on later exits
	}

	h, ok := m.registry.Handle(c.ID)
	if !ok {
		spec := runtime.Spec{
			ImageRef:   c.ImageRef,
			Command:    effectiveCommand(c.Config),
			Env:        c.Config.Env,
			WorkingDir: c.Config.WorkingDir,
			TTY:        c.Config.Tty,
			OpenStdin:  c.Config.OpenStdin,
		}
		if c.HostConfig != nil {
			spec.Memory = c.HostConfig.Memory
			spec.NanoCPUs = c.HostConfig.NanoCPUs
			for _, b := range c.HostConfig.Mounts {
				source := b.Source
				if b.IsVolume() {
					if m.volumes == nil {
						return errdefs.InvalidParameter(fmt.Errorf("container %s: volume %q: no volume store configured", id, b.Source))
					}
					vol, err := m.volumes.Inspect(b.Source)
					if err != nil {
						return errdefs.NotFound(fmt.Errorf("container %s: volume %q: %w", id, b.Source, err))
					}
					source = vol.Mountpoint
				}
				spec.Mounts = append(spec.Mounts, runtime.Mount{Source: source, Target: b.Target, ReadOnly: b.ReadOnly})
			}
		}
		var err error
		h, err = m.adapter.CreateVM(ctx, c.ID, spec)
		if err != nil {
			return runtime.AsDomainError(err)
		}
		m.registry.Bind(c.ID, h)
		c.RuntimeHandleID = h.HandleID()
	}

	attached := make([]string, 0, len(c.NetworkOrder))
	for _, netID := range c.NetworkOrder {
		hint, mac, aliases := "", "", []string(nil)
		if desired, ok := c.Attachments[netID]; ok {
			hint, mac, aliases = desired.IPv4, desired.MAC, desired.Aliases
		}
		info, err := m.network.Connect(ctx, netID, c.ID, hint, mac, aliases)
		if err != nil {
			m.rollbackAttachments(ctx, c.ID, attached)
			c.State.Status = container.StatusCreated
			c.State.Error = err.Error()
			_ = m.persist(c)
			return err
		}
		c.Attachments[netID] = &container.Attachment{
			NetworkID: netID, IPv4: info.IPv4, MAC: info.MAC, Aliases: info.Aliases, VsockPort: info.VsockPort,
		}
		attached = append(attached, netID)
	}

	if err := m.adapter.Start(ctx, h); err != nil {
		m.rollbackAttachments(ctx, c.ID, attached)
		c.State.Status = container.StatusCreated
		c.State.Error = err.Error()
		_ = m.persist(c)
		return runtime.AsDomainError(err)
	}

	c.State.Status = container.StatusRunning
	c.State.StartedAt = time.Now()
	c.State.FinishedAt = time.Time{}
	c.State.Error = ""
	c.MonitorGeneration++
	generation := c.MonitorGeneration
	if err := m.persist(c); err != nil {
		return err
	}

	m.events.Log(events.TypeContainer, "start", m.actor(c))
	m.spawnMonitor(c.ID, h, generation)

	if stdio, err := m.adapter.AttachStdio(ctx, h); err == nil {
		go m.captureOutput(context.Background(), c.ID, stdio.Stdout, "stdout")
		go m.captureOutput(context.Background(), c.ID, stdio.Stderr, "stderr")
	} else {
		log.G(ctx).WithError(err).WithField("container", c.ID).Warn("log capture: attach stdio failed")
	}

	return nil
}

func effectiveCommand(cfg *apitypes.Config) []string {
	if len(cfg.Entrypoint) > 0 {
		return append(append([]string{}, cfg.Entrypoint...), cfg.Cmd...)
	}
	return cfg.Cmd
}

func (m *Manager) rollbackAttachments(ctx context.Context, containerID string, networkIDs []string) {
	var errs *multierror.Error
	for _, netID := range networkIDs {
		if err := m.network.Disconnect(ctx, netID, containerID); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs.ErrorOrNil() != nil {
		log.G(ctx).WithError(errs).WithField("container", containerID).Warn("rollback: some network detachments failed")
	}
}

// cancelPendingRestart closes a still-live Monitor task's stop channel,
// interrupting a pending restart-policy backoff sleep without affecting a
// task that has already moved past it (closing an unbuffered channel twice
// would panic, so monitors is cleared here under the same lock it's set).
func (m *Manager) cancelPendingRestart(id string) {
	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()
	if stop, ok := m.monitors[id]; ok {
		close(stop)
		delete(m.monitors, id)
	}
}

// spawnMonitor starts the Monitor task for a freshly-started container.
// Older tasks for the same container compare their captured generation
// against the live one and exit without writing if stale.
func (m *Manager) spawnMonitor(id string, h runtime.Handle, generation uint64) {
	stop := make(chan struct{})
	m.monitorMu.Lock()
	m.monitors[id] = stop
	m.monitorMu.Unlock()

	go m.monitor(id, h, generation, stop)
}

func (m *Manager) monitor(id string, h runtime.Handle, generation uint64, stop chan struct{}) {
	ctx := context.Background()
	result, err := m.adapter.Wait(ctx, h)

	c, ok := m.Get(id)
	if !ok {
		return
	}

	m.locker.Lock(id)
	defer m.locker.Unlock(id)

	if c.MonitorGeneration != generation {
		return // a fresher Start superseded this task; don't overwrite its state
	}

	c.State.FinishedAt = time.Now()
	if err != nil {
		c.State.Error = err.Error()
		c.State.ExitCode = 137
	} else {
		c.State.ExitCode = result.ExitCode
		c.State.OOMKilled = result.OOM
	}
	c.State.Status = container.StatusExited
	_ = m.persist(c)

	m.events.Log(events.TypeContainer, "die", m.dieActor(c))

	decision := restartpolicy.Evaluate(c.HostConfig.RestartPolicy, c.State.ExitCode, c.State.RestartCount, c.LastUserAction)
	if decision == restartpolicy.Terminal {
		return
	}

	delay := restartpolicy.Delay(c.State.RestartCount)
	c.State.RestartCount++
	_ = m.persist(c)

	timer := time.NewTimer(delay)
	select {
	case <-timer.C:
	case <-stop:
		timer.Stop()
		return
	}

	// Re-check liveness: a concurrent explicit Start/Remove may have already
	// superseded this generation while we slept.
	c, ok = m.Get(id)
	if !ok || c.MonitorGeneration != generation {
		return
	}
	if err := m.startInternal(context.Background(), id, false); err != nil {
		log.G(context.Background()).WithError(err).WithField("container", id).Warn("restart-policy start failed")
	}
}

func (m *Manager) dieActor(c *container.Container) apitypes.EventActor {
	a := m.actor(c)
	a.Attributes["exitCode"] = fmt.Sprintf("%d", c.State.ExitCode)
	return a
}

// Stop sends SIGTERM, waits up to gracefulTimeout seconds, then SIGKILL.
// On a container that is not running it changes nothing and returns a
// NotModified error (304). If a restart-policy backoff is
// currently pending for this container, stop cancels it immediately
// instead of letting it restart — a user-initiated stop is a stronger
// signal than a scheduled retry.
func (m *Manager) Stop(ctx context.Context, id string, gracefulTimeout int) error {
	m.locker.Lock(id)
	c, ok := m.Get(id)
	if !ok {
		m.locker.Unlock(id)
		return errdefs.NotFound(fmt.Errorf("no such container: %s", id))
	}
	if c.State.Status != container.StatusRunning {
		c.LastUserAction = "stop"
		_ = m.persist(c)
		m.locker.Unlock(id)
		m.cancelPendingRestart(id)
		return errdefs.NotModified(fmt.Errorf("container %s is not running", id))
	}
	h, ok := m.registry.Handle(c.ID)
	c.LastUserAction = "stop"
	_ = m.persist(c)
	m.locker.Unlock(id)

	if !ok {
		return errdefs.System(fmt.Errorf("container %s has no runtime handle", id))
	}
	if err := m.adapter.Stop(ctx, h, gracefulTimeout); err != nil {
		return runtime.AsDomainError(err)
	}
	m.events.Log(events.TypeContainer, "stop", m.actor(c))
	return nil
}

// Kill sends signal (or SIGKILL if empty) immediately, no grace period.
func (m *Manager) Kill(ctx context.Context, id, signal string) error {
	c, ok := m.Get(id)
	if !ok {
		return errdefs.NotFound(fmt.Errorf("no such container: %s", id))
	}
	if c.State.Status != container.StatusRunning {
		return errdefs.Conflict(fmt.Errorf("container %s is not running", id))
	}
	h, ok := m.registry.Handle(c.ID)
	if !ok {
		return errdefs.System(fmt.Errorf("container %s has no runtime handle", id))
	}
	if signal == "" {
		signal = "KILL"
	}
	if err := m.adapter.Kill(ctx, h, signal); err != nil {
		return runtime.AsDomainError(err)
	}
	m.events.Log(events.TypeContainer, "kill", m.actor(c))
	return nil
}

// Pause and Unpause change only the recorded state (paused/running) and
// emit the event; no Runtime Adapter call is made, so the VM keeps running
// and its Monitor task keeps waiting on it.
func (m *Manager) Pause(ctx context.Context, id string) error {
	return m.setPausedState(ctx, id, true)
}

func (m *Manager) Unpause(ctx context.Context, id string) error {
	return m.setPausedState(ctx, id, false)
}

func (m *Manager) setPausedState(ctx context.Context, id string, paused bool) error {
	m.locker.Lock(id)
	defer m.locker.Unlock(id)

	c, ok := m.Get(id)
	if !ok {
		return errdefs.NotFound(fmt.Errorf("no such container: %s", id))
	}
	if paused && c.State.Status != container.StatusRunning {
		return errdefs.Conflict(fmt.Errorf("container %s is not running", id))
	}
	if !paused && c.State.Status != container.StatusPaused {
		return errdefs.Conflict(fmt.Errorf("container %s is not paused", id))
	}
	if paused {
		c.State.Status = container.StatusPaused
	} else {
		c.State.Status = container.StatusRunning
	}
	if err := m.persist(c); err != nil {
		return err
	}
	action := "unpause"
	if paused {
		action = "pause"
	}
	m.events.Log(events.TypeContainer, action, m.actor(c))
	return nil
}

// Remove deletes a container's record and releases its resources. Refuses
// while running unless force is set.
func (m *Manager) Remove(ctx context.Context, id string, force bool) error {
	m.locker.Lock(id)
	c, ok := m.Get(id)
	if !ok {
		m.locker.Unlock(id)
		return errdefs.NotFound(fmt.Errorf("no such container: %s", id))
	}
	if c.State.Status == container.StatusRunning {
		if !force {
			m.locker.Unlock(id)
			return errdefs.Conflict(fmt.Errorf("container %s is running: stop it or use force", id))
		}
	}
	m.locker.Unlock(id)

	if c.State.Status == container.StatusRunning {
		if err := m.Stop(ctx, id, 1); err != nil {
			log.G(ctx).WithError(err).WithField("container", id).Warn("force-remove: stop failed, proceeding with kill")
			_ = m.Kill(ctx, id, "KILL")
		}
	}

	m.cancelPendingRestart(id)

	for netID := range c.Attachments {
		if err := m.network.Disconnect(ctx, netID, id); err != nil {
			log.G(ctx).WithError(err).WithField("container", id).Warn("remove: network detach failed, continuing")
		}
	}

	m.removeExecsFor(id)
	m.registry.Unbind(id)

	if m.volumes != nil && c.HostConfig != nil {
		for _, b := range c.HostConfig.Mounts {
			if b.IsVolume() {
				m.volumes.Release(b.Source)
			}
		}
	}

	if err := store.Wrap(m.store.Update(func(tx *store.Txn) error {
		return tx.Delete(store.BucketContainers, id)
	})); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.containers, id)
	for name, cid := range m.names {
		if cid == id {
			delete(m.names, name)
		}
	}
	m.mu.Unlock()

	m.events.Log(events.TypeContainer, "destroy", m.actor(c))
	return nil
}
