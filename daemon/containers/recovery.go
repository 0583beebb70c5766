package containers

import (
	"context"
	"time"

	"github.com/arca-project/arca/daemon/container"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/restartpolicy"
	"github.com/arca-project/arca/daemon/runtime"
	"github.com/arca-project/arca/daemon/store"
	"github.com/arca-project/arca/internal/errdefs"
	"github.com/containerd/log"
)

// Load restores all Container records from the State Store and performs
// crash recovery: any record left in a running-like status is rebound to
// its runtime handle if still alive, otherwise marked exited(137) as
// "killed-by-crash-recovery" before restart policy is consulted. Known
// limitation, stated rather than hidden: containers that exited in the
// last ~1-2s before a hard crash may have their real exit code
// overwritten by the conservative 137 recorded here.
func (m *Manager) Load(ctx context.Context) error {
	var records [][]byte
	err := m.store.View(func(tx *store.Txn) error {
		return tx.Scan(store.BucketContainers, "", func(key string, value []byte) bool {
			cp := make([]byte, len(value))
			copy(cp, value)
			records = append(records, cp)
			return true
		})
	})
	if err != nil {
		return store.Wrap(err)
	}

	for _, data := range records {
		c, err := unmarshalRecord(data)
		if err != nil {
			log.G(ctx).WithError(err).Warn("recovery: skipping unreadable container record")
			continue
		}

		m.mu.Lock()
		m.containers[c.ID] = c
		if len(c.Names) > 0 {
			m.names[c.Names[0]] = c.ID
		}
		m.mu.Unlock()

		if !c.State.Status.Running() {
			continue
		}

		m.recoverOne(ctx, c)
	}
	return nil
}

func (m *Manager) recoverOne(ctx context.Context, c *container.Container) {
	if c.RuntimeHandleID != "" {
		h, err := m.adapter.Rebind(ctx, c.RuntimeHandleID)
		if err == nil {
			m.registry.Bind(c.ID, h)
			c.MonitorGeneration++
			m.spawnMonitor(c.ID, h, c.MonitorGeneration)
			log.G(ctx).WithField("container", c.ID).Info("recovery: rebound running container")
			return
		}
		if de, ok := err.(*runtime.Error); !ok || de.Kind != runtime.KindNotFound {
			log.G(ctx).WithError(errdefs.System(err)).WithField("container", c.ID).Warn("recovery: rebind failed with unexpected error, marking exited")
		}
	}

	c.State.Status = container.StatusExited
	c.State.ExitCode = 137
	c.State.FinishedAt = time.Now()
	c.State.Error = "killed-by-crash-recovery"
	if err := m.persist(c); err != nil {
		log.G(ctx).WithError(err).WithField("container", c.ID).Error("recovery: failed to persist crash-recovered state")
		return
	}
	m.events.Log(events.TypeContainer, "die", m.dieActor(c))

	decision := restartpolicy.Evaluate(c.HostConfig.RestartPolicy, c.State.ExitCode, c.State.RestartCount, c.LastUserAction)
	if decision == restartpolicy.Terminal {
		return
	}
	c.State.RestartCount++
	_ = m.persist(c)
	go func(id string) {
		time.Sleep(restartpolicy.Delay(0))
		if err := m.startInternal(context.Background(), id, false); err != nil {
			log.G(context.Background()).WithError(err).WithField("container", id).Warn("recovery: restart-policy start failed")
		}
	}(c.ID)
}
