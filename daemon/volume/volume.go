// Package volume implements the Volume Store: named, driver-backed
// mountpoints a container's HostConfig.Mounts can reference by name
// instead of a host path, with create/inspect/list/remove across two
// drivers. Grounded on the same index-over-State-Store shape
// daemon/image.Store and daemon/containers.Manager use.
package volume

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/store"
	"github.com/arca-project/arca/internal/errdefs"
	"github.com/containerd/log"
	"github.com/google/uuid"
)

// Volume is one Volume record: name (unique), driver ∈ {files, block},
// mountpoint, labels, refcount. Invariant: refcount ≥ 0; delete only when
// refcount = 0.
type Volume struct {
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Mountpoint string            `json:"mountpoint"`
	Labels     map[string]string `json:"labels,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	RefCount   int               `json:"-"` // derived from live attachments, never persisted as truth
}

// Driver provisions and tears down one volume's backing storage.
type Driver interface {
	Name() string
	Create(ctx context.Context, name string, opts map[string]string) (mountpoint string, err error)
	Remove(ctx context.Context, name, mountpoint string) error
}

// Manager is the Volume Store.
type Manager struct {
	backing *store.Store
	bus     *events.Bus
	drivers map[string]Driver

	mu      sync.RWMutex
	volumes map[string]*Volume
	refs    map[string]int
}

// NewManager creates a Volume Store with the given drivers keyed by name
// (typically "files" and "block").
func NewManager(s *store.Store, bus *events.Bus, drivers ...Driver) *Manager {
	m := &Manager{
		backing: s,
		bus:     bus,
		drivers: map[string]Driver{},
		volumes: map[string]*Volume{},
		refs:    map[string]int{},
	}
	for _, d := range drivers {
		m.drivers[d.Name()] = d
	}
	return m
}

// Load restores the index from the State Store at boot.
func (m *Manager) Load(ctx context.Context) error {
	var records [][]byte
	err := m.backing.View(func(tx *store.Txn) error {
		return tx.Scan(store.BucketVolumes, "", func(key string, value []byte) bool {
			cp := make([]byte, len(value))
			copy(cp, value)
			records = append(records, cp)
			return true
		})
	})
	if err != nil {
		return store.Wrap(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, data := range records {
		var v Volume
		if err := json.Unmarshal(data, &v); err != nil {
			log.G(ctx).WithError(err).Warn("volume store: skipping unreadable record")
			continue
		}
		m.volumes[v.Name] = &v
	}
	return nil
}

func newVolumeName() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "") + strings.ReplaceAll(uuid.New().String(), "-", "")
}

const defaultDriver = "files"

// Create provisions a new volume. An empty name gets an anonymous 64-hex
// name, matching Docker's anonymous-volume convention for unnamed mounts.
func (m *Manager) Create(ctx context.Context, name, driverName string, labels map[string]string) (*Volume, error) {
	if driverName == "" {
		driverName = defaultDriver
	}
	drv, ok := m.drivers[driverName]
	if !ok {
		return nil, errdefs.InvalidParameter(fmt.Errorf("volume: unknown driver %q", driverName))
	}
	if name == "" {
		name = newVolumeName()
	}

	m.mu.Lock()
	if _, exists := m.volumes[name]; exists {
		m.mu.Unlock()
		return nil, errdefs.Conflict(fmt.Errorf("volume: %q already exists", name))
	}
	m.mu.Unlock()

	mountpoint, err := drv.Create(ctx, name, nil)
	if err != nil {
		return nil, errdefs.System(fmt.Errorf("volume: driver %s create %s: %w", driverName, name, err))
	}

	v := &Volume{
		Name:       name,
		Driver:     driverName,
		Mountpoint: mountpoint,
		Labels:     labels,
		CreatedAt:  time.Now(),
	}
	if err := m.persist(v); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.volumes[name] = v
	m.mu.Unlock()

	m.bus.Log(events.TypeVolume, "create", m.actor(v))
	return v, nil
}

// GetOrCreate resolves name to an existing volume, or implicitly creates one
// with the default driver if unknown — Docker's behavior when a bind mount
// names a volume that doesn't yet exist.
func (m *Manager) GetOrCreate(ctx context.Context, name string) (*Volume, error) {
	if v, err := m.Inspect(name); err == nil {
		return v, nil
	}
	return m.Create(ctx, name, defaultDriver, nil)
}

// Inspect returns the named volume.
func (m *Manager) Inspect(name string) (*Volume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.volumes[name]
	if !ok {
		return nil, errdefs.NotFound(fmt.Errorf("volume: no such volume %q", name))
	}
	cp := *v
	cp.RefCount = m.refs[name]
	return &cp, nil
}

// List returns every volume, each annotated with its live refcount.
func (m *Manager) List() []*Volume {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Volume, 0, len(m.volumes))
	for name, v := range m.volumes {
		cp := *v
		cp.RefCount = m.refs[name]
		out = append(out, &cp)
	}
	return out
}

// Retain increments name's refcount. Called by the Container Manager when a
// container referencing the volume is created (the refcount invariant
// tracks attachment, not running state).
func (m *Manager) Retain(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.volumes[name]; !ok {
		return errdefs.NotFound(fmt.Errorf("volume: no such volume %q", name))
	}
	m.refs[name]++
	return nil
}

// Release decrements name's refcount, floored at 0. Called when the
// referencing container is removed.
func (m *Manager) Release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs[name] > 0 {
		m.refs[name]--
	}
}

// Remove deletes a volume, refusing while refcount > 0 unless force is set
// (deletion is only allowed when refcount = 0).
func (m *Manager) Remove(ctx context.Context, name string, force bool) error {
	m.mu.RLock()
	v, ok := m.volumes[name]
	refcount := m.refs[name]
	m.mu.RUnlock()
	if !ok {
		return errdefs.NotFound(fmt.Errorf("volume: no such volume %q", name))
	}
	if refcount > 0 && !force {
		return errdefs.Conflict(fmt.Errorf("volume: %q is in use by %d container(s)", name, refcount))
	}

	drv, ok := m.drivers[v.Driver]
	if ok {
		if err := drv.Remove(ctx, v.Name, v.Mountpoint); err != nil {
			return errdefs.System(fmt.Errorf("volume: driver %s remove %s: %w", v.Driver, name, err))
		}
	}

	if err := store.Wrap(m.backing.Update(func(tx *store.Txn) error {
		return tx.Delete(store.BucketVolumes, name)
	})); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.volumes, name)
	delete(m.refs, name)
	m.mu.Unlock()

	m.bus.Log(events.TypeVolume, "destroy", m.actor(v))
	return nil
}

// Prune removes every volume with a zero refcount, backing the
// POST /volumes/prune endpoint.
func (m *Manager) Prune(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	var candidates []string
	for name := range m.volumes {
		if m.refs[name] == 0 {
			candidates = append(candidates, name)
		}
	}
	m.mu.RUnlock()

	var removed []string
	for _, name := range candidates {
		if err := m.Remove(ctx, name, false); err != nil {
			log.G(ctx).WithError(err).WithField("volume", name).Warn("prune: failed to remove volume")
			continue
		}
		removed = append(removed, name)
	}
	return removed, nil
}

func (m *Manager) persist(v *Volume) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errdefs.System(fmt.Errorf("volume: encode %s: %w", v.Name, err))
	}
	return store.Wrap(m.backing.Update(func(tx *store.Txn) error {
		return tx.Put(store.BucketVolumes, v.Name, data)
	}))
}

func (m *Manager) actor(v *Volume) apitypes.EventActor {
	return apitypes.EventActor{ID: v.Name, Attributes: map[string]string{"driver": v.Driver}}
}

// Summary converts a Volume into its wire shape (GET /volumes, GET /volumes/{name}).
func Summary(v *Volume) *apitypes.Volume {
	return &apitypes.Volume{
		Name:       v.Name,
		Driver:     v.Driver,
		Mountpoint: v.Mountpoint,
		Labels:     v.Labels,
		CreatedAt:  v.CreatedAt.Format(time.RFC3339),
	}
}
