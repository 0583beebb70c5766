package volume

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/store"
	"gotest.tools/v3/assert"
)

type fakeBlockProvisioner struct{ n int }

func (f *fakeBlockProvisioner) Provision(ctx context.Context, name string) (string, error) {
	f.n++
	return "/dev/fake" + name, nil
}
func (f *fakeBlockProvisioner) Deprovision(ctx context.Context, name, mountpoint string) error {
	f.n--
	return nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })

	files := NewFilesDriver(t.TempDir())
	block := NewBlockDriver(&fakeBlockProvisioner{})
	return NewManager(s, events.New(), files, block)
}

func TestCreateFilesVolumeProvisionsMountpoint(t *testing.T) {
	m := newTestManager(t)
	v, err := m.Create(context.Background(), "data", "files", map[string]string{"env": "test"})
	assert.NilError(t, err)
	assert.Assert(t, v.Mountpoint != "")

	got, err := m.Inspect("data")
	assert.NilError(t, err)
	assert.Equal(t, got.Mountpoint, v.Mountpoint)
	assert.Equal(t, got.RefCount, 0)
}

func TestCreateDuplicateNameConflicts(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(context.Background(), "data", "files", nil)
	assert.NilError(t, err)
	_, err = m.Create(context.Background(), "data", "files", nil)
	assert.ErrorContains(t, err, "already exists")
}

func TestAnonymousVolumeGetsGeneratedName(t *testing.T) {
	m := newTestManager(t)
	v, err := m.Create(context.Background(), "", "files", nil)
	assert.NilError(t, err)
	assert.Assert(t, len(v.Name) == 64)
}

func TestRetainReleaseGatesRemoval(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(context.Background(), "data", "files", nil)
	assert.NilError(t, err)

	assert.NilError(t, m.Retain("data"))
	err = m.Remove(context.Background(), "data", false)
	assert.ErrorContains(t, err, "in use")

	m.Release("data")
	assert.NilError(t, m.Remove(context.Background(), "data", false))

	_, err = m.Inspect("data")
	assert.ErrorContains(t, err, "no such volume")
}

func TestGetOrCreateImplicitlyCreatesUnknownVolume(t *testing.T) {
	m := newTestManager(t)
	v, err := m.GetOrCreate(context.Background(), "implicit")
	assert.NilError(t, err)
	assert.Equal(t, v.Driver, "files")

	again, err := m.GetOrCreate(context.Background(), "implicit")
	assert.NilError(t, err)
	assert.Equal(t, again.Name, v.Name)
}

func TestBlockDriverDelegatesToProvisioner(t *testing.T) {
	m := newTestManager(t)
	v, err := m.Create(context.Background(), "blk", "block", nil)
	assert.NilError(t, err)
	assert.Equal(t, v.Mountpoint, "/dev/fakeblk")
}

func TestPruneRemovesOnlyUnreferencedVolumes(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(context.Background(), "used", "files", nil)
	assert.NilError(t, err)
	_, err = m.Create(context.Background(), "unused", "files", nil)
	assert.NilError(t, err)
	assert.NilError(t, m.Retain("used"))

	removed, err := m.Prune(context.Background())
	assert.NilError(t, err)
	assert.DeepEqual(t, removed, []string{"unused"})

	_, err = m.Inspect("used")
	assert.NilError(t, err)
}
