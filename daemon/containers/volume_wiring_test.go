package containers

import (
	"context"
	"path/filepath"
	"testing"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/network"
	"github.com/arca-project/arca/daemon/store"
	"github.com/arca-project/arca/daemon/volume"
	"gotest.tools/v3/assert"
)

func newTestManagerWithVolumes(t *testing.T) (*Manager, *volume.Manager) {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })

	adapter := newFakeAdapter()
	bus := events.New()
	nc := network.NewController(s, adapter, noopAgentLocator{}, noopResolver{}, bus)
	vols := volume.NewManager(s, bus, volume.NewFilesDriver(t.TempDir()))
	m := NewManager(s, adapter, nc, vols, bus)
	return m, vols
}

func TestCreateRetainsNamedVolumeMount(t *testing.T) {
	m, vols := newTestManagerWithVolumes(t)
	cfg := basicConfig()
	hostCfg := &apitypes.HostConfig{Mounts: []apitypes.Mount{
		{Type: "volume", Source: "data", Target: "/var/lib/data"},
	}}

	c, err := m.Create(context.Background(), "withvol", cfg, hostCfg, nil)
	assert.NilError(t, err)

	vol, err := vols.Inspect("data")
	assert.NilError(t, err)
	assert.Equal(t, vol.RefCount, 1)
	assert.Equal(t, c.HostConfig.Mounts[0].Source, "data")
}

func TestCreateAnonymousVolumeMountGetsGeneratedName(t *testing.T) {
	m, vols := newTestManagerWithVolumes(t)
	cfg := basicConfig()
	hostCfg := &apitypes.HostConfig{Mounts: []apitypes.Mount{
		{Type: "volume", Source: "", Target: "/data"},
	}}

	c, err := m.Create(context.Background(), "anon", cfg, hostCfg, nil)
	assert.NilError(t, err)
	assert.Assert(t, c.HostConfig.Mounts[0].Source != "")

	vol, err := vols.Inspect(c.HostConfig.Mounts[0].Source)
	assert.NilError(t, err)
	assert.Equal(t, vol.RefCount, 1)
}

func TestRemoveReleasesVolumeMount(t *testing.T) {
	m, vols := newTestManagerWithVolumes(t)
	cfg := basicConfig()
	hostCfg := &apitypes.HostConfig{Mounts: []apitypes.Mount{
		{Type: "volume", Source: "released", Target: "/data"},
	}}
	c, err := m.Create(context.Background(), "toremove", cfg, hostCfg, nil)
	assert.NilError(t, err)

	assert.NilError(t, m.Remove(context.Background(), c.ID, false))

	vol, err := vols.Inspect("released")
	assert.NilError(t, err)
	assert.Equal(t, vol.RefCount, 0)
}
