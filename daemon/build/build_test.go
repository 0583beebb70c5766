package build

import (
	"context"
	"errors"
	"testing"
	"time"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/container"
	"github.com/arca-project/arca/daemon/containers"
	"github.com/arca-project/arca/daemon/runtime"
	"gotest.tools/v3/assert"
)

// fakeLocator is a ContainerLocator test double: Create/Start record calls,
// FindByRole returns whatever was last created, BuildDaemonHandle always
// fails (with handleErr, or a fixed error when handleErr is unset), so
// tests never need a real vsock/grpc connection.
type fakeLocator struct {
	created        *container.Container
	startCalls     int
	handleAttempts int
	handleErr      error
}

func (f *fakeLocator) FindByRole(role string) (*container.Container, bool) {
	if f.created != nil && f.created.Config.Labels[containers.AgentRoleLabel] == role {
		return f.created, true
	}
	return nil, false
}

func (f *fakeLocator) Create(ctx context.Context, name string, cfg *apitypes.Config, hostCfg *apitypes.HostConfig, netCfg *apitypes.NetworkingConfig) (*container.Container, error) {
	c := &container.Container{ID: "build-daemon-id", Config: cfg, HostConfig: hostCfg}
	f.created = c
	return c, nil
}

func (f *fakeLocator) Start(ctx context.Context, id string) error {
	f.startCalls++
	return nil
}

func (f *fakeLocator) BuildDaemonHandle(ctx context.Context) (runtime.Handle, error) {
	f.handleAttempts++
	if f.handleErr != nil {
		return nil, f.handleErr
	}
	return nil, errors.New("no handle in this test double")
}

func TestEnsureCreatesManagedContainerOnce(t *testing.T) {
	loc := &fakeLocator{}
	m := NewManager(loc, nil)

	c1, err := m.Ensure(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, c1.ID, "build-daemon-id")
	assert.Equal(t, loc.startCalls, 1)
	assert.Equal(t, c1.Config.Labels[containers.AgentRoleLabel], containers.BuildRoleValue)
	assert.Equal(t, c1.HostConfig.RestartPolicy.Name, "always")

	c2, err := m.Ensure(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, c2.ID, c1.ID)
	assert.Equal(t, loc.startCalls, 1, "Ensure must not recreate an existing managed container")
}

func TestConnectExhaustsAttemptsOnHandleFailure(t *testing.T) {
	loc := &fakeLocator{handleErr: errors.New("build daemon not running")}
	m := NewManager(loc, nil)
	m.sleep = func(time.Duration) {} // no real waiting in tests

	_, err := m.connect(context.Background())
	assert.ErrorContains(t, err, "dial failed after 9 attempts")
	assert.Equal(t, loc.handleAttempts, maxAttempts)
}

func TestDelaySchedule(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{5, 16 * time.Second}, // 0.5s * 2^5 reaches the 16s cap exactly here
		{8, 16 * time.Second},
	}
	for _, tc := range cases {
		got := delay(tc.attempt)
		assert.Equal(t, got, tc.want)
	}
}

func TestShutdownWithoutConnectionIsNoop(t *testing.T) {
	m := NewManager(&fakeLocator{}, nil)
	assert.NilError(t, m.Shutdown(context.Background()))
}
