package volume

import (
	"context"
	"errors"
)

// errNoProvisioner is returned by UnimplementedBlockVolumeProvisioner.
// Provisioning real block devices is the external runtime framework's
// concern (same boundary as runtime.Adapter); this stub lets the "block"
// driver register and fail clearly if actually used before a real
// provisioner is wired in.
var errNoProvisioner = errors.New("volume: no block provisioner configured")

// UnimplementedBlockVolumeProvisioner is the zero-value default
// BlockVolumeProvisioner.
type UnimplementedBlockVolumeProvisioner struct{}

func (UnimplementedBlockVolumeProvisioner) Provision(ctx context.Context, name string) (string, error) {
	return "", errNoProvisioner
}

func (UnimplementedBlockVolumeProvisioner) Deprovision(ctx context.Context, name, mountpoint string) error {
	return errNoProvisioner
}
