package volume

import "context"

// BlockVolumeProvisioner is the external collaborator the "block" driver
// delegates to: it hands back a host path for a block device or image
// file the runtime framework has already prepared, analogous to how the
// Puller is the external collaborator for registry byte-pulling.
type BlockVolumeProvisioner interface {
	Provision(ctx context.Context, name string) (mountpoint string, err error)
	Deprovision(ctx context.Context, name, mountpoint string) error
}

// BlockDriver is the "block" driver.
type BlockDriver struct {
	provisioner BlockVolumeProvisioner
}

// NewBlockDriver creates a block driver delegating to p.
func NewBlockDriver(p BlockVolumeProvisioner) *BlockDriver {
	return &BlockDriver{provisioner: p}
}

func (d *BlockDriver) Name() string { return "block" }

func (d *BlockDriver) Create(ctx context.Context, name string, opts map[string]string) (string, error) {
	return d.provisioner.Provision(ctx, name)
}

func (d *BlockDriver) Remove(ctx context.Context, name, mountpoint string) error {
	return d.provisioner.Deprovision(ctx, name, mountpoint)
}
