package volume

import (
	"context"
	"os"
	"path/filepath"
)

// FilesDriver is the "files" driver and local-style default layout: each
// volume is a plain host directory under <dataRoot>/volumes/<name>,
// bind-mounted into the VM by the Runtime Adapter the same way an explicit
// host path mount is.
type FilesDriver struct {
	dataRoot string
}

// NewFilesDriver creates a files driver rooted at dataRoot (typically
// ~/.arca).
func NewFilesDriver(dataRoot string) *FilesDriver {
	return &FilesDriver{dataRoot: dataRoot}
}

func (d *FilesDriver) Name() string { return "files" }

func (d *FilesDriver) mountpointFor(name string) string {
	return filepath.Join(d.dataRoot, "volumes", name, "_data")
}

func (d *FilesDriver) Create(ctx context.Context, name string, opts map[string]string) (string, error) {
	mp := d.mountpointFor(name)
	if err := os.MkdirAll(mp, 0o701); err != nil {
		return "", err
	}
	return mp, nil
}

func (d *FilesDriver) Remove(ctx context.Context, name, mountpoint string) error {
	return os.RemoveAll(filepath.Join(d.dataRoot, "volumes", name))
}
