package store

import "github.com/arca-project/arca/internal/errdefs"

// Wrap maps a raw bolt/store error onto the StorageError kind: any
// persistence error surfaces this way so higher layers refuse the
// mutation instead of silently writing partial state.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errdefs.System(err)
}
