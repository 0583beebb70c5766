package containers

import (
	"context"
	"fmt"
	"strings"

	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/internal/errdefs"
)

// Rename implements POST /containers/{id}/rename: it's a straightforward
// extension of the Container Manager's names invariant, not a new state
// machine.
func (m *Manager) Rename(ctx context.Context, id, newName string) error {
	newName = "/" + strings.TrimPrefix(newName, "/")

	m.mu.Lock()
	c, ok := m.containers[id]
	if !ok {
		m.mu.Unlock()
		return errdefs.NotFound(fmt.Errorf("no such container: %s", id))
	}
	if existingID, taken := m.names[newName]; taken && existingID != c.ID {
		m.mu.Unlock()
		return errdefs.Conflict(fmt.Errorf("name %q is already in use", newName))
	}
	oldName := ""
	if len(c.Names) > 0 {
		oldName = c.Names[0]
	}
	delete(m.names, oldName)
	c.Names = []string{newName}
	m.names[newName] = c.ID
	m.mu.Unlock()

	if err := m.persist(c); err != nil {
		return err
	}
	m.events.Log(events.TypeContainer, "rename", m.actor(c))
	return nil
}
