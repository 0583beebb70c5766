package container

import (
	"encoding/json"
	"fmt"
)

// persisted mirrors Container but is a pure data transfer shape so the JSON
// encoding on disk is independent of any future in-memory-only fields.
type persisted struct {
	ID                string
	Names             []string
	ImageRef          string
	ImageDigest       string
	Config            json.RawMessage
	HostConfig        json.RawMessage
	Attachments       map[string]*Attachment
	State             State
	MonitorGeneration uint64
	RuntimeHandleID   string
	LastUserAction    string
	NetworkOrder      []string
}

// Marshal encodes a Container record for the State Store.
func (c *Container) Marshal() ([]byte, error) {
	cfg, err := json.Marshal(c.Config)
	if err != nil {
		return nil, fmt.Errorf("container: marshal config: %w", err)
	}
	hcfg, err := json.Marshal(c.HostConfig)
	if err != nil {
		return nil, fmt.Errorf("container: marshal host config: %w", err)
	}
	p := persisted{
		ID:                c.ID,
		Names:             c.Names,
		ImageRef:          c.ImageRef,
		ImageDigest:       c.ImageDigest,
		Config:            cfg,
		HostConfig:        hcfg,
		Attachments:       c.Attachments,
		State:             c.State,
		MonitorGeneration: c.MonitorGeneration,
		RuntimeHandleID:   c.RuntimeHandleID,
		LastUserAction:    c.LastUserAction,
		NetworkOrder:      c.NetworkOrder,
	}
	return json.Marshal(p)
}

// Unmarshal decodes a Container record persisted by Marshal.
func Unmarshal(data []byte) (*Container, error) {
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("container: unmarshal: %w", err)
	}
	c := &Container{
		ID:                p.ID,
		Names:             p.Names,
		ImageRef:          p.ImageRef,
		ImageDigest:       p.ImageDigest,
		Attachments:       p.Attachments,
		State:             p.State,
		MonitorGeneration: p.MonitorGeneration,
		RuntimeHandleID:   p.RuntimeHandleID,
		LastUserAction:    p.LastUserAction,
		NetworkOrder:      p.NetworkOrder,
	}
	if len(p.Config) > 0 {
		if err := json.Unmarshal(p.Config, &c.Config); err != nil {
			return nil, fmt.Errorf("container: unmarshal config: %w", err)
		}
	}
	if len(p.HostConfig) > 0 {
		if err := json.Unmarshal(p.HostConfig, &c.HostConfig); err != nil {
			return nil, fmt.Errorf("container: unmarshal host config: %w", err)
		}
	}
	if c.Attachments == nil {
		c.Attachments = map[string]*Attachment{}
	}
	return c, nil
}
