package agentrpc

import "context"

// Network agent RPC methods.

type CreateBridgeParams struct {
	NetworkID string `json:"networkId"`
	Subnet    string `json:"subnet"`
	Gateway   string `json:"gateway"`
}

type CreateBridgeResult struct {
	BridgeName string `json:"bridgeName"`
}

type DeleteBridgeParams struct {
	NetworkID string `json:"networkId"`
}

type AttachContainerParams struct {
	NetworkID   string `json:"networkId"`
	ContainerID string `json:"containerId"`
	IPv4        string `json:"ipv4"`
	MAC         string `json:"mac"`
	VsockPort   uint32 `json:"vsockPort"`
}

type AttachContainerResult struct {
	PortName string `json:"portName"`
}

type DetachContainerParams struct {
	NetworkID   string `json:"networkId"`
	ContainerID string `json:"containerId"`
}

type BridgeInfo struct {
	NetworkID  string `json:"networkId"`
	BridgeName string `json:"bridgeName"`
	Subnet     string `json:"subnet"`
}

type ListBridgesResult struct {
	Bridges []BridgeInfo `json:"bridges"`
}

type HealthResult struct {
	Healthy    bool              `json:"healthy"`
	Subsystems map[string]string `json:"subsystems"`
}

// AgentClient is a typed wrapper over Client for the network agent's RPC surface.
type AgentClient struct{ c *Client }

func NewAgentClient(c *Client) *AgentClient { return &AgentClient{c: c} }

// Close closes the underlying RPC stream.
func (a *AgentClient) Close() error { return a.c.Close() }

func (a *AgentClient) CreateBridge(ctx context.Context, p CreateBridgeParams) (CreateBridgeResult, error) {
	var res CreateBridgeResult
	err := a.c.Call(ctx, "create-bridge", p, &res)
	return res, err
}

func (a *AgentClient) DeleteBridge(ctx context.Context, p DeleteBridgeParams) error {
	return a.c.Call(ctx, "delete-bridge", p, nil)
}

func (a *AgentClient) AttachContainer(ctx context.Context, p AttachContainerParams) (AttachContainerResult, error) {
	var res AttachContainerResult
	err := a.c.Call(ctx, "attach-container", p, &res)
	return res, err
}

func (a *AgentClient) DetachContainer(ctx context.Context, p DetachContainerParams) error {
	return a.c.Call(ctx, "detach-container", p, nil)
}

func (a *AgentClient) ListBridges(ctx context.Context) (ListBridgesResult, error) {
	var res ListBridgesResult
	err := a.c.Call(ctx, "list-bridges", nil, &res)
	return res, err
}

func (a *AgentClient) Health(ctx context.Context) (HealthResult, error) {
	var res HealthResult
	err := a.c.Call(ctx, "health", nil, &res)
	return res, err
}

// DNS push RPC: carries a full snapshot of name->ip mappings.

type DNSRecord struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
}

type PushDNSSnapshotParams struct {
	Records []DNSRecord `json:"records"`
}

// DNSClient is a typed wrapper over Client for the in-container resolver's
// snapshot-push RPC.
type DNSClient struct{ c *Client }

func NewDNSClient(c *Client) *DNSClient { return &DNSClient{c: c} }

// Close closes the underlying RPC stream.
func (d *DNSClient) Close() error { return d.c.Close() }

// PushSnapshot sends the full name-resolution table. Idempotent; the
// resolver always replaces its table wholesale.
func (d *DNSClient) PushSnapshot(ctx context.Context, records []DNSRecord) error {
	return d.c.Call(ctx, "push-dns-snapshot", PushDNSSnapshotParams{Records: records}, nil)
}
