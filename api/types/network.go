package types

// NetworkResource is the GET /networks/{id} / list entry shape.
type NetworkResource struct {
	ID         string            `json:"Id"`
	Name       string            `json:"Name"`
	Driver     string            `json:"Driver"`
	IPAM       IPAM              `json:"IPAM"`
	Containers map[string]EndpointResource `json:"Containers"`
	Labels     map[string]string `json:"Labels"`
}

// EndpointResource is one container's attachment summary within a network.
type EndpointResource struct {
	Name        string `json:"Name"`
	EndpointID  string `json:"EndpointID"`
	MacAddress  string `json:"MacAddress"`
	IPv4Address string `json:"IPv4Address"`
}

// IPAM describes a network's subnet/gateway configuration on the wire.
type IPAM struct {
	Driver string          `json:"Driver"`
	Config []IPAMConfig    `json:"Config"`
}

// IPAMConfig is one subnet/gateway pair.
type IPAMConfig struct {
	Subnet  string `json:"Subnet,omitempty"`
	Gateway string `json:"Gateway,omitempty"`
}

// NetworkCreateRequest is the POST /networks/create body.
type NetworkCreateRequest struct {
	Name   string            `json:"Name"`
	Driver string            `json:"Driver"`
	IPAM   *IPAM             `json:"IPAM,omitempty"`
	Labels map[string]string `json:"Labels,omitempty"`
}

// NetworkCreateResponse is the 201 body.
type NetworkCreateResponse struct {
	ID      string `json:"Id"`
	Warning string `json:"Warning"`
}

// NetworkConnectRequest is the POST /networks/{id}/connect body.
type NetworkConnectRequest struct {
	Container      string            `json:"Container"`
	EndpointConfig *EndpointSettings `json:"EndpointConfig,omitempty"`
}

// NetworkDisconnectRequest is the POST /networks/{id}/disconnect body.
type NetworkDisconnectRequest struct {
	Container string `json:"Container"`
	Force     bool   `json:"Force"`
}
