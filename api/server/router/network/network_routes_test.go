package network

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/network"
	"github.com/arca-project/arca/daemon/network/agentrpc"
	"github.com/arca-project/arca/daemon/runtime"
	"github.com/arca-project/arca/daemon/store"
	"gotest.tools/v3/assert"
)

// fakeHandle, fakeAdapter, fakeResolver and fakeAgentLocator mirror
// daemon/network/controller_test.go's fakes; reproduced locally since this
// package only exercises network.Controller through its public API.
type fakeHandle struct{ id string }

func (h fakeHandle) HandleID() string { return h.id }

type fakeAdapter struct {
	runtime.Adapter
	mu sync.Mutex
}

func (f *fakeAdapter) DialVsock(ctx context.Context, h runtime.Handle, port uint32) (io.ReadWriteCloser, error) {
	client, server := net.Pipe()
	go serveFakeAgent(server)
	return client, nil
}

func serveFakeAgent(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}
	var req struct {
		Method string `json:"method"`
	}
	_ = json.Unmarshal(buf[:n], &req)

	var result interface{}
	switch req.Method {
	case "create-bridge":
		result = agentrpc.CreateBridgeResult{BridgeName: "br-test"}
	case "attach-container":
		result = agentrpc.AttachContainerResult{PortName: "port-test"}
	case "detach-container", "delete-bridge", "push-dns-snapshot":
		result = nil
	case "health":
		result = agentrpc.HealthResult{Healthy: true}
	}
	_ = agentrpc.WriteResponse(conn, result, nil)
}

type fakeResolver struct {
	handles   map[string]runtime.Handle
	hostnames map[string]string
}

func (r *fakeResolver) Hostname(id string) (string, bool) { h, ok := r.hostnames[id]; return h, ok }
func (r *fakeResolver) Handle(id string) (runtime.Handle, bool) {
	h, ok := r.handles[id]
	return h, ok
}

type fakeAgentLocator struct{ h runtime.Handle }

func (a fakeAgentLocator) AgentHandle(ctx context.Context) (runtime.Handle, error) { return a.h, nil }

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })

	resolver := &fakeResolver{
		handles:   map[string]runtime.Handle{"c1": fakeHandle{"h1"}},
		hostnames: map[string]string{"c1": "c1host"},
	}
	ctrl := network.NewController(s, &fakeAdapter{}, fakeAgentLocator{fakeHandle{"agent"}}, resolver, events.New())
	return NewRouter(ctrl)
}

func serveOne(t *testing.T, r *Router, method, path string, vars map[string]string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var handler func(context.Context, http.ResponseWriter, *http.Request, map[string]string) error
	for _, rt := range r.Routes() {
		if rt.Method == method && rt.Path == path {
			handler = rt.Handler
			break
		}
	}
	assert.Assert(t, handler != nil)
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	if vars == nil {
		vars = map[string]string{}
	}
	if err := handler(context.Background(), rec, req, vars); err != nil {
		rec.Code = http.StatusInternalServerError
		_ = json.NewEncoder(rec.Body).Encode(map[string]string{"message": err.Error()})
	}
	return rec
}

func TestCreateThenListThenInspect(t *testing.T) {
	r := newTestRouter(t)

	body, _ := json.Marshal(apitypes.NetworkCreateRequest{
		Name:   "web",
		Driver: "bridge-like",
		IPAM:   &apitypes.IPAM{Config: []apitypes.IPAMConfig{{Subnet: "10.1.0.0/24", Gateway: "10.1.0.1"}}},
	})
	rec := serveOne(t, r, "POST", "/networks/create", nil, body)
	assert.Equal(t, rec.Code, http.StatusCreated)
	var created apitypes.NetworkCreateResponse
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Assert(t, created.ID != "")

	rec = serveOne(t, r, "GET", "/networks", nil, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	var list []apitypes.NetworkResource
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, len(list), 1)

	rec = serveOne(t, r, "GET", "/networks/{id}", map[string]string{"id": "web"}, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	var resource apitypes.NetworkResource
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &resource))
	assert.Equal(t, resource.Name, "web")
}

func TestGetUnknownNetworkIsNotFound(t *testing.T) {
	r := newTestRouter(t)
	rec := serveOne(t, r, "GET", "/networks/{id}", map[string]string{"id": "nope"}, nil)
	assert.Equal(t, rec.Code, http.StatusInternalServerError)
	assert.Assert(t, bytes.Contains(rec.Body.Bytes(), []byte("not found")))
}

func TestConnectThenDisconnect(t *testing.T) {
	r := newTestRouter(t)
	body, _ := json.Marshal(apitypes.NetworkCreateRequest{
		Name:   "web",
		Driver: "bridge-like",
		IPAM:   &apitypes.IPAM{Config: []apitypes.IPAMConfig{{Subnet: "10.1.0.0/24", Gateway: "10.1.0.1"}}},
	})
	rec := serveOne(t, r, "POST", "/networks/create", nil, body)
	var created apitypes.NetworkCreateResponse
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	connectBody, _ := json.Marshal(apitypes.NetworkConnectRequest{Container: "c1"})
	rec = serveOne(t, r, "POST", "/networks/{id}/connect", map[string]string{"id": created.ID}, connectBody)
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = serveOne(t, r, "DELETE", "/networks/{id}", map[string]string{"id": created.ID}, nil)
	assert.Equal(t, rec.Code, http.StatusInternalServerError)
	assert.Assert(t, bytes.Contains(rec.Body.Bytes(), []byte("active endpoints")))

	disconnectBody, _ := json.Marshal(apitypes.NetworkDisconnectRequest{Container: "c1"})
	rec = serveOne(t, r, "POST", "/networks/{id}/disconnect", map[string]string{"id": created.ID}, disconnectBody)
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = serveOne(t, r, "DELETE", "/networks/{id}", map[string]string{"id": created.ID}, nil)
	assert.Equal(t, rec.Code, http.StatusNoContent)
}
