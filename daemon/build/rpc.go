package build

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	buildkit "github.com/moby/buildkit/client"
)

// SolveRequest is the solve() input. Definition — a caller-supplied
// serialized LLB graph, as buildx's non-frontend solve path can send — is
// deliberately not threaded through: this package proxies the common
// frontend-driven build (what `docker build` sends: Frontend="dockerfile.v0"
// with FrontendAttrs carrying context/dockerfile refs, Definition nil) and
// documents the narrower raw-LLB path as out of scope, keeping the Build
// Manager a thin proxy rather than a second place that interprets build
// graphs.
type SolveRequest struct {
	Frontend      string
	FrontendAttrs map[string]string
}

// Solve starts a build against the managed build daemon and returns its
// ref immediately; the solve itself runs in the background and reports
// progress through Status(ref).
func (m *Manager) Solve(ctx context.Context, req SolveRequest) (string, error) {
	cl, err := m.connect(ctx)
	if err != nil {
		return "", err
	}

	ref := uuid.New().String()
	j := newJob(ref)
	m.jobsMu.Lock()
	m.jobs[ref] = j
	m.jobsMu.Unlock()

	statusCh := make(chan *buildkit.SolveStatus)
	go func() {
		for s := range statusCh {
			j.publish(s)
		}
	}()

	go func() {
		_, solveErr := cl.Solve(ctx, nil, buildkit.SolveOpt{
			Frontend:      req.Frontend,
			FrontendAttrs: req.FrontendAttrs,
		}, statusCh)
		if solveErr != nil {
			m.reconnect()
		}
		j.finish(solveErr)
	}()

	return ref, nil
}

// Status returns the progress stream for a ref returned by Solve: buffered
// history first, then live updates until the solve finishes.
func (m *Manager) Status(ref string) (<-chan *buildkit.SolveStatus, error) {
	m.jobsMu.Lock()
	j, ok := m.jobs[ref]
	m.jobsMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("build: unknown ref %q", ref)
	}
	return j.subscribe(), nil
}

// ListWorkers proxies the build daemon's worker inventory.
func (m *Manager) ListWorkers(ctx context.Context) ([]*buildkit.WorkerRecord, error) {
	cl, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	workers, err := cl.ListWorkers(ctx)
	if err != nil {
		m.reconnect()
		return nil, err
	}
	return workers, nil
}

// Prune reclaims unused build cache and returns what it freed. The
// streaming channel is the same shape BuildKit's own client uses for
// `docker builder prune`'s progress output; the callee closes it once
// pruning completes.
func (m *Manager) Prune(ctx context.Context) ([]*buildkit.UsageInfo, error) {
	cl, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan buildkit.UsageInfo)
	var out []*buildkit.UsageInfo
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for u := range ch {
			u := u
			out = append(out, &u)
		}
	}()

	pruneErr := cl.Prune(ctx, ch)
	wg.Wait()
	if pruneErr != nil {
		m.reconnect()
		return nil, pruneErr
	}
	return out, nil
}

// DiskUsage reports build cache disk usage, the counterpart
// `docker system df` surfaces for build cache.
func (m *Manager) DiskUsage(ctx context.Context) ([]*buildkit.UsageInfo, error) {
	cl, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	du, err := cl.DiskUsage(ctx)
	if err != nil {
		m.reconnect()
		return nil, err
	}
	return du, nil
}
