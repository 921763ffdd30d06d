package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/pingpong/internal/app/keepalive"
	"github.com/dkeye/pingpong/internal/core"
)

type PeerID string

type peerEntry struct {
	Info      PeerInfo
	Endpoint  core.Endpoint
	Exchanger *keepalive.Exchanger
	Cancel    context.CancelFunc
}

// PeerInfo is a read-only view of a live peer for APIs.
type PeerInfo struct {
	ID          PeerID          `json:"id"`
	Session     string          `json:"session,omitempty"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`
	Stats       keepalive.Stats `json:"stats"`
}

// Registry tracks the exchangers running on the server, one per peer.
// It never closes endpoints itself; Cancel asks the owner to do so.
type Registry struct {
	mu    sync.RWMutex
	peers map[PeerID]*peerEntry
}

func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[PeerID]*peerEntry),
	}
}

func (r *Registry) Bind(
	info PeerInfo,
	ep core.Endpoint,
	x *keepalive.Exchanger,
	cancel context.CancelFunc,
) {
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[info.ID] = &peerEntry{
		Info:      info,
		Endpoint:  ep,
		Exchanger: x,
		Cancel:    cancel,
	}
	log.Info().Str("module", "app.registry").Str("peer", string(info.ID)).Str("remote", info.RemoteAddr).Msg("bound peer")
}

func (r *Registry) Unbind(id PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("unbind peer")
}

func (r *Registry) Get(id PeerID) (PeerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.peers[id]
	if !ok {
		return PeerInfo{}, false
	}
	return e.snapshot(), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// List returns live peers ordered by connection time.
func (r *Registry) List() []PeerInfo {
	r.mu.RLock()
	out := make([]PeerInfo, 0, len(r.peers))
	for _, e := range r.peers {
		out = append(out, e.snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

func (r *Registry) Cancel(id PeerID) bool {
	r.mu.RLock()
	e, ok := r.peers[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("canceled peer")
	return true
}

// CancelAll cancels every peer, used on shutdown.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(r.peers))
	for _, e := range r.peers {
		cancels = append(cancels, e.Cancel)
	}
	r.mu.RUnlock()

	for _, c := range cancels {
		if c != nil {
			c()
		}
	}
	return len(cancels)
}

func (e *peerEntry) snapshot() PeerInfo {
	info := e.Info
	if e.Exchanger != nil {
		info.Stats = e.Exchanger.Stats()
	}
	return info
}
