package session

import (
	"context"
	"sync"
	"time"

	"detective_backend/internal/domain"
	"detective_backend/internal/logger"

	"github.com/google/uuid"
)

const (
	cleanupInterval = 10 * time.Minute
	idleEviction    = time.Hour
)

// Manager owns the in-memory orchestrators, one per room. Rooms are loaded
// from the store on demand and evicted when finished or idle; phase timers
// and realtime sessions are memory-only and do not survive eviction.
type Manager struct {
	deps Deps

	mu    sync.Mutex
	rooms map[string]*Orchestrator
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, rooms: make(map[string]*Orchestrator)}
}

// CreateRoom seeds a new game: a fresh oracle thread, an optional scenario
// brief, then the authored opening snapshot. The snapshot is validated before
// anything is persisted; round count is pinned from here on.
func (m *Manager) CreateRoom(ctx context.Context, detectiveID int64, culpritPlayerID *int64, brief string) (*Orchestrator, error) {
	threadID, err := m.deps.Oracle.CreateThread(ctx)
	if err != nil {
		return nil, err
	}
	if brief != "" {
		if err := m.deps.Oracle.AddMessage(ctx, threadID, "user", brief); err != nil {
			return nil, err
		}
	}
	gs, err := m.deps.Oracle.RunAndAwait(ctx, threadID, m.deps.Config.GameAssistantID)
	if err != nil {
		return nil, err
	}
	if err := domain.Validate(gs, -1); err != nil {
		return nil, err
	}
	// the game starts over the /start endpoint, whatever the oracle thinks
	gs.Status = domain.GameStatusSetup
	for i := range gs.Rounds {
		if gs.Rounds[i].Status == domain.RoundActive {
			gs.Rounds[i].Status = domain.RoundInactive
		}
	}

	rec := &RoomRecord{
		ID:              uuid.NewString(),
		DetectiveID:     detectiveID,
		CulpritPlayerID: culpritPlayerID,
		ThreadID:        threadID,
		State:           gs,
		Version:         1,
	}
	if err := m.deps.Store.CreateRoom(ctx, rec); err != nil {
		return nil, err
	}

	o := newOrchestrator(rec, m.deps)
	m.mu.Lock()
	m.rooms[rec.ID] = o
	m.mu.Unlock()
	activeRooms.Inc()

	logger.Info("room created", "room", rec.ID, "detective", detectiveID, "rounds", len(gs.Rounds))
	return o, nil
}

// Room returns the orchestrator for a room, loading it from the store if it
// isn't in memory yet.
func (m *Manager) Room(ctx context.Context, id string) (*Orchestrator, error) {
	m.mu.Lock()
	if o, ok := m.rooms[id]; ok {
		m.mu.Unlock()
		return o, nil
	}
	m.mu.Unlock()

	rec, err := m.deps.Store.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.rooms[id]; ok { // lost the race, keep the first loader's copy
		return o, nil
	}
	o := newOrchestrator(rec, m.deps)
	m.rooms[id] = o
	activeRooms.Inc()
	return o, nil
}

// Evict drops a room from memory, shutting down its timer and bridge.
func (m *Manager) Evict(id string) {
	m.mu.Lock()
	o, ok := m.rooms[id]
	if ok {
		delete(m.rooms, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	activeRooms.Dec()
	o.shutdown()
}

// StartCleanup evicts finished and long-idle rooms on a timer until ctx ends.
func (m *Manager) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() {
	m.mu.Lock()
	var victims []string
	for id, o := range m.rooms {
		if o.finished() || time.Since(o.idleSince()) > idleEviction {
			victims = append(victims, id)
		}
	}
	m.mu.Unlock()

	for _, id := range victims {
		logger.Debug("evicting room", "room", id)
		m.Evict(id)
	}
}
