package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"detective_backend/internal/domain"
	"detective_backend/internal/oracle"
)

// --- fakes -----------------------------------------------------------------

type fakeStore struct {
	mu   sync.Mutex
	recs map[string]*RoomRecord
}

func newFakeStore() *fakeStore { return &fakeStore{recs: make(map[string]*RoomRecord)} }

func (s *fakeStore) CreateRoom(_ context.Context, rec *RoomRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *fakeStore) GetRoom(_ context.Context, id string) (*RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return rec, nil
}

func (s *fakeStore) UpdateRoom(_ context.Context, id string, gs *domain.GameState, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return 0, ErrRoomNotFound
	}
	if rec.Version != expectedVersion {
		return 0, ErrVersionConflict
	}
	rec.Version++
	rec.State = gs
	return rec.Version, nil
}

func (s *fakeStore) version(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recs[id]; ok {
		return rec.Version
	}
	return 0
}

type emitted struct {
	room    string
	event   string
	payload any
	version int64 // store version at emit time
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	store  *fakeStore
	roomID string
	events []emitted
}

func (b *fakeBroadcaster) EmitToRoom(roomID, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var v int64
	if b.store != nil {
		v = b.store.version(b.roomID)
	}
	b.events = append(b.events, emitted{room: roomID, event: event, payload: payload, version: v})
}

func (b *fakeBroadcaster) EmitToSocket(socketID, event string, payload any) {}

func (b *fakeBroadcaster) byName(event string) []emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []emitted
	for _, e := range b.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type stubOracle struct {
	mu         sync.Mutex
	snapshots  []*domain.GameState
	runErr     error
	warmth     float64
	warmthErr  error
	results    []oracle.ProposedResult
	resultsErr error
	messages   []string
	threads    int
}

func (o *stubOracle) CreateThread(context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.threads++
	return fmt.Sprintf("thread_%d", o.threads), nil
}

func (o *stubOracle) AddMessage(_ context.Context, _, _, content string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, content)
	return nil
}

func (o *stubOracle) RunAndAwait(context.Context, string, string) (*domain.GameState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runErr != nil {
		return nil, o.runErr
	}
	if len(o.snapshots) == 0 {
		return nil, errors.New("stub oracle has no snapshot queued")
	}
	snap := o.snapshots[0]
	o.snapshots = o.snapshots[1:]
	return snap, nil
}

func (o *stubOracle) ScoreWarmth(context.Context, string, domain.Crime, domain.Deduction) (float64, error) {
	return o.warmth, o.warmthErr
}

func (o *stubOracle) ProposeResults(context.Context, string, string, map[string]float64) ([]oracle.ProposedResult, error) {
	return o.results, o.resultsErr
}

type fakeBridge struct {
	mu           sync.Mutex
	instructions string
	connected    bool
	closed       bool
	closeErr     error
	chunks       int
	commits      int

	onUser func(string)
	onDone func(string)
	onTurn func()
}

func (f *fakeBridge) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}
func (f *fakeBridge) SendAudioChunk([]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks++
	return nil
}
func (f *fakeBridge) CommitAndRespond() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return nil
}
func (f *fakeBridge) OnUserTranscript(fn func(string))         { f.onUser = fn }
func (f *fakeBridge) OnAssistantAudioChunk(func([]byte))       {}
func (f *fakeBridge) OnAssistantAudioDelta(func([]byte))       {}
func (f *fakeBridge) OnAssistantTranscriptDelta(func(string))  {}
func (f *fakeBridge) OnAssistantTranscriptDone(fn func(string)) { f.onDone = fn }
func (f *fakeBridge) OnTurnComplete(fn func())                 { f.onTurn = fn }
func (f *fakeBridge) OnError(func(error))                      {}
func (f *fakeBridge) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

type fakeRatings struct {
	mu      sync.Mutex
	ratings map[int64]float64
	wins    map[int64]int
	records []string
}

func newFakeRatings() *fakeRatings {
	return &fakeRatings{ratings: make(map[int64]float64), wins: make(map[int64]int)}
}

func (r *fakeRatings) GetRatingAndWins(_ context.Context, id int64) (float64, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.ratings[id]
	if !ok {
		return 0, 0, errors.New("no rating")
	}
	return v, r.wins[id], nil
}

func (r *fakeRatings) SetRatingAndWins(_ context.Context, id int64, rating float64, wins int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ratings[id] = rating
	r.wins[id] = wins
	return nil
}

func (r *fakeRatings) RecordGameResult(_ context.Context, id int64, roomID string, oldR, newR float64, won bool, badges []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, fmt.Sprintf("%d:%s:%.0f->%.0f:%v:%v", id, roomID, oldR, newR, won, badges))
	return nil
}

type fakeBoard struct {
	mu      sync.Mutex
	ratings map[int64]float64
}

func (b *fakeBoard) UpdateRating(_ context.Context, id int64, rating float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ratings == nil {
		b.ratings = make(map[int64]float64)
	}
	b.ratings[id] = rating
	return nil
}

// --- fixtures --------------------------------------------------------------

// gameFixture builds a three-suspect setup game: six rounds alternating
// interrogation and voting, suspect C the culprit.
func gameFixture() *domain.GameState {
	gs := &domain.GameState{
		Status: domain.GameStatusSetup,
		Crime: domain.Crime{
			Type:        "theft",
			Location:    "The Velvet Room",
			Time:        "between midnight and dawn",
			Description: "The club's ledger vanished from the office safe.",
		},
		Suspects: []domain.Suspect{
			{ID: "A", Identity: "Ada the bartender", Evidence: []string{"wiped glasses all night"}, GuiltScore: 20},
			{ID: "B", Identity: "Boris the doorman", Evidence: []string{"left his post twice"}, GuiltScore: 35},
			{ID: "C", Identity: "Clara the accountant", Evidence: []string{"keeps the only safe key"}, GuiltScore: 45, IsCulprit: true},
		},
		Deduction: domain.Deduction{
			Nodes: []domain.DeductionNode{
				{ID: "node-A", Kind: domain.NodeSuspect, Payload: "A"},
				{ID: "node-B", Kind: domain.NodeSuspect, Payload: "B"},
				{ID: "node-C", Kind: domain.NodeSuspect, Payload: "C"},
				{ID: "ev-key", Kind: domain.NodeEvidence, Payload: "safe key"},
			},
		},
		Outcome: domain.Outcome{Winner: domain.WinnerUndetermined},
	}
	for i := 0; i < 3; i++ {
		gs.Rounds = append(gs.Rounds,
			domain.Round{Status: domain.RoundInactive, Kind: domain.RoundInterrogation},
			domain.Round{Status: domain.RoundInactive, Kind: domain.RoundVoting},
		)
	}
	return gs
}

type testEnv struct {
	store   *fakeStore
	bcast   *fakeBroadcaster
	oracle  *stubOracle
	ratings *fakeRatings
	board   *fakeBoard
	bridges []*fakeBridge
	orc     *Orchestrator
}

func newTestEnv(t *testing.T, gs *domain.GameState) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   newFakeStore(),
		oracle:  &stubOracle{warmth: 50},
		ratings: newFakeRatings(),
		board:   &fakeBoard{},
	}
	rec := &RoomRecord{ID: "room-1", DetectiveID: 7, ThreadID: "thread_1", State: gs, Version: 1}
	if err := env.store.CreateRoom(context.Background(), rec); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	env.bcast = &fakeBroadcaster{store: env.store, roomID: rec.ID}

	deps := Deps{
		Store:       env.store,
		Broadcaster: env.bcast,
		Oracle:      env.oracle,
		Ratings:     env.ratings,
		Board:       env.board,
		DialBridge: func(instructions string) RealtimeSession {
			b := &fakeBridge{instructions: instructions}
			env.bridges = append(env.bridges, b)
			return b
		},
		Config: Config{
			InterrogationPhase: 5 * time.Second,
			DeductionPhase:     5 * time.Second,
			GameAssistantID:    "asst_game",
			ScoreAssistantID:   "asst_score",
		},
	}
	env.orc = newOrchestrator(rec, deps)
	t.Cleanup(env.orc.shutdown)
	return env
}

// --- tests -----------------------------------------------------------------

func TestStartGameActivatesFirstRound(t *testing.T) {
	env := newTestEnv(t, gameFixture())
	ctx := context.Background()

	if err := env.orc.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}

	view := env.orc.ClientState()
	if view.Status != domain.GameStatusActive {
		t.Fatalf("status = %s", view.Status)
	}
	if idx := view.ActiveRoundIndex(); idx != 0 {
		t.Fatalf("active round = %d, want 0", idx)
	}
	if got := env.store.version("room-1"); got != 2 {
		t.Fatalf("store version = %d, want 2", got)
	}
	if got := env.bcast.byName(EventPhaseStarted); len(got) != 1 {
		t.Fatalf("phase-started events = %d, want 1", len(got))
	}

	// second start is rejected
	if err := env.orc.StartGame(ctx); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("restart: got %v, want ErrInvalidState", err)
	}
}

func TestPhaseStartIsReentrantNoOp(t *testing.T) {
	env := newTestEnv(t, gameFixture())
	if err := env.orc.StartGame(context.Background()); err != nil {
		t.Fatalf("start game: %v", err)
	}

	env.orc.StartInterrogationPhase()
	env.orc.StartInterrogationPhase()

	if got := env.bcast.byName(EventPhaseStarted); len(got) != 1 {
		t.Fatalf("phase-started events = %d, want 1 (restart must be silent)", len(got))
	}
}

func TestInterrogationLifecycleLocalAdvance(t *testing.T) {
	env := newTestEnv(t, gameFixture())
	ctx := context.Background()
	if err := env.orc.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}

	if err := env.orc.StartInterrogation(ctx, "A"); err != nil {
		t.Fatalf("start interrogation: %v", err)
	}
	if len(env.bridges) != 1 || !env.bridges[0].connected {
		t.Fatal("bridge was not dialed")
	}
	if env.bridges[0].instructions != "Ada the bartender" {
		t.Fatalf("bridge instructions = %q", env.bridges[0].instructions)
	}

	// same suspect again: reuse, no new dial
	if err := env.orc.StartInterrogation(ctx, "A"); err != nil {
		t.Fatalf("re-enter interrogation: %v", err)
	}
	if len(env.bridges) != 1 {
		t.Fatalf("dialed %d bridges, want 1", len(env.bridges))
	}

	// a different suspect while live is refused
	if err := env.orc.StartInterrogation(ctx, "B"); !errors.Is(err, ErrInterrogationBusy) {
		t.Fatalf("concurrent interrogation: got %v", err)
	}

	if err := env.orc.SendAudio([]byte("pcm")); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	if err := env.orc.CommitAudio(); err != nil {
		t.Fatalf("commit audio: %v", err)
	}

	// no conversation recorded, so ending falls back to a local advance
	if err := env.orc.EndInterrogation(ctx); err != nil {
		t.Fatalf("end interrogation: %v", err)
	}
	if !env.bridges[0].closed {
		t.Fatal("bridge was not closed")
	}

	view := env.orc.ClientState()
	if s := view.SuspectByID("A"); s == nil || !s.Interrogated {
		t.Fatal("suspect A not marked interrogated")
	}
	if view.Rounds[0].Status != domain.RoundCompleted {
		t.Fatalf("round 0 status = %s", view.Rounds[0].Status)
	}
	if idx := view.ActiveRoundIndex(); idx != 1 {
		t.Fatalf("active round = %d, want 1", idx)
	}
	if err := env.orc.SendAudio([]byte("late")); !errors.Is(err, ErrNoInterrogation) {
		t.Fatalf("audio after end: got %v", err)
	}
}

func TestEndInterrogationAdoptsOracleSnapshot(t *testing.T) {
	env := newTestEnv(t, gameFixture())
	ctx := context.Background()
	if err := env.orc.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := env.orc.StartInterrogation(ctx, "A"); err != nil {
		t.Fatalf("start interrogation: %v", err)
	}

	// record a turn so the transcript reaches the oracle
	env.bridges[0].onUser("where were you at midnight")
	env.bridges[0].onDone("Behind the bar, as always.")

	snap := gameFixture()
	snap.Status = domain.GameStatusActive
	snap.Crime.Type = "REWRITTEN BY ORACLE"
	snap.Suspects[0].Interrogated = true
	snap.Suspects[0].GuiltScore = 60
	snap.Rounds[0].Status = domain.RoundCompleted
	snap.Rounds[1].Status = domain.RoundActive
	env.oracle.mu.Lock()
	env.oracle.snapshots = append(env.oracle.snapshots, snap)
	env.oracle.mu.Unlock()

	if err := env.orc.EndInterrogation(ctx); err != nil {
		t.Fatalf("end interrogation: %v", err)
	}

	view := env.orc.ClientState()
	if view.Suspects[0].GuiltScore != 60 {
		t.Fatalf("guilt score = %v, snapshot not adopted", view.Suspects[0].GuiltScore)
	}
	if view.Crime.Type != "theft" {
		t.Fatalf("crime type = %q, original crime must survive the fold", view.Crime.Type)
	}
	if idx := view.ActiveRoundIndex(); idx != 1 {
		t.Fatalf("active round = %d, want 1", idx)
	}
	env.oracle.mu.Lock()
	folded := len(env.oracle.messages)
	env.oracle.mu.Unlock()
	if folded != 1 {
		t.Fatalf("oracle received %d transcripts, want 1", folded)
	}
}

func TestEndInterrogationRejectsBadSnapshot(t *testing.T) {
	env := newTestEnv(t, gameFixture())
	ctx := context.Background()
	if err := env.orc.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := env.orc.StartInterrogation(ctx, "A"); err != nil {
		t.Fatalf("start interrogation: %v", err)
	}
	env.bridges[0].onUser("talk")
	env.bridges[0].onDone("no")

	// oracle tries to shrink the round list
	snap := gameFixture()
	snap.Status = domain.GameStatusActive
	snap.Rounds = snap.Rounds[:4]
	snap.Rounds[0].Status = domain.RoundCompleted
	snap.Rounds[1].Status = domain.RoundActive
	env.oracle.mu.Lock()
	env.oracle.snapshots = append(env.oracle.snapshots, snap)
	env.oracle.mu.Unlock()

	if err := env.orc.EndInterrogation(ctx); err != nil {
		t.Fatalf("end interrogation: %v", err)
	}

	if got := env.bcast.byName(EventGameError); len(got) == 0 {
		t.Fatal("expected a game-error for the rejected snapshot")
	}
	view := env.orc.ClientState()
	if len(view.Rounds) != 6 {
		t.Fatalf("round count = %d, pinned count must survive", len(view.Rounds))
	}
	if idx := view.ActiveRoundIndex(); idx != 1 {
		t.Fatalf("active round = %d, want local advance to 1", idx)
	}
}

func TestStartGameWithNoStartableRound(t *testing.T) {
	gs := gameFixture()
	for i := range gs.Rounds {
		gs.Rounds[i].Status = domain.RoundCompleted
	}
	env := newTestEnv(t, gs)
	ctx := context.Background()

	if err := env.orc.StartGame(ctx); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("start game: got %v, want ErrInvalidState", err)
	}

	// the room must stay usable after the refusal
	view := env.orc.ClientState()
	if view.Status != domain.GameStatusSetup {
		t.Fatalf("status = %s, want setup", view.Status)
	}
	if got := env.store.version("room-1"); got != 1 {
		t.Fatalf("store version = %d, refusal must not persist", got)
	}
	if err := env.orc.StartGame(ctx); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second start: got %v, want ErrInvalidState", err)
	}
}

func TestEndInterrogationRejectsStatusChange(t *testing.T) {
	env := newTestEnv(t, gameFixture())
	ctx := context.Background()
	if err := env.orc.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := env.orc.StartInterrogation(ctx, "A"); err != nil {
		t.Fatalf("start interrogation: %v", err)
	}
	env.bridges[0].onUser("did you take the ledger")
	env.bridges[0].onDone("I never touch the safe.")

	// oracle tries to end the game on its own terms
	snap := gameFixture()
	snap.Status = domain.GameStatusFinished
	for i := range snap.Rounds {
		snap.Rounds[i].Status = domain.RoundCompleted
	}
	snap.Outcome = domain.Outcome{Winner: domain.WinnerCulprit}
	env.oracle.mu.Lock()
	env.oracle.snapshots = append(env.oracle.snapshots, snap)
	env.oracle.mu.Unlock()

	if err := env.orc.EndInterrogation(ctx); err != nil {
		t.Fatalf("end interrogation: %v", err)
	}

	if got := env.bcast.byName(EventGameError); len(got) == 0 {
		t.Fatal("expected a game-error for the rejected snapshot")
	}
	if got := env.bcast.byName(EventGameFinished); len(got) != 0 {
		t.Fatalf("game-finished events = %d, only the analysis may finish", len(got))
	}
	view := env.orc.ClientState()
	if view.Status != domain.GameStatusActive {
		t.Fatalf("status = %s, want active", view.Status)
	}
	if idx := view.ActiveRoundIndex(); idx != 1 {
		t.Fatalf("active round = %d, want local advance to 1", idx)
	}
}

func TestPersistPrecedesBroadcast(t *testing.T) {
	env := newTestEnv(t, gameFixture())
	ctx := context.Background()
	if err := env.orc.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := env.orc.EndInterrogation(ctx); err != nil {
		t.Fatalf("end interrogation: %v", err)
	}

	updates := env.bcast.byName(EventGameUpdated)
	if len(updates) < 2 {
		t.Fatalf("game-updated events = %d, want >= 2", len(updates))
	}
	// every broadcast must have seen the post-write store version
	for i, e := range updates {
		if e.version < int64(i+2) {
			t.Fatalf("event %d emitted at store version %d, before the write landed", i, e.version)
		}
	}
}

func TestLeadsRescoreWarmth(t *testing.T) {
	env := newTestEnv(t, gameFixture())
	ctx := context.Background()
	if err := env.orc.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}

	env.oracle.warmth = 137 // out of range, must clamp
	edgeID, err := env.orc.CreateNewLead(ctx, "ev-key", "node-C", domain.EdgeImplicates)
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	if edgeID == "" {
		t.Fatal("empty edge id")
	}
	if got := env.orc.ClientState().Deduction.Warmth; got != 100 {
		t.Fatalf("warmth = %v, want clamped 100", got)
	}

	// scoring fault leaves warmth alone and surfaces a recoverable error
	env.oracle.warmthErr = errors.New("oracle down")
	if _, err := env.orc.CreateNewLead(ctx, "ev-key", "node-B", domain.EdgeSupports); err != nil {
		t.Fatalf("create lead with scoring fault: %v", err)
	}
	if got := env.orc.ClientState().Deduction.Warmth; got != 100 {
		t.Fatalf("warmth = %v, must be untouched on fault", got)
	}
	if got := env.bcast.byName(EventGameError); len(got) != 1 {
		t.Fatalf("game-error events = %d, want 1", len(got))
	}

	env.oracle.warmthErr = nil
	env.oracle.warmth = 40
	if err := env.orc.RemoveLead(ctx, edgeID); err != nil {
		t.Fatalf("remove lead: %v", err)
	}
	view := env.orc.ClientState()
	for _, e := range view.Deduction.Edges {
		if e.ID == edgeID {
			t.Fatal("edge survived removal")
		}
	}
	if view.Deduction.Warmth != 40 {
		t.Fatalf("warmth after removal = %v, want 40", view.Deduction.Warmth)
	}

	if err := env.orc.RemoveLead(ctx, "no-such-edge"); !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("remove missing lead: got %v", err)
	}

	if _, err := env.orc.CreateNewLead(ctx, "ev-key", "ghost", domain.EdgeImplicates); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("dangling lead: got %v", err)
	}
}

func TestRemoveLeadDropsDuplicatePairs(t *testing.T) {
	env := newTestEnv(t, gameFixture())
	ctx := context.Background()
	if err := env.orc.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}

	first, err := env.orc.CreateNewLead(ctx, "ev-key", "node-C", domain.EdgeImplicates)
	if err != nil {
		t.Fatalf("first lead: %v", err)
	}
	if _, err := env.orc.CreateNewLead(ctx, "ev-key", "node-C", domain.EdgeSupports); err != nil {
		t.Fatalf("second lead: %v", err)
	}
	if _, err := env.orc.CreateNewLead(ctx, "node-A", "node-C", domain.EdgeImplicates); err != nil {
		t.Fatalf("third lead: %v", err)
	}

	if err := env.orc.RemoveLead(ctx, first); err != nil {
		t.Fatalf("remove: %v", err)
	}
	view := env.orc.ClientState()
	if len(view.Deduction.Edges) != 1 {
		t.Fatalf("edges left = %d, want 1 (same-pair duplicates go together)", len(view.Deduction.Edges))
	}
	if view.Deduction.Edges[0].SourceNodeID != "node-A" {
		t.Fatalf("surviving edge source = %s", view.Deduction.Edges[0].SourceNodeID)
	}
}

func TestDeductionAnalysisResolvesGame(t *testing.T) {
	env := newTestEnv(t, gameFixture())
	ctx := context.Background()
	if err := env.orc.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}
	env.oracle.results = []oracle.ProposedResult{{ParticipantID: "7", Badges: []string{"sharp-eye"}}}

	if _, err := env.orc.CreateNewLead(ctx, "ev-key", "node-C", domain.EdgeImplicates); err != nil {
		t.Fatalf("lead: %v", err)
	}
	if err := env.orc.RunDeductionAnalysis(ctx); err != nil {
		t.Fatalf("analysis: %v", err)
	}

	view := env.orc.ClientState()
	if view.Status != domain.GameStatusFinished {
		t.Fatalf("status = %s", view.Status)
	}
	if view.Outcome.Winner != domain.WinnerInnocents {
		t.Fatalf("winner = %s, the graph implicated the culprit", view.Outcome.Winner)
	}
	for i, r := range view.Rounds {
		if r.Status != domain.RoundCompleted {
			t.Fatalf("round %d status = %s after resolution", i, r.Status)
		}
	}
	if got := env.bcast.byName(EventGameFinished); len(got) != 1 {
		t.Fatalf("game-finished events = %d", len(got))
	}

	// solo pool: expected score is 0.5, so a win moves the default 1000 by +16
	env.ratings.mu.Lock()
	rating, wins := env.ratings.ratings[7], env.ratings.wins[7]
	records := len(env.ratings.records)
	env.ratings.mu.Unlock()
	if rating != 1016 {
		t.Fatalf("rating = %v, want 1016", rating)
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
	if records != 1 {
		t.Fatalf("result records = %d, want 1", records)
	}
	env.board.mu.Lock()
	boardRating := env.board.ratings[7]
	env.board.mu.Unlock()
	if boardRating != 1016 {
		t.Fatalf("leaderboard rating = %v, want 1016", boardRating)
	}

	// results are written once
	if env.orc.CalculateGameResults(ctx) {
		t.Fatal("second results calculation must be a no-op")
	}

	// and a finished game rejects further analysis
	if err := env.orc.RunDeductionAnalysis(ctx); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("analysis on finished game: got %v", err)
	}
}

func TestAnalysisWithEmptyGraphFavorsCulprit(t *testing.T) {
	env := newTestEnv(t, gameFixture())
	ctx := context.Background()
	if err := env.orc.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}

	if err := env.orc.RunDeductionAnalysis(ctx); err != nil {
		t.Fatalf("analysis: %v", err)
	}
	view := env.orc.ClientState()
	if view.Outcome.Winner != domain.WinnerCulprit {
		t.Fatalf("winner = %s, no accusation means the culprit walks", view.Outcome.Winner)
	}
}

func TestManagerCreateRoomValidatesSnapshot(t *testing.T) {
	store := newFakeStore()
	orc := &stubOracle{}
	bad := gameFixture()
	bad.Rounds = bad.Rounds[:3] // not 2x suspects
	orc.snapshots = append(orc.snapshots, bad)

	m := NewManager(Deps{
		Store:       store,
		Broadcaster: &fakeBroadcaster{},
		Oracle:      orc,
		Ratings:     newFakeRatings(),
		Config:      Config{GameAssistantID: "asst_game"},
	})

	if _, err := m.CreateRoom(context.Background(), 7, nil, "a noir night"); err == nil {
		t.Fatal("expected a rejected opening snapshot")
	}
	store.mu.Lock()
	stored := len(store.recs)
	store.mu.Unlock()
	if stored != 0 {
		t.Fatal("invalid snapshot must not be persisted")
	}
}

func TestManagerRoomLoadsFromStore(t *testing.T) {
	store := newFakeStore()
	gs := gameFixture()
	rec := &RoomRecord{ID: "room-9", DetectiveID: 7, ThreadID: "thread_1", State: gs, Version: 3}
	_ = store.CreateRoom(context.Background(), rec)

	m := NewManager(Deps{
		Store:       store,
		Broadcaster: &fakeBroadcaster{},
		Oracle:      &stubOracle{},
		Ratings:     newFakeRatings(),
	})

	o, err := m.Room(context.Background(), "room-9")
	if err != nil {
		t.Fatalf("load room: %v", err)
	}
	if o.RoomID() != "room-9" {
		t.Fatalf("room id = %s", o.RoomID())
	}
	again, err := m.Room(context.Background(), "room-9")
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if o != again {
		t.Fatal("second load must hit the cache")
	}

	if _, err := m.Room(context.Background(), "nope"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("missing room: got %v", err)
	}

	m.Evict("room-9")
	if _, ok := m.rooms["room-9"]; ok {
		t.Fatal("room survived eviction")
	}
}
