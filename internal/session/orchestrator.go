package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"detective_backend/internal/countdown"
	"detective_backend/internal/deduction"
	"detective_backend/internal/domain"
	"detective_backend/internal/logger"
	"detective_backend/internal/rating"

	"github.com/google/uuid"
)

var (
	ErrLeadNotFound      = errors.New("lead not found")
	ErrInterrogationBusy = errors.New("another interrogation is in flight")
	ErrNoInterrogation   = errors.New("no interrogation in progress")
	ErrWrongPhase        = errors.New("operation not allowed in this phase")
)

const (
	defaultRating     = 1000.0
	oracleCallTimeout = 2 * time.Minute
)

// Config holds the per-phase knobs the orchestrator needs.
type Config struct {
	InterrogationPhase time.Duration
	DeductionPhase     time.Duration
	GameAssistantID    string
	ScoreAssistantID   string
}

// Deps are the injected collaborators. Nothing here is reached through
// package-level state.
type Deps struct {
	Store       Store
	Broadcaster Broadcaster
	Oracle      Oracle
	Ratings     RatingStore
	Board       Leaderboard
	DialBridge  BridgeDialer
	Config      Config
}

// Orchestrator drives one room's game. All mutation happens under the room
// mutex; oracle and bridge calls are made off-lock and their results are
// checked against the phase epoch before being applied, so a reply that
// outlives its phase is discarded instead of landing on stale state.
type Orchestrator struct {
	roomID          string
	detectiveID     int64
	culpritPlayerID *int64
	threadID        string

	deps Deps

	mu          sync.Mutex
	state       *domain.GameState
	version     int64
	roundTotal  int
	phaseEpoch  int64
	timer       *countdown.Countdown
	bridge      RealtimeSession
	activeSuspect string
	resultsDone bool
	lastTouched time.Time
}

func newOrchestrator(rec *RoomRecord, deps Deps) *Orchestrator {
	return &Orchestrator{
		roomID:          rec.ID,
		detectiveID:     rec.DetectiveID,
		culpritPlayerID: rec.CulpritPlayerID,
		threadID:        rec.ThreadID,
		deps:            deps,
		state:           rec.State,
		version:         rec.Version,
		roundTotal:      len(rec.State.Rounds),
		lastTouched:     time.Now(),
	}
}

func (o *Orchestrator) RoomID() string { return o.roomID }

// DetectiveID identifies the player allowed to drive interrogations.
func (o *Orchestrator) DetectiveID() int64 { return o.detectiveID }

// ClientState returns a copy safe to hand to clients.
func (o *Orchestrator) ClientState() *domain.GameState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.ClientView()
}

// StartGame flips the room from setup to active and kicks off the first
// round's phase.
func (o *Orchestrator) StartGame(ctx context.Context) error {
	o.mu.Lock()
	o.touchLocked()
	if o.state.Status != domain.GameStatusSetup {
		o.mu.Unlock()
		return fmt.Errorf("%w: game is %s", domain.ErrInvalidState, o.state.Status)
	}
	o.state.Status = domain.GameStatusActive
	if o.state.ActiveRoundIndex() < 0 {
		for i := range o.state.Rounds {
			if o.state.Rounds[i].Status == domain.RoundInactive {
				o.state.Rounds[i].Status = domain.RoundActive
				break
			}
		}
	}
	active := o.state.ActiveRound()
	if active == nil {
		o.state.Status = domain.GameStatusSetup
		o.mu.Unlock()
		return fmt.Errorf("%w: no startable round", domain.ErrInvalidState)
	}
	kind := active.Kind
	if err := o.persistLocked(ctx); err != nil {
		o.state.Status = domain.GameStatusSetup
		o.mu.Unlock()
		return err
	}
	view := o.state.ClientView()
	o.mu.Unlock()

	o.deps.Broadcaster.EmitToRoom(o.roomID, EventGameUpdated, view)
	o.startPhaseFor(kind)
	return nil
}

func (o *Orchestrator) StartInterrogationPhase() {
	o.startPhase(domain.RoundInterrogation, o.deps.Config.InterrogationPhase)
}

func (o *Orchestrator) StartDeductionPhase() {
	o.startPhase(domain.RoundVoting, o.deps.Config.DeductionPhase)
}

func (o *Orchestrator) startPhaseFor(kind domain.RoundKind) {
	if kind == domain.RoundVoting {
		o.StartDeductionPhase()
	} else {
		o.StartInterrogationPhase()
	}
}

// startPhase arms the phase countdown. A phase timer already running makes
// this a silent no-op: the guard is structural, not an error surfaced to the
// caller.
func (o *Orchestrator) startPhase(kind domain.RoundKind, dur time.Duration) {
	o.mu.Lock()
	if o.timer != nil && o.timer.Running() {
		logger.Warn("phase already running, ignoring start", "room", o.roomID, "kind", kind)
		o.mu.Unlock()
		return
	}
	o.phaseEpoch++
	epoch := o.phaseEpoch
	seconds := int(dur / time.Second)

	t := countdown.New(seconds,
		func(remaining int) {
			o.deps.Broadcaster.EmitToRoom(o.roomID, EventRoundTick, map[string]any{
				"kind":      kind,
				"remaining": remaining,
			})
		},
		func() {
			o.onPhaseDone(epoch, kind)
		})
	o.timer = t
	o.mu.Unlock()

	t.Start()
	phaseStarts.WithLabelValues(string(kind)).Inc()
	o.deps.Broadcaster.EmitToRoom(o.roomID, EventPhaseStarted, map[string]any{
		"kind":    kind,
		"seconds": seconds,
	})
}

// onPhaseDone fires on every countdown finish, expiry and cancel alike. The
// epoch decides whether this is still the live phase; a cancel path bumps the
// epoch first so its callback lands here as a stale no-op.
func (o *Orchestrator) onPhaseDone(epoch int64, kind domain.RoundKind) {
	o.mu.Lock()
	if epoch != o.phaseEpoch {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), oracleCallTimeout)
	defer cancel()

	var err error
	if kind == domain.RoundVoting {
		err = o.endDeductionPhase(ctx)
	} else {
		err = o.EndInterrogation(ctx)
	}
	if err != nil {
		logger.Error("phase end failed", "room", o.roomID, "kind", kind, "error", err)
	}
}

// cancelPhaseLocked invalidates the running phase and hands back its timer.
// The caller must Cancel it after releasing the mutex.
func (o *Orchestrator) cancelPhaseLocked() *countdown.Countdown {
	o.phaseEpoch++
	t := o.timer
	o.timer = nil
	return t
}

// StartInterrogation opens a realtime session with the chosen suspect on the
// active round. Calling it again for the same suspect while the session is
// up reuses the existing conversation entry instead of duplicating it.
func (o *Orchestrator) StartInterrogation(ctx context.Context, suspectID string) error {
	o.mu.Lock()
	o.touchLocked()
	round := o.state.ActiveRound()
	if o.state.Status != domain.GameStatusActive || round == nil || round.Kind != domain.RoundInterrogation {
		o.mu.Unlock()
		return ErrWrongPhase
	}
	suspect := o.state.SuspectByID(suspectID)
	if suspect == nil {
		o.mu.Unlock()
		return domain.ErrUnknownSuspect
	}
	if o.bridge != nil {
		busyWith := o.activeSuspect
		o.mu.Unlock()
		if busyWith == suspectID {
			return nil // already live, don't duplicate the entry
		}
		return ErrInterrogationBusy
	}

	roundIdx := o.state.ActiveRoundIndex()
	round.SuspectID = suspectID
	identity := suspect.Identity

	b := o.deps.DialBridge(identity)
	b.OnUserTranscript(func(text string) {
		o.appendTurn(roundIdx, "detective", text)
	})
	b.OnAssistantTranscriptDone(func(text string) {
		o.appendTurn(roundIdx, identity, text)
	})
	b.OnAssistantTranscriptDelta(func(delta string) {
		o.deps.Broadcaster.EmitToRoom(o.roomID, EventTranscriptDelta, map[string]any{
			"suspect_id": suspectID,
			"delta":      delta,
		})
	})
	b.OnAssistantAudioDelta(func(pcm []byte) {
		o.deps.Broadcaster.EmitToRoom(o.roomID, EventAudioDelta, map[string]any{
			"suspect_id": suspectID,
			"audio":      base64.StdEncoding.EncodeToString(pcm),
		})
	})
	b.OnAssistantAudioChunk(func(wav []byte) {
		logger.Debug("interrogation clip buffered", "room", o.roomID, "bytes", len(wav))
	})
	b.OnTurnComplete(func() {
		// каждый завершённый ход сохраняем сразу
		go o.persistAndBroadcast()
	})
	b.OnError(func(err error) {
		logger.Error("realtime fault", "room", o.roomID, "error", err)
		o.deps.Broadcaster.EmitToRoom(o.roomID, EventGameError, map[string]any{"error": err.Error()})
	})

	o.bridge = b
	o.activeSuspect = suspectID
	o.mu.Unlock()

	if err := b.Connect(); err != nil {
		o.mu.Lock()
		o.bridge = nil
		o.activeSuspect = ""
		o.mu.Unlock()
		o.deps.Broadcaster.EmitToRoom(o.roomID, EventGameError, map[string]any{"error": err.Error()})
		return err
	}

	o.deps.Broadcaster.EmitToRoom(o.roomID, EventInterrogationStarted, map[string]any{
		"suspect_id": suspectID,
		"round":      roundIdx,
	})
	return nil
}

// SendAudio forwards a chunk of the detective's audio to the live session.
func (o *Orchestrator) SendAudio(chunk []byte) error {
	o.mu.Lock()
	b := o.bridge
	o.mu.Unlock()
	if b == nil {
		return ErrNoInterrogation
	}
	return b.SendAudioChunk(chunk)
}

// CommitAudio closes out the detective's turn and requests the suspect's
// answer.
func (o *Orchestrator) CommitAudio() error {
	o.mu.Lock()
	b := o.bridge
	o.mu.Unlock()
	if b == nil {
		return ErrNoInterrogation
	}
	return b.CommitAndRespond()
}

// EndInterrogation tears the realtime session down, folds the transcript into
// a fresh snapshot through the oracle, advances the round and starts the next
// phase. Also the timer-expiry path for interrogation phases.
func (o *Orchestrator) EndInterrogation(ctx context.Context) error {
	o.mu.Lock()
	o.touchLocked()
	round := o.state.ActiveRound()
	if o.state.Status != domain.GameStatusActive || round == nil || round.Kind != domain.RoundInterrogation {
		o.mu.Unlock()
		return ErrWrongPhase
	}
	timer := o.cancelPhaseLocked()
	bridge := o.bridge
	o.bridge = nil
	suspectID := o.activeSuspect
	o.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}
	if bridge != nil {
		// two-phase teardown; a wedged oracle gets force-closed inside
		if err := bridge.Close(); err != nil {
			logger.Warn("bridge teardown degraded", "room", o.roomID, "error", err)
			o.deps.Broadcaster.EmitToRoom(o.roomID, EventGameError, map[string]any{"error": err.Error()})
		}
	}

	o.mu.Lock()
	if suspectID != "" {
		if s := o.state.SuspectByID(suspectID); s != nil {
			s.Interrogated = true
		}
	}
	o.activeSuspect = ""
	prevIdx := o.state.ActiveRoundIndex()
	epoch := o.phaseEpoch
	transcript := ""
	if prevIdx >= 0 && len(o.state.Rounds[prevIdx].Conversation) > 0 {
		if data, err := json.Marshal(o.state.Rounds[prevIdx].Conversation); err == nil {
			transcript = string(data)
		}
	}
	o.mu.Unlock()

	var snap *domain.GameState
	if transcript != "" {
		snap = o.foldTranscript(ctx, transcript)
	}

	o.mu.Lock()
	if o.phaseEpoch != epoch {
		// a newer phase took over while the oracle was thinking
		o.mu.Unlock()
		return nil
	}
	var statusFault error
	if snap != nil && (snap.Status != o.state.Status || snap.Outcome.Winner != o.state.Outcome.Winner) {
		// finishing the game belongs to the analysis path, never the oracle
		statusFault = fmt.Errorf("%w: snapshot moved the game to %s/%s",
			domain.ErrInvalidState, snap.Status, snap.Outcome.Winner)
		snap = nil
	}
	if snap != nil {
		snap.Crime = o.state.Crime // crime never changes after creation
		o.state = snap
	}
	if o.state.ActiveRoundIndex() == prevIdx {
		// oracle didn't advance (or wasn't asked); do it ourselves
		if _, err := o.state.AdvanceRound(); err != nil {
			o.mu.Unlock()
			return err
		}
	}
	next := o.state.ActiveRound()
	if err := o.persistLocked(ctx); err != nil {
		o.mu.Unlock()
		return err
	}
	view := o.state.ClientView()
	o.mu.Unlock()

	if statusFault != nil {
		o.surfaceOracleFault(statusFault)
	}
	o.deps.Broadcaster.EmitToRoom(o.roomID, EventInterrogationEnded, map[string]any{"suspect_id": suspectID})
	o.deps.Broadcaster.EmitToRoom(o.roomID, EventPhaseEnded, map[string]any{"kind": domain.RoundInterrogation})
	o.deps.Broadcaster.EmitToRoom(o.roomID, EventGameUpdated, view)

	if next == nil {
		// rounds exhausted: resolve with whatever graph the detective built
		return o.RunDeductionAnalysis(ctx)
	}
	o.startPhaseFor(next.Kind)
	return nil
}

// foldTranscript hands the finished conversation to the oracle and returns
// the validated snapshot, or nil after surfacing a recoverable fault.
func (o *Orchestrator) foldTranscript(ctx context.Context, transcript string) *domain.GameState {
	if err := o.deps.Oracle.AddMessage(ctx, o.threadID, "user", transcript); err != nil {
		o.surfaceOracleFault(err)
		return nil
	}
	snap, err := o.deps.Oracle.RunAndAwait(ctx, o.threadID, o.deps.Config.GameAssistantID)
	if err != nil {
		o.surfaceOracleFault(err)
		return nil
	}
	if err := domain.Validate(snap, o.roundTotal); err != nil {
		o.surfaceOracleFault(err)
		return nil
	}
	return snap
}

func (o *Orchestrator) surfaceOracleFault(err error) {
	logger.Error("oracle fault", "room", o.roomID, "error", err)
	o.deps.Broadcaster.EmitToRoom(o.roomID, EventGameError, map[string]any{"error": err.Error()})
}

// endDeductionPhase is the timer-expiry path for voting rounds: move on if
// rounds remain, otherwise run the final analysis.
func (o *Orchestrator) endDeductionPhase(ctx context.Context) error {
	o.mu.Lock()
	round := o.state.ActiveRound()
	if o.state.Status != domain.GameStatusActive || round == nil || round.Kind != domain.RoundVoting {
		o.mu.Unlock()
		return ErrWrongPhase
	}
	timer := o.cancelPhaseLocked()

	advanced, err := o.state.AdvanceRound()
	if err != nil {
		o.mu.Unlock()
		return err
	}
	var next *domain.Round
	if advanced {
		next = o.state.ActiveRound()
	}
	if err := o.persistLocked(ctx); err != nil {
		o.mu.Unlock()
		return err
	}
	view := o.state.ClientView()
	o.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}
	o.deps.Broadcaster.EmitToRoom(o.roomID, EventPhaseEnded, map[string]any{"kind": domain.RoundVoting})
	o.deps.Broadcaster.EmitToRoom(o.roomID, EventGameUpdated, view)

	if next == nil {
		return o.RunDeductionAnalysis(ctx)
	}
	o.startPhaseFor(next.Kind)
	return nil
}

// CreateNewLead appends an edge to the deduction graph, has the oracle
// re-score warmth and persists. A failed score call leaves the previous
// warmth untouched and surfaces a recoverable fault.
func (o *Orchestrator) CreateNewLead(ctx context.Context, sourceNodeID, targetNodeID string, kind domain.EdgeKind) (string, error) {
	o.mu.Lock()
	o.touchLocked()
	if o.state.Status != domain.GameStatusActive {
		o.mu.Unlock()
		return "", fmt.Errorf("%w: game is %s", domain.ErrInvalidState, o.state.Status)
	}
	switch kind {
	case domain.EdgeSupports, domain.EdgeContradicts, domain.EdgeImplicates:
	default:
		o.mu.Unlock()
		return "", fmt.Errorf("%w: edge kind %q", domain.ErrInvalidState, kind)
	}
	if !o.nodeExistsLocked(sourceNodeID) || !o.nodeExistsLocked(targetNodeID) {
		o.mu.Unlock()
		return "", fmt.Errorf("%w: unknown node", domain.ErrInvalidState)
	}

	edge := domain.DeductionEdge{
		ID:           uuid.NewString(),
		SourceNodeID: sourceNodeID,
		TargetNodeID: targetNodeID,
		Kind:         kind,
	}
	o.state.Deduction.Edges = append(o.state.Deduction.Edges, edge)
	o.mu.Unlock()

	if err := o.rescoreWarmthAndPersist(ctx); err != nil {
		return edge.ID, err
	}
	return edge.ID, nil
}

// RemoveLead removes the edge with the given id, plus any duplicates with the
// exact same source and target.
func (o *Orchestrator) RemoveLead(ctx context.Context, edgeID string) error {
	o.mu.Lock()
	o.touchLocked()
	var removed *domain.DeductionEdge
	for i := range o.state.Deduction.Edges {
		if o.state.Deduction.Edges[i].ID == edgeID {
			removed = &o.state.Deduction.Edges[i]
			break
		}
	}
	if removed == nil {
		o.mu.Unlock()
		return ErrLeadNotFound
	}
	src, dst := removed.SourceNodeID, removed.TargetNodeID
	kept := o.state.Deduction.Edges[:0]
	for _, e := range o.state.Deduction.Edges {
		if e.SourceNodeID == src && e.TargetNodeID == dst {
			continue
		}
		kept = append(kept, e)
	}
	o.state.Deduction.Edges = kept
	o.mu.Unlock()

	return o.rescoreWarmthAndPersist(ctx)
}

func (o *Orchestrator) rescoreWarmthAndPersist(ctx context.Context) error {
	o.mu.Lock()
	crime := o.state.Crime
	graph := domain.Deduction{
		Nodes:  append([]domain.DeductionNode(nil), o.state.Deduction.Nodes...),
		Edges:  append([]domain.DeductionEdge(nil), o.state.Deduction.Edges...),
		Warmth: o.state.Deduction.Warmth,
	}
	epoch := o.phaseEpoch
	o.mu.Unlock()

	warmth, scoreErr := o.deps.Oracle.ScoreWarmth(ctx, o.deps.Config.ScoreAssistantID, crime, graph)

	o.mu.Lock()
	if scoreErr == nil && o.phaseEpoch == epoch {
		o.state.Deduction.Warmth = deduction.ClampWarmth(warmth)
	}
	if err := o.persistLocked(ctx); err != nil {
		o.mu.Unlock()
		return err
	}
	view := o.state.ClientView()
	o.mu.Unlock()

	if scoreErr != nil {
		o.surfaceOracleFault(scoreErr)
	}
	o.deps.Broadcaster.EmitToRoom(o.roomID, EventGameUpdated, view)
	return nil
}

func (o *Orchestrator) nodeExistsLocked(id string) bool {
	for _, n := range o.state.Deduction.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// RunDeductionAnalysis resolves the game: infer an accusation from the graph,
// compare it to the true culprit and finish.
func (o *Orchestrator) RunDeductionAnalysis(ctx context.Context) error {
	o.mu.Lock()
	o.touchLocked()
	if o.state.Status != domain.GameStatusActive {
		o.mu.Unlock()
		return fmt.Errorf("%w: game is %s", domain.ErrInvalidState, o.state.Status)
	}
	timer := o.cancelPhaseLocked()

	accusedNodeID, counts := deduction.Infer(o.state.Deduction.Nodes, o.state.Deduction.Edges)
	accusedSuspectID := o.resolveSuspectNodeLocked(accusedNodeID)

	culprit := o.state.Culprit()
	correct := culprit != nil && accusedSuspectID != "" && accusedSuspectID == culprit.ID

	winner := domain.WinnerCulprit
	if correct {
		winner = domain.WinnerInnocents
	}

	for i := range o.state.Rounds {
		if o.state.Rounds[i].Status != domain.RoundCompleted {
			o.state.Rounds[i].Status = domain.RoundCompleted
		}
	}
	o.state.Status = domain.GameStatusFinished
	o.state.Outcome = domain.Outcome{
		Winner:            winner,
		AverageGuiltScore: o.state.AverageGuiltScore(),
	}

	if err := o.persistLocked(ctx); err != nil {
		o.mu.Unlock()
		return err
	}
	view := o.state.ClientView()
	o.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}

	gamesFinished.WithLabelValues(string(winner)).Inc()
	o.deps.Broadcaster.EmitToRoom(o.roomID, EventGameFinished, map[string]any{
		"state":       view,
		"accused":     accusedSuspectID,
		"implication": counts,
	})

	o.CalculateGameResults(ctx)
	return nil
}

// resolveSuspectNodeLocked maps an inferred graph node onto a suspect id. A
// suspect node carries the suspect id in its payload, falling back to the
// node id itself.
func (o *Orchestrator) resolveSuspectNodeLocked(nodeID string) string {
	if nodeID == "" {
		return ""
	}
	for _, n := range o.state.Deduction.Nodes {
		if n.ID != nodeID {
			continue
		}
		if n.Kind != domain.NodeSuspect {
			return ""
		}
		if n.Payload != "" && o.state.SuspectByID(n.Payload) != nil {
			return n.Payload
		}
		if o.state.SuspectByID(n.ID) != nil {
			return n.ID
		}
		return ""
	}
	if o.state.SuspectByID(nodeID) != nil {
		return nodeID
	}
	return ""
}

// CalculateGameResults updates ratings for the room's human players and
// records the outcome. Returns false when the game hasn't finished or the
// results were already written.
func (o *Orchestrator) CalculateGameResults(ctx context.Context) bool {
	o.mu.Lock()
	if o.state.Status != domain.GameStatusFinished || o.resultsDone {
		o.mu.Unlock()
		return false
	}
	o.resultsDone = true
	detectiveWon := o.state.Outcome.Winner == domain.WinnerInnocents

	type player struct {
		id  int64
		won bool
	}
	players := []player{{id: o.detectiveID, won: detectiveWon}}
	if o.culpritPlayerID != nil {
		players = append(players, player{id: *o.culpritPlayerID, won: !detectiveWon})
	}

	transcript := ""
	if data, err := json.Marshal(o.state.Rounds); err == nil {
		transcript = string(data)
	}
	o.mu.Unlock()

	pool := make([]rating.PlayerRating, 0, len(players))
	wins := make(map[int64]int, len(players))
	current := make(map[string]float64, len(players))
	for _, p := range players {
		r, w, err := o.deps.Ratings.GetRatingAndWins(ctx, p.id)
		if err != nil {
			r, w = defaultRating, 0
		}
		pool = append(pool, rating.PlayerRating{
			ParticipantID: fmt.Sprintf("%d", p.id),
			Rating:        r,
			Won:           p.won,
		})
		wins[p.id] = w
		current[fmt.Sprintf("%d", p.id)] = r
	}

	// badges come from the oracle; the numbers come from the engine
	badges := make(map[string][]string)
	proposed, err := o.deps.Oracle.ProposeResults(ctx, o.deps.Config.ScoreAssistantID, transcript, current)
	if err != nil {
		logger.Warn("badge proposal failed", "room", o.roomID, "error", err)
	} else {
		for _, pr := range proposed {
			badges[pr.ParticipantID] = pr.Badges
		}
	}

	deltas := rating.Update(pool)
	for i, d := range deltas {
		p := players[i]
		newWins := wins[p.id]
		if p.won {
			newWins++
		}
		if err := o.deps.Ratings.SetRatingAndWins(ctx, p.id, d.NewRating, newWins); err != nil {
			logger.Error("rating write failed", "room", o.roomID, "participant", p.id, "error", err)
			continue
		}
		if err := o.deps.Ratings.RecordGameResult(ctx, p.id, o.roomID, d.OldRating, d.NewRating, p.won, badges[d.ParticipantID]); err != nil {
			logger.Error("result record failed", "room", o.roomID, "participant", p.id, "error", err)
		}
		if o.deps.Board != nil {
			if err := o.deps.Board.UpdateRating(ctx, p.id, d.NewRating); err != nil {
				logger.Warn("leaderboard update failed", "participant", p.id, "error", err)
			}
		}
	}

	o.deps.Broadcaster.EmitToRoom(o.roomID, EventLeaderboardUpdated, map[string]any{"room_id": o.roomID})
	return true
}

// persistLocked writes the state through the store, then lets the caller
// broadcast. Persist always precedes broadcast; a failed write aborts the
// operation. On a version conflict the stale in-memory copy is reloaded.
func (o *Orchestrator) persistLocked(ctx context.Context) error {
	v, err := o.deps.Store.UpdateRoom(ctx, o.roomID, o.state, o.version)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			o.reloadLocked(ctx)
		}
		return err
	}
	o.version = v
	return nil
}

func (o *Orchestrator) reloadLocked(ctx context.Context) {
	rec, err := o.deps.Store.GetRoom(ctx, o.roomID)
	if err != nil {
		logger.Error("reload after conflict failed", "room", o.roomID, "error", err)
		return
	}
	o.state = rec.State
	o.version = rec.Version
	logger.Warn("room state reloaded after concurrent write", "room", o.roomID, "version", rec.Version)
}

func (o *Orchestrator) appendTurn(roundIdx int, speaker, text string) {
	if text == "" {
		return
	}
	o.mu.Lock()
	if roundIdx >= 0 && roundIdx < len(o.state.Rounds) {
		o.state.Rounds[roundIdx].Conversation = append(o.state.Rounds[roundIdx].Conversation,
			domain.Message{Speaker: speaker, Message: text})
	}
	o.mu.Unlock()
}

// persistAndBroadcast saves the current state and pushes a fresh view; used
// by async callbacks where there is no caller to return errors to.
func (o *Orchestrator) persistAndBroadcast() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	o.mu.Lock()
	err := o.persistLocked(ctx)
	view := o.state.ClientView()
	o.mu.Unlock()

	if err != nil {
		logger.Error("async persist failed", "room", o.roomID, "error", err)
		return
	}
	o.deps.Broadcaster.EmitToRoom(o.roomID, EventGameUpdated, view)
}

func (o *Orchestrator) touchLocked() {
	o.lastTouched = time.Now()
}

func (o *Orchestrator) idleSince() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastTouched
}

func (o *Orchestrator) finished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Status == domain.GameStatusFinished
}

// shutdown releases in-memory resources. Timers and realtime sessions do not
// survive eviction or restart; only the persisted blob does.
func (o *Orchestrator) shutdown() {
	o.mu.Lock()
	timer := o.cancelPhaseLocked()
	bridge := o.bridge
	o.bridge = nil
	o.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}
	if bridge != nil {
		_ = bridge.Close()
	}
}
