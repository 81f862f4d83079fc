package domain

// GameStatus - статус партии
type GameStatus string

const (
	GameStatusSetup    GameStatus = "setup"
	GameStatusActive   GameStatus = "active"
	GameStatusFinished GameStatus = "finished"
)

// Winner - исход партии
type Winner string

const (
	WinnerInnocents    Winner = "innocents"
	WinnerCulprit      Winner = "culprit"
	WinnerUndetermined Winner = "not_yet_determined"
)

type RoundStatus string

const (
	RoundInactive  RoundStatus = "inactive"
	RoundActive    RoundStatus = "active"
	RoundCompleted RoundStatus = "completed"
)

type RoundKind string

const (
	RoundInterrogation RoundKind = "interrogation"
	RoundVoting        RoundKind = "voting"
)

type NodeKind string

const (
	NodeSuspect   NodeKind = "suspect"
	NodeEvidence  NodeKind = "evidence"
	NodeStatement NodeKind = "statement"
)

type EdgeKind string

const (
	EdgeSupports    EdgeKind = "supports"
	EdgeContradicts EdgeKind = "contradicts"
	EdgeImplicates  EdgeKind = "implicates"
)

// Crime is immutable after the oracle seeds the game.
type Crime struct {
	Type        string `json:"type"`
	Location    string `json:"location"`
	Time        string `json:"time"`
	Description string `json:"description"`
}

type Suspect struct {
	ID           string   `json:"id"`
	Identity     string   `json:"identity"`
	Evidence     []string `json:"evidence"`
	GuiltScore   float64  `json:"guilt_score"`
	Interrogated bool     `json:"interrogated"`
	// IsCulprit must never reach a client; ClientView strips it.
	IsCulprit bool `json:"is_culprit"`
}

type Message struct {
	Speaker string `json:"speaker"`
	Message string `json:"message"`
}

type Round struct {
	SuspectID    string         `json:"suspect_id"`
	Status       RoundStatus    `json:"status"`
	Kind         RoundKind      `json:"kind"`
	Conversation []Message      `json:"conversation"`
	Results      map[string]any `json:"results,omitempty"`
}

type DeductionNode struct {
	ID      string   `json:"id"`
	Kind    NodeKind `json:"kind"`
	Payload string   `json:"payload"`
}

type DeductionEdge struct {
	ID           string   `json:"id"`
	SourceNodeID string   `json:"source_node_id"`
	TargetNodeID string   `json:"target_node_id"`
	Kind         EdgeKind `json:"kind"`
}

type Deduction struct {
	Nodes  []DeductionNode `json:"nodes"`
	Edges  []DeductionEdge `json:"edges"`
	Warmth float64         `json:"warmth"`
}

type Outcome struct {
	Winner            Winner  `json:"winner"`
	AverageGuiltScore float64 `json:"average_guilt_score"`
}

// GameState - полное состояние комнаты. Owned by the room's orchestrator;
// everything else sees either the encrypted blob or a ClientView copy.
type GameState struct {
	Status    GameStatus `json:"status"`
	Crime     Crime      `json:"crime"`
	Suspects  []Suspect  `json:"suspects"`
	Rounds    []Round    `json:"rounds"`
	Deduction Deduction  `json:"deduction"`
	Outcome   Outcome    `json:"outcome"`
}

// ActiveRoundIndex returns the index of the active round, or -1.
func (gs *GameState) ActiveRoundIndex() int {
	for i := range gs.Rounds {
		if gs.Rounds[i].Status == RoundActive {
			return i
		}
	}
	return -1
}

func (gs *GameState) ActiveRound() *Round {
	if i := gs.ActiveRoundIndex(); i >= 0 {
		return &gs.Rounds[i]
	}
	return nil
}

// AdvanceRound completes the active round and activates the next inactive one.
// Returns ErrNoActiveRound if nothing is active, and reports whether another
// round was activated (false means all rounds are exhausted).
func (gs *GameState) AdvanceRound() (bool, error) {
	i := gs.ActiveRoundIndex()
	if i < 0 {
		return false, ErrNoActiveRound
	}
	gs.Rounds[i].Status = RoundCompleted

	for j := i + 1; j < len(gs.Rounds); j++ {
		if gs.Rounds[j].Status == RoundInactive {
			gs.Rounds[j].Status = RoundActive
			return true, nil
		}
	}
	return false, nil
}

// Culprit returns the guilty suspect, or nil if the state has none.
func (gs *GameState) Culprit() *Suspect {
	for i := range gs.Suspects {
		if gs.Suspects[i].IsCulprit {
			return &gs.Suspects[i]
		}
	}
	return nil
}

func (gs *GameState) SuspectByID(id string) *Suspect {
	for i := range gs.Suspects {
		if gs.Suspects[i].ID == id {
			return &gs.Suspects[i]
		}
	}
	return nil
}

func (gs *GameState) AverageGuiltScore() float64 {
	if len(gs.Suspects) == 0 {
		return 0
	}
	var sum float64
	for i := range gs.Suspects {
		sum += gs.Suspects[i].GuiltScore
	}
	return sum / float64(len(gs.Suspects))
}

// ClientView returns a deep copy safe to broadcast: the culprit flag and any
// round results that would reveal it are stripped.
func (gs *GameState) ClientView() *GameState {
	out := &GameState{
		Status:  gs.Status,
		Crime:   gs.Crime,
		Outcome: gs.Outcome,
	}

	out.Suspects = make([]Suspect, len(gs.Suspects))
	for i, s := range gs.Suspects {
		s.IsCulprit = false
		s.Evidence = append([]string(nil), s.Evidence...)
		out.Suspects[i] = s
	}

	out.Rounds = make([]Round, len(gs.Rounds))
	for i, r := range gs.Rounds {
		r.Conversation = append([]Message(nil), r.Conversation...)
		if gs.Status != GameStatusFinished {
			r.Results = nil
		}
		out.Rounds[i] = r
	}

	out.Deduction.Warmth = gs.Deduction.Warmth
	out.Deduction.Nodes = append([]DeductionNode(nil), gs.Deduction.Nodes...)
	out.Deduction.Edges = append([]DeductionEdge(nil), gs.Deduction.Edges...)

	// pre-resolution the outcome is not a client's business either
	if gs.Status != GameStatusFinished {
		out.Outcome = Outcome{Winner: WinnerUndetermined}
	}

	return out
}
