package session

import (
	"context"
	"errors"

	"detective_backend/internal/domain"
	"detective_backend/internal/oracle"
)

// ErrVersionConflict means the persisted room moved underneath us (another
// writer bumped the version). The local state is stale and must be reloaded.
var ErrVersionConflict = errors.New("room version conflict")

var ErrRoomNotFound = errors.New("room not found")

// RoomRecord is the persisted shape of a room. State travels encrypted at
// rest; the store implementation owns the blob codec.
type RoomRecord struct {
	ID              string
	DetectiveID     int64
	CulpritPlayerID *int64 // set in multiplayer rooms only
	ThreadID        string
	State           *domain.GameState
	Version         int64
}

// Store persists room state. UpdateRoom is compare-and-swap on version and
// returns the new version, or ErrVersionConflict.
type Store interface {
	CreateRoom(ctx context.Context, rec *RoomRecord) error
	GetRoom(ctx context.Context, id string) (*RoomRecord, error)
	UpdateRoom(ctx context.Context, id string, gs *domain.GameState, expectedVersion int64) (int64, error)
}

// Broadcaster fans events out to a room's subscribers. Injected at
// construction; the orchestrator never reaches for a global socket server.
type Broadcaster interface {
	EmitToRoom(roomID, event string, payload any)
	EmitToSocket(socketID, event string, payload any)
}

// Oracle is the generative backend, treated as opaque: it authors state
// snapshots and scores, and this package only validates and adopts or
// rejects what comes back.
type Oracle interface {
	CreateThread(ctx context.Context) (string, error)
	AddMessage(ctx context.Context, threadID, role, content string) error
	RunAndAwait(ctx context.Context, threadID, assistantID string) (*domain.GameState, error)
	ScoreWarmth(ctx context.Context, assistantID string, crime domain.Crime, graph domain.Deduction) (float64, error)
	ProposeResults(ctx context.Context, assistantID, transcript string, current map[string]float64) ([]oracle.ProposedResult, error)
}

// RatingStore keeps participant skill ratings and per-game result records.
type RatingStore interface {
	GetRatingAndWins(ctx context.Context, participantID int64) (float64, int, error)
	SetRatingAndWins(ctx context.Context, participantID int64, rating float64, wins int) error
	RecordGameResult(ctx context.Context, participantID int64, roomID string, oldRating, newRating float64, won bool, badges []string) error
}

// Leaderboard mirrors ratings into a ranked structure for cheap top-N reads.
type Leaderboard interface {
	UpdateRating(ctx context.Context, participantID int64, rating float64) error
}

// RealtimeSession is one live interrogation stream (see internal/realtime).
type RealtimeSession interface {
	Connect() error
	SendAudioChunk(chunk []byte) error
	CommitAndRespond() error
	OnUserTranscript(func(text string))
	OnAssistantAudioChunk(func(wav []byte))
	OnAssistantAudioDelta(func(pcm []byte))
	OnAssistantTranscriptDelta(func(delta string))
	OnAssistantTranscriptDone(func(text string))
	OnTurnComplete(func())
	OnError(func(err error))
	Close() error
}

// BridgeDialer opens a realtime session primed with a suspect's persona.
type BridgeDialer func(instructions string) RealtimeSession
