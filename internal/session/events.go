package session

// Event names broadcast to room subscribers.
const (
	EventRoundTick            = "round-tick"
	EventPhaseStarted         = "phase-started"
	EventPhaseEnded           = "phase-ended"
	EventGameUpdated          = "game-updated"
	EventGameFinished         = "game-finished"
	EventGameError            = "game-error"
	EventInterrogationStarted = "interrogation-started"
	EventInterrogationEnded   = "interrogation-ended"
	EventAudioDelta           = "realtime-audio-delta"
	EventTranscriptDelta      = "realtime-transcript-delta"
	EventLeaderboardUpdated   = "leaderboard-updated"
)
