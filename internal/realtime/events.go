package realtime

// Wire events for the oracle's realtime duplex protocol. Only the fields the
// bridge actually reads are modeled; everything else is ignored on decode.

const (
	// bridge -> oracle
	evSessionUpdate    = "session.update"
	evAudioAppend      = "input_audio_buffer.append"
	evAudioCommit      = "input_audio_buffer.commit"
	evResponseCreate   = "response.create"
	evConversationItem = "conversation.item.create"

	// oracle -> bridge
	evSessionCreated     = "session.created"
	evSessionUpdated     = "session.updated"
	evUserTranscriptDone = "conversation.item.input_audio_transcription.completed"
	evResponseAudioDelta = "response.audio.delta"
	evTranscriptDelta    = "response.audio_transcript.delta"
	evTranscriptDone     = "response.audio_transcript.done"
	evResponseDone       = "response.done"
	evError              = "error"
)

type outboundEvent struct {
	Type    string            `json:"type"`
	Session *sessionConfig    `json:"session,omitempty"`
	Audio   string            `json:"audio,omitempty"`
	Item    *conversationItem `json:"item,omitempty"`
}

type sessionConfig struct {
	Voice              string            `json:"voice"`
	Instructions       string            `json:"instructions,omitempty"`
	InputAudioFormat   string            `json:"input_audio_format"`
	OutputAudioFormat  string            `json:"output_audio_format"`
	TurnDetection      map[string]any    `json:"turn_detection"`
	InputTranscription map[string]string `json:"input_audio_transcription"`
}

type conversationItem struct {
	Type    string            `json:"type"`
	Role    string            `json:"role"`
	Content []itemContentPart `json:"content"`
}

type itemContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type inboundEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
