package realtime

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"detective_backend/internal/logger"

	"github.com/gorilla/websocket"
)

// State of a bridge session. Transitions:
// Connecting -> SessionConfigured -> Listening <-> Responding -> Closed
type State string

const (
	StateConnecting        State = "connecting"
	StateSessionConfigured State = "session_configured"
	StateListening         State = "listening"
	StateResponding        State = "responding"
	StateClosed            State = "closed"
)

var (
	ErrNotConfigured = errors.New("session not configured")
	ErrClosed        = errors.New("bridge closed")
)

// Config for one interrogation session.
type Config struct {
	URL          string // realtime endpoint (ws/wss)
	APIKey       string
	Model        string
	Voice        string
	Instructions string // the suspect's persona

	// teardown knobs; zero values get defaults
	TeardownTimeout time.Duration
	GraceDelay      time.Duration
}

// Bridge owns exactly one live duplex session with the oracle per active
// interrogation and turns the wire protocol into typed callbacks for the
// orchestrator. All callbacks fire from the read pump goroutine.
type Bridge struct {
	cfg Config

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	writeMu sync.Mutex // gorilla allows one concurrent writer

	// response audio accumulates here until the oracle marks it complete
	audioBuf bytes.Buffer

	closeOnce sync.Once
	closeErr  error
	readDone  chan struct{}

	// teardown handshake: the terminal transcript arrives here
	finalTranscript chan string
	tearingDown     bool

	onUserTranscript           func(text string)
	onAssistantAudioChunk      func(wav []byte)
	onAssistantAudioDelta      func(pcm []byte)
	onAssistantTranscriptDelta func(delta string)
	onAssistantTranscriptDone  func(text string)
	onTurnComplete             func()
	onError                    func(err error)
}

func NewBridge(cfg Config) *Bridge {
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = 10 * time.Second
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = 500 * time.Millisecond
	}
	return &Bridge{
		cfg:             cfg,
		state:           StateConnecting,
		readDone:        make(chan struct{}),
		finalTranscript: make(chan string, 1),
	}
}

func (b *Bridge) OnUserTranscript(cb func(text string)) { b.onUserTranscript = cb }

func (b *Bridge) OnAssistantAudioChunk(cb func(wav []byte)) { b.onAssistantAudioChunk = cb }

func (b *Bridge) OnAssistantAudioDelta(cb func(pcm []byte)) { b.onAssistantAudioDelta = cb }

func (b *Bridge) OnAssistantTranscriptDelta(cb func(delta string)) { b.onAssistantTranscriptDelta = cb }

func (b *Bridge) OnAssistantTranscriptDone(cb func(text string)) { b.onAssistantTranscriptDone = cb }

func (b *Bridge) OnTurnComplete(cb func()) { b.onTurnComplete = cb }

func (b *Bridge) OnError(cb func(err error)) { b.onError = cb }

// Connect dials the oracle and configures the session. Configuration is sent
// exactly once and always before any audio: SendAudioChunk refuses to run
// until the session.update has gone out.
func (b *Bridge) Connect() error {
	header := http.Header{}
	if b.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+b.cfg.APIKey)
		header.Set("OpenAI-Beta", "realtime=v1")
	}

	url := b.cfg.URL
	if b.cfg.Model != "" {
		url += "?model=" + b.cfg.Model
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return fmt.Errorf("dial realtime oracle: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	go b.readPump()

	voice := b.cfg.Voice
	if voice == "" {
		voice = "alloy"
	}
	err = b.writeEvent(outboundEvent{
		Type: evSessionUpdate,
		Session: &sessionConfig{
			Voice:             voice,
			Instructions:      b.cfg.Instructions,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			TurnDetection:     map[string]any{"type": "server_vad"},
			InputTranscription: map[string]string{"model": "whisper-1"},
		},
	})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("configure session: %w", err)
	}

	b.setState(StateSessionConfigured)
	return nil
}

// SendAudioChunk forwards raw user audio into the oracle's input buffer.
func (b *Bridge) SendAudioChunk(chunk []byte) error {
	switch b.State() {
	case StateConnecting:
		return ErrNotConfigured
	case StateClosed:
		return ErrClosed
	}

	return b.writeEvent(outboundEvent{
		Type:  evAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
}

// CommitAndRespond flushes the buffered user audio and asks the oracle to
// answer. The session goes Responding until the oracle reports the response
// done.
func (b *Bridge) CommitAndRespond() error {
	if b.State() == StateClosed {
		return ErrClosed
	}
	if err := b.writeEvent(outboundEvent{Type: evAudioCommit}); err != nil {
		return err
	}
	// flip before the response request goes out so a fast response.done
	// cannot race the transition
	b.setState(StateResponding)
	if err := b.writeEvent(outboundEvent{Type: evResponseCreate}); err != nil {
		b.setState(StateListening)
		return err
	}
	return nil
}

// Close runs the two-phase teardown: a synthetic closing line goes into the
// conversation, the bridge waits (bounded) for its terminal transcript so the
// orchestrator can append the turn to the permanent record, trailing audio
// gets a grace delay to flush, and only then does the socket drop. Re-entrant
// calls are no-ops; only one teardown is ever in flight.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.teardown()
	})
	return b.closeErr
}

func (b *Bridge) teardown() error {
	if b.State() == StateClosed {
		return nil
	}

	b.mu.Lock()
	b.tearingDown = true
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		b.setState(StateClosed)
		return nil
	}

	// phase one: say goodbye and ask for the closing line
	err := b.writeEvent(outboundEvent{
		Type: evConversationItem,
		Item: &conversationItem{
			Type: "message",
			Role: "user",
			Content: []itemContentPart{{
				Type: "input_text",
				Text: "The interrogation is over. Say a short closing line.",
			}},
		},
	})
	if err == nil {
		err = b.writeEvent(outboundEvent{Type: evResponseCreate})
	}

	if err == nil {
		// phase two: wait for the terminal transcript, bounded so a wedged
		// oracle cannot leave the session open forever
		select {
		case <-b.finalTranscript:
		case <-b.readDone:
		case <-time.After(b.cfg.TeardownTimeout):
			logger.Warn("realtime teardown timed out, forcing close")
			err = fmt.Errorf("teardown handshake timed out")
		}
	}

	// grace delay so trailing audio deltas can flush to listeners
	select {
	case <-time.After(b.cfg.GraceDelay):
	case <-b.readDone:
	}

	b.setState(StateClosed)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
	return err
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *Bridge) writeEvent(ev outboundEvent) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return conn.WriteJSON(ev)
}

func (b *Bridge) readPump() {
	defer close(b.readDone)

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if b.State() != StateClosed {
				logger.Warn("realtime read error", "error", err)
				b.emitError(fmt.Errorf("realtime stream: %w", err))
			}
			return
		}

		var ev inboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Warn("realtime bad event", "error", err)
			continue
		}

		b.handleEvent(&ev)
	}
}

func (b *Bridge) handleEvent(ev *inboundEvent) {
	switch ev.Type {
	case evSessionCreated:
		// config already sent on connect; nothing to do

	case evSessionUpdated:
		if b.State() == StateSessionConfigured {
			b.setState(StateListening)
		}

	case evUserTranscriptDone:
		if b.onUserTranscript != nil {
			b.onUserTranscript(ev.Transcript)
		}

	case evResponseAudioDelta:
		pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			b.emitError(fmt.Errorf("bad audio delta: %w", err))
			return
		}
		// low-latency channel out, buffered copy kept for the playable clip
		if b.onAssistantAudioDelta != nil {
			b.onAssistantAudioDelta(pcm)
		}
		b.audioBuf.Write(pcm)

	case evTranscriptDelta:
		if b.onAssistantTranscriptDelta != nil {
			b.onAssistantTranscriptDelta(ev.Delta)
		}

	case evTranscriptDone:
		if b.onAssistantTranscriptDone != nil {
			b.onAssistantTranscriptDone(ev.Transcript)
		}
		b.mu.Lock()
		tearingDown := b.tearingDown
		b.mu.Unlock()
		if tearingDown {
			select {
			case b.finalTranscript <- ev.Transcript:
			default:
			}
		}

	case evResponseDone:
		// flush the buffered clip with a playable container header
		if b.audioBuf.Len() > 0 && b.onAssistantAudioChunk != nil {
			pcm := b.audioBuf.Bytes()
			wav := append(wavHeader(len(pcm)), pcm...)
			b.onAssistantAudioChunk(wav)
		}
		b.audioBuf.Reset()

		if b.State() == StateResponding {
			b.setState(StateListening)
		}
		if b.onTurnComplete != nil {
			b.onTurnComplete()
		}

	case evError:
		logger.Error("oracle realtime error event", "code", ev.Error.Code, "message", ev.Error.Message)
		b.emitError(fmt.Errorf("oracle error: %s", ev.Error.Message))
	}
}

func (b *Bridge) emitError(err error) {
	if b.onError != nil {
		b.onError(err)
	}
}
