package ws

const (
	// client -> server
	MsgAudio  = "audio"
	MsgCommit = "commit"
	MsgPing   = "ping"

	// server -> client
	MsgError = "error"
)
