// Package controlplane defines the JSON side-channel message types
// exchanged alongside binary position frames, and a small envelope type for
// dispatching on an unknown or malformed message without panicking.
package controlplane

import "encoding/json"

// Message types, client -> server.
const (
	TypeRequestInitialData  = "requestInitialData"
	TypeEnableRandomization = "enableRandomization"
	TypePing                = "ping"
)

// Message types, server -> client.
const (
	TypeConnectionEstablished = "connection_established"
	TypeLoading               = "loading"
	TypeUpdatesStarted        = "updatesStarted"
	TypePong                  = "pong"
)

// Envelope is the common shape every control message shares: a type tag
// used to route to the right payload before fully unmarshalling it.
type Envelope struct {
	Type string `json:"type"`
}

// EnableRandomization is the payload of an enableRandomization message.
type EnableRandomization struct {
	Enabled bool `json:"enabled"`
}

// Ping is the payload of a client ping.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// Pong echoes a ping's timestamp back to the client.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Loading announces a startup phase to the client.
type Loading struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// UpdatesStarted announces that binary broadcasts have begun.
type UpdatesStarted struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ConnectionEstablished is the single message the server sends before any
// binary frame on a session.
type ConnectionEstablished struct {
	Type string `json:"type"`
}

// NewConnectionEstablished builds the handshake message.
func NewConnectionEstablished() ConnectionEstablished {
	return ConnectionEstablished{Type: TypeConnectionEstablished}
}

// NewLoading builds a loading announcement.
func NewLoading(message string) Loading {
	return Loading{Type: TypeLoading, Message: message}
}

// NewUpdatesStarted builds the updatesStarted announcement.
func NewUpdatesStarted(timestamp int64) UpdatesStarted {
	return UpdatesStarted{Type: TypeUpdatesStarted, Timestamp: timestamp}
}

// NewPong builds a pong reply echoing timestamp.
func NewPong(timestamp int64) Pong {
	return Pong{Type: TypePong, Timestamp: timestamp}
}

// ParseEnvelope extracts just the type tag, deferring full payload parsing
// to the caller once it knows which concrete type to unmarshal into.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(raw, &env)
	return env, err
}
