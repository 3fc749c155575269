package models

import (
	"encoding/json"
	"time"
)

// Client actions, discriminated by the "action" field.
const (
	ActionJoin         = "join"
	ActionLeave        = "leave"
	ActionBroadcast    = "broadcast"
	ActionSyncDocument = "sync_document"
	ActionRequestSync  = "request_sync"
	ActionPing         = "ping"
)

// Server message types, discriminated by the "type" field.
const (
	TypeConnected    = "connected"
	TypePeerJoined   = "peer_joined"
	TypePeerLeft     = "peer_left"
	TypeData         = "data"
	TypeDocumentSync = "document_sync"
	TypeError        = "error"
	TypeRoomInfo     = "room_info"
	TypePong         = "pong"
)

// PeerInfo describes a connected peer as seen by other peers
type PeerInfo struct {
	ID       string          `json:"id"`
	JoinedAt time.Time       `json:"joined_at"`
	IsHost   bool            `json:"is_host"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// ClientMessage is an inbound frame from a peer socket
type ClientMessage struct {
	Action   string          `json:"action"`
	RoomCode string          `json:"room_code,omitempty"`
	PeerID   string          `json:"peer_id,omitempty"`
	IsHost   bool            `json:"is_host,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Data     string          `json:"data,omitempty"`
	Document string          `json:"document,omitempty"`
}

// ServerMessage is an outbound frame to a peer socket. Only the fields
// relevant to Type are populated; Document is a pointer so an empty
// document still serializes on document_sync frames.
type ServerMessage struct {
	Type     string     `json:"type"`
	PeerID   string     `json:"peer_id,omitempty"`
	RoomCode string     `json:"room_code,omitempty"`
	HostID   string     `json:"host_id,omitempty"`
	Peer     *PeerInfo  `json:"peer,omitempty"`
	Peers    []PeerInfo `json:"peers,omitempty"`
	From     string     `json:"from,omitempty"`
	Data     string     `json:"data,omitempty"`
	Document *string    `json:"document,omitempty"`
	Message  string     `json:"message,omitempty"`
}

func NewConnected(peerID, roomCode string) ServerMessage {
	return ServerMessage{Type: TypeConnected, PeerID: peerID, RoomCode: roomCode}
}

func NewPeerJoined(peer PeerInfo) ServerMessage {
	return ServerMessage{Type: TypePeerJoined, Peer: &peer}
}

func NewPeerLeft(peerID string) ServerMessage {
	return ServerMessage{Type: TypePeerLeft, PeerID: peerID}
}

func NewData(from, data string) ServerMessage {
	return ServerMessage{Type: TypeData, From: from, Data: data}
}

func NewDocumentSync(document string) ServerMessage {
	return ServerMessage{Type: TypeDocumentSync, Document: &document}
}

func NewError(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: message}
}

func NewRoomInfo(roomCode, hostID string, peers []PeerInfo) ServerMessage {
	return ServerMessage{Type: TypeRoomInfo, RoomCode: roomCode, HostID: hostID, Peers: peers}
}

func NewPong() ServerMessage {
	return ServerMessage{Type: TypePong}
}
