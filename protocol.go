package main

import (
	"encoding/json"
	"errors"
)

// Client -> Server message types
const (
	MsgCreateSession = "create-session"
	MsgJoinSession   = "join-session"
	MsgReady         = "ready"
	MsgStartMatch    = "start-match"
	MsgShoot         = "shoot"
	MsgMove          = "move"
	MsgRegister      = "register"
	MsgLogin         = "login"
	MsgAuth          = "auth"
	MsgProfile       = "profile"
)

// Server -> Client message types
const (
	MsgIDAssigned   = "id-assigned"
	MsgLobbyState   = "lobby-state"
	MsgSnapshot     = "snapshot"
	MsgMatchStarted = "match-started"
	MsgMatchEnded   = "match-ended"
	MsgError        = "error"
	MsgAuthOK       = "auth-ok"
	MsgProfileData  = "profile-data"
)

// Phase is the lifecycle state of a room's match.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhasePlaying  Phase = "playing"
	PhaseGameOver Phase = "gameover"
)

// Every message on the wire is a flat JSON object carrying a "type"
// discriminator next to its payload fields. msgHeader is the first-pass
// decode used to pick the concrete message struct.
type msgHeader struct {
	Type string `json:"type"`
}

var errBadMessage = errors.New("malformed message")

// MessageType sniffs the type discriminator from a raw inbound frame.
func MessageType(raw []byte) (string, error) {
	var h msgHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return "", errBadMessage
	}
	if h.Type == "" {
		return "", errBadMessage
	}
	return h.Type, nil
}

// CreateSessionMsg opens a new room with the sender as host.
type CreateSessionMsg struct {
	Name string `json:"name"`
	Bin  bool   `json:"bin,omitempty"` // opt in to msgpack snapshot frames
}

// JoinSessionMsg joins an existing room by code.
type JoinSessionMsg struct {
	Name     string `json:"name"`
	RoomCode string `json:"roomCode"`
	Bin      bool   `json:"bin,omitempty"`
}

// ReadyMsg toggles the sender's lobby readiness.
type ReadyMsg struct {
	PlayerID int64 `json:"playerId"`
	Ready    bool  `json:"ready"`
}

// StartMatchMsg asks to start the match; host only.
type StartMatchMsg struct {
	PlayerID int64 `json:"playerId"`
}

// ShootMsg fires the sender's single projectile.
type ShootMsg struct {
	PlayerID  int64  `json:"playerId"`
	Direction string `json:"direction"`
}

// MoveMsg overwrites the sender's authoritative position. The server
// trusts the reported coordinates; only projectiles are physics-checked.
type MoveMsg struct {
	PlayerID int64   `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// RegisterMsg creates a persistent account over the socket.
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates with username/password.
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg authenticates with a previously issued token.
type AuthMsg struct {
	Token string `json:"token"`
}

// IDAssignedMsg is the unicast reply to create-session / join-session.
type IDAssignedMsg struct {
	Type        string  `json:"type"`
	PlayerID    int64   `json:"playerId"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	IsHost      bool    `json:"isHost"`
	RoomCode    string  `json:"roomCode"`
	SpriteIndex int     `json:"spriteIndex"`
}

// LobbyMember describes one member in a lobby-state broadcast.
type LobbyMember struct {
	Name        string `json:"name"`
	Ready       bool   `json:"ready"`
	IsHost      bool   `json:"isHost"`
	SpriteIndex int    `json:"spriteIndex"`
}

// LobbyStateMsg is broadcast whenever lobby membership or readiness changes.
type LobbyStateMsg struct {
	Type       string                `json:"type"`
	MatchPhase Phase                 `json:"matchPhase"`
	HostID     int64                 `json:"hostId"`
	RoomCode   string                `json:"roomCode"`
	Members    map[int64]LobbyMember `json:"members"`
}

// Position is a point in arena coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ProjectileState is one projectile in a snapshot.
type ProjectileState struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	OwnerID int64   `json:"ownerId"`
}

// SnapshotMsg is the periodic full-state broadcast. PowerUp is null when
// no power-up is active.
type SnapshotMsg struct {
	Type        string                    `json:"type"`
	Positions   map[int64]Position        `json:"positions"`
	Projectiles map[int64]ProjectileState `json:"projectiles"`
	Scores      map[int64]int             `json:"scores"`
	PowerUp     *Position                 `json:"powerUp"`
	Invincible  map[int64]float64         `json:"invincible"`
}

// MatchStartedMsg announces the lobby -> playing transition.
type MatchStartedMsg struct {
	Type       string        `json:"type"`
	MatchPhase Phase         `json:"matchPhase"`
	Scores     map[int64]int `json:"scores"`
}

// MatchEndedMsg announces the winner. Reason is "forfeit" when the win
// came from opponents leaving rather than the score threshold.
type MatchEndedMsg struct {
	Type     string        `json:"type"`
	WinnerID int64         `json:"winnerId"`
	Scores   map[int64]int `json:"scores"`
	Reason   string        `json:"reason,omitempty"`
}

// ErrorMsg is unicast to the offending sender only.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorMsg builds an error reply.
func NewErrorMsg(msg string) ErrorMsg {
	return ErrorMsg{Type: MsgError, Message: msg}
}

// AuthOKMsg confirms a successful register/login/auth.
type AuthOKMsg struct {
	Type      string `json:"type"`
	Token     string `json:"token"`
	Username  string `json:"username"`
	AccountID int64  `json:"accountId"`
}

// ProfileDataMsg carries career stats for an authenticated player.
type ProfileDataMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Hits     int    `json:"hits"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Matches  int    `json:"matches"`
}
