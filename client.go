package main

import (
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 120 // move updates arrive every frame
	maxNameLen        = 16
)

// Client represents a WebSocket connection. Its connection id is the key
// into the registry's binding table; the client itself never caches its
// player id or room code.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	connID     string
	remoteAddr string
	limiter    *rate.Limiter

	binSnapshots atomic.Bool

	// Account state, only touched from the read pump.
	accountID int64 // 0 = guest
	username  string
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		connID:     uuid.NewString(),
		remoteAddr: remoteAddr,
		limiter:    rate.NewLimiter(rate.Limit(maxMessagesPerSec), maxMessagesPerSec*2),
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// Prefixes with 0xFF marker byte so WritePump can distinguish from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// BinarySnapshots reports whether this client asked for msgpack snapshot
// frames when it created or joined its room.
func (c *Client) BinarySnapshots() bool {
	return c.binSnapshots.Load()
}

// handleMessage validates and routes one inbound frame. Malformed frames
// are dropped; routine actions with a bad identity or phase are ignored
// silently, while create/join/start answer with an error message.
func (c *Client) handleMessage(raw []byte) {
	msgType, err := MessageType(raw)
	if err != nil {
		log.Printf("dropping malformed message from %s", c.remoteAddr)
		return
	}

	switch msgType {
	case MsgCreateSession:
		c.handleCreateSession(raw)
	case MsgJoinSession:
		c.handleJoinSession(raw)
	case MsgReady:
		c.handleReady(raw)
	case MsgStartMatch:
		c.handleStartMatch(raw)
	case MsgShoot:
		c.handleShoot(raw)
	case MsgMove:
		c.handleMove(raw)
	case MsgRegister:
		c.handleRegister(raw)
	case MsgLogin:
		c.handleLogin(raw)
	case MsgAuth:
		c.handleAuth(raw)
	case MsgProfile:
		c.handleProfile()
	}
}

// cleanName applies the default and length cap for display names.
func cleanName(name string) string {
	if name == "" {
		name = "Cowboy"
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

func (c *Client) handleCreateSession(raw []byte) {
	var msg CreateSessionMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	c.binSnapshots.Store(msg.Bin)

	room, info, err := c.hub.rooms.CreateRoom(c.connID, cleanName(msg.Name), c.accountID, c)
	if err != nil {
		c.SendJSON(NewErrorMsg(err.Error()))
		return
	}
	c.SendJSON(IDAssignedMsg{
		Type:        MsgIDAssigned,
		PlayerID:    info.PlayerID,
		X:           info.X,
		Y:           info.Y,
		IsHost:      true,
		RoomCode:    room.Code(),
		SpriteIndex: info.SpriteIndex,
	})
	room.BroadcastLobbyState()
}

func (c *Client) handleJoinSession(raw []byte) {
	var msg JoinSessionMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.RoomCode == "" {
		c.SendJSON(NewErrorMsg(ErrInvalidCode.Error()))
		return
	}
	c.binSnapshots.Store(msg.Bin)

	room, info, err := c.hub.rooms.JoinRoom(c.connID, msg.RoomCode, cleanName(msg.Name), c.accountID, c)
	if err != nil {
		c.SendJSON(NewErrorMsg(err.Error()))
		return
	}
	c.SendJSON(IDAssignedMsg{
		Type:        MsgIDAssigned,
		PlayerID:    info.PlayerID,
		X:           info.X,
		Y:           info.Y,
		IsHost:      info.IsHost,
		RoomCode:    room.Code(),
		SpriteIndex: info.SpriteIndex,
	})
	room.BroadcastLobbyState()
}

func (c *Client) handleReady(raw []byte) {
	var msg ReadyMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	playerID, room := c.hub.rooms.Binding(c.connID)
	if room == nil || msg.PlayerID != playerID {
		return
	}
	room.SetReady(playerID, msg.Ready)
}

func (c *Client) handleStartMatch(raw []byte) {
	var msg StartMatchMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	playerID, room := c.hub.rooms.Binding(c.connID)
	if room == nil {
		c.SendJSON(NewErrorMsg("not in a room"))
		return
	}
	if msg.PlayerID != playerID {
		c.SendJSON(NewErrorMsg("player id does not match this connection"))
		return
	}
	if err := room.Start(playerID); err != nil {
		c.SendJSON(NewErrorMsg(err.Error()))
	}
}

func (c *Client) handleShoot(raw []byte) {
	var msg ShootMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	playerID, room := c.hub.rooms.Binding(c.connID)
	if room == nil || msg.PlayerID != playerID {
		return
	}
	room.Shoot(playerID, msg.Direction)
}

func (c *Client) handleMove(raw []byte) {
	var msg MoveMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	playerID, room := c.hub.rooms.Binding(c.connID)
	if room == nil || msg.PlayerID != playerID {
		return
	}
	room.Move(playerID, msg.X, msg.Y)
}

func (c *Client) handleRegister(raw []byte) {
	if c.hub.auth == nil {
		c.SendJSON(NewErrorMsg("accounts are not enabled on this server"))
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.SendJSON(NewErrorMsg(err.Error()))
		return
	}
	c.accountID = id
	c.username = msg.Username
	c.SendJSON(AuthOKMsg{Type: MsgAuthOK, Token: token, Username: msg.Username, AccountID: id})
}

func (c *Client) handleLogin(raw []byte) {
	if c.hub.auth == nil {
		c.SendJSON(NewErrorMsg("accounts are not enabled on this server"))
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.SendJSON(NewErrorMsg(err.Error()))
		return
	}
	c.accountID = id
	c.username = msg.Username
	c.SendJSON(AuthOKMsg{Type: MsgAuthOK, Token: token, Username: msg.Username, AccountID: id})
}

func (c *Client) handleAuth(raw []byte) {
	if c.hub.auth == nil {
		c.SendJSON(NewErrorMsg("accounts are not enabled on this server"))
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.SendJSON(NewErrorMsg("invalid token"))
		return
	}
	c.accountID = id
	c.username = username
	c.SendJSON(AuthOKMsg{Type: MsgAuthOK, Token: msg.Token, Username: username, AccountID: id})
}

func (c *Client) handleProfile() {
	if c.hub.db == nil || c.accountID == 0 {
		c.SendJSON(NewErrorMsg("not authenticated"))
		return
	}
	stats, err := c.hub.db.GetStats(c.accountID)
	if err != nil || stats == nil {
		c.SendJSON(NewErrorMsg("profile not found"))
		return
	}
	c.SendJSON(ProfileDataMsg{
		Type:     MsgProfileData,
		Username: c.username,
		Hits:     stats.Hits,
		Wins:     stats.Wins,
		Losses:   stats.Losses,
		Matches:  stats.Matches,
	})
}
