package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotLocked assembles the full-state broadcast from the room's
// current state. Caller holds r.mu.
func (r *Room) snapshotLocked(now time.Time) SnapshotMsg {
	snap := SnapshotMsg{
		Type:        MsgSnapshot,
		Positions:   make(map[int64]Position, len(r.members)),
		Projectiles: make(map[int64]ProjectileState, len(r.projectiles)),
		Scores:      r.scoresLocked(),
		Invincible:  make(map[int64]float64),
	}
	for _, m := range r.members {
		snap.Positions[m.id] = Position{X: m.x, Y: m.y}
		if m.invincible(now) {
			snap.Invincible[m.id] = m.invincibleUntil.Sub(now).Seconds()
		}
	}
	for id, proj := range r.projectiles {
		snap.Projectiles[id] = proj.ToState()
	}
	if r.powerUp != nil {
		snap.PowerUp = &Position{X: r.powerUp.X, Y: r.powerUp.Y}
	}
	return snap
}

// broadcastSnapshotLocked serializes the snapshot once per encoding and
// fans it out. Members that opted in at join time get a msgpack binary
// frame, everyone else JSON text. Sends never block; delivery failure to
// one member is invisible to the rest and surfaces later as that
// member's disconnect. Caller holds r.mu.
func (r *Room) broadcastSnapshotLocked(now time.Time) {
	if len(r.members) == 0 {
		return
	}
	snap := r.snapshotLocked(now)

	text, err := json.Marshal(snap)
	if err != nil {
		log.Printf("room %s: marshal snapshot: %v", r.code, err)
		return
	}
	var bin []byte
	for _, m := range r.members {
		if m.client == nil {
			continue
		}
		if m.client.BinarySnapshots() {
			if bin == nil {
				bin, err = msgpack.Marshal(snap)
				if err != nil {
					log.Printf("room %s: msgpack snapshot: %v", r.code, err)
					bin = []byte{}
				}
			}
			if len(bin) > 0 {
				m.client.SendBinary(bin)
			}
			continue
		}
		m.client.SendRaw(text)
	}
}

// broadcastJSONLocked marshals msg once and sends it to every member as
// text. Caller holds r.mu.
func (r *Room) broadcastJSONLocked(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("room %s: marshal broadcast: %v", r.code, err)
		return
	}
	for _, m := range r.members {
		if m.client != nil {
			m.client.SendRaw(data)
		}
	}
}

// lobbyStateLocked builds the lobby membership broadcast. Caller holds r.mu.
func (r *Room) lobbyStateLocked() LobbyStateMsg {
	msg := LobbyStateMsg{
		Type:       MsgLobbyState,
		MatchPhase: r.phase,
		HostID:     r.hostID,
		RoomCode:   r.code,
		Members:    make(map[int64]LobbyMember, len(r.members)),
	}
	for _, m := range r.members {
		msg.Members[m.id] = LobbyMember{
			Name:        m.name,
			Ready:       m.ready,
			IsHost:      m.id == r.hostID,
			SpriteIndex: m.sprite,
		}
	}
	return msg
}

func (r *Room) broadcastLobbyLocked() {
	r.broadcastJSONLocked(r.lobbyStateLocked())
}

// BroadcastLobbyState publishes the current lobby membership to all
// members. Called after joins, which reply to the joiner first.
func (r *Room) BroadcastLobbyState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLobbyLocked()
}
