package main

import (
	"errors"
	"log"
	"sync"
	"time"
)

const maxMembersPerRoom = 8

// Start preconditions, reported verbatim to the requesting host.
var (
	errAlreadyStarted = errors.New("match already started")
	errNotHost        = errors.New("only the host can start the match")
	errTooFewPlayers  = errors.New("need at least 2 players to start")
	errNotAllReady    = errors.New("all players must be ready")
)

// Broadcaster is the outbound side of a member's connection. Sends must
// never block; a slow or dead connection drops frames instead of stalling
// the room.
type Broadcaster interface {
	SendJSON(msg interface{})
	SendRaw(data []byte)
	SendBinary(data []byte)
	BinarySnapshots() bool
}

// member is one connection's presence in a room.
type member struct {
	id              int64
	connID          string
	name            string
	ready           bool
	sprite          int // 1..3, cosmetic, assigned by join order
	x, y            float64
	score           int
	invincibleUntil time.Time
	accountID       int64 // 0 = guest
	client          Broadcaster
}

func (m *member) invincible(now time.Time) bool {
	return !m.invincibleUntil.IsZero() && now.Before(m.invincibleUntil)
}

// Room holds all mutable game truth for one match. Every mutation — from
// inbound messages and from the tick loop alike — runs under r.mu, so a
// handler and a tick never observe each other's intermediate state.
type Room struct {
	mu            sync.Mutex
	code          string
	hostID        int64
	phase         Phase
	members       []*member // join order; also the hit-test iteration order
	projectiles   map[int64]*Projectile
	nextProjID    int64
	powerUp       *PowerUp
	powerUpGoneAt time.Time
	winnerID      int64
	startedAt     time.Time

	stop    chan struct{}
	stopped bool

	db        *DB
	analytics *Analytics
}

func newRoom(code string, db *DB, analytics *Analytics) *Room {
	return &Room{
		code:        code,
		phase:       PhaseLobby,
		projectiles: make(map[int64]*Projectile),
		stop:        make(chan struct{}),
		db:          db,
		analytics:   analytics,
	}
}

// Run drives the simulation loop until Stop. The tick period is ~60Hz
// while a match is playing and ~30Hz otherwise, where ticks only keep
// snapshot delivery alive.
func (r *Room) Run() {
	period := r.tickPeriod()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Tick(time.Now())
			if p := r.tickPeriod(); p != period {
				period = p
				ticker.Reset(p)
			}
		case <-r.stop:
			return
		}
	}
}

// Stop terminates the tick loop. Idempotent.
func (r *Room) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.stopped = true
		close(r.stop)
	}
}

func (r *Room) tickPeriod() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhasePlaying {
		return PlayingTickPeriod
	}
	return IdleTickPeriod
}

// Code returns the room's join code.
func (r *Room) Code() string {
	return r.code
}

// Phase returns the current match phase.
func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// HostID returns the player id of the session creator.
func (r *Room) HostID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostID
}

// MemberCount returns the number of attached connections.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Winner returns the winning player id, or 0 while no match has ended.
func (r *Room) Winner() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.winnerID
}

func (r *Room) memberByID(id int64) *member {
	for _, m := range r.members {
		if m.id == id {
			return m
		}
	}
	return nil
}

// JoinInfo is what a new member needs for its id-assigned reply.
type JoinInfo struct {
	PlayerID    int64
	X, Y        float64
	SpriteIndex int
	IsHost      bool
}

// Join attaches a connection as a new member. Fails while a match is in
// progress; a finished room can still be observed by late joiners.
func (r *Room) Join(playerID int64, connID, name string, accountID int64, client Broadcaster) (JoinInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhasePlaying {
		return JoinInfo{}, ErrMatchInProgress
	}
	if len(r.members) >= maxMembersPerRoom {
		return JoinInfo{}, ErrRoomFull
	}

	slot := len(r.members)
	x, y := SpawnPosition(slot)
	m := &member{
		id:        playerID,
		connID:    connID,
		name:      name,
		sprite:    slot%3 + 1,
		x:         x,
		y:         y,
		accountID: accountID,
		client:    client,
	}
	r.members = append(r.members, m)

	return JoinInfo{
		PlayerID:    playerID,
		X:           x,
		Y:           y,
		SpriteIndex: m.sprite,
		IsHost:      playerID == r.hostID,
	}, nil
}

// SetReady records a member's lobby readiness and rebroadcasts the lobby.
// Ignored outside the lobby phase.
func (r *Room) SetReady(playerID int64, ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseLobby {
		return
	}
	m := r.memberByID(playerID)
	if m == nil {
		return
	}
	m.ready = ready
	r.broadcastLobbyLocked()
}

// Start transitions lobby -> playing. Host only, needs at least two
// members with everyone ready. Scores, projectiles, power-up state and
// spawn positions are reset so a lobby that idled still starts clean.
func (r *Room) Start(playerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseLobby {
		return errAlreadyStarted
	}
	if playerID != r.hostID {
		return errNotHost
	}
	if len(r.members) < 2 {
		return errTooFewPlayers
	}
	for _, m := range r.members {
		if !m.ready {
			return errNotAllReady
		}
	}

	now := time.Now()
	for i, m := range r.members {
		m.x, m.y = SpawnPosition(i)
		m.score = 0
		m.invincibleUntil = time.Time{}
	}
	r.projectiles = make(map[int64]*Projectile)
	r.powerUp = nil
	r.powerUpGoneAt = now
	r.phase = PhasePlaying
	r.startedAt = now

	r.broadcastJSONLocked(MatchStartedMsg{
		Type:       MsgMatchStarted,
		MatchPhase: r.phase,
		Scores:     r.scoresLocked(),
	})
	r.broadcastSnapshotLocked(now)

	r.analytics.Track(EvtMatchStart, 0, r.code, "")
	return nil
}

// Shoot spawns the player's projectile and runs an immediate physics and
// broadcast pass so shots are visible before the next scheduled tick.
// A player with a live projectile, or a room not in play, ignores it.
func (r *Room) Shoot(playerID int64, direction string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhasePlaying {
		return
	}
	m := r.memberByID(playerID)
	if m == nil {
		return
	}
	for _, proj := range r.projectiles {
		if proj.OwnerID == playerID {
			return // one live projectile per player
		}
	}

	vx, vy := velocityFor(direction)
	r.nextProjID++
	r.projectiles[r.nextProjID] = &Projectile{
		ID:      r.nextProjID,
		OwnerID: playerID,
		X:       m.x,
		Y:       m.y,
		VX:      vx,
		VY:      vy,
	}

	now := time.Now()
	r.stepLocked(now)
	r.broadcastSnapshotLocked(now)
}

// Move overwrites the player's authoritative position with the reported
// one. The server deliberately does not validate movement speed or
// player-vs-obstacle collision; that trust boundary is part of the
// protocol contract with clients.
func (r *Room) Move(playerID int64, x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhasePlaying {
		return
	}
	m := r.memberByID(playerID)
	if m == nil {
		return
	}
	m.x = x
	m.y = y
}

// RemoveMember detaches a player and applies the phase-dependent fallout:
// a lobby rebroadcast, or a forfeit win when a running match drops to one
// player. Returns the remaining member count.
func (r *Room) RemoveMember(playerID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, m := range r.members {
		if m.id == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return len(r.members)
	}
	r.members = append(r.members[:idx], r.members[idx+1:]...)

	switch {
	case r.phase == PhasePlaying && len(r.members) == 1:
		r.endMatchLocked(r.members[0].id, "forfeit", time.Now())
	case r.phase == PhaseLobby && len(r.members) > 0:
		r.broadcastLobbyLocked()
	}
	return len(r.members)
}

// Tick advances the simulation one step (while playing) and publishes a
// snapshot. Invoked by Run and by tests directly.
func (r *Room) Tick(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhasePlaying {
		r.stepLocked(now)
	}
	r.broadcastSnapshotLocked(now)
}

// stepLocked is one physics pass: projectile motion, terrain and player
// collision, win check, power-up lifecycle. Caller holds r.mu.
func (r *Room) stepLocked(now time.Time) {
	for id, proj := range r.projectiles {
		proj.Advance()

		if proj.OutOfBounds() || ObstacleAt(proj.X, proj.Y) {
			delete(r.projectiles, id)
			continue
		}

		for _, m := range r.members {
			if m.id == proj.OwnerID || m.invincible(now) {
				continue
			}
			if Distance(proj.X, proj.Y, m.x, m.y) > ImpactRadius {
				continue
			}
			// First member hit consumes the projectile. Scores freeze
			// the moment the phase leaves playing, so a projectile
			// resolved after the win check can no longer score.
			if r.phase == PhasePlaying {
				if owner := r.memberByID(proj.OwnerID); owner != nil {
					owner.score++
					r.analytics.Track(EvtHit, owner.accountID, r.code, "")
					if owner.score >= WinThreshold {
						r.endMatchLocked(owner.id, "", now)
					}
				}
			}
			delete(r.projectiles, id)
			break
		}
	}

	if r.phase != PhasePlaying {
		return
	}
	if r.powerUp == nil {
		if now.Sub(r.powerUpGoneAt) >= PowerUpCooldown {
			// May come back nil when no clear spot was found; retried
			// next tick.
			r.powerUp = SpawnPowerUp()
		}
		return
	}
	for _, m := range r.members {
		if r.powerUp.InReach(m.x, m.y) {
			m.invincibleUntil = now.Add(InvincibilityTime)
			r.powerUp = nil
			r.powerUpGoneAt = now
			break
		}
	}
}

// endMatchLocked transitions to game over and announces the winner.
// The room instance is terminal from here; a rematch needs a new room.
func (r *Room) endMatchLocked(winnerID int64, reason string, now time.Time) {
	r.phase = PhaseGameOver
	r.winnerID = winnerID

	r.broadcastJSONLocked(MatchEndedMsg{
		Type:     MsgMatchEnded,
		WinnerID: winnerID,
		Scores:   r.scoresLocked(),
		Reason:   reason,
	})

	r.analytics.Track(EvtMatchEnd, 0, r.code, reason)

	if r.db != nil {
		results := make([]MatchResult, 0, len(r.members))
		for _, m := range r.members {
			if m.accountID == 0 {
				continue
			}
			results = append(results, MatchResult{
				AccountID: m.accountID,
				Hits:      m.score,
				Won:       m.id == winnerID,
			})
		}
		duration := now.Sub(r.startedAt)
		code := r.code
		db := r.db
		go func() {
			if err := db.RecordMatchResult(code, reason, duration, results); err != nil {
				log.Printf("room %s: record match: %v", code, err)
			}
		}()
	}
}

func (r *Room) scoresLocked() map[int64]int {
	scores := make(map[int64]int, len(r.members))
	for _, m := range r.members {
		scores[m.id] = m.score
	}
	return scores
}
