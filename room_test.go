package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClient is a Broadcaster that records everything sent to it.
type fakeClient struct {
	mu   sync.Mutex
	text [][]byte
	bins [][]byte
	bin  bool
}

func (f *fakeClient) SendJSON(msg interface{}) {
	data, _ := json.Marshal(msg)
	f.SendRaw(data)
}

func (f *fakeClient) SendRaw(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = append(f.text, append([]byte(nil), data...))
}

func (f *fakeClient) SendBinary(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bins = append(f.bins, append([]byte(nil), data...))
}

func (f *fakeClient) BinarySnapshots() bool { return f.bin }

// lastOfType returns the most recent text message with the given type
// discriminator, decoded into a generic map, or nil.
func (f *fakeClient) lastOfType(t *testing.T, msgType string) map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.text) - 1; i >= 0; i-- {
		var m map[string]interface{}
		if err := json.Unmarshal(f.text[i], &m); err != nil {
			t.Fatalf("bad message recorded: %v", err)
		}
		if m["type"] == msgType {
			return m
		}
	}
	return nil
}

// newTestRoom builds a lobby with n members (player ids 1..n, player 1
// hosting) without starting the tick goroutine.
func newTestRoom(t *testing.T, n int) (*Room, []*fakeClient) {
	t.Helper()
	r := newRoom("TEST01", nil, nil)
	r.hostID = 1

	clients := make([]*fakeClient, n)
	for i := 0; i < n; i++ {
		clients[i] = &fakeClient{}
		_, err := r.Join(int64(i+1), fmt.Sprintf("conn-%d", i+1), fmt.Sprintf("cowboy%d", i+1), 0, clients[i])
		if err != nil {
			t.Fatalf("join member %d: %v", i+1, err)
		}
	}
	return r, clients
}

// startMatch readies everyone and starts the match as the host.
func startMatch(t *testing.T, r *Room) {
	t.Helper()
	for _, m := range r.members {
		r.SetReady(m.id, true)
	}
	if err := r.Start(1); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestJoinAssignsSpawnAndSprite(t *testing.T) {
	r, _ := newTestRoom(t, 4)

	want := []struct {
		x, y   float64
		sprite int
	}{
		{200, 300, 1},
		{600, 300, 2},
		{400, 300, 3},
		{400, 300, 1}, // sprites wrap after 3
	}
	for i, w := range want {
		m := r.members[i]
		if m.x != w.x || m.y != w.y {
			t.Errorf("member %d spawn = (%v,%v), want (%v,%v)", i, m.x, m.y, w.x, w.y)
		}
		if m.sprite != w.sprite {
			t.Errorf("member %d sprite = %d, want %d", i, m.sprite, w.sprite)
		}
	}
}

func TestJoinRejectedWhilePlaying(t *testing.T) {
	r, _ := newTestRoom(t, 2)
	startMatch(t, r)

	_, err := r.Join(99, "conn-late", "late", 0, &fakeClient{})
	if err != ErrMatchInProgress {
		t.Fatalf("expected ErrMatchInProgress, got %v", err)
	}
}

func TestJoinRejectedWhenFull(t *testing.T) {
	r, _ := newTestRoom(t, maxMembersPerRoom)
	_, err := r.Join(99, "conn-extra", "extra", 0, &fakeClient{})
	if err != ErrRoomFull {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
}

func TestStartPreconditions(t *testing.T) {
	r, _ := newTestRoom(t, 1)

	if err := r.Start(1); err != errTooFewPlayers {
		t.Errorf("solo start: expected errTooFewPlayers, got %v", err)
	}

	if _, err := r.Join(2, "conn-2", "cowboy2", 0, &fakeClient{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(2); err != errNotHost {
		t.Errorf("non-host start: expected errNotHost, got %v", err)
	}
	if err := r.Start(1); err != errNotAllReady {
		t.Errorf("unready start: expected errNotAllReady, got %v", err)
	}

	r.SetReady(1, true)
	r.SetReady(2, true)
	if err := r.Start(1); err != nil {
		t.Fatalf("start should succeed: %v", err)
	}
	if r.Phase() != PhasePlaying {
		t.Errorf("phase = %v, want playing", r.Phase())
	}

	if err := r.Start(1); err != errAlreadyStarted {
		t.Errorf("double start: expected errAlreadyStarted, got %v", err)
	}
}

func TestStartResetsState(t *testing.T) {
	r, clients := newTestRoom(t, 2)

	// Dirty the lobby state to prove Start cleans it.
	r.members[0].score = 2
	r.members[1].x = 50
	r.projectiles[7] = &Projectile{ID: 7, OwnerID: 1}
	r.powerUp = &PowerUp{X: 100, Y: 100}
	r.members[1].invincibleUntil = time.Now().Add(time.Hour)

	startMatch(t, r)

	if r.members[0].score != 0 || r.members[1].score != 0 {
		t.Error("scores not reset")
	}
	if r.members[1].x != 600 || r.members[1].y != 300 {
		t.Errorf("spawn not reassigned, got (%v,%v)", r.members[1].x, r.members[1].y)
	}
	if len(r.projectiles) != 0 {
		t.Error("projectiles not cleared")
	}
	if r.powerUp != nil {
		t.Error("power-up not cleared")
	}
	if r.members[1].invincible(time.Now()) {
		t.Error("invincibility not cleared")
	}

	started := clients[1].lastOfType(t, MsgMatchStarted)
	if started == nil {
		t.Fatal("match-started not broadcast")
	}
	if started["matchPhase"] != string(PhasePlaying) {
		t.Errorf("matchPhase = %v", started["matchPhase"])
	}
	if clients[1].lastOfType(t, MsgSnapshot) == nil {
		t.Error("snapshot should follow match-started")
	}
}

func TestReadyOnlyInLobby(t *testing.T) {
	r, clients := newTestRoom(t, 2)
	r.SetReady(2, true)
	if !r.members[1].ready {
		t.Fatal("ready flag not recorded")
	}
	if clients[0].lastOfType(t, MsgLobbyState) == nil {
		t.Fatal("lobby-state not broadcast on ready change")
	}

	startMatch(t, r)
	r.SetReady(2, false)
	if !r.members[1].ready {
		t.Error("ready must be ignored outside the lobby")
	}
}

func TestShootSingleProjectilePerPlayer(t *testing.T) {
	r, _ := newTestRoom(t, 2)
	startMatch(t, r)

	r.Shoot(1, "right")
	if len(r.projectiles) != 1 {
		t.Fatalf("projectiles = %d, want 1", len(r.projectiles))
	}

	// Second shot while the first is live is a no-op.
	r.Shoot(1, "left")
	if len(r.projectiles) != 1 {
		t.Fatalf("second shoot accepted, projectiles = %d", len(r.projectiles))
	}

	// The other player can still shoot.
	r.Shoot(2, "left")
	if len(r.projectiles) != 2 {
		t.Fatalf("projectiles = %d, want 2", len(r.projectiles))
	}
}

func TestShootIgnoredInLobby(t *testing.T) {
	r, _ := newTestRoom(t, 2)
	r.Shoot(1, "up")
	if len(r.projectiles) != 0 {
		t.Error("shoot must be ignored in lobby")
	}
}

func TestShootRunsImmediatePass(t *testing.T) {
	r, clients := newTestRoom(t, 2)
	startMatch(t, r)

	before := len(clients[1].text)
	r.Shoot(1, "up")

	var proj *Projectile
	for _, p := range r.projectiles {
		proj = p
	}
	if proj == nil {
		t.Fatal("no projectile spawned")
	}
	// One physics step already applied: spawned at (200,300) moving up.
	if proj.X != 200 || proj.Y != 300-ProjectileSpeed {
		t.Errorf("projectile at (%v,%v), want (200,%v)", proj.X, proj.Y, 300-ProjectileSpeed)
	}
	if len(clients[1].text) <= before {
		t.Error("shoot should broadcast immediately")
	}
}

func TestMoveOverwritesPosition(t *testing.T) {
	r, _ := newTestRoom(t, 2)

	// Ignored in lobby.
	r.Move(1, 111, 222)
	if r.members[0].x != 200 {
		t.Error("move must be ignored in lobby")
	}

	startMatch(t, r)
	r.Move(1, 111, 222)
	if r.members[0].x != 111 || r.members[0].y != 222 {
		t.Errorf("position = (%v,%v), want (111,222)", r.members[0].x, r.members[0].y)
	}
}

func TestTickRemovesOutOfBoundsProjectiles(t *testing.T) {
	r, _ := newTestRoom(t, 2)
	startMatch(t, r)

	r.projectiles[1] = &Projectile{ID: 1, OwnerID: 1, X: 795, Y: 300, VX: ProjectileSpeed}
	r.Tick(time.Now())

	if len(r.projectiles) != 0 {
		t.Error("projectile past the arena edge should be removed")
	}
}

func TestTickRemovesProjectilesHittingObstacles(t *testing.T) {
	r, _ := newTestRoom(t, 2)
	startMatch(t, r)

	o := Obstacles[0]
	r.projectiles[1] = &Projectile{ID: 1, OwnerID: 1, X: o.X, Y: o.Y - o.HalfH - ProjectileSpeed, VY: ProjectileSpeed}
	r.Tick(time.Now())

	if len(r.projectiles) != 0 {
		t.Error("projectile inside an obstacle should be removed")
	}
	if r.members[0].score != 0 {
		t.Error("terrain hits must not score")
	}
}

func TestHitScoresAndConsumesProjectile(t *testing.T) {
	r, _ := newTestRoom(t, 2)
	startMatch(t, r)

	// Player 2 stands at (600,300); park a projectile one step away.
	r.projectiles[1] = &Projectile{ID: 1, OwnerID: 1, X: 600 - ProjectileSpeed, Y: 300, VX: ProjectileSpeed}
	r.Tick(time.Now())

	if r.members[0].score != 1 {
		t.Errorf("owner score = %d, want 1", r.members[0].score)
	}
	if len(r.projectiles) != 0 {
		t.Error("projectile should be consumed by the hit")
	}
}

func TestOwnerNeverHitsSelf(t *testing.T) {
	r, _ := newTestRoom(t, 2)
	startMatch(t, r)

	// Projectile crossing its own owner's position.
	r.projectiles[1] = &Projectile{ID: 1, OwnerID: 1, X: 200 - ProjectileSpeed, Y: 300, VX: ProjectileSpeed}
	r.Tick(time.Now())

	if r.members[0].score != 0 {
		t.Error("players must not hit themselves")
	}
	if len(r.projectiles) != 1 {
		t.Error("projectile should pass through its owner")
	}
}

func TestInvinciblePlayerCannotBeHit(t *testing.T) {
	r, _ := newTestRoom(t, 2)
	startMatch(t, r)

	now := time.Now()
	r.members[1].invincibleUntil = now.Add(InvincibilityTime)
	r.projectiles[1] = &Projectile{ID: 1, OwnerID: 1, X: 600 - ProjectileSpeed, Y: 300, VX: ProjectileSpeed}
	r.Tick(now)

	if r.members[0].score != 0 {
		t.Error("invincible player was hit")
	}
	if len(r.projectiles) != 1 {
		t.Error("projectile should pass through an invincible player")
	}

	// Once expired the same player is hittable again.
	later := now.Add(InvincibilityTime + time.Millisecond)
	r.projectiles[1].X = 600 - ProjectileSpeed
	r.Tick(later)
	if r.members[0].score != 1 {
		t.Error("expired invincibility should not protect")
	}
}

func TestWinByElimination(t *testing.T) {
	r, clients := newTestRoom(t, 2)
	startMatch(t, r)

	for i := 0; i < WinThreshold; i++ {
		r.projectiles[int64(10+i)] = &Projectile{ID: int64(10 + i), OwnerID: 1, X: 600 - ProjectileSpeed, Y: 300, VX: ProjectileSpeed}
		r.Tick(time.Now())
	}

	if r.Phase() != PhaseGameOver {
		t.Fatalf("phase = %v, want gameover", r.Phase())
	}
	if r.Winner() != 1 {
		t.Errorf("winner = %d, want 1", r.Winner())
	}

	ended := clients[1].lastOfType(t, MsgMatchEnded)
	if ended == nil {
		t.Fatal("match-ended not broadcast")
	}
	if ended["winnerId"].(float64) != 1 {
		t.Errorf("winnerId = %v", ended["winnerId"])
	}
	if _, hasReason := ended["reason"]; hasReason {
		t.Error("elimination win must not carry a forfeit reason")
	}
}

func TestScoresFreezeAfterGameOver(t *testing.T) {
	r, _ := newTestRoom(t, 2)
	startMatch(t, r)
	r.members[0].score = WinThreshold
	r.mu.Lock()
	r.endMatchLocked(1, "", time.Now())
	r.mu.Unlock()

	r.projectiles[1] = &Projectile{ID: 1, OwnerID: 2, X: 200 - ProjectileSpeed, Y: 300, VX: ProjectileSpeed}
	r.Tick(time.Now())

	if r.members[1].score != 0 {
		t.Error("score changed after game over")
	}
}

func TestSimultaneousHitsBothScore(t *testing.T) {
	r, _ := newTestRoom(t, 3)
	startMatch(t, r)

	// Players 1 and 2 each have a projectile arriving at player 3
	// (400,300) on the same tick; both owners get the point.
	r.projectiles[1] = &Projectile{ID: 1, OwnerID: 1, X: 400 - ProjectileSpeed, Y: 300, VX: ProjectileSpeed}
	r.projectiles[2] = &Projectile{ID: 2, OwnerID: 2, X: 400 + ProjectileSpeed, Y: 300, VX: -ProjectileSpeed}
	r.Tick(time.Now())

	if r.members[0].score != 1 || r.members[1].score != 1 {
		t.Errorf("scores = %d,%d, want 1,1", r.members[0].score, r.members[1].score)
	}
}

func TestPowerUpSpawnsAfterCooldown(t *testing.T) {
	r, _ := newTestRoom(t, 2)
	startMatch(t, r)

	now := time.Now()
	r.mu.Lock()
	r.powerUpGoneAt = now.Add(-PowerUpCooldown + time.Second)
	r.mu.Unlock()

	r.Tick(now)
	if r.powerUp != nil {
		t.Fatal("power-up spawned before cooldown elapsed")
	}

	r.Tick(now.Add(2 * time.Second))
	r.mu.Lock()
	pu := r.powerUp
	r.mu.Unlock()
	if pu == nil {
		t.Fatal("power-up did not spawn after cooldown")
	}
	if ObstacleAt(pu.X, pu.Y) {
		t.Error("power-up spawned inside an obstacle")
	}
}

func TestPowerUpPickupGrantsInvincibility(t *testing.T) {
	r, clients := newTestRoom(t, 2)
	startMatch(t, r)

	now := time.Now()
	r.mu.Lock()
	r.powerUp = &PowerUp{X: 400, Y: 300}
	r.mu.Unlock()

	r.Move(1, 400, 300)
	r.Tick(now)

	r.mu.Lock()
	gone := r.powerUp == nil
	until := r.members[0].invincibleUntil
	r.mu.Unlock()

	if !gone {
		t.Fatal("power-up not collected")
	}
	if !until.After(now) {
		t.Fatal("invincibility not granted")
	}

	snap := clients[1].lastOfType(t, MsgSnapshot)
	if snap == nil {
		t.Fatal("no snapshot after pickup")
	}
	if snap["powerUp"] != nil {
		t.Error("snapshot should show powerUp: null after pickup")
	}
	inv := snap["invincible"].(map[string]interface{})
	if secs, ok := inv["1"].(float64); !ok || secs <= 0 {
		t.Errorf("invincible[1] = %v, want positive seconds", inv["1"])
	}
}

func TestForfeitWinOnDeparture(t *testing.T) {
	r, clients := newTestRoom(t, 2)
	startMatch(t, r)

	if n := r.RemoveMember(2); n != 1 {
		t.Fatalf("remaining = %d, want 1", n)
	}
	if r.Phase() != PhaseGameOver {
		t.Fatalf("phase = %v, want gameover", r.Phase())
	}
	if r.Winner() != 1 {
		t.Errorf("winner = %d, want 1", r.Winner())
	}

	ended := clients[0].lastOfType(t, MsgMatchEnded)
	if ended == nil {
		t.Fatal("match-ended not broadcast")
	}
	if ended["reason"] != "forfeit" {
		t.Errorf("reason = %v, want forfeit", ended["reason"])
	}
}

func TestMatchContinuesWithTwoRemaining(t *testing.T) {
	r, _ := newTestRoom(t, 3)
	startMatch(t, r)

	r.RemoveMember(3)
	if r.Phase() != PhasePlaying {
		t.Errorf("phase = %v, match should continue with 2 players", r.Phase())
	}
}

func TestLobbyDepartureBroadcastsLobbyState(t *testing.T) {
	r, clients := newTestRoom(t, 3)

	r.RemoveMember(3)
	state := clients[0].lastOfType(t, MsgLobbyState)
	if state == nil {
		t.Fatal("lobby-state not broadcast on departure")
	}
	members := state["members"].(map[string]interface{})
	if len(members) != 2 {
		t.Errorf("members = %d, want 2", len(members))
	}
	if _, gone := members["3"]; gone {
		t.Error("departed member still listed")
	}
}

func TestProjectileOutlivesOwnerWithoutScoring(t *testing.T) {
	r, _ := newTestRoom(t, 3)
	startMatch(t, r)

	r.projectiles[1] = &Projectile{ID: 1, OwnerID: 3, X: 600 - ProjectileSpeed, Y: 300, VX: ProjectileSpeed}
	r.RemoveMember(3)

	r.Tick(time.Now())
	if r.members[1].score != 0 {
		t.Error("departed owner must not accumulate score")
	}
	if len(r.projectiles) != 0 {
		t.Error("orphaned projectile should still be consumed by the hit")
	}
}
