package main

import "time"

// Protocol constants shared with clients. Changing any of these requires a
// matching client update.
const (
	ArenaWidth  = 800.0
	ArenaHeight = 600.0

	ImpactRadius    = 25.0 // projectile-vs-player hitbox
	WinThreshold    = 3    // hits needed to win a match
	ProjectileSpeed = 10.0 // units per tick

	PlayerSize  = 40.0
	PowerUpSize = 30.0

	PowerUpCooldown      = 10 * time.Second
	InvincibilityTime    = 5 * time.Second
	PowerUpSpawnMargin   = 40.0
	PowerUpSpawnAttempts = 50

	PlayingTickPeriod = 16 * time.Millisecond // ~60 Hz while a match runs
	IdleTickPeriod    = 33 * time.Millisecond // lobby / game-over keepalive rate
)

// PickupRadius is the distance at which a player collects a power-up.
const PickupRadius = PlayerSize/2 + PowerUpSize/2

// Obstacle is an axis-aligned rectangle that blocks projectiles.
// Players are not collision-checked against obstacles on the server;
// clients enforce that locally.
type Obstacle struct {
	X, Y  float64 // center
	HalfW float64
	HalfH float64
}

// Contains reports whether the point (px, py) lies inside the obstacle.
func (o Obstacle) Contains(px, py float64) bool {
	return px >= o.X-o.HalfW && px <= o.X+o.HalfW &&
		py >= o.Y-o.HalfH && py <= o.Y+o.HalfH
}

// Obstacles is the fixed terrain layout, identical in every room.
// Barrels are squat squares, cacti are tall and narrow.
var Obstacles = []Obstacle{
	{X: 200, Y: 150, HalfW: 20, HalfH: 20}, // barrel
	{X: 600, Y: 450, HalfW: 20, HalfH: 20}, // barrel
	{X: 400, Y: 120, HalfW: 15, HalfH: 35}, // cactus
	{X: 400, Y: 480, HalfW: 15, HalfH: 35}, // cactus
	{X: 150, Y: 450, HalfW: 20, HalfH: 20}, // barrel
	{X: 650, Y: 150, HalfW: 15, HalfH: 35}, // cactus
}

// ObstacleAt reports whether any obstacle contains the point.
func ObstacleAt(px, py float64) bool {
	for _, o := range Obstacles {
		if o.Contains(px, py) {
			return true
		}
	}
	return false
}

// SpawnPosition returns the spawn point for a join-order slot.
// Slots beyond the second share a center spawn.
func SpawnPosition(slot int) (float64, float64) {
	switch slot {
	case 0:
		return 200, 300
	case 1:
		return 600, 300
	default:
		return 400, 300
	}
}
