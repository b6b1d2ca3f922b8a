package main

// PowerUp is the single optional invincibility pickup in a room.
type PowerUp struct {
	X, Y float64
}

// SpawnPowerUp picks a uniformly random in-bounds position (with margin)
// that does not overlap any obstacle. Returns nil if no clear spot was
// found within the attempt budget; the caller just tries again next tick.
func SpawnPowerUp() *PowerUp {
	for i := 0; i < PowerUpSpawnAttempts; i++ {
		x := PowerUpSpawnMargin + randFloat()*(ArenaWidth-2*PowerUpSpawnMargin)
		y := PowerUpSpawnMargin + randFloat()*(ArenaHeight-2*PowerUpSpawnMargin)
		if ObstacleAt(x, y) {
			continue
		}
		return &PowerUp{X: x, Y: y}
	}
	return nil
}

// InReach reports whether a player at (px, py) is close enough to collect.
func (pu *PowerUp) InReach(px, py float64) bool {
	return Distance(pu.X, pu.Y, px, py) <= PickupRadius
}
