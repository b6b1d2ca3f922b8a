package main

// Projectile is one live bullet. A player may own at most one at a time;
// the room enforces that on shoot.
type Projectile struct {
	ID      int64
	OwnerID int64
	X, Y    float64
	VX, VY  float64
}

// velocityFor maps a shoot direction onto an axis-aligned velocity.
// Anything unrecognized shoots up.
func velocityFor(direction string) (vx, vy float64) {
	switch direction {
	case "down":
		return 0, ProjectileSpeed
	case "left":
		return -ProjectileSpeed, 0
	case "right":
		return ProjectileSpeed, 0
	default: // "up" and anything else
		return 0, -ProjectileSpeed
	}
}

// Advance moves the projectile one tick along its velocity.
func (p *Projectile) Advance() {
	p.X += p.VX
	p.Y += p.VY
}

// OutOfBounds reports whether the projectile has left the arena.
func (p *Projectile) OutOfBounds() bool {
	return p.X < 0 || p.X > ArenaWidth || p.Y < 0 || p.Y > ArenaHeight
}

// ToState converts to protocol state
func (p *Projectile) ToState() ProjectileState {
	return ProjectileState{
		X:       p.X,
		Y:       p.Y,
		OwnerID: p.OwnerID,
	}
}
