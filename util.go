package main

import (
	"crypto/rand"
	"math"
	mrand "math/rand"
)

const roomCodeLen = 6
const roomCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRoomCode returns a random 6-character uppercase alphanumeric code.
// Uniqueness against active rooms is the registry's job.
func GenerateRoomCode() string {
	b := make([]byte, roomCodeLen)
	rand.Read(b)
	for i := range b {
		b[i] = roomCodeChars[int(b[i])%len(roomCodeChars)]
	}
	return string(b)
}

// Distance returns the distance between two points
func Distance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}

func randFloat() float64 {
	return mrand.Float64()
}
