package main

import (
	"errors"
	"log"
	"sync"
)

const maxRooms = 1000

// User-facing registry errors, relayed verbatim in error replies.
var (
	ErrInvalidCode     = errors.New("unknown room code")
	ErrMatchInProgress = errors.New("match already in progress")
	ErrRoomFull        = errors.New("room is full")
	ErrTooManyRooms    = errors.New("too many active rooms")
	ErrAlreadyInRoom   = errors.New("already in a room")
)

// binding ties a connection to its player identity and room. Keeping this
// as an explicit table (rather than keying maps by connection objects)
// is what the dispatcher validates every mutating message against.
type binding struct {
	playerID int64
	code     string
}

// Registry creates rooms under unique codes and resolves connections to
// their room and player id in O(1).
type Registry struct {
	mu           sync.Mutex
	rooms        map[string]*Room
	conns        map[string]binding // connection id -> binding
	nextPlayerID int64              // server-wide, monotonic, never reused

	db        *DB
	analytics *Analytics
}

// NewRegistry creates an empty registry. db may be nil for a server
// running without persistence.
func NewRegistry(db *DB, analytics *Analytics) *Registry {
	return &Registry{
		rooms:     make(map[string]*Room),
		conns:     make(map[string]binding),
		db:        db,
		analytics: analytics,
	}
}

// CreateRoom opens a new lobby with the caller as host and sole member,
// under a code not shared with any active room.
func (reg *Registry) CreateRoom(connID, name string, accountID int64, client Broadcaster) (*Room, JoinInfo, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.conns[connID]; ok {
		return nil, JoinInfo{}, ErrAlreadyInRoom
	}
	if len(reg.rooms) >= maxRooms {
		return nil, JoinInfo{}, ErrTooManyRooms
	}

	code := GenerateRoomCode()
	for {
		if _, taken := reg.rooms[code]; !taken {
			break
		}
		code = GenerateRoomCode()
	}

	reg.nextPlayerID++
	playerID := reg.nextPlayerID

	room := newRoom(code, reg.db, reg.analytics)
	room.hostID = playerID
	info, err := room.Join(playerID, connID, name, accountID, client)
	if err != nil {
		// Unreachable for an empty lobby, but keep the invariant that a
		// registered room always has its host attached.
		return nil, JoinInfo{}, err
	}

	reg.rooms[code] = room
	reg.conns[connID] = binding{playerID: playerID, code: code}
	go room.Run()

	reg.analytics.Track(EvtRoomCreated, accountID, code, "")
	log.Printf("room %s created by player %d (%s)", code, playerID, name)
	return room, info, nil
}

// JoinRoom attaches a connection to an existing lobby by code.
func (reg *Registry) JoinRoom(connID, code, name string, accountID int64, client Broadcaster) (*Room, JoinInfo, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.conns[connID]; ok {
		return nil, JoinInfo{}, ErrAlreadyInRoom
	}
	room, ok := reg.rooms[code]
	if !ok {
		return nil, JoinInfo{}, ErrInvalidCode
	}

	reg.nextPlayerID++
	playerID := reg.nextPlayerID

	info, err := room.Join(playerID, connID, name, accountID, client)
	if err != nil {
		return nil, JoinInfo{}, err
	}
	reg.conns[connID] = binding{playerID: playerID, code: code}

	log.Printf("player %d (%s) joined room %s", playerID, name, code)
	return room, info, nil
}

// Binding resolves a connection to its player id and room. The second
// return is nil when the connection is not in a room.
func (reg *Registry) Binding(connID string) (int64, *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	b, ok := reg.conns[connID]
	if !ok {
		return 0, nil
	}
	return b.playerID, reg.rooms[b.code]
}

// RoomByCode returns the active room under code, or nil.
func (reg *Registry) RoomByCode(code string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[code]
}

// RoomCount returns the number of active rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// LeaveRoom handles a connection's permanent departure (leave or drop).
// A host leaving its lobby tears the whole room down and frees the code;
// any other departure removes just that member, with the room applying
// forfeit or lobby-update consequences. Rooms left empty are destroyed.
func (reg *Registry) LeaveRoom(connID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	b, ok := reg.conns[connID]
	if !ok {
		return
	}
	delete(reg.conns, connID)

	room := reg.rooms[b.code]
	if room == nil {
		return
	}

	if room.Phase() == PhaseLobby && room.HostID() == b.playerID {
		delete(reg.rooms, b.code)
		for cid, other := range reg.conns {
			if other.code == b.code {
				delete(reg.conns, cid)
			}
		}
		room.Stop()
		log.Printf("room %s closed: host left the lobby", b.code)
		return
	}

	if room.RemoveMember(b.playerID) == 0 {
		delete(reg.rooms, b.code)
		room.Stop()
		log.Printf("room %s closed: last member left", b.code)
	}
}
