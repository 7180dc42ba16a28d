package core

import (
	"slices"

	"github.com/samber/lo"
)

// RoomTable tracks which usernames are in which pre-declared room.
// It is not safe for concurrent use; the Hub serializes access.
type RoomTable struct {
	names    []string
	defaults map[string]struct{}
	members  map[string]map[string]struct{}
}

// NewRoomTable declares the rooms. Default rooms are joined on register and
// never left by a room switch; they are added to names if missing.
func NewRoomTable(names, defaults []string) *RoomTable {
	all := lo.Uniq(append(slices.Clone(names), defaults...))
	t := &RoomTable{
		names:    all,
		defaults: make(map[string]struct{}, len(defaults)),
		members:  make(map[string]map[string]struct{}, len(all)),
	}
	for _, name := range all {
		t.members[name] = make(map[string]struct{})
	}
	for _, name := range defaults {
		t.defaults[name] = struct{}{}
	}
	return t
}

// Exists reports whether the room was declared.
func (t *RoomTable) Exists(room string) bool {
	_, ok := t.members[room]
	return ok
}

// Names returns the declared rooms in declaration order.
func (t *RoomTable) Names() []string {
	return slices.Clone(t.names)
}

// Defaults returns the always-joined rooms in declaration order.
func (t *RoomTable) Defaults() []string {
	return lo.Filter(t.names, func(name string, _ int) bool {
		return t.IsDefault(name)
	})
}

// IsDefault reports whether the room is part of the always-joined set.
func (t *RoomTable) IsDefault(room string) bool {
	_, ok := t.defaults[room]
	return ok
}

// Join adds the user to the room. Returns true if membership changed.
func (t *RoomTable) Join(room, username string) bool {
	set, ok := t.members[room]
	if !ok {
		return false
	}
	if _, exists := set[username]; exists {
		return false
	}
	set[username] = struct{}{}
	return true
}

// Leave removes the user from the room. Returns true if membership changed.
func (t *RoomTable) Leave(room, username string) bool {
	set, ok := t.members[room]
	if !ok {
		return false
	}
	if _, exists := set[username]; !exists {
		return false
	}
	delete(set, username)
	return true
}

// IsMember reports whether the user is in the room.
func (t *RoomTable) IsMember(room, username string) bool {
	_, ok := t.members[room][username]
	return ok
}

// MembersOf returns a sorted snapshot of the room's members.
func (t *RoomTable) MembersOf(room string) []string {
	members := lo.Keys(t.members[room])
	slices.Sort(members)
	return members
}

// RoomsOf returns the rooms the user is in, in declaration order.
func (t *RoomTable) RoomsOf(username string) []string {
	return lo.Filter(t.names, func(name string, _ int) bool {
		return t.IsMember(name, username)
	})
}

// LeaveNonDefault removes the user from every non-default room except keep
// and returns the rooms actually left.
func (t *RoomTable) LeaveNonDefault(username, keep string) []string {
	var left []string
	for _, name := range t.RoomsOf(username) {
		if name == keep || t.IsDefault(name) {
			continue
		}
		if t.Leave(name, username) {
			left = append(left, name)
		}
	}
	return left
}

// RemoveEverywhere removes the user from all rooms and returns only the rooms
// that contained it.
func (t *RoomTable) RemoveEverywhere(username string) []string {
	var changed []string
	for _, name := range t.names {
		if t.Leave(name, username) {
			changed = append(changed, name)
		}
	}
	return changed
}
