package core

import (
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Registry maps live connections to usernames and back.
// It is not safe for concurrent use; the Hub serializes access.
type Registry struct {
	byConn map[string]string
	byName map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]string),
		byName: make(map[string]string),
	}
}

// Register binds the trimmed username to the connection.
// Names containing the conversation key separator or equal to the broadcast
// recipient are refused, since private keys and file routing depend on them.
func (r *Registry) Register(connID, proposed string) (string, error) {
	name := strings.TrimSpace(proposed)
	if name == "" {
		return "", errInvalidUsername
	}
	if strings.Contains(name, keySeparator) || name == BroadcastRecipient {
		return "", errReservedUsername
	}
	if _, ok := r.byConn[connID]; ok {
		return "", errAlreadyRegistered
	}
	if _, taken := r.byName[name]; taken {
		return "", errUsernameTaken
	}

	r.byConn[connID] = name
	r.byName[name] = connID
	return name, nil
}

// Lookup returns the username bound to a connection.
func (r *Registry) Lookup(connID string) (string, bool) {
	name, ok := r.byConn[connID]
	return name, ok
}

// LookupConnection returns the connection holding a username.
func (r *Registry) LookupConnection(username string) (string, bool) {
	connID, ok := r.byName[username]
	return connID, ok
}

// Remove drops the session of a connection. Safe to call more than once.
func (r *Registry) Remove(connID string) (string, bool) {
	name, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	delete(r.byName, name)
	return name, true
}

// Usernames returns the sorted list of registered usernames.
func (r *Registry) Usernames() []string {
	names := lo.Keys(r.byName)
	slices.Sort(names)
	return names
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	return len(r.byConn)
}
