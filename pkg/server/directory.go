package server

import (
	"sync"

	"github.com/aeolun/huddle/pkg/database"
)

// Directory is the in-memory set of known users, shared across all sessions.
// It mirrors the User table for the lifetime of the server process: seeded
// once at startup and extended on every successful sign-up.
//
// Add holds the write lock across its lookup-then-insert sequence so two
// concurrent sign-ups of the same username cannot both succeed.
type Directory struct {
	mu     sync.RWMutex
	byName map[string]int64
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		byName: make(map[string]int64),
	}
}

// Seed loads users into the directory, replacing nothing that already exists
func (d *Directory) Seed(users []database.User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, u := range users {
		if _, ok := d.byName[u.Username]; !ok {
			d.byName[u.Username] = u.ID
		}
	}
}

// Lookup resolves a username to its user id
func (d *Directory) Lookup(username string) (int64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byName[username]
	return id, ok
}

// Contains reports whether a username is known
func (d *Directory) Contains(username string) bool {
	_, ok := d.Lookup(username)
	return ok
}

// Add inserts a username atomically. Returns false if the username was
// already present, in which case the directory is unchanged.
func (d *Directory) Add(username string, id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byName[username]; ok {
		return false
	}
	d.byName[username] = id
	return true
}

// Count returns the number of known users
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.byName)
}
