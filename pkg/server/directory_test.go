package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aeolun/huddle/pkg/database"
)

func TestDirectorySeedAndLookup(t *testing.T) {
	d := NewDirectory()
	d.Seed([]database.User{
		{ID: 1, Username: "alice"},
		{ID: 2, Username: "bob"},
	})

	id, ok := d.Lookup("alice")
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)

	assert.True(t, d.Contains("bob"))
	assert.False(t, d.Contains("carol"))
	assert.Equal(t, 2, d.Count())
}

func TestDirectoryAddRejectsDuplicate(t *testing.T) {
	d := NewDirectory()

	assert.True(t, d.Add("alice", 1))
	assert.False(t, d.Add("alice", 2))

	// The losing add must not clobber the winner's id
	id, ok := d.Lookup("alice")
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}

// Concurrent adds of the same name: exactly one wins
func TestDirectoryAddIsAtomic(t *testing.T) {
	d := NewDirectory()

	const goroutines = 50
	var wins int64
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if d.Add("contested", id) {
				atomic.AddInt64(&wins, 1)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	assert.Equal(t, 1, d.Count())
}

func TestDirectoryConcurrentMixedAccess(t *testing.T) {
	d := NewDirectory()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			d.Add(fmt.Sprintf("user-%d", n), int64(n))
		}(i)
		go func(n int) {
			defer wg.Done()
			d.Contains(fmt.Sprintf("user-%d", n))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, d.Count())
}
