package roster

import (
	"context"
	"fmt"
	"log"
	"sync"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// Manager caches class rosters in memory and answers membership checks for
// the websocket layer without a database round trip per connection.
type Manager struct {
	store   interfaces.MessageStore
	mu      sync.RWMutex
	classes map[int64]*types.Class
	members map[int64]map[int64]bool // classID -> userID -> enrolled (or teacher)
}

// NewManager creates a roster manager.
func NewManager(store interfaces.MessageStore) *Manager {
	return &Manager{
		store:   store,
		classes: make(map[int64]*types.Class),
		members: make(map[int64]map[int64]bool),
	}
}

// Load reads all classes and enrollments into the cache.
func (m *Manager) Load(ctx context.Context) error {
	classes, err := m.store.Classes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load classes: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.classes = make(map[int64]*types.Class, len(classes))
	m.members = make(map[int64]map[int64]bool, len(classes))
	for _, c := range classes {
		m.classes[c.ID] = c
		members := make(map[int64]bool, len(c.StudentIDs)+1)
		members[c.TeacherID] = true
		for _, id := range c.StudentIDs {
			members[id] = true
		}
		m.members[c.ID] = members
	}

	log.Printf("roster: loaded %d classes", len(classes))
	return nil
}

// Register adds a class to the cache after creation.
func (m *Manager) Register(c *types.Class) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.classes[c.ID] = c
	members := make(map[int64]bool, len(c.StudentIDs)+1)
	members[c.TeacherID] = true
	for _, id := range c.StudentIDs {
		members[id] = true
	}
	m.members[c.ID] = members
}

// ValidateMembership checks that a user may join a class's Q&A channel:
// the class exists and the user is its teacher or an enrolled student.
func (m *Manager) ValidateMembership(ctx context.Context, classID, userID int64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, ok := m.members[classID]
	if !ok {
		return interfaces.ErrClassNotFound
	}
	if !members[userID] {
		return interfaces.ErrNotEnrolled
	}
	return nil
}

// ClassExists reports whether the class is known.
func (m *Manager) ClassExists(ctx context.Context, classID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.classes[classID]
	return ok
}

var _ interfaces.RosterManager = (*Manager)(nil)
