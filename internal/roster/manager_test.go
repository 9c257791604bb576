package roster

import (
	"context"
	"testing"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// fakeStore satisfies only the methods Load uses.
type fakeStore struct {
	interfaces.MessageStore
	classes []*types.Class
}

func (f *fakeStore) Classes(ctx context.Context) ([]*types.Class, error) {
	return f.classes, nil
}

func newLoadedManager(t *testing.T) *Manager {
	t.Helper()
	store := &fakeStore{classes: []*types.Class{
		{ID: 1, Name: "Biology", TeacherID: 10, StudentIDs: []int64{20, 21}},
		{ID: 2, Name: "Math", TeacherID: 11, StudentIDs: []int64{21}},
	}}
	m := NewManager(store)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return m
}

func TestValidateMembership(t *testing.T) {
	m := newLoadedManager(t)
	ctx := context.Background()

	if err := m.ValidateMembership(ctx, 1, 20); err != nil {
		t.Errorf("enrolled student rejected: %v", err)
	}
	if err := m.ValidateMembership(ctx, 1, 10); err != nil {
		t.Errorf("teacher rejected from own class: %v", err)
	}
	if err := m.ValidateMembership(ctx, 1, 99); err != interfaces.ErrNotEnrolled {
		t.Errorf("expected ErrNotEnrolled, got %v", err)
	}
	if err := m.ValidateMembership(ctx, 42, 20); err != interfaces.ErrClassNotFound {
		t.Errorf("expected ErrClassNotFound, got %v", err)
	}
}

func TestCrossClassMembershipIsolated(t *testing.T) {
	m := newLoadedManager(t)
	ctx := context.Background()

	// Student 20 is in class 1 only; student 21 is in both.
	if err := m.ValidateMembership(ctx, 2, 20); err != interfaces.ErrNotEnrolled {
		t.Errorf("expected ErrNotEnrolled for class 2, got %v", err)
	}
	if err := m.ValidateMembership(ctx, 2, 21); err != nil {
		t.Errorf("student in both classes rejected: %v", err)
	}
}

func TestClassExists(t *testing.T) {
	m := newLoadedManager(t)
	ctx := context.Background()

	if !m.ClassExists(ctx, 1) {
		t.Error("expected class 1 to exist")
	}
	if m.ClassExists(ctx, 42) {
		t.Error("expected class 42 to not exist")
	}
}

func TestRegisterAddsClass(t *testing.T) {
	m := newLoadedManager(t)
	ctx := context.Background()

	m.Register(&types.Class{ID: 3, Name: "Art", TeacherID: 12, StudentIDs: []int64{20}})

	if !m.ClassExists(ctx, 3) {
		t.Error("expected registered class to exist")
	}
	if err := m.ValidateMembership(ctx, 3, 20); err != nil {
		t.Errorf("expected membership in registered class, got %v", err)
	}
}
