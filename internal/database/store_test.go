package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	dbconfig "classboard/pkg/database"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &dbconfig.Config{
		DatabasePath:    filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:  5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := dbconfig.NewMigrationManager(store.GetDB()).ApplyMigrations(); err != nil {
		t.Fatalf("migrations failed: %v", err)
	}
	return store
}

func seedUser(t *testing.T, s *Store, name, role string) *types.User {
	t.Helper()
	u := &types.User{FullName: name, Email: name + "@school.test", Role: role}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return u
}

func seedClass(t *testing.T, s *Store, teacherID int64, studentIDs ...int64) *types.Class {
	t.Helper()
	c := &types.Class{Name: "Biology", TeacherID: teacherID, StudentIDs: studentIDs}
	if err := s.CreateClass(context.Background(), c); err != nil {
		t.Fatalf("CreateClass failed: %v", err)
	}
	return c
}

func TestCreateQuestionAssignsIdentityAndAuthor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	teacher := seedUser(t, s, "Teach", types.RoleTeacher)
	student := seedUser(t, s, "Student", types.RoleStudent)
	class := seedClass(t, s, teacher.ID, student.ID)

	q := &types.Question{Content: "why?", ClassID: class.ID, StudentID: student.ID}
	if err := s.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("CreateQuestion failed: %v", err)
	}
	if q.ID == 0 {
		t.Error("expected a server-assigned ID")
	}
	if q.Timestamp.IsZero() {
		t.Error("expected a server-assigned timestamp")
	}
	if q.Student == nil || q.Student.ID != student.ID {
		t.Errorf("expected the author joined in, got %+v", q.Student)
	}
	if q.Answers == nil {
		t.Error("expected answers initialized")
	}
}

func TestQuestionsByClassOrderAndAnswers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	teacher := seedUser(t, s, "Teach", types.RoleTeacher)
	student := seedUser(t, s, "Student", types.RoleStudent)
	class := seedClass(t, s, teacher.ID, student.ID)

	first := &types.Question{Content: "first", ClassID: class.ID, StudentID: student.ID}
	second := &types.Question{Content: "second", ClassID: class.ID, StudentID: student.ID}
	if err := s.CreateQuestion(ctx, first); err != nil {
		t.Fatalf("CreateQuestion failed: %v", err)
	}
	if err := s.CreateQuestion(ctx, second); err != nil {
		t.Fatalf("CreateQuestion failed: %v", err)
	}

	answer := &types.Answer{Content: "because", QuestionID: first.ID, TeacherID: teacher.ID}
	if err := s.CreateAnswer(ctx, answer); err != nil {
		t.Fatalf("CreateAnswer failed: %v", err)
	}

	questions, err := s.QuestionsByClass(ctx, class.ID)
	if err != nil {
		t.Fatalf("QuestionsByClass failed: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].ID != first.ID || questions[1].ID != second.ID {
		t.Error("expected oldest-first ordering")
	}
	if len(questions[0].Answers) != 1 || questions[0].Answers[0].ID != answer.ID {
		t.Errorf("expected the answer nested under its question, got %+v", questions[0].Answers)
	}
	if questions[0].Answers[0].Teacher == nil || questions[0].Answers[0].Teacher.ID != teacher.ID {
		t.Error("expected the answer's author joined in")
	}
	if len(questions[1].Answers) != 0 {
		t.Errorf("unanswered question must have empty answers, got %+v", questions[1].Answers)
	}
}

func TestQuestionByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.QuestionByID(context.Background(), 12345); err != interfaces.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMessagesBetweenIsSymmetricAndOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "Alice", types.RoleStudent)
	bob := seedUser(t, s, "Bob", types.RoleStudent)
	carol := seedUser(t, s, "Carol", types.RoleStudent)

	for _, m := range []*types.DirectMessage{
		{SenderID: alice.ID, ReceiverID: bob.ID, Content: "one"},
		{SenderID: bob.ID, ReceiverID: alice.ID, Content: "two"},
		{SenderID: alice.ID, ReceiverID: carol.ID, Content: "other thread"},
	} {
		if err := s.CreateMessage(ctx, m); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	forward, err := s.MessagesBetween(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("MessagesBetween failed: %v", err)
	}
	backward, err := s.MessagesBetween(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("MessagesBetween failed: %v", err)
	}
	if len(forward) != 2 || len(backward) != 2 {
		t.Fatalf("expected 2 messages each way, got %d and %d", len(forward), len(backward))
	}
	if forward[0].Content != "one" || forward[1].Content != "two" {
		t.Error("expected oldest-first ordering")
	}
}

func TestConversationsFallsBackToAllUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "Alice", types.RoleStudent)
	bob := seedUser(t, s, "Bob", types.RoleStudent)
	carol := seedUser(t, s, "Carol", types.RoleStudent)

	// No messages yet: everyone else is offered as a potential conversation.
	users, err := s.Conversations(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 potential counterparts, got %d", len(users))
	}

	// After messaging Bob, only Bob is listed.
	msg := &types.DirectMessage{SenderID: alice.ID, ReceiverID: bob.ID, Content: "hi"}
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}
	users, err = s.Conversations(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if len(users) != 1 || users[0].ID != bob.ID {
		t.Errorf("expected only Bob, got %+v", users)
	}
	_ = carol
}

func TestClassesIncludesEnrollments(t *testing.T) {
	s := newTestStore(t)
	teacher := seedUser(t, s, "Teach", types.RoleTeacher)
	s1 := seedUser(t, s, "S1", types.RoleStudent)
	s2 := seedUser(t, s, "S2", types.RoleStudent)
	class := seedClass(t, s, teacher.ID, s1.ID, s2.ID)

	classes, err := s.Classes(context.Background())
	if err != nil {
		t.Fatalf("Classes failed: %v", err)
	}
	if len(classes) != 1 {
		t.Fatalf("expected 1 class, got %d", len(classes))
	}
	got := classes[0]
	if got.ID != class.ID || got.TeacherID != teacher.ID {
		t.Errorf("unexpected class %+v", got)
	}
	if len(got.StudentIDs) != 2 {
		t.Errorf("expected 2 enrollments, got %v", got.StudentIDs)
	}
}

func TestCreateMessageRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateMessage(ctx, &types.DirectMessage{SenderID: 1, ReceiverID: 1, Content: "x"}); err != types.ErrSelfMessage {
		t.Errorf("expected ErrSelfMessage, got %v", err)
	}
	if err := s.CreateMessage(ctx, &types.DirectMessage{SenderID: 1, ReceiverID: 2, Content: ""}); err != types.ErrEmptyContent {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestHealthCheckAndClose(t *testing.T) {
	s := newTestStore(t)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close must be a no-op, got %v", err)
	}
}
