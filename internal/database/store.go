package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "classboard/pkg/database"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// Store is the sqlite-backed message store. Reads run concurrently under
// WAL; all writes are funneled through a single goroutine, which is what
// sqlite wants.
type Store struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens the database, applies pragmas and starts the write loop.
func NewStore(config *dbconfig.Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	s := &Store{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// once after 5 seconds on failure.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if err != nil {
				log.Printf("database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(s.db)
				if err != nil {
					log.Printf("database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-s.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// CreateQuestion persists a question and fills in its server-assigned ID,
// timestamp and author.
func (s *Store) CreateQuestion(ctx context.Context, q *types.Question) error {
	if err := types.ValidateQuestion(q); err != nil {
		return err
	}
	err := s.executeWrite(func(db *sql.DB) error {
		now := time.Now().UTC()
		res, err := db.ExecContext(ctx,
			`INSERT INTO questions (content, class_id, student_id, timestamp) VALUES (?, ?, ?, ?)`,
			q.Content, q.ClassID, q.StudentID, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert question: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read question ID: %w", err)
		}
		q.ID = id
		q.Timestamp = now
		return nil
	})
	if err != nil {
		return err
	}

	student, err := s.UserByID(ctx, q.StudentID)
	if err == nil {
		q.Student = student
	}
	if q.Answers == nil {
		q.Answers = []types.Answer{}
	}
	return nil
}

// CreateAnswer persists an answer and fills in its server-assigned fields.
func (s *Store) CreateAnswer(ctx context.Context, a *types.Answer) error {
	if err := types.ValidateAnswer(a); err != nil {
		return err
	}
	err := s.executeWrite(func(db *sql.DB) error {
		now := time.Now().UTC()
		res, err := db.ExecContext(ctx,
			`INSERT INTO answers (content, question_id, teacher_id, timestamp) VALUES (?, ?, ?, ?)`,
			a.Content, a.QuestionID, a.TeacherID, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert answer: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read answer ID: %w", err)
		}
		a.ID = id
		a.Timestamp = now
		return nil
	})
	if err != nil {
		return err
	}

	teacher, err := s.UserByID(ctx, a.TeacherID)
	if err == nil {
		a.Teacher = teacher
	}
	return nil
}

// CreateMessage persists a direct message and fills in its server-assigned
// ID and timestamp.
func (s *Store) CreateMessage(ctx context.Context, m *types.DirectMessage) error {
	if err := types.ValidateDirectMessage(m); err != nil {
		return err
	}
	return s.executeWrite(func(db *sql.DB) error {
		now := time.Now().UTC()
		res, err := db.ExecContext(ctx,
			`INSERT INTO messages (sender_id, receiver_id, content, timestamp, is_read) VALUES (?, ?, ?, ?, 0)`,
			m.SenderID, m.ReceiverID, m.Content, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message ID: %w", err)
		}
		m.ID = id
		m.Timestamp = now
		m.IsRead = false
		return nil
	})
}

// QuestionsByClass returns a class's Q&A history, oldest first, with the
// author and answers joined in.
func (s *Store) QuestionsByClass(ctx context.Context, classID int64) ([]*types.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.content, q.class_id, q.student_id, q.timestamp,
		       u.full_name, u.email, u.role
		FROM questions q
		JOIN users u ON u.id = q.student_id
		WHERE q.class_id = ?
		ORDER BY q.timestamp ASC, q.id ASC
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var questions []*types.Question
	byID := make(map[int64]*types.Question)
	for rows.Next() {
		q := &types.Question{Answers: []types.Answer{}}
		student := &types.User{}
		if err := rows.Scan(
			&q.ID, &q.Content, &q.ClassID, &q.StudentID, &q.Timestamp,
			&student.FullName, &student.Email, &student.Role,
		); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		student.ID = q.StudentID
		q.Student = student
		questions = append(questions, q)
		byID[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating question rows: %w", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	answerRows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.content, a.question_id, a.teacher_id, a.timestamp,
		       u.full_name, u.email, u.role
		FROM answers a
		JOIN users u ON u.id = a.teacher_id
		JOIN questions q ON q.id = a.question_id
		WHERE q.class_id = ?
		ORDER BY a.timestamp ASC, a.id ASC
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer func() { _ = answerRows.Close() }()

	for answerRows.Next() {
		var a types.Answer
		teacher := &types.User{}
		if err := answerRows.Scan(
			&a.ID, &a.Content, &a.QuestionID, &a.TeacherID, &a.Timestamp,
			&teacher.FullName, &teacher.Email, &teacher.Role,
		); err != nil {
			return nil, fmt.Errorf("failed to scan answer row: %w", err)
		}
		teacher.ID = a.TeacherID
		a.Teacher = teacher
		if q, ok := byID[a.QuestionID]; ok {
			q.Answers = append(q.Answers, a)
		}
	}
	if err := answerRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answer rows: %w", err)
	}

	return questions, nil
}

// QuestionByID returns one question without its answers.
func (s *Store) QuestionByID(ctx context.Context, id int64) (*types.Question, error) {
	q := &types.Question{Answers: []types.Answer{}}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, class_id, student_id, timestamp FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.Content, &q.ClassID, &q.StudentID, &q.Timestamp)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query question: %w", err)
	}
	return q, nil
}

// MessagesBetween returns the direct-message thread between two users,
// oldest first.
func (s *Store) MessagesBetween(ctx context.Context, userA, userB int64) ([]*types.DirectMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, content, timestamp, is_read
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY timestamp ASC, id ASC
	`, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.DirectMessage
	for rows.Next() {
		var m types.DirectMessage
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Timestamp, &m.IsRead); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// Conversations lists users the given user has exchanged messages with.
// A user with no conversations yet gets everyone else, so a first chat can
// be started.
func (s *Store) Conversations(ctx context.Context, userID int64) ([]*types.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT u.id, u.full_name, u.email, u.role
		FROM users u
		JOIN messages m ON (m.sender_id = u.id AND m.receiver_id = ?)
		               OR (m.receiver_id = u.id AND m.sender_id = ?)
		ORDER BY u.full_name ASC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	users, err := scanUsers(rows)
	if err != nil {
		return nil, err
	}
	if len(users) > 0 {
		return users, nil
	}

	allRows, err := s.db.QueryContext(ctx,
		`SELECT id, full_name, email, role FROM users WHERE id != ? ORDER BY full_name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	return scanUsers(allRows)
}

func scanUsers(rows *sql.Rows) ([]*types.User, error) {
	defer func() { _ = rows.Close() }()

	var users []*types.User
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &u.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}

// UserByID returns one user.
func (s *Store) UserByID(ctx context.Context, id int64) (*types.User, error) {
	var u types.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, full_name, email, role FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.Role)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

// Classes returns every class with its enrolled student IDs, for the roster
// cache.
func (s *Store) Classes(ctx context.Context) ([]*types.Class, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, teacher_id FROM classes ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var classes []*types.Class
	byID := make(map[int64]*types.Class)
	for rows.Next() {
		c := &types.Class{}
		if err := rows.Scan(&c.ID, &c.Name, &c.TeacherID); err != nil {
			return nil, fmt.Errorf("failed to scan class row: %w", err)
		}
		classes = append(classes, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating class rows: %w", err)
	}

	enrollRows, err := s.db.QueryContext(ctx, `SELECT class_id, user_id FROM enrollments ORDER BY class_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer func() { _ = enrollRows.Close() }()

	for enrollRows.Next() {
		var classID, userID int64
		if err := enrollRows.Scan(&classID, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment row: %w", err)
		}
		if c, ok := byID[classID]; ok {
			c.StudentIDs = append(c.StudentIDs, userID)
		}
	}
	if err := enrollRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollment rows: %w", err)
	}

	return classes, nil
}

// CreateUser persists a user, for seeding and the admin tooling.
func (s *Store) CreateUser(ctx context.Context, u *types.User) error {
	if !types.IsValidRole(u.Role) {
		return types.ErrInvalidRole
	}
	return s.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`INSERT INTO users (full_name, email, role) VALUES (?, ?, ?)`,
			u.FullName, u.Email, u.Role,
		)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		u.ID = id
		return nil
	})
}

// CreateClass persists a class and its enrollments.
func (s *Store) CreateClass(ctx context.Context, c *types.Class) error {
	return s.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO classes (name, teacher_id) VALUES (?, ?)`, c.Name, c.TeacherID)
		if err != nil {
			return fmt.Errorf("failed to insert class: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		c.ID = id

		for _, studentID := range c.StudentIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO enrollments (class_id, user_id) VALUES (?, ?)`, c.ID, studentID); err != nil {
				return fmt.Errorf("failed to insert enrollment: %w", err)
			}
		}
		return tx.Commit()
	})
}

// HealthCheck validates database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users LIMIT 1`).Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB exposes the connection for migrations and schema validation.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close shuts the store down, waiting for the write loop to drain.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

var _ interfaces.MessageStore = (*Store)(nil)
