package types

// MaxContentBytes caps question, answer and chat message bodies.
const MaxContentBytes = 64 * 1024

// ValidateContent checks a user-authored message body.
func ValidateContent(content string) error {
	if content == "" {
		return ErrEmptyContent
	}
	if len(content) > MaxContentBytes {
		return ErrContentTooLarge
	}
	return nil
}

// ValidateQuestion checks an inbound question before persistence.
func ValidateQuestion(q *Question) error {
	if q == nil {
		return ErrNilRecord
	}
	if q.ClassID <= 0 {
		return ErrInvalidClassID
	}
	if q.StudentID <= 0 {
		return ErrInvalidUserID
	}
	return ValidateContent(q.Content)
}

// ValidateAnswer checks an inbound answer before persistence.
func ValidateAnswer(a *Answer) error {
	if a == nil {
		return ErrNilRecord
	}
	if a.QuestionID <= 0 {
		return ErrInvalidQuestionID
	}
	if a.TeacherID <= 0 {
		return ErrInvalidUserID
	}
	return ValidateContent(a.Content)
}

// ValidateDirectMessage checks an inbound chat message before persistence.
func ValidateDirectMessage(m *DirectMessage) error {
	if m == nil {
		return ErrNilRecord
	}
	if m.SenderID <= 0 || m.ReceiverID <= 0 {
		return ErrInvalidUserID
	}
	if m.SenderID == m.ReceiverID {
		return ErrSelfMessage
	}
	return ValidateContent(m.Content)
}
