package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

type createQuestionRequest struct {
	Content string `json:"content"`
	ClassID int64  `json:"class_id"`
}

type createAnswerRequest struct {
	Content    string `json:"content"`
	QuestionID int64  `json:"question_id"`
}

// Broadcaster fans persisted Q&A records out to live class rooms.
// Implemented by the hub.
type Broadcaster interface {
	BroadcastQuestion(q *types.Question)
	BroadcastAnswer(classID int64, a *types.Answer)
}

func (s *Server) getQuestions(c echo.Context) error {
	user, ok := contextUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrUnknownUser.Error())
	}

	classID, err := strconv.ParseInt(c.Param("class_id"), 10, 64)
	if err != nil || classID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid class id")
	}

	if err := s.roster.ValidateMembership(c.Request().Context(), classID, user.ID); err != nil {
		return membershipError(err)
	}

	questions, err := s.store.QuestionsByClass(c.Request().Context(), classID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load questions")
	}
	if questions == nil {
		questions = []*types.Question{}
	}
	return c.JSON(http.StatusOK, questions)
}

func (s *Server) createQuestion(c echo.Context) error {
	user, ok := contextUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrUnknownUser.Error())
	}

	var req createQuestionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.roster.ValidateMembership(c.Request().Context(), req.ClassID, user.ID); err != nil {
		return membershipError(err)
	}

	q := &types.Question{
		Content:   req.Content,
		ClassID:   req.ClassID,
		StudentID: user.ID,
		Timestamp: time.Now().UTC(),
	}
	if err := types.ValidateQuestion(q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.store.CreateQuestion(c.Request().Context(), q); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save question")
	}

	s.broadcaster.BroadcastQuestion(q)
	return c.JSON(http.StatusCreated, q)
}

func (s *Server) createAnswer(c echo.Context) error {
	user, ok := contextUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrUnknownUser.Error())
	}
	if user.Role != types.RoleTeacher && user.Role != types.RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "only teachers may answer questions")
	}

	var req createAnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	question, err := s.store.QuestionByID(c.Request().Context(), req.QuestionID)
	if err != nil {
		if err == interfaces.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "question not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load question")
	}

	a := &types.Answer{
		Content:    req.Content,
		QuestionID: req.QuestionID,
		TeacherID:  user.ID,
		Timestamp:  time.Now().UTC(),
	}
	if err := types.ValidateAnswer(a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.store.CreateAnswer(c.Request().Context(), a); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save answer")
	}

	s.broadcaster.BroadcastAnswer(question.ClassID, a)
	return c.JSON(http.StatusCreated, a)
}

func (s *Server) getConversations(c echo.Context) error {
	user, ok := contextUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrUnknownUser.Error())
	}

	users, err := s.store.Conversations(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load conversations")
	}
	if users == nil {
		users = []*types.User{}
	}
	return c.JSON(http.StatusOK, users)
}

func (s *Server) getMessages(c echo.Context) error {
	user, ok := contextUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrUnknownUser.Error())
	}

	otherID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || otherID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	messages, err := s.store.MessagesBetween(c.Request().Context(), user.ID, otherID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load messages")
	}
	if messages == nil {
		messages = []*types.DirectMessage{}
	}
	return c.JSON(http.StatusOK, messages)
}

func (s *Server) getCurrentUser(c echo.Context) error {
	user, ok := contextUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrUnknownUser.Error())
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) health(c echo.Context) error {
	if err := s.store.HealthCheck(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// serveQAWebSocket joins the caller to a class Q&A room. Browsers cannot
// set headers on websocket handshakes, so identity rides the user_id
// query parameter here.
func (s *Server) serveQAWebSocket(c echo.Context) error {
	classID, err := strconv.ParseInt(c.Param("class_id"), 10, 64)
	if err != nil || classID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid class id")
	}
	userID, err := strconv.ParseInt(c.QueryParam("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "missing or invalid user_id")
	}

	s.wsHandler.ServeQA(c.Response(), c.Request(), classID, userID)
	return nil
}

func (s *Server) serveChatWebSocket(c echo.Context) error {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	s.wsHandler.ServeChat(c.Response(), c.Request(), userID)
	return nil
}

func membershipError(err error) error {
	switch err {
	case interfaces.ErrClassNotFound:
		return echo.NewHTTPError(http.StatusNotFound, "class not found")
	case interfaces.ErrNotEnrolled:
		return echo.NewHTTPError(http.StatusForbidden, "not a member of this class")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "membership validation failed")
	}
}
