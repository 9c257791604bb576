package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"classboard/pkg/types"
)

// identityHeader carries the caller's user ID. Authentication proper is an
// external collaborator; the realtime layer only needs an identity.
const identityHeader = "X-User-ID"

// restClient talks to the authoritative REST collaborators: history fetch,
// Q&A writes and the current-user lookup.
type restClient struct {
	base   string // e.g. http://host:8080
	http   *http.Client
	userID int64
}

func newRESTClient(base string, httpClient *http.Client, userID int64) *restClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &restClient{
		base:   strings.TrimSuffix(base, "/"),
		http:   httpClient,
		userID: userID,
	}
}

func (r *restClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base+"/api/v1"+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.userID > 0 {
		req.Header.Set(identityHeader, strconv.FormatInt(r.userID, 10))
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CurrentUser returns the authenticated user's identity.
func (r *restClient) CurrentUser(ctx context.Context) (*types.User, error) {
	var u types.User
	if err := r.do(ctx, http.MethodGet, "/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Questions fetches the Q&A history of a class, oldest first.
func (r *restClient) Questions(ctx context.Context, classID int64) ([]*types.Question, error) {
	var qs []*types.Question
	path := fmt.Sprintf("/qa/%d", classID)
	if err := r.do(ctx, http.MethodGet, path, nil, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// Messages fetches the direct-message history with one counterpart,
// oldest first.
func (r *restClient) Messages(ctx context.Context, userID int64) ([]*types.DirectMessage, error) {
	var ms []*types.DirectMessage
	path := fmt.Sprintf("/chat/%d/messages", userID)
	if err := r.do(ctx, http.MethodGet, path, nil, &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

// Conversations lists the users the caller has chatted with.
func (r *restClient) Conversations(ctx context.Context) ([]*types.User, error) {
	var us []*types.User
	if err := r.do(ctx, http.MethodGet, "/chat/conversations", nil, &us); err != nil {
		return nil, err
	}
	return us, nil
}

type createQuestionRequest struct {
	Content string `json:"content"`
	ClassID int64  `json:"class_id"`
}

type createAnswerRequest struct {
	Content    string `json:"content"`
	QuestionID int64  `json:"question_id"`
}

// CreateQuestion issues the authoritative write for a new question. The
// response is not merged into the log directly; reconciliation happens via
// the broadcast frame.
func (r *restClient) CreateQuestion(ctx context.Context, classID int64, content string) (*types.Question, error) {
	var q types.Question
	req := createQuestionRequest{Content: content, ClassID: classID}
	if err := r.do(ctx, http.MethodPost, "/qa", req, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// CreateAnswer issues the authoritative write for a new answer.
func (r *restClient) CreateAnswer(ctx context.Context, questionID int64, content string) (*types.Answer, error) {
	var a types.Answer
	req := createAnswerRequest{Content: content, QuestionID: questionID}
	if err := r.do(ctx, http.MethodPost, "/qa/answer", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
