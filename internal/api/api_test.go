package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sancheet230/get-chat/internal/status"
	"github.com/sancheet230/get-chat/internal/store"
	"github.com/sancheet230/get-chat/internal/sync"
)

type stubEngine struct {
	snapshot sync.Snapshot
	sentKey  string
	sentBody string
	sendErr  error
	focused  string
	blurred  bool
	authTok  string
}

func (s *stubEngine) Snapshot() sync.Snapshot { return s.snapshot }

func (s *stubEngine) Send(_ context.Context, key, content, _, _ string) (string, error) {
	s.sentKey, s.sentBody = key, content
	if s.sendErr != nil {
		return "", s.sendErr
	}
	return "temp-1", nil
}

func (s *stubEngine) Focus(_ context.Context, key string) error {
	s.focused = key
	return nil
}

func (s *stubEngine) Blur() { s.blurred = true }

func (s *stubEngine) Authenticate(_ context.Context, token, _ string) error {
	s.authTok = token
	return nil
}

func testHandler(t *testing.T) (*Handler, *stubEngine, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Migrate()
	require.NoError(t, err)

	eng := &stubEngine{snapshot: sync.Snapshot{State: status.Ready, Profile: "test"}}
	return New(eng, db, nil), eng, db
}

func TestGetStatus(t *testing.T) {
	h, _, _ := testHandler(t)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"READY"`)
}

func TestListConversations(t *testing.T) {
	h, _, db := testHandler(t)
	require.NoError(t, db.UpsertConversation(&store.Conversation{
		Key: "peer", Kind: store.ConversationDirect, LastMessageAt: 100, LastMessagePreview: "hi",
	}))

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"key":"peer"`)
}

func TestGetMessages(t *testing.T) {
	h, _, db := testHandler(t)
	_, err := db.Apply(&store.Message{ConversationKey: "peer", MsgID: "m1", SenderID: "peer", Content: "hello", Timestamp: 100})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations/peer/messages", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"msg_id":"m1"`)
}

func TestPostMessage(t *testing.T) {
	h, eng, _ := testHandler(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/peer/messages",
		strings.NewReader(`{"content":"hello"}`))
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"temp_key":"temp-1"`)
	assert.Equal(t, "peer", eng.sentKey)
	assert.Equal(t, "hello", eng.sentBody)
}

func TestPostMessageBadBody(t *testing.T) {
	h, _, _ := testHandler(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/peer/messages",
		strings.NewReader(`{not json`))
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFocusAndBlur(t *testing.T) {
	h, eng, _ := testHandler(t)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/conversations/peer/focus", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "peer", eng.focused)

	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/focus", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, eng.blurred)
}

func TestPostSession(t *testing.T) {
	h, eng, _ := testHandler(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/session",
		strings.NewReader(`{"token":"tok","user_id":"self"}`))
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", eng.authTok)
}
