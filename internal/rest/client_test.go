package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerHeaderSet(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	c.SetToken("tok-123")
	_, err := c.Users(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestUnauthorizedIsUniform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)

	_, err := c.Users(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = c.Messages(context.Background(), "u2")
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = c.MarkMessagesRead(context.Background(), []string{"m1"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestMessagesDecodesHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messages/u2", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"id":"m1","sender_id":"u2","receiver_id":"u1","content":"hi","timestamp":"2026-08-30T12:00:00Z"},
			{"id":"m2","sender_id":"u1","receiver_id":"u2","content":"hey","is_read":true,"timestamp":"2026-08-30T12:01:00Z"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	msgs, err := c.Messages(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.True(t, msgs[1].IsRead)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), msgs[0].Timestamp)
}

func TestSendMessageReturnsServerAssignedID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/messages", r.URL.Path)

		var req SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "u2", req.ReceiverID)
		assert.Equal(t, "hi", req.Content)

		_, _ = w.Write([]byte(`{"id":"m42","sender_id":"u1","receiver_id":"u2","content":"hi","timestamp":"2026-08-30T12:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	msg, err := c.SendMessage(context.Background(), SendMessageRequest{ReceiverID: "u2", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "m42", msg.ID)
}

func TestMarkMessagesReadPayload(t *testing.T) {
	var gotBody map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/messages/read", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	require.NoError(t, c.MarkMessagesRead(context.Background(), []string{"m1", "m2"}))
	assert.Equal(t, []string{"m1", "m2"}, gotBody["message_ids"])
}

func TestNetworkFailureIsTransient(t *testing.T) {
	// Server closed before the call: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Users(context.Background())
	require.Error(t, err)
	assert.True(t, IsNetworkError(err), "connection failure should be a NetworkError, got %v", err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestUploadMediaMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/upload-media", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		assert.Equal(t, "cat.png", header.Filename)

		_, _ = w.Write([]byte(`{"url":"http://cdn/cat.png","type":"image"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	up, err := c.UploadMedia(context.Background(), "cat.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "http://cdn/cat.png", up.URL)
	assert.Equal(t, "image", up.Type)
}

func TestUploadRejectedWrapsUploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.UploadMedia(context.Background(), "big.mp4", strings.NewReader("..."))
	var ue *UploadError
	assert.ErrorAs(t, err, &ue)
}

func TestRespondGroupInvitation(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/group-invitations/inv-1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	require.NoError(t, c.RespondGroupInvitation(context.Background(), "inv-1", InvitationAccepted))
	assert.Equal(t, InvitationAccepted, gotBody["status"])
}
