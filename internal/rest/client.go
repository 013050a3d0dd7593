package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

const (
	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads to prevent a misbehaving
	// server from consuming unbounded memory.
	maxResponseBytes = 4 * 1024 * 1024

	// maxRedirects matches the default net/http limit.
	maxRedirects = 10
)

// Client talks to the Get Chat REST API (the pull channel).
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.RWMutex
	token string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so the bearer token never leaks to
// third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}
	if len(via) > 0 && req.URL.Host != via[0].URL.Host {
		return fmt.Errorf("redirect to different host blocked: %s -> %s", via[0].URL.Host, req.URL.Host)
	}
	return nil
}

// NewClient creates an API client for the given base URL. If httpClient is
// nil, a client with a 30-second timeout and same-host redirect policy is
// created.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// SetToken installs the bearer credential used on every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do performs one request. A 401 anywhere maps to ErrUnauthorized; a
// transport failure maps to NetworkError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// Users lists the user directory.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Groups lists the groups the current user belongs to.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.do(ctx, http.MethodGet, "/api/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// GroupInvitations lists pending invitations for the current user.
func (c *Client) GroupInvitations(ctx context.Context) ([]Invitation, error) {
	var invs []Invitation
	if err := c.do(ctx, http.MethodGet, "/api/group-invitations", nil, &invs); err != nil {
		return nil, err
	}
	return invs, nil
}

// Messages fetches the 1:1 history with a peer.
func (c *Client) Messages(ctx context.Context, peerID string) ([]Message, error) {
	var msgs []Message
	if err := c.do(ctx, http.MethodGet, "/api/messages/"+peerID, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GroupMessages fetches a group's history.
func (c *Client) GroupMessages(ctx context.Context, groupID string) ([]Message, error) {
	var msgs []Message
	if err := c.do(ctx, http.MethodGet, "/api/group-messages/"+groupID, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage is the pull-channel fallback for a 1:1 send. The response is
// the stored message with its server-assigned id.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/api/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendGroupMessage is the pull-channel fallback for a group send.
func (c *Client) SendGroupMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/api/group-messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkMessagesRead is the pull-channel fallback for a read-receipt flush.
func (c *Client) MarkMessagesRead(ctx context.Context, messageIDs []string) error {
	body := map[string][]string{"message_ids": messageIDs}
	return c.do(ctx, http.MethodPut, "/api/messages/read", body, nil)
}

// CreateGroup creates a new group.
func (c *Client) CreateGroup(ctx context.Context, req CreateGroupRequest) (*Group, error) {
	var g Group
	if err := c.do(ctx, http.MethodPost, "/api/groups", req, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// UpdateGroup mutates group metadata or membership.
func (c *Client) UpdateGroup(ctx context.Context, groupID string, req UpdateGroupRequest) (*Group, error) {
	var g Group
	if err := c.do(ctx, http.MethodPut, "/api/groups/"+groupID, req, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// RespondGroupInvitation accepts or declines an invitation.
func (c *Client) RespondGroupInvitation(ctx context.Context, invitationID, status string) error {
	body := map[string]string{"status": status}
	return c.do(ctx, http.MethodPut, "/api/group-invitations/"+invitationID, body, nil)
}

// UploadMedia uploads a message attachment and returns its URL and kind.
func (c *Client) UploadMedia(ctx context.Context, filename string, r io.Reader) (*Upload, error) {
	return c.upload(ctx, "/api/upload-media", filename, r)
}

// UploadProfilePicture uploads the current user's avatar.
func (c *Client) UploadProfilePicture(ctx context.Context, filename string, r io.Reader) (*Upload, error) {
	return c.upload(ctx, "/api/upload-profile-picture", filename, r)
}

// UploadGroupPicture uploads a group avatar.
func (c *Client) UploadGroupPicture(ctx context.Context, filename string, r io.Reader) (*Upload, error) {
	return c.upload(ctx, "/api/upload-group-picture", filename, r)
}

func (c *Client) upload(ctx context.Context, path, filename string, r io.Reader) (*Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, &UploadError{Err: err}
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, &UploadError{Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &UploadError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, &UploadError{Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UploadError{Err: &NetworkError{Err: err}}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UploadError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var up Upload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&up); err != nil {
		return nil, &UploadError{Err: err}
	}
	return &up, nil
}
