// Package sync owns the realtime synchronization loop: it is the single
// consumer of push-channel frames and the single writer of derived state
// (unread counters, conversation order, pending sends). Everything else
// observes it through the bus or the local store.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/sancheet230/get-chat/internal/bus"
	"github.com/sancheet230/get-chat/internal/index"
	"github.com/sancheet230/get-chat/internal/outbox"
	"github.com/sancheet230/get-chat/internal/rest"
	"github.com/sancheet230/get-chat/internal/session"
	"github.com/sancheet230/get-chat/internal/status"
	"github.com/sancheet230/get-chat/internal/store"
	"github.com/sancheet230/get-chat/internal/transport"
	"github.com/sancheet230/get-chat/internal/unread"
)

// FetchState is the per-conversation view lifecycle.
type FetchState string

const (
	FetchIdle    FetchState = "IDLE"
	FetchLoading FetchState = "LOADING"
	FetchReady   FetchState = "READY"
)

const (
	// dialTimeout bounds one push-channel connection attempt.
	dialTimeout = 15 * time.Second

	// fetchTimeout bounds one history fetch.
	fetchTimeout = 30 * time.Second

	// previewLen is how much message content the conversation summary keeps.
	previewLen = 120
)

// pushChannel is the slice of transport.Channel the engine uses. Split out
// so tests can drive the engine without a WebSocket server.
type pushChannel interface {
	Send(ctx context.Context, f transport.Frame) error
	Close()
	State() transport.State
}

type dialFunc func(ctx context.Context, url, token, userID string, h transport.Handlers, logger *zap.Logger) (pushChannel, error)

func defaultDial(ctx context.Context, url, token, userID string, h transport.Handlers, logger *zap.Logger) (pushChannel, error) {
	return transport.Dial(ctx, url, token, userID, h, logger)
}

// convState tracks one conversation's view lifecycle. The generation
// counter guards against a slow history fetch overwriting a newer one.
type convState struct {
	phase FetchState
	gen   uint64
}

// Options configure an Engine.
type Options struct {
	Profile      string
	PushURL      string
	PollInterval time.Duration
}

// Engine drives synchronization between the server and the local store.
// Frame handling is single-threaded (the channel dispatches from one
// goroutine); the engine's own mutations are serialized by a mutex so calls
// arriving from the local API cannot interleave with frame handling.
type Engine struct {
	opts     Options
	db       *store.DB
	client   *rest.Client
	tracker  *unread.Tracker
	index    *index.Index
	registry *outbox.Registry
	machine  *status.Machine
	bus      *bus.Bus
	logger   *zap.Logger

	dial dialFunc

	mu           stdsync.Mutex
	selfID       string
	token        string
	push         pushChannel
	focused      string
	fetches      map[string]*convState
	reconnecting bool
	polling      bool
	closing      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// New creates an engine. Start must be called before it does anything.
func New(opts Options, db *store.DB, client *rest.Client, tracker *unread.Tracker, ix *index.Index, registry *outbox.Registry, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	return &Engine{
		opts:     opts,
		db:       db,
		client:   client,
		tracker:  tracker,
		index:    ix,
		registry: registry,
		machine:  machine,
		bus:      b,
		logger:   logger,
		dial:     defaultDial,
		fetches:  make(map[string]*convState),
	}
}

// Start loads the stored credential and brings the session up. Without a
// credential the engine parks in AuthRequired until Authenticate is called.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(context.Background())

	cred, err := session.LoadCredential(e.opts.Profile)
	if err != nil {
		e.logger.Warn("stored credential unreadable", zap.Error(err))
	}
	if cred == nil {
		return e.machine.Transition(status.AuthRequired)
	}
	return e.bringUp(ctx, cred)
}

// Authenticate installs a credential, persists it, and brings the session
// up. It is how a login flow hands the daemon its token.
func (e *Engine) Authenticate(ctx context.Context, token, userID string) error {
	if token == "" || userID == "" {
		return errors.New("token and user id are required")
	}
	if e.machine.Current() != status.AuthRequired {
		return fmt.Errorf("session is %s, not awaiting credential", e.machine.Current())
	}
	cred := &session.Credential{Token: token, UserID: userID}
	if err := session.SaveCredential(e.opts.Profile, cred); err != nil {
		return err
	}
	return e.bringUp(ctx, cred)
}

func (e *Engine) bringUp(ctx context.Context, cred *session.Credential) error {
	e.mu.Lock()
	e.selfID = cred.UserID
	e.token = cred.Token
	e.mu.Unlock()
	e.client.SetToken(cred.Token)

	if err := e.machine.Transition(status.Connecting); err != nil {
		return err
	}
	if err := e.seed(); err != nil {
		return fmt.Errorf("seed from store: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	err := e.connect(dialCtx)
	cancel()
	if err != nil {
		e.logger.Warn("push channel unavailable, starting degraded", zap.Error(err))
		if terr := e.machine.Transition(status.Degraded); terr != nil {
			return terr
		}
		e.spawnReconnect()
	} else if err := e.machine.Transition(status.Ready); err != nil {
		return err
	}

	e.mu.Lock()
	startPoll := !e.polling
	if startPoll {
		e.polling = true
	}
	e.mu.Unlock()
	if startPoll {
		e.wg.Add(1)
		go e.refreshLoop()
	} else {
		// The loop survived a logout; refresh now instead of waiting out
		// the current tick.
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.refreshDirectory()
		}()
	}
	return nil
}

// seed rebuilds the in-memory unread counters and conversation order from
// the local store, so a restart resumes where the last session left off.
func (e *Engine) seed() error {
	convos, err := e.db.ListConversations(0, 0)
	if err != nil {
		return err
	}
	e.mu.Lock()
	self := e.selfID
	e.mu.Unlock()

	for _, c := range convos {
		e.index.Touch(c.Key, c.LastMessageAt)
		ids, err := e.db.UnreadInboundIDs(c.Key, self)
		if err != nil {
			return err
		}
		e.tracker.Seed(c.Key, ids)
		if len(ids) != c.UnreadCount {
			if err := e.db.SetUnreadCount(c.Key, len(ids)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) connect(ctx context.Context) error {
	e.mu.Lock()
	token, self := e.token, e.selfID
	e.mu.Unlock()

	h := transport.Handlers{
		OnFrame: e.handleFrame,
		OnClose: e.onChannelClosed,
	}
	ch, err := e.dial(ctx, e.opts.PushURL, token, self, h, e.logger)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.push = ch
	e.mu.Unlock()
	return nil
}

// pushRef returns the current channel, or nil when the push path is down.
func (e *Engine) pushRef() pushChannel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.push
}

// Stop tears the engine down. Safe to call once.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.closing = true
	push := e.push
	e.push = nil
	e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	if push != nil {
		push.Close()
	}
	e.wg.Wait()
}

// Send records a send intent and delivers it push-first, falling back to
// the pull channel when the push path is down. The local log never gains
// the message here; it arrives via Apply of the echo or the POST response.
// Returns the pending send's temporary key.
func (e *Engine) Send(ctx context.Context, conversationKey, content, mediaURL, mediaType string) (string, error) {
	e.mu.Lock()
	self := e.selfID
	e.mu.Unlock()
	if self == "" {
		return "", errors.New("no active session")
	}
	if content == "" && mediaURL == "" {
		return "", errors.New("empty message")
	}

	conv, err := e.db.GetConversation(conversationKey)
	if err != nil {
		return "", err
	}
	isGroup := conv != nil && conv.Kind == store.ConversationGroup

	via := "pull"
	push := e.pushRef()
	if push != nil && push.State() == transport.StateOpen {
		via = "push"
	}
	tempKey, err := e.registry.Track(conversationKey, self, content, via)
	if err != nil {
		return "", err
	}

	if push != nil {
		var frame transport.Frame
		if isGroup {
			frame = transport.GroupMessageFrame{
				Type:      transport.TypeGroupMessage,
				GroupID:   conversationKey,
				Content:   content,
				MediaURL:  mediaURL,
				MediaType: mediaType,
			}
		} else {
			frame = transport.MessageFrame{
				Type:       transport.TypeMessage,
				ReceiverID: conversationKey,
				Content:    content,
				MediaURL:   mediaURL,
				MediaType:  mediaType,
			}
		}
		if err := push.Send(ctx, frame); err == nil {
			if via != "push" {
				if merr := e.registry.MarkTransport(tempKey, "push"); merr != nil {
					e.logger.Warn("record send transport", zap.Error(merr))
				}
			}
			return tempKey, nil
		} else if !errors.Is(err, transport.ErrChannelUnavailable) {
			e.logger.Warn("push send failed, taking pull path", zap.Error(err))
		}
	}

	req := rest.SendMessageRequest{Content: content, MediaURL: mediaURL, MediaType: mediaType}
	var (
		msg     *rest.Message
		sendErr error
	)
	if isGroup {
		req.GroupID = conversationKey
		msg, sendErr = e.client.SendGroupMessage(ctx, req)
	} else {
		req.ReceiverID = conversationKey
		msg, sendErr = e.client.SendMessage(ctx, req)
	}
	if sendErr != nil {
		if errors.Is(sendErr, rest.ErrUnauthorized) {
			e.forceLogout("send rejected with 401")
			return "", sendErr
		}
		e.publish(bus.KindMessageSendFailed, SendFailure{
			TempKey:         tempKey,
			ConversationKey: conversationKey,
			Reason:          sendErr.Error(),
		})
		return tempKey, sendErr
	}

	if via != "pull" {
		if merr := e.registry.MarkTransport(tempKey, "pull"); merr != nil {
			e.logger.Warn("record send transport", zap.Error(merr))
		}
	}
	e.applyStored(conversationKey, isGroup, msg)
	if p, err := e.registry.ResolveEcho(conversationKey, self, content); err != nil {
		e.logger.Warn("pending send confirmation failed", zap.Error(err))
	} else if p != nil {
		e.publish(bus.KindMessageSendAck, SendAck{
			TempKey:         p.TempKey,
			MsgID:           msg.ID,
			ConversationKey: conversationKey,
		})
	}
	return tempKey, nil
}

// applyStored applies a message the pull channel returned or fetched.
func (e *Engine) applyStored(conversationKey string, isGroup bool, w *rest.Message) {
	m := store.Message{
		ConversationKey: conversationKey,
		MsgID:           w.ID,
		SenderID:        w.SenderID,
		Content:         w.Content,
		MediaURL:        w.MediaURL,
		MediaType:       w.MediaType,
		IsRead:          w.IsRead,
		Timestamp:       w.Timestamp.UnixMilli(),
	}
	inserted, err := e.db.Apply(&m)
	if err != nil {
		e.logger.Error("apply stored message", zap.Error(err))
		return
	}
	e.touchSummary(conversationKey, isGroup, m.Timestamp, m.Content)
	if inserted {
		e.publish(bus.KindMessageApplied, m)
		e.publish(bus.KindChatUpdated, conversationKey)
	}
}

// touchSummary advances the conversation summary row and the display order.
func (e *Engine) touchSummary(conversationKey string, isGroup bool, at int64, content string) {
	kind := store.ConversationDirect
	if isGroup {
		kind = store.ConversationGroup
	}
	err := e.db.UpsertConversation(&store.Conversation{
		Key:                conversationKey,
		Kind:               kind,
		LastMessageAt:      at,
		LastMessagePreview: preview(content),
	})
	if err != nil {
		e.logger.Error("upsert conversation summary", zap.Error(err))
	}
	e.index.Touch(conversationKey, at)
}

// forceLogout is the single exit for an expired credential, regardless of
// which channel reported it. Local state is wiped so the next login starts
// from a clean resync.
func (e *Engine) forceLogout(reason string) {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return
	}
	push := e.push
	e.push = nil
	e.selfID = ""
	e.token = ""
	e.focused = ""
	e.fetches = make(map[string]*convState)
	e.mu.Unlock()

	e.logger.Warn("forcing logout", zap.String("reason", reason))
	if push != nil {
		push.Close()
	}
	if err := session.ClearCredential(e.opts.Profile); err != nil {
		e.logger.Error("clear credential", zap.Error(err))
	}
	if err := e.db.ResetAll(); err != nil {
		e.logger.Error("reset store", zap.Error(err))
	}
	e.tracker.Reset()
	e.index.Reset()
	e.client.SetToken("")

	if e.machine.Current() != status.AuthRequired {
		if err := e.machine.Transition(status.AuthRequired); err != nil {
			e.logger.Error("transition to auth required", zap.Error(err))
		}
	}
	e.publish(bus.KindSessionLoggedOut, reason)
}

func (e *Engine) publish(kind string, payload any) {
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func preview(content string) string {
	r := []rune(content)
	if len(r) <= previewLen {
		return content
	}
	return string(r[:previewLen])
}

// Snapshot is a point-in-time view of the session for the local API.
type Snapshot struct {
	State    status.State   `json:"state"`
	Profile  string         `json:"profile"`
	UserID   string         `json:"user_id,omitempty"`
	Focused  string         `json:"focused,omitempty"`
	Unread   map[string]int `json:"unread"`
	Order    []string       `json:"order"`
	PushOpen bool           `json:"push_open"`
}

// Snapshot reports the current session state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	self := e.selfID
	focused := e.focused
	push := e.push
	e.mu.Unlock()

	return Snapshot{
		State:    e.machine.Current(),
		Profile:  e.opts.Profile,
		UserID:   self,
		Focused:  focused,
		Unread:   e.tracker.Counts(),
		Order:    e.index.Order(),
		PushOpen: push != nil && push.State() == transport.StateOpen,
	}
}

// SendAck reports a pending send confirmed by its echo or POST response.
type SendAck struct {
	TempKey         string
	MsgID           string
	ConversationKey string
}

// SendFailure reports a send that failed on both channels.
type SendFailure struct {
	TempKey         string
	ConversationKey string
	Reason          string
}
