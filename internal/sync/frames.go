package sync

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/sancheet230/get-chat/internal/bus"
	"github.com/sancheet230/get-chat/internal/rest"
	"github.com/sancheet230/get-chat/internal/store"
	"github.com/sancheet230/get-chat/internal/transport"
)

// handleFrame routes one push-channel frame. The channel invokes it from a
// single goroutine in receipt order.
func (e *Engine) handleFrame(f transport.Frame) {
	switch fr := f.(type) {
	case transport.MessageFrame:
		e.handleMessage(fr)
	case transport.GroupMessageFrame:
		e.handleGroupMessage(fr)
	case transport.ReadStatusFrame:
		e.handleReadStatus(fr)
	case transport.GroupReadStatusFrame:
		e.handleGroupReadStatus(fr)
	case transport.NotificationFrame:
		e.handleNotification(fr)
	case transport.UserStatusFrame:
		e.publish(bus.KindDirectoryPresence, fr)
	case transport.ErrorFrame:
		e.handleError(fr)
	default:
		// authenticate is outbound-only; anything else the parser would
		// have dropped.
		e.logger.Warn("unexpected inbound frame", zap.Any("frame", f))
	}
}

func (e *Engine) handleMessage(f transport.MessageFrame) {
	e.mu.Lock()
	self := e.selfID
	focused := e.focused
	e.mu.Unlock()

	// An echo of our own send files under the receiver; inbound messages
	// file under the sender.
	key := f.SenderID
	fromSelf := f.SenderID == self
	if fromSelf {
		key = f.ReceiverID
	}
	if key == "" {
		e.logger.Warn("message frame without conversation key", zap.String("id", f.ID))
		return
	}

	m := store.Message{
		ConversationKey: key,
		MsgID:           f.ID,
		SenderID:        f.SenderID,
		Content:         f.Content,
		MediaURL:        f.MediaURL,
		MediaType:       f.MediaType,
		Timestamp:       f.Timestamp,
	}
	inserted, err := e.db.Apply(&m)
	if err != nil {
		e.logger.Error("apply message frame", zap.Error(err))
		return
	}
	e.touchSummary(key, false, f.Timestamp, f.Content)
	e.afterApply(key, f.ID, applyOutcome{
		inserted:  inserted,
		fromSelf:  fromSelf,
		isFocused: focused == key,
		isGroup:   false,
	}, f.Content, m)
}

func (e *Engine) handleGroupMessage(f transport.GroupMessageFrame) {
	e.mu.Lock()
	self := e.selfID
	focused := e.focused
	e.mu.Unlock()

	if f.GroupID == "" {
		e.logger.Warn("group message frame without group id", zap.String("id", f.ID))
		return
	}

	m := store.Message{
		ConversationKey: f.GroupID,
		MsgID:           f.ID,
		SenderID:        f.SenderID,
		Content:         f.Content,
		MediaURL:        f.MediaURL,
		MediaType:       f.MediaType,
		Timestamp:       f.Timestamp,
	}
	inserted, err := e.db.Apply(&m)
	if err != nil {
		e.logger.Error("apply group message frame", zap.Error(err))
		return
	}
	e.touchSummary(f.GroupID, true, f.Timestamp, f.Content)
	e.afterApply(f.GroupID, f.ID, applyOutcome{
		inserted:  inserted,
		fromSelf:  f.SenderID == self,
		isFocused: focused == f.GroupID,
		isGroup:   true,
	}, f.Content, m)
}

type applyOutcome struct {
	inserted  bool
	fromSelf  bool
	isFocused bool
	isGroup   bool
}

// afterApply holds the Apply aftermath shared by direct and group frames:
// echo resolution for our own sends, unread accounting for inbound ones,
// auto-read for the focused conversation.
func (e *Engine) afterApply(key, msgID string, o applyOutcome, content string, m store.Message) {
	if o.fromSelf {
		e.mu.Lock()
		self := e.selfID
		e.mu.Unlock()
		if p, err := e.registry.ResolveEcho(key, self, content); err != nil {
			e.logger.Warn("echo resolution failed", zap.Error(err))
		} else if p != nil {
			e.publish(bus.KindMessageSendAck, SendAck{
				TempKey:         p.TempKey,
				MsgID:           msgID,
				ConversationKey: key,
			})
		}
	}

	if o.inserted && !o.fromSelf {
		if o.isFocused {
			// Visible right now, so it is read. The flush does network
			// I/O, so it runs off the dispatch goroutine; marking the
			// same ids read again is a no-op if anything interleaves.
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.markReadNow(key, []string{msgID}, o.isGroup)
			}()
		} else if e.tracker.OnInboundMessage(key, msgID, false, false) {
			if err := e.db.SetUnreadCount(key, e.tracker.Count(key)); err != nil {
				e.logger.Error("mirror unread count", zap.Error(err))
			}
		}
	}
	if o.inserted {
		e.publish(bus.KindMessageApplied, m)
		e.publish(bus.KindChatUpdated, key)
	}
}

func (e *Engine) handleReadStatus(f transport.ReadStatusFrame) {
	if len(f.MessageIDs) == 0 {
		return
	}
	if err := e.db.MarkRead(f.MessageIDs); err != nil {
		e.logger.Error("mark messages read", zap.Error(err))
		return
	}
	e.publish(bus.KindPushReadStatus, f)
}

func (e *Engine) handleGroupReadStatus(f transport.GroupReadStatusFrame) {
	e.mu.Lock()
	self := e.selfID
	e.mu.Unlock()
	if f.GroupID == "" || f.ReaderID == self {
		return
	}
	// Someone else read the group; our sent messages there are now seen.
	if err := e.db.MarkSentRead(f.GroupID, self); err != nil {
		e.logger.Error("mark sent messages read", zap.Error(err))
		return
	}
	e.publish(bus.KindPushReadStatus, f)
	e.publish(bus.KindChatUpdated, f.GroupID)
}

func (e *Engine) handleNotification(f transport.NotificationFrame) {
	e.mu.Lock()
	self := e.selfID
	focused := e.focused
	e.mu.Unlock()

	// Notifications address the receiver; ignore ones that are not for us
	// or that describe our own activity.
	if f.ReceiverID != self || f.SenderID == self {
		return
	}
	key := f.ConversationKey()
	if key == "" {
		return
	}

	e.index.Bump(key)
	if e.tracker.OnInboundMessage(key, "", false, focused == key) {
		if err := e.db.SetUnreadCount(key, e.tracker.Count(key)); err != nil {
			e.logger.Error("mirror unread count", zap.Error(err))
		}
	}
	e.publish(bus.KindPushNotification, f)
	e.publish(bus.KindChatUpdated, key)
}

func (e *Engine) handleError(f transport.ErrorFrame) {
	if isCredentialFailure(f.Message) {
		e.forceLogout("push channel reported credential failure: " + f.Message)
		return
	}
	e.logger.Warn("push channel error frame", zap.String("message", f.Message))
	e.publish(bus.KindPushError, f)
}

// isCredentialFailure decides whether a channel-level error means the
// stored token is no longer good. The wire carries free text here, so this
// matches the phrases the server uses for auth faults.
func isCredentialFailure(msg string) bool {
	m := strings.ToLower(msg)
	for _, marker := range []string{"token", "unauthorized", "authentication", "credential"} {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

// markReadNow marks messages read locally and flushes the receipt,
// push-first with a pull fallback. Group conversations announce a
// group-wide receipt on the push path; the pull fallback is id-based on
// both kinds.
func (e *Engine) markReadNow(conversationKey string, msgIDs []string, isGroup bool) {
	if len(msgIDs) == 0 {
		return
	}
	if err := e.db.MarkRead(msgIDs); err != nil {
		e.logger.Error("mark read locally", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(e.lifecycleCtx(), fetchTimeout)
	defer cancel()

	if push := e.pushRef(); push != nil {
		var f transport.Frame
		if isGroup {
			e.mu.Lock()
			self := e.selfID
			e.mu.Unlock()
			f = transport.GroupReadStatusFrame{
				Type:     transport.TypeGroupReadStatus,
				GroupID:  conversationKey,
				ReaderID: self,
			}
		} else {
			f = transport.ReadStatusFrame{Type: transport.TypeReadStatus, MessageIDs: msgIDs}
		}
		if err := push.Send(ctx, f); err == nil {
			return
		}
	}
	if err := e.client.MarkMessagesRead(ctx, msgIDs); err != nil {
		if errors.Is(err, rest.ErrUnauthorized) {
			e.forceLogout("read receipt rejected with 401")
			return
		}
		e.logger.Warn("read receipt flush failed", zap.Error(err), zap.String("conversation", conversationKey))
	}
}

// lifecycleCtx returns the engine's lifetime context, falling back to
// Background before Start.
func (e *Engine) lifecycleCtx() context.Context {
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}
