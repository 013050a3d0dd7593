package sync

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sancheet230/get-chat/internal/bus"
	"github.com/sancheet230/get-chat/internal/rest"
	"github.com/sancheet230/get-chat/internal/store"
)

// Focus marks a conversation as the one on screen: its unread counter
// zeroes, pending read receipts flush, and a fresh history fetch starts.
// Refocusing while a fetch is in flight bumps the generation so the older
// response is discarded when it lands.
func (e *Engine) Focus(ctx context.Context, conversationKey string) error {
	if conversationKey == "" {
		return errors.New("conversation key is required")
	}
	e.mu.Lock()
	if e.selfID == "" {
		e.mu.Unlock()
		return errors.New("no active session")
	}
	e.focused = conversationKey
	st := e.fetchStateLocked(conversationKey)
	st.gen++
	st.phase = FetchLoading
	gen := st.gen
	e.mu.Unlock()

	ids := e.tracker.OnConversationFocused(conversationKey)
	if len(ids) > 0 {
		conv, err := e.db.GetConversation(conversationKey)
		if err != nil {
			return err
		}
		isGroup := conv != nil && conv.Kind == store.ConversationGroup
		e.markReadNow(conversationKey, ids, isGroup)
	}
	if err := e.db.SetUnreadCount(conversationKey, 0); err != nil {
		e.logger.Error("zero unread count", zap.Error(err))
	}
	e.publish(bus.KindChatUpdated, conversationKey)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.fetchConversation(conversationKey, gen)
	}()
	return nil
}

// Blur clears the focused conversation; later arrivals count as unread
// again.
func (e *Engine) Blur() {
	e.mu.Lock()
	e.focused = ""
	e.mu.Unlock()
}

// Focused returns the currently focused conversation key, if any.
func (e *Engine) Focused() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focused
}

// ViewState returns a conversation's fetch phase.
func (e *Engine) ViewState(conversationKey string) FetchState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.fetches[conversationKey]
	if !ok {
		return FetchIdle
	}
	return st.phase
}

func (e *Engine) fetchStateLocked(key string) *convState {
	st, ok := e.fetches[key]
	if !ok {
		st = &convState{phase: FetchIdle}
		e.fetches[key] = st
	}
	return st
}

// fetchConversation pulls the full history for a key and swaps it into the
// local store, unless a newer focus generation superseded this fetch.
func (e *Engine) fetchConversation(conversationKey string, gen uint64) {
	e.mu.Lock()
	self := e.selfID
	e.mu.Unlock()

	conv, err := e.db.GetConversation(conversationKey)
	if err != nil {
		e.logger.Error("load conversation summary", zap.Error(err))
		return
	}
	isGroup := conv != nil && conv.Kind == store.ConversationGroup

	ctx, cancel := context.WithTimeout(e.lifecycleCtx(), fetchTimeout)
	defer cancel()

	var wire []rest.Message
	if isGroup {
		wire, err = e.client.GroupMessages(ctx, conversationKey)
	} else {
		wire, err = e.client.Messages(ctx, conversationKey)
	}
	if err != nil {
		if errors.Is(err, rest.ErrUnauthorized) {
			e.forceLogout("history fetch rejected with 401")
			return
		}
		e.logger.Warn("history fetch failed",
			zap.String("conversation", conversationKey), zap.Error(err))
		e.mu.Lock()
		if st := e.fetches[conversationKey]; st != nil && st.gen == gen {
			st.phase = FetchIdle
		}
		e.mu.Unlock()
		return
	}

	msgs := convertHistory(conversationKey, self, isGroup, wire)

	// Generation check and swap happen under the engine lock so a newer
	// focus cannot interleave between them.
	e.mu.Lock()
	st := e.fetches[conversationKey]
	if st == nil || st.gen != gen {
		e.mu.Unlock()
		e.logger.Debug("discarding stale history fetch",
			zap.String("conversation", conversationKey))
		return
	}
	if err := e.db.ReplaceConversation(conversationKey, msgs); err != nil {
		st.phase = FetchIdle
		e.mu.Unlock()
		e.logger.Error("replace conversation log", zap.Error(err))
		return
	}
	st.phase = FetchReady
	e.mu.Unlock()

	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		e.touchSummary(conversationKey, isGroup, last.Timestamp, last.Content)
	}
	e.publish(bus.KindChatUpdated, conversationKey)
}

// convertHistory maps pull-channel messages onto the local log, filtering
// to the exact conversation: the participant pair for direct chats, the
// group id for groups. The server should already scope the response; the
// filter keeps a sloppy response from leaking across conversations.
func convertHistory(conversationKey, self string, isGroup bool, wire []rest.Message) []store.Message {
	out := make([]store.Message, 0, len(wire))
	for _, w := range wire {
		if isGroup {
			if w.GroupID != conversationKey {
				continue
			}
		} else {
			sent := w.SenderID == self && w.ReceiverID == conversationKey
			received := w.SenderID == conversationKey && w.ReceiverID == self
			if !sent && !received {
				continue
			}
		}
		out = append(out, store.Message{
			ConversationKey: conversationKey,
			MsgID:           w.ID,
			SenderID:        w.SenderID,
			Content:         w.Content,
			MediaURL:        w.MediaURL,
			MediaType:       w.MediaType,
			IsRead:          w.IsRead,
			Timestamp:       w.Timestamp.UnixMilli(),
		})
	}
	return out
}
