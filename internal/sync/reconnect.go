package sync

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/sancheet230/get-chat/internal/bus"
	"github.com/sancheet230/get-chat/internal/status"
)

const (
	reconnectBase = time.Second
	reconnectMax  = 60 * time.Second
)

// onChannelClosed runs when the push channel drops for any reason. Sends
// and receipts keep working over the pull channel while reconnection runs
// in the background.
func (e *Engine) onChannelClosed(err error) {
	e.publish(bus.KindPushClosed, err)

	e.mu.Lock()
	// A nil push means the engine discarded the channel itself (logout or
	// shutdown); only a remote drop warrants reconnecting.
	deliberate := e.push == nil || e.closing
	if !deliberate {
		e.push = nil
	}
	e.mu.Unlock()
	if deliberate {
		return
	}

	if e.machine.Current() == status.Ready {
		if terr := e.machine.Transition(status.Degraded); terr != nil {
			e.logger.Error("transition to degraded", zap.Error(terr))
		}
	}
	e.spawnReconnect()
}

// spawnReconnect starts the reconnect loop if one is not already running.
func (e *Engine) spawnReconnect() {
	e.mu.Lock()
	if e.reconnecting || e.closing {
		e.mu.Unlock()
		return
	}
	e.reconnecting = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.reconnectLoop()
}

// reconnectLoop redials with bounded exponential backoff until a dial
// succeeds or the session ends.
func (e *Engine) reconnectLoop() {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		e.reconnecting = false
		e.mu.Unlock()
	}()

	delay := reconnectBase
	for {
		select {
		case <-e.lifecycleCtx().Done():
			return
		case <-time.After(withJitter(delay)):
		}

		// Logout may have raced the timer.
		if e.machine.Current() == status.AuthRequired {
			return
		}
		if e.machine.Current() == status.Degraded {
			if err := e.machine.Transition(status.Connecting); err != nil {
				e.logger.Error("transition to connecting", zap.Error(err))
				return
			}
		}

		ctx, cancel := context.WithTimeout(e.lifecycleCtx(), dialTimeout)
		err := e.connect(ctx)
		cancel()
		if err == nil {
			if terr := e.machine.Transition(status.Ready); terr != nil {
				e.logger.Error("transition to ready", zap.Error(terr))
			}
			e.logger.Info("push channel reconnected")
			e.resyncAfterReconnect()
			return
		}

		e.logger.Warn("push reconnect failed",
			zap.Duration("next_delay", delay*2), zap.Error(err))
		if e.machine.Current() == status.Connecting {
			if terr := e.machine.Transition(status.Degraded); terr != nil {
				e.logger.Error("transition to degraded", zap.Error(terr))
			}
		}
		delay *= 2
		if delay > reconnectMax {
			delay = reconnectMax
		}
	}
}

// resyncAfterReconnect refetches what the session may have missed while
// the push channel was down: the focused conversation's history and the
// directory.
func (e *Engine) resyncAfterReconnect() {
	e.mu.Lock()
	focused := e.focused
	var gen uint64
	if focused != "" {
		st := e.fetchStateLocked(focused)
		st.gen++
		st.phase = FetchLoading
		gen = st.gen
	}
	e.mu.Unlock()

	if focused != "" {
		e.fetchConversation(focused, gen)
	}
	e.refreshDirectory()
}

// withJitter spreads reconnect attempts so clients that dropped together
// do not redial together.
func withJitter(d time.Duration) time.Duration {
	half := int64(d / 2)
	return time.Duration(half + rand.Int64N(half+1))
}
