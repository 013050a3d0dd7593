package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sancheet230/get-chat/internal/bus"
	"github.com/sancheet230/get-chat/internal/rest"
	"github.com/sancheet230/get-chat/internal/status"
	"github.com/sancheet230/get-chat/internal/store"
)

// Directory is the periodic refresh result published on the bus.
type Directory struct {
	Users       []rest.User
	Groups      []rest.Group
	Invitations []rest.Invitation
}

// refreshLoop polls the directory and pending invitations for the life of
// the session. Group membership only changes through this path, never from
// message traffic.
func (e *Engine) refreshLoop() {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		e.polling = false
		e.mu.Unlock()
	}()

	// One refresh up front so the session does not wait a full interval
	// for its first directory.
	e.refreshDirectory()

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.lifecycleCtx().Done():
			return
		case <-ticker.C:
			// Parked after a forced logout; resume once a new
			// credential brings the session back up.
			if e.machine.Current() == status.AuthRequired {
				continue
			}
			e.refreshDirectory()
		}
	}
}

func (e *Engine) refreshDirectory() {
	ctx, cancel := context.WithTimeout(e.lifecycleCtx(), fetchTimeout)
	defer cancel()

	users, err := e.client.Users(ctx)
	if err != nil {
		e.directoryFetchFailed("users", err)
		return
	}
	groups, err := e.client.Groups(ctx)
	if err != nil {
		e.directoryFetchFailed("groups", err)
		return
	}
	invitations, err := e.client.GroupInvitations(ctx)
	if err != nil {
		e.directoryFetchFailed("invitations", err)
		return
	}

	for _, g := range groups {
		err := e.db.UpsertConversation(&store.Conversation{
			Key:   g.ID,
			Kind:  store.ConversationGroup,
			Title: g.Name,
		})
		if err != nil {
			e.logger.Error("upsert group conversation", zap.Error(err))
			continue
		}
		members := make([]store.GroupMember, len(g.Members))
		for i, m := range g.Members {
			members[i] = store.GroupMember{GroupID: g.ID, UserID: m.UserID, Role: m.Role}
		}
		if err := e.db.ReplaceGroupMembers(g.ID, members); err != nil {
			e.logger.Error("replace group members", zap.Error(err))
			continue
		}
		e.index.Touch(g.ID, 0)
	}

	e.publish(bus.KindDirectoryUpdated, Directory{
		Users:       users,
		Groups:      groups,
		Invitations: invitations,
	})
}

func (e *Engine) directoryFetchFailed(what string, err error) {
	if errors.Is(err, rest.ErrUnauthorized) {
		e.forceLogout("directory refresh rejected with 401")
		return
	}
	e.logger.Warn("directory refresh failed", zap.String("fetch", what), zap.Error(err))
}
