package usecase

import (
	"context"
	"strings"
	"sync"

	"chatrelay/internal/domain/entity"
	"chatrelay/internal/domain/repository"
	ws "chatrelay/internal/infrastructure/websocket"
	"chatrelay/pkg/errors"
	"chatrelay/pkg/logger"
)

// GroupUseCase owns structural mutations of group conversations. Mutations on
// the same conversation are serialized through a per-conversation mutex and
// applied inside a store transaction, so concurrent admin actions cannot
// interleave into an inconsistent participant list.
type GroupUseCase struct {
	convRepo repository.ConversationRepository
	userRepo repository.UserRepository
	hub      Broadcaster

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGroupUseCase(
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	hub Broadcaster,
) *GroupUseCase {
	return &GroupUseCase{
		convRepo: convRepo,
		userRepo: userRepo,
		hub:      hub,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (uc *GroupUseCase) lockFor(convID string) *sync.Mutex {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	l, ok := uc.locks[convID]
	if !ok {
		l = &sync.Mutex{}
		uc.locks[convID] = l
	}
	return l
}

func (uc *GroupUseCase) AddMember(ctx context.Context, actorID, convID, userID string) error {
	l := uc.lockFor(convID)
	l.Lock()
	defer l.Unlock()

	if _, err := uc.userRepo.GetByID(ctx, userID); err != nil {
		return err
	}

	conv, err := uc.convRepo.Mutate(ctx, convID, func(c *entity.Conversation) error {
		if err := requireAdmin(c, actorID); err != nil {
			return err
		}
		if c.HasParticipant(userID) {
			return errors.Conflict("User is already a member of this group")
		}
		c.Participants = append(c.Participants, userID)
		return nil
	})
	if err != nil {
		return err
	}

	// The new member's live connections join the room before anything is
	// announced, so they see the same events everyone else does.
	uc.hub.JoinUserToRoom(userID, convID)

	uc.hub.BroadcastToRoom(convID, ws.NewServerEvent(ws.EventGroupUpdated, ws.GroupUpdatedEvent{
		Type:         ws.GroupUserAdded,
		Conversation: conv,
		ActorID:      actorID,
		TargetID:     userID,
	}), "")

	uc.hub.BroadcastToUser(userID, ws.NewServerEvent(ws.EventAddedToGroup, ws.AddedToGroupEvent{
		Conversation: conv,
		AddedBy:      actorID,
	}))

	return nil
}

func (uc *GroupUseCase) RemoveMember(ctx context.Context, actorID, convID, userID string) error {
	l := uc.lockFor(convID)
	l.Lock()
	defer l.Unlock()

	conv, err := uc.convRepo.Mutate(ctx, convID, func(c *entity.Conversation) error {
		if err := requireAdmin(c, actorID); err != nil {
			return err
		}
		if userID == c.AdminID {
			return errors.Conflict("Cannot remove the group admin")
		}
		if !c.HasParticipant(userID) {
			return errors.NotFound("Member", nil)
		}
		removeParticipant(c, userID)
		return nil
	})
	if err != nil {
		return err
	}

	// Detach first: the removed user's connections must not receive the
	// USER_REMOVED room broadcast that follows.
	uc.hub.RemoveUserFromRoom(userID, convID)

	uc.hub.BroadcastToRoom(convID, ws.NewServerEvent(ws.EventGroupUpdated, ws.GroupUpdatedEvent{
		Type:         ws.GroupUserRemoved,
		Conversation: conv,
		ActorID:      actorID,
		TargetID:     userID,
	}), "")

	uc.hub.BroadcastToUser(userID, ws.NewServerEvent(ws.EventRemovedFromGroup, ws.RemovedFromGroupEvent{
		ConversationID: convID,
		RemovedBy:      actorID,
	}))

	return nil
}

// LeaveGroup removes the caller. Admins leaving hand the role to the oldest
// remaining participant; the last member leaving deletes the conversation.
func (uc *GroupUseCase) LeaveGroup(ctx context.Context, actorID, convID string) error {
	l := uc.lockFor(convID)
	l.Lock()
	defer l.Unlock()

	current, err := uc.convRepo.GetByID(ctx, convID)
	if err != nil {
		return err
	}
	if !current.IsGroup {
		return errors.BadRequest("Not a group conversation", nil)
	}
	if !current.HasParticipant(actorID) {
		return errors.Forbidden("Not a participant of this conversation", nil)
	}

	if len(current.Participants) == 1 {
		if err := uc.convRepo.Delete(ctx, convID); err != nil {
			return err
		}
		uc.hub.CloseRoom(convID)
		logger.Info("Group %s deleted, last member %s left", convID, actorID)
		return nil
	}

	conv, err := uc.convRepo.Mutate(ctx, convID, func(c *entity.Conversation) error {
		if !c.HasParticipant(actorID) {
			return errors.Forbidden("Not a participant of this conversation", nil)
		}
		removeParticipant(c, actorID)
		if c.AdminID == actorID && len(c.Participants) > 0 {
			c.AdminID = c.Participants[0]
		}
		return nil
	})
	if err != nil {
		return err
	}

	uc.hub.RemoveUserFromRoom(actorID, convID)

	uc.hub.BroadcastToRoom(convID, ws.NewServerEvent(ws.EventGroupUpdated, ws.GroupUpdatedEvent{
		Type:         ws.GroupUserLeft,
		Conversation: conv,
		ActorID:      actorID,
		TargetID:     actorID,
	}), "")

	return nil
}

func (uc *GroupUseCase) RenameGroup(ctx context.Context, actorID, convID, name string) error {
	l := uc.lockFor(convID)
	l.Lock()
	defer l.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return errors.BadRequest("Group name is required", nil)
	}

	conv, err := uc.convRepo.Mutate(ctx, convID, func(c *entity.Conversation) error {
		if err := requireAdmin(c, actorID); err != nil {
			return err
		}
		c.Name = name
		return nil
	})
	if err != nil {
		return err
	}

	uc.hub.BroadcastToRoom(convID, ws.NewServerEvent(ws.EventGroupUpdated, ws.GroupUpdatedEvent{
		Type:         ws.GroupRenamed,
		Conversation: conv,
		ActorID:      actorID,
	}), "")

	return nil
}

func (uc *GroupUseCase) ChangeAdmin(ctx context.Context, actorID, convID, newAdminID string) error {
	l := uc.lockFor(convID)
	l.Lock()
	defer l.Unlock()

	conv, err := uc.convRepo.Mutate(ctx, convID, func(c *entity.Conversation) error {
		if err := requireAdmin(c, actorID); err != nil {
			return err
		}
		if !c.HasParticipant(newAdminID) {
			return errors.Conflict("New admin must be a group member")
		}
		c.AdminID = newAdminID
		return nil
	})
	if err != nil {
		return err
	}

	uc.hub.BroadcastToRoom(convID, ws.NewServerEvent(ws.EventGroupUpdated, ws.GroupUpdatedEvent{
		Type:         ws.GroupAdminChanged,
		Conversation: conv,
		ActorID:      actorID,
		TargetID:     newAdminID,
	}), "")

	return nil
}

func requireAdmin(c *entity.Conversation, actorID string) error {
	if !c.IsGroup {
		return errors.BadRequest("Not a group conversation", nil)
	}
	if !c.HasParticipant(actorID) {
		return errors.Forbidden("Not a participant of this conversation", nil)
	}
	if c.AdminID != actorID {
		return errors.Forbidden("Only the group admin can do this", nil)
	}
	return nil
}

func removeParticipant(c *entity.Conversation, userID string) {
	kept := c.Participants[:0]
	for _, id := range c.Participants {
		if id != userID {
			kept = append(kept, id)
		}
	}
	c.Participants = kept
	if c.UnreadCount != nil {
		delete(c.UnreadCount, userID)
	}
}
