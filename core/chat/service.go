package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var (
	// errors
	ErrNotFound            = errors.New("chat not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrAlreadyParticipant  = errors.New("user is already a participant of this chat")
	ErrNotParticipant      = errors.New("user is not a participant of this chat")
)

type (
	Repository interface {
		CreateChat(ctx context.Context, c Chat, exec ...core.DBExecutor) (Chat, error)
		GetChat(ctx context.Context, id int, exec ...core.DBExecutor) (Chat, error)
		QueryChats(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Chat, error)
		UpdateChat(ctx context.Context, c Chat, exec ...core.DBExecutor) (Chat, error)
		DeleteChat(ctx context.Context, id int, exec ...core.DBExecutor) error

		ListParticipants(ctx context.Context, chatID int, exec ...core.DBExecutor) ([]Participant, error)
		GetParticipant(ctx context.Context, chatID, userID int, exec ...core.DBExecutor) (Participant, error)
		// AddParticipants inserts the missing (chatID, userID) pairs and skips the existing ones.
		// It returns the number of rows inserted.
		AddParticipants(ctx context.Context, chatID int, userIDs []int, exec ...core.DBExecutor) (int, error)
		RemoveParticipants(ctx context.Context, chatID int, userIDs []int, exec ...core.DBExecutor) (int, error)
		ClearParticipants(ctx context.Context, chatID int, exec ...core.DBExecutor) (int, error)

		// CreateMessage stores the Message together with its attachments.
		CreateMessage(ctx context.Context, msg Message, exec ...core.DBExecutor) (Message, error)
		// QueryMessages returns the messages of a chat, latest first.
		QueryMessages(ctx context.Context, filter MessageFilter, exec ...core.DBExecutor) ([]Message, error)
		// DeleteMessages deletes every message of a chat (and their attachments).
		DeleteMessages(ctx context.Context, chatID int, exec ...core.DBExecutor) (int, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, nc NewChat) (Chat, error)
		Get(ctx context.Context, id int) (Chat, error)
		Query(ctx context.Context, filter QueryFilter) ([]Chat, error)
		Update(ctx context.Context, id int, uc UpdateChat) (Chat, error)
		Delete(ctx context.Context, id int) error
		IsParticipant(ctx context.Context, chatID, userID int) (bool, error)
		AddParticipant(ctx context.Context, chatID, userID int) (Participant, error)
		RemoveParticipant(ctx context.Context, chatID, userID int) error
		SendMessage(ctx context.Context, nm NewMessage, bypassMembership bool) (Message, error)
		Messages(ctx context.Context, filter MessageFilter) ([]Message, error)
	}

	Service struct {
		tx     core.Transactor
		repo   Repository
		users  UserFinder
		logger core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(tx core.Transactor, repo Repository, users UserFinder, logger core.Logger) *Service {
	return &Service{tx: tx, repo: repo, users: users, logger: logger}
}

func (svc *Service) existingUserIDs(ctx context.Context, ids []int, exec core.DBExecutor) ([]int, error) {
	ids = core.UniqueIDs(ids)
	existing, err := svc.users.ExistingIDs(ctx, ids, exec)
	if err != nil {
		return nil, errors.Wrap(err, "checking user IDs")
	}
	if len(existing) != len(ids) {
		unknown, _ := core.DiffIDs(existing, ids)
		svc.logger.Warn(fmt.Sprintf("skipping unknown user IDs %v", unknown))
	}
	return existing, nil
}

func (svc *Service) Create(ctx context.Context, nc NewChat) (Chat, error) {
	var created Chat
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		now := time.Now().UTC()
		c, err := svc.repo.CreateChat(ctx, Chat{Name: nc.Name, IsGroup: nc.IsGroup, CreatedAt: now, UpdatedAt: now}, exec)
		if err != nil {
			return errors.Wrap(err, "creating chat")
		}

		userIDs, err := svc.existingUserIDs(ctx, nc.UserIDs, exec)
		if err != nil {
			return err
		}
		if len(userIDs) > 0 {
			if _, err = svc.repo.AddParticipants(ctx, c.ID, userIDs, exec); err != nil {
				return errors.Wrap(err, "adding participants")
			}
		}

		created, err = svc.repo.GetChat(ctx, c.ID, exec)
		return errors.Wrap(err, "reloading chat")
	})
	if err != nil {
		return Chat{}, err
	}
	svc.logger.Info(fmt.Sprintf("chat %q created with %d participants", created.DisplayName(), len(created.Participants)))
	return created, nil
}

func (svc *Service) Get(ctx context.Context, id int) (Chat, error) {
	return svc.repo.GetChat(ctx, id)
}

// Query returns every chat matching filter; set filter.ParticipantID to restrict to a user's chats.
func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Chat, error) {
	return svc.repo.QueryChats(ctx, filter)
}

// Update modifies the chat; a non-nil uc.UserIDs replaces its participants.
func (svc *Service) Update(ctx context.Context, id int, uc UpdateChat) (Chat, error) {
	var updated Chat
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		c, err := svc.repo.GetChat(ctx, id, exec)
		if err != nil {
			return err
		}
		if uc.Name != nil {
			c.Name = *uc.Name
		}
		if uc.IsGroup != nil {
			c.IsGroup = *uc.IsGroup
		}
		c.UpdatedAt = time.Now().UTC()
		if _, err = svc.repo.UpdateChat(ctx, c, exec); err != nil {
			return errors.Wrap(err, "updating chat")
		}

		if uc.UserIDs != nil {
			target, err := svc.existingUserIDs(ctx, uc.UserIDs, exec)
			if err != nil {
				return err
			}
			toAdd, toRemove := core.DiffIDs(c.ParticipantIDs(), target)
			if len(toRemove) > 0 {
				if _, err = svc.repo.RemoveParticipants(ctx, c.ID, toRemove, exec); err != nil {
					return errors.Wrap(err, "removing participants")
				}
			}
			if len(toAdd) > 0 {
				if _, err = svc.repo.AddParticipants(ctx, c.ID, toAdd, exec); err != nil {
					return errors.Wrap(err, "adding participants")
				}
			}
		}

		updated, err = svc.repo.GetChat(ctx, c.ID, exec)
		return errors.Wrap(err, "reloading chat")
	})
	if err != nil {
		return Chat{}, err
	}
	return updated, nil
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.DeleteChat(ctx, id)
}

func (svc *Service) IsParticipant(ctx context.Context, chatID, userID int) (bool, error) {
	if _, err := svc.repo.GetParticipant(ctx, chatID, userID); err != nil {
		if errors.Cause(err) == ErrParticipantNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AddParticipant adds one user to the chat; it fails if the user already participates.
func (svc *Service) AddParticipant(ctx context.Context, chatID, userID int) (Participant, error) {
	var p Participant
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetChat(ctx, chatID, exec); err != nil {
			return err
		}
		existing, err := svc.users.ExistingIDs(ctx, []int{userID}, exec)
		if err != nil {
			return errors.Wrap(err, "checking user ID")
		}
		if len(existing) == 0 {
			return ErrUserNotFound
		}

		n, err := svc.repo.AddParticipants(ctx, chatID, []int{userID}, exec)
		if err != nil {
			return errors.Wrap(err, "adding participant")
		}
		if n == 0 {
			return ErrAlreadyParticipant
		}
		p, err = svc.repo.GetParticipant(ctx, chatID, userID, exec)
		return err
	})
	return p, err
}

// RemoveParticipant removes one user from the chat; it fails if the user does not participate.
func (svc *Service) RemoveParticipant(ctx context.Context, chatID, userID int) error {
	n, err := svc.repo.RemoveParticipants(ctx, chatID, []int{userID})
	if err != nil {
		return errors.Wrap(err, "removing participant")
	}
	if n == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// SendMessage posts a message to a chat. Unless bypassMembership is set
// (e.g. for staff), the sender has to be a participant of the chat.
func (svc *Service) SendMessage(ctx context.Context, nm NewMessage, bypassMembership bool) (Message, error) {
	if _, err := svc.repo.GetChat(ctx, nm.ChatID); err != nil {
		return Message{}, err
	}
	if !bypassMembership {
		ok, err := svc.IsParticipant(ctx, nm.ChatID, nm.SenderID)
		if err != nil {
			return Message{}, errors.Wrap(err, "checking participant")
		}
		if !ok {
			return Message{}, ErrNotParticipant
		}
	}

	now := time.Now().UTC()
	msg := Message{
		ChatID:    nm.ChatID,
		SenderID:  nm.SenderID,
		Text:      nm.Text,
		CreatedAt: now,
	}
	for _, f := range nm.Files {
		msg.Attachments = append(msg.Attachments, Attachment{File: attachmentKey(f), CreatedAt: now})
	}

	var created Message
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		created, err = svc.repo.CreateMessage(ctx, msg, exec)
		return err
	})
	return created, err
}

func (svc *Service) Messages(ctx context.Context, filter MessageFilter) ([]Message, error) {
	if _, err := svc.repo.GetChat(ctx, filter.ChatID); err != nil {
		return nil, err
	}
	filter.Clean()
	return svc.repo.QueryMessages(ctx, filter)
}
