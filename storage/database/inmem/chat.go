package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/chat"
)

type chatRepository struct {
	db *DB
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db *DB) *chatRepository {
	return &chatRepository{db: db}
}

// participants must be called with db.mu held.
func (repo *chatRepository) participants(chatID int) []chat.Participant {
	res := make([]chat.Participant, 0)
	for _, p := range repo.db.t.participants {
		if p.ChatID == chatID {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (repo *chatRepository) CreateChat(_ context.Context, c chat.Chat, _ ...core.DBExecutor) (chat.Chat, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	c.ID = repo.db.nextID("chat")
	c.Participants = nil
	repo.db.t.chats[c.ID] = c
	c.Participants = []chat.Participant{}
	return c, nil
}

func (repo *chatRepository) GetChat(_ context.Context, id int, _ ...core.DBExecutor) (chat.Chat, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	c, ok := repo.db.t.chats[id]
	if !ok {
		return chat.Chat{}, chat.ErrNotFound
	}
	c.Participants = repo.participants(id)
	return c, nil
}

func (repo *chatRepository) QueryChats(_ context.Context, filter chat.QueryFilter, _ ...core.DBExecutor) ([]chat.Chat, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	chats := make([]chat.Chat, 0)
	for _, c := range repo.db.t.chats {
		if filter.IsGroup != nil && c.IsGroup != *filter.IsGroup {
			continue
		}
		c.Participants = repo.participants(c.ID)
		if filter.ParticipantID != 0 && !core.ContainsID(c.ParticipantIDs(), filter.ParticipantID) {
			continue
		}
		chats = append(chats, c)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })
	return chats, nil
}

func (repo *chatRepository) UpdateChat(_ context.Context, c chat.Chat, _ ...core.DBExecutor) (chat.Chat, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.chats[c.ID]; !ok {
		return chat.Chat{}, chat.ErrNotFound
	}
	participants := c.Participants
	c.Participants = nil
	repo.db.t.chats[c.ID] = c
	c.Participants = participants
	return c, nil
}

// DeleteChat cascades to participants & messages and unlinks the course owning the chat.
func (repo *chatRepository) DeleteChat(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.chats[id]; !ok {
		return chat.ErrNotFound
	}
	delete(repo.db.t.chats, id)
	repo.clearParticipants(id)
	repo.deleteMessages(id)
	for cid, c := range repo.db.t.courses {
		if c.ChatID == id {
			c.ChatID = 0
			repo.db.t.courses[cid] = c
		}
	}
	return nil
}

func (repo *chatRepository) ListParticipants(_ context.Context, chatID int, _ ...core.DBExecutor) ([]chat.Participant, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.participants(chatID), nil
}

func (repo *chatRepository) GetParticipant(_ context.Context, chatID, userID int, _ ...core.DBExecutor) (chat.Participant, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, p := range repo.db.t.participants {
		if p.ChatID == chatID && p.UserID == userID {
			return p, nil
		}
	}
	return chat.Participant{}, chat.ErrParticipantNotFound
}

func (repo *chatRepository) AddParticipants(_ context.Context, chatID int, userIDs []int, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.chats[chatID]; !ok {
		return 0, chat.ErrNotFound
	}
	current := make([]int, 0)
	for _, p := range repo.participants(chatID) {
		current = append(current, p.UserID)
	}

	now := time.Now().UTC()
	var n int
	for _, uid := range core.UniqueIDs(userIDs) {
		if core.ContainsID(current, uid) {
			continue
		}
		if _, ok := repo.db.t.users[uid]; !ok {
			return n, chat.ErrUserNotFound
		}
		p := chat.Participant{ID: repo.db.nextID("chat_participant"), ChatID: chatID, UserID: uid, JoinedAt: now}
		repo.db.t.participants[p.ID] = p
		n++
	}
	return n, nil
}

func (repo *chatRepository) RemoveParticipants(_ context.Context, chatID int, userIDs []int, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for pid, p := range repo.db.t.participants {
		if p.ChatID == chatID && core.ContainsID(userIDs, p.UserID) {
			delete(repo.db.t.participants, pid)
			n++
		}
	}
	return n, nil
}

func (repo *chatRepository) clearParticipants(chatID int) int {
	var n int
	for pid, p := range repo.db.t.participants {
		if p.ChatID == chatID {
			delete(repo.db.t.participants, pid)
			n++
		}
	}
	return n
}

func (repo *chatRepository) ClearParticipants(_ context.Context, chatID int, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	return repo.clearParticipants(chatID), nil
}

func (repo *chatRepository) CreateMessage(_ context.Context, msg chat.Message, _ ...core.DBExecutor) (chat.Message, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.chats[msg.ChatID]; !ok {
		return chat.Message{}, chat.ErrNotFound
	}
	if _, ok := repo.db.t.users[msg.SenderID]; !ok {
		return chat.Message{}, chat.ErrUserNotFound
	}

	msg.ID = repo.db.nextID("message")
	attachments := make([]chat.Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		a.ID = repo.db.nextID("message_attachment")
		a.MessageID = msg.ID
		attachments = append(attachments, a)
	}
	msg.Attachments = attachments
	repo.db.t.messages[msg.ID] = msg
	return msg, nil
}

func (repo *chatRepository) QueryMessages(_ context.Context, filter chat.MessageFilter, _ ...core.DBExecutor) ([]chat.Message, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	msgs := make([]chat.Message, 0)
	for _, msg := range repo.db.t.messages {
		if msg.ChatID != filter.ChatID {
			continue
		}
		if filter.BeforeID > 0 && msg.ID >= filter.BeforeID {
			continue
		}
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })
	if filter.Limit > 0 && len(msgs) > filter.Limit {
		msgs = msgs[:filter.Limit]
	}
	return msgs, nil
}

func (repo *chatRepository) deleteMessages(chatID int) int {
	var n int
	for mid, msg := range repo.db.t.messages {
		if msg.ChatID == chatID {
			delete(repo.db.t.messages, mid) // attachments go with the message
			n++
		}
	}
	return n
}

func (repo *chatRepository) DeleteMessages(_ context.Context, chatID int, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	return repo.deleteMessages(chatID), nil
}
