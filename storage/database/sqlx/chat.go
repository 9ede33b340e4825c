package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/chat"
)

type (
	chatRow struct {
		ID        int       `db:"id"`
		Name      string    `db:"name"`
		IsGroup   bool      `db:"is_group"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	participantRow struct {
		ID       int       `db:"id"`
		ChatID   int       `db:"chat_id"`
		UserID   int       `db:"user_id"`
		JoinedAt time.Time `db:"joined_at"`
	}

	messageRow struct {
		ID        int       `db:"id"`
		ChatID    int       `db:"chat_id"`
		SenderID  int       `db:"sender_id"`
		Text      string    `db:"text"`
		CreatedAt time.Time `db:"created_at"`
	}

	attachmentRow struct {
		ID        int       `db:"id"`
		MessageID int       `db:"message_id"`
		File      string    `db:"file"`
		CreatedAt time.Time `db:"created_at"`
	}
)

func (r chatRow) chat() chat.Chat {
	return chat.Chat{
		ID:           r.ID,
		Name:         r.Name,
		IsGroup:      r.IsGroup,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		Participants: []chat.Participant{},
	}
}

func (r participantRow) participant() chat.Participant {
	return chat.Participant{ID: r.ID, ChatID: r.ChatID, UserID: r.UserID, JoinedAt: r.JoinedAt.UTC()}
}

type chatRepository struct {
	baseRepository
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db *sqlx.DB) *chatRepository {
	return &chatRepository{baseRepository{db: db}}
}

func (repo chatRepository) CreateChat(ctx context.Context, c chat.Chat, exec ...core.DBExecutor) (chat.Chat, error) {
	q := `INSERT INTO chat (name, is_group, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`
	err := repo.getExec(exec).QueryRowxContext(ctx, q, c.Name, c.IsGroup, c.CreatedAt.UTC(), c.UpdatedAt.UTC()).Scan(&c.ID)
	if err != nil {
		return chat.Chat{}, errors.Wrap(err, "inserting chat")
	}
	c.Participants = []chat.Participant{}
	return c, nil
}

// participants returns the participants of the chats, by chat ID.
func (repo chatRepository) participants(ctx context.Context, e sqlx.ExtContext, chatIDs []int) (map[int][]chat.Participant, error) {
	var rows []participantRow
	q := `SELECT id, chat_id, user_id, joined_at FROM chat_participant WHERE chat_id = ANY($1) ORDER BY id`
	if err := sqlx.SelectContext(ctx, e, &rows, q, pq.Array(chatIDs)); err != nil {
		return nil, errors.Wrap(err, "selecting chat participants")
	}
	res := make(map[int][]chat.Participant, len(chatIDs))
	for _, r := range rows {
		res[r.ChatID] = append(res[r.ChatID], r.participant())
	}
	return res, nil
}

func (repo chatRepository) GetChat(ctx context.Context, id int, exec ...core.DBExecutor) (chat.Chat, error) {
	e := repo.getExec(exec)
	var row chatRow
	q := `SELECT id, name, is_group, created_at, updated_at FROM chat WHERE id = $1`
	if err := sqlx.GetContext(ctx, e, &row, q, id); err != nil {
		return chat.Chat{}, trapNoRowsErr(err, chat.ErrNotFound, "selecting chat")
	}

	c := row.chat()
	participants, err := repo.participants(ctx, e, []int{id})
	if err != nil {
		return chat.Chat{}, err
	}
	if ps, ok := participants[id]; ok {
		c.Participants = ps
	}
	return c, nil
}

func (repo chatRepository) QueryChats(ctx context.Context, filter chat.QueryFilter, exec ...core.DBExecutor) ([]chat.Chat, error) {
	var where whereClause
	if filter.ParticipantID != 0 {
		where.add("id IN (SELECT chat_id FROM chat_participant WHERE user_id = ?)", filter.ParticipantID)
	}
	if filter.IsGroup != nil {
		where.add("is_group = ?", *filter.IsGroup)
	}

	e := repo.getExec(exec)
	var rows []chatRow
	q := e.Rebind(`SELECT id, name, is_group, created_at, updated_at FROM chat` + where.String() + ` ORDER BY id`)
	if err := sqlx.SelectContext(ctx, e, &rows, q, where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting chats")
	}
	if len(rows) == 0 {
		return []chat.Chat{}, nil
	}

	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	participants, err := repo.participants(ctx, e, ids)
	if err != nil {
		return nil, err
	}

	chats := make([]chat.Chat, 0, len(rows))
	for _, r := range rows {
		c := r.chat()
		if ps, ok := participants[c.ID]; ok {
			c.Participants = ps
		}
		chats = append(chats, c)
	}
	return chats, nil
}

func (repo chatRepository) UpdateChat(ctx context.Context, c chat.Chat, exec ...core.DBExecutor) (chat.Chat, error) {
	q := `UPDATE chat SET name = $1, is_group = $2, updated_at = $3 WHERE id = $4`
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, q, c.Name, c.IsGroup, c.UpdatedAt.UTC(), c.ID))
	if err != nil {
		return chat.Chat{}, errors.Wrap(err, "updating chat")
	}
	if n == 0 {
		return chat.Chat{}, chat.ErrNotFound
	}
	return c, nil
}

func (repo chatRepository) DeleteChat(ctx context.Context, id int, exec ...core.DBExecutor) error {
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, `DELETE FROM chat WHERE id = $1`, id))
	if err != nil {
		return errors.Wrap(err, "deleting chat")
	}
	if n == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (repo chatRepository) ListParticipants(ctx context.Context, chatID int, exec ...core.DBExecutor) ([]chat.Participant, error) {
	participants, err := repo.participants(ctx, repo.getExec(exec), []int{chatID})
	if err != nil {
		return nil, err
	}
	if ps, ok := participants[chatID]; ok {
		return ps, nil
	}
	return []chat.Participant{}, nil
}

func (repo chatRepository) GetParticipant(ctx context.Context, chatID, userID int, exec ...core.DBExecutor) (chat.Participant, error) {
	var row participantRow
	q := `SELECT id, chat_id, user_id, joined_at FROM chat_participant WHERE chat_id = $1 AND user_id = $2`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, chatID, userID); err != nil {
		return chat.Participant{}, trapNoRowsErr(err, chat.ErrParticipantNotFound, "selecting chat participant")
	}
	return row.participant(), nil
}

func (repo chatRepository) AddParticipants(ctx context.Context, chatID int, userIDs []int, exec ...core.DBExecutor) (int, error) {
	q := `INSERT INTO chat_participant (chat_id, user_id, joined_at)
		SELECT $1, u, $3 FROM unnest($2::int[]) AS u
		ON CONFLICT (chat_id, user_id) DO NOTHING`
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, q, chatID, pq.Array(core.UniqueIDs(userIDs)), time.Now().UTC()))
	if err != nil {
		if pqErrCode(err) == fkViolation {
			return 0, chat.ErrUserNotFound
		}
		return 0, errors.Wrap(err, "inserting chat participants")
	}
	return n, nil
}

func (repo chatRepository) RemoveParticipants(ctx context.Context, chatID int, userIDs []int, exec ...core.DBExecutor) (int, error) {
	q := `DELETE FROM chat_participant WHERE chat_id = $1 AND user_id = ANY($2)`
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, q, chatID, pq.Array(userIDs)))
	return n, errors.Wrap(err, "deleting chat participants")
}

func (repo chatRepository) ClearParticipants(ctx context.Context, chatID int, exec ...core.DBExecutor) (int, error) {
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, `DELETE FROM chat_participant WHERE chat_id = $1`, chatID))
	return n, errors.Wrap(err, "clearing chat participants")
}

// CreateMessage inserts the message and its attachments; run it within a transaction.
func (repo chatRepository) CreateMessage(ctx context.Context, msg chat.Message, exec ...core.DBExecutor) (chat.Message, error) {
	e := repo.getExec(exec)
	q := `INSERT INTO message (chat_id, sender_id, text, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := e.QueryRowxContext(ctx, q, msg.ChatID, msg.SenderID, msg.Text, msg.CreatedAt.UTC()).Scan(&msg.ID); err != nil {
		if pqErrCode(err) == fkViolation {
			return chat.Message{}, chat.ErrUserNotFound
		}
		return chat.Message{}, errors.Wrap(err, "inserting message")
	}

	attachments := make([]chat.Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		a.MessageID = msg.ID
		q = `INSERT INTO message_attachment (message_id, file, created_at) VALUES ($1, $2, $3) RETURNING id`
		if err := e.QueryRowxContext(ctx, q, a.MessageID, a.File, a.CreatedAt.UTC()).Scan(&a.ID); err != nil {
			return chat.Message{}, errors.Wrap(err, "inserting message attachment")
		}
		attachments = append(attachments, a)
	}
	msg.Attachments = attachments
	return msg, nil
}

func (repo chatRepository) QueryMessages(ctx context.Context, filter chat.MessageFilter, exec ...core.DBExecutor) ([]chat.Message, error) {
	var where whereClause
	where.add("chat_id = ?", filter.ChatID)
	if filter.BeforeID > 0 {
		where.add("id < ?", filter.BeforeID)
	}
	limit := ""
	if filter.Limit > 0 {
		limit = " LIMIT ?"
		where.args = append(where.args, filter.Limit)
	}

	e := repo.getExec(exec)
	var rows []messageRow
	q := e.Rebind(`SELECT id, chat_id, sender_id, text, created_at FROM message` + where.String() + ` ORDER BY id DESC` + limit)
	if err := sqlx.SelectContext(ctx, e, &rows, q, where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting messages")
	}
	if len(rows) == 0 {
		return []chat.Message{}, nil
	}

	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	var attRows []attachmentRow
	q = `SELECT id, message_id, file, created_at FROM message_attachment WHERE message_id = ANY($1) ORDER BY id`
	if err := sqlx.SelectContext(ctx, e, &attRows, q, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "selecting message attachments")
	}
	attachments := make(map[int][]chat.Attachment)
	for _, r := range attRows {
		attachments[r.MessageID] = append(attachments[r.MessageID], chat.Attachment{
			ID: r.ID, MessageID: r.MessageID, File: r.File, CreatedAt: r.CreatedAt.UTC(),
		})
	}

	msgs := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		msg := chat.Message{
			ID:          r.ID,
			ChatID:      r.ChatID,
			SenderID:    r.SenderID,
			Text:        r.Text,
			CreatedAt:   r.CreatedAt.UTC(),
			Attachments: []chat.Attachment{},
		}
		if as, ok := attachments[r.ID]; ok {
			msg.Attachments = as
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// DeleteMessages deletes the messages of a chat; their attachments cascade.
func (repo chatRepository) DeleteMessages(ctx context.Context, chatID int, exec ...core.DBExecutor) (int, error) {
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, `DELETE FROM message WHERE chat_id = $1`, chatID))
	return n, errors.Wrap(err, "deleting messages")
}
