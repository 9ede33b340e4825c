package chat

import (
	"context"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// attachmentPrefix is the storage "folder" of message attachments.
const attachmentPrefix = "chat_files"

type Chat struct {
	ID           int           `json:"id"`
	Name         string        `json:"name"`
	IsGroup      bool          `json:"is_group"`
	CreatedAt    time.Time     `json:"created_at"` // UTC
	UpdatedAt    time.Time     `json:"updated_at"` // UTC
	Participants []Participant `json:"participants"`
}

// DisplayName is the Chat name, or a generated one for unnamed chats.
func (c Chat) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	kind := "Private"
	if c.IsGroup {
		kind = "Group"
	}
	return kind + " Chat #" + strconv.Itoa(c.ID)
}

// ParticipantIDs returns the user IDs of the loaded participants.
func (c Chat) ParticipantIDs() []int {
	ids := make([]int, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// Participant is the membership of a user in a chat. (ChatID, UserID) is unique.
type Participant struct {
	ID       int       `json:"id"`
	ChatID   int       `json:"chat_id"`
	UserID   int       `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"` // UTC
}

type Message struct {
	ID          int          `json:"id"`
	ChatID      int          `json:"chat_id"`
	SenderID    int          `json:"sender_id"`
	Text        string       `json:"text"`
	CreatedAt   time.Time    `json:"created_at"` // UTC
	Attachments []Attachment `json:"attachments"`
}

// Attachment is a file reference attached to exactly one Message.
type Attachment struct {
	ID        int       `json:"id"`
	MessageID int       `json:"message_id"`
	File      string    `json:"file"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewChat contains information needed to create a new Chat.
type NewChat struct {
	Name    string `json:"name" validate:"max=255"`
	IsGroup bool   `json:"is_group"`
	UserIDs []int  `json:"user_ids" validate:"omitempty,dive,gt=0"`
}

func (nc *NewChat) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

// UpdateChat defines what may be modified on an existing Chat.
// A non-nil UserIDs replaces the whole participant set.
type UpdateChat struct {
	Name    *string `json:"name" validate:"omitempty,max=255"`
	IsGroup *bool   `json:"is_group"`
	UserIDs []int   `json:"user_ids" validate:"omitempty,dive,gt=0"`
}

func (uc *UpdateChat) Validate(validate *validator.Validate) error {
	if uc.Name != nil {
		*uc.Name = core.CleanString(*uc.Name)
	}
	return validate.Struct(uc)
}

// NewMessage contains the information needed to post a Message to a Chat.
// Files are client side file names; they are stored under a unique key.
type NewMessage struct {
	ChatID   int      `json:"-"`
	SenderID int      `json:"-"`
	Text     string   `json:"text" validate:"max=10000"`
	Files    []string `json:"files" validate:"omitempty,max=10,dive,notblank"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Text = strings.TrimSpace(nm.Text)
	if err := validate.Struct(nm); err != nil {
		return err
	}
	if nm.Text == "" && len(nm.Files) == 0 {
		return core.NewValidationError(
			errors.New("empty message"),
			core.FieldError{Field: "text", Error: "a message needs a text or at least one file"},
		)
	}
	return nil
}

type QueryFilter struct {
	// ParticipantID limits the result to the chats the user participates in; 0 means all.
	ParticipantID int
	IsGroup       *bool `query:"is_group"`
}

type MessageFilter struct {
	ChatID   int
	BeforeID int `query:"before_id"` // 0 means from the latest
	Limit    int `query:"limit"`
}

func (mf *MessageFilter) Clean() {
	if mf.Limit <= 0 || mf.Limit > 100 {
		mf.Limit = 50
	}
	if mf.BeforeID < 0 {
		mf.BeforeID = 0
	}
}

// UserFinder reports which of the given user IDs exist.
type UserFinder interface {
	ExistingIDs(ctx context.Context, ids []int, exec ...core.DBExecutor) ([]int, error)
}

func attachmentKey(filename string) string {
	return path.Join(attachmentPrefix, uuid.NewString(), path.Base(strings.ReplaceAll(filename, "\\", "/")))
}
