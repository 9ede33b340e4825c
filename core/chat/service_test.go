package chat_test

import (
	"context"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/chat"
	"github.com/trezcool/academia/core/user"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	"github.com/trezcool/academia/testutil"
)

func setup(t *testing.T) (*chat.Service, []int) {
	t.Helper()

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, nil, core.NewTestConfig())
	svc := chat.NewService(inmemdb.NewTransactor(db), inmemdb.NewChatRepository(db), usrSvc, testutil.NewLogger())
	return svc, testutil.CreateUsers(t, usrRepo, "u", 3)
}

func TestService_Create(t *testing.T) {
	svc, ids := setup(t)

	c, err := svc.Create(context.Background(), chat.NewChat{Name: "Team", IsGroup: true, UserIDs: []int{ids[0], ids[1], ids[1], 99}})
	require.NoError(t, err)
	assert.Equal(t, "Team", c.DisplayName())
	assert.ElementsMatch(t, ids[:2], c.ParticipantIDs())

	unnamed, err := svc.Create(context.Background(), chat.NewChat{})
	require.NoError(t, err)
	assert.Equal(t, "Private Chat #2", unnamed.DisplayName())
	assert.Empty(t, unnamed.Participants)
}

func TestService_Create_UnknownUsers(t *testing.T) {
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	logger := testutil.NewLogger()
	svc := chat.NewService(inmemdb.NewTransactor(db), inmemdb.NewChatRepository(db),
		user.NewService(usrRepo, nil, core.NewTestConfig()), logger)
	ids := testutil.CreateUsers(t, usrRepo, "u", 2)

	c, err := svc.Create(context.Background(), chat.NewChat{Name: "Team", UserIDs: []int{ids[1], 404, ids[0], 999}})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, c.ParticipantIDs())

	warns := logger.Messages("warn")
	require.Len(t, warns, 1)
	assert.Equal(t, "skipping unknown user IDs [404 999]", warns[0])
}

func TestService_Update(t *testing.T) {
	svc, ids := setup(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, chat.NewChat{Name: "Team", UserIDs: ids[:2]})
	require.NoError(t, err)

	name := "Renamed"
	updated, err := svc.Update(ctx, c.ID, chat.UpdateChat{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.ElementsMatch(t, ids[:2], updated.ParticipantIDs(), "participants are kept when user_ids is not set")

	updated, err = svc.Update(ctx, c.ID, chat.UpdateChat{UserIDs: ids[1:]})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids[1:], updated.ParticipantIDs())

	updated, err = svc.Update(ctx, c.ID, chat.UpdateChat{UserIDs: []int{}})
	require.NoError(t, err)
	assert.Empty(t, updated.Participants)

	_, err = svc.Update(ctx, 42, chat.UpdateChat{Name: &name})
	assert.Equal(t, chat.ErrNotFound, errors.Cause(err))
}

func TestService_Participants(t *testing.T) {
	svc, ids := setup(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, chat.NewChat{Name: "Team", UserIDs: ids[:1]})
	require.NoError(t, err)

	tests := []struct {
		name    string
		fn      func() error
		wantErr error
	}{
		{name: "add", fn: func() error { _, err := svc.AddParticipant(ctx, c.ID, ids[1]); return err }},
		{name: "add twice", fn: func() error { _, err := svc.AddParticipant(ctx, c.ID, ids[1]); return err }, wantErr: chat.ErrAlreadyParticipant},
		{name: "add unknown user", fn: func() error { _, err := svc.AddParticipant(ctx, c.ID, 99); return err }, wantErr: chat.ErrUserNotFound},
		{name: "add to unknown chat", fn: func() error { _, err := svc.AddParticipant(ctx, 99, ids[2]); return err }, wantErr: chat.ErrNotFound},
		{name: "remove", fn: func() error { return svc.RemoveParticipant(ctx, c.ID, ids[0]) }},
		{name: "remove twice", fn: func() error { return svc.RemoveParticipant(ctx, c.ID, ids[0]) }, wantErr: chat.ErrParticipantNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); errors.Cause(err) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{ids[1]}, got.ParticipantIDs())

	ok, err := svc.IsParticipant(ctx, c.ID, ids[1])
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.IsParticipant(ctx, c.ID, ids[0])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Messages(t *testing.T) {
	svc, ids := setup(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, chat.NewChat{Name: "Team", UserIDs: ids[:1]})
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, chat.NewMessage{ChatID: c.ID, SenderID: ids[0], Text: "hello", Files: []string{`C:\docs\notes.pdf`}}, false)
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, msg.ID, msg.Attachments[0].MessageID)
	assert.True(t, strings.HasPrefix(msg.Attachments[0].File, "chat_files/"))
	assert.True(t, strings.HasSuffix(msg.Attachments[0].File, "/notes.pdf"))

	_, err = svc.SendMessage(ctx, chat.NewMessage{ChatID: c.ID, SenderID: ids[1], Text: "intruder"}, false)
	assert.Equal(t, chat.ErrNotParticipant, errors.Cause(err))

	_, err = svc.SendMessage(ctx, chat.NewMessage{ChatID: c.ID, SenderID: ids[2], Text: "from staff"}, true)
	require.NoError(t, err)

	msgs, err := svc.Messages(ctx, chat.MessageFilter{ChatID: c.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "from staff", msgs[0].Text, "latest first")

	older, err := svc.Messages(ctx, chat.MessageFilter{ChatID: c.ID, BeforeID: msgs[0].ID})
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "hello", older[0].Text)

	_, err = svc.Messages(ctx, chat.MessageFilter{ChatID: 42})
	assert.Equal(t, chat.ErrNotFound, errors.Cause(err))
}

func TestNewMessage_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	tests := []struct {
		name    string
		msg     chat.NewMessage
		wantErr bool
	}{
		{name: "text", msg: chat.NewMessage{Text: " hi "}},
		{name: "files only", msg: chat.NewMessage{Files: []string{"a.png"}}},
		{name: "empty", msg: chat.NewMessage{Text: "   "}, wantErr: true},
		{name: "blank file", msg: chat.NewMessage{Files: []string{" "}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.msg.Validate(validate); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
