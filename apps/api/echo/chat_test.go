package echoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/chat"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/testutil"
)

type chatFixture struct {
	*testEnv
	staff, member, outsider user.User
	group, other            chat.Chat
}

func setupChats(t *testing.T) chatFixture {
	t.Helper()
	env := setup(t)
	ctx := context.Background()

	f := chatFixture{
		testEnv:  env,
		staff:    testutil.CreateUser(t, env.users, "curator", "curator@test.cd", "", user.RoleCurator, true),
		member:   testutil.CreateUser(t, env.users, "hero", "hero@test.cd", "", user.RoleStudent, false),
		outsider: testutil.CreateUser(t, env.users, "villain", "villain@test.cd", "", user.RoleStudent, false),
	}

	var err error
	f.group, err = env.chatSvc.Create(ctx, chat.NewChat{Name: "Go 101", IsGroup: true, UserIDs: []int{f.member.ID}})
	require.NoError(t, err)
	f.other, err = env.chatSvc.Create(ctx, chat.NewChat{Name: "Rust 101", IsGroup: true, UserIDs: []int{f.outsider.ID}})
	require.NoError(t, err)
	return f
}

func chatIDs(t *testing.T, data []byte) []int {
	t.Helper()
	var chats []chat.Chat
	require.NoError(t, json.Unmarshal(data, &chats))
	ids := make([]int, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	return ids
}

func Test_chatApi_query(t *testing.T) {
	f := setupChats(t)

	t.Run("Students see their chats", func(t *testing.T) {
		rec := f.serve(httpTest{method: http.MethodGet, path: "/api/chat", token: f.token(t, f.member)})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int{f.group.ID}, chatIDs(t, rec.Body.Bytes()))
	})

	t.Run("Staff see all chats", func(t *testing.T) {
		rec := f.serve(httpTest{method: http.MethodGet, path: "/api/chat", token: f.token(t, f.staff)})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.ElementsMatch(t, []int{f.group.ID, f.other.ID}, chatIDs(t, rec.Body.Bytes()))
	})

	f.run(t, []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/api/chat", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "Retrieve as participant", method: http.MethodGet, path: fmt.Sprintf("/api/chat/%d", f.group.ID),
			token: f.token(t, f.member), wantData: marshallObj(t, f.group),
		},
		{
			name: "Retrieve as outsider", method: http.MethodGet, path: fmt.Sprintf("/api/chat/%d", f.group.ID),
			token: f.token(t, f.outsider), wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "Retrieve as staff", method: http.MethodGet, path: fmt.Sprintf("/api/chat/%d", f.other.ID),
			token: f.token(t, f.staff), wantData: marshallObj(t, f.other),
		},
		{
			name: "Unknown chat", method: http.MethodGet, path: "/api/chat/999", token: f.token(t, f.staff),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "chat not found"}),
		},
	})
}

func Test_chatApi_write(t *testing.T) {
	f := setupChats(t)
	ctx := context.Background()

	f.run(t, []httpTest{
		{
			name: "Create requires staff", method: http.MethodPost, path: "/api/chat", token: f.token(t, f.member),
			body: []byte(`{"name": "Private"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "Update requires staff", method: http.MethodPut, path: fmt.Sprintf("/api/chat/%d", f.group.ID),
			token: f.token(t, f.member), body: []byte(`{"name": "Mine"}`), wantCode: http.StatusForbidden,
		},
	})

	t.Run("Created", func(t *testing.T) {
		body := fmt.Sprintf(`{"name": " Private ", "user_ids": [%d, %d, 999]}`, f.member.ID, f.outsider.ID)
		rec := f.serve(httpTest{method: http.MethodPost, path: "/api/chat", token: f.token(t, f.staff), body: []byte(body)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var c chat.Chat
		decode(t, rec, &c)
		assert.Equal(t, "Private", c.Name)
		assert.False(t, c.IsGroup)
		assert.ElementsMatch(t, []int{f.member.ID, f.outsider.ID}, c.ParticipantIDs())
	})

	t.Run("Renamed, participants kept", func(t *testing.T) {
		path := fmt.Sprintf("/api/chat/%d", f.group.ID)
		rec := f.serve(httpTest{method: http.MethodPut, path: path, token: f.token(t, f.staff), body: []byte(`{"name": "Go 102"}`)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var c chat.Chat
		decode(t, rec, &c)
		assert.Equal(t, "Go 102", c.Name)
		assert.Equal(t, []int{f.member.ID}, c.ParticipantIDs())
	})

	t.Run("Participants replaced", func(t *testing.T) {
		path := fmt.Sprintf("/api/chat/%d", f.group.ID)
		body := fmt.Sprintf(`{"user_ids": [%d]}`, f.outsider.ID)
		rec := f.serve(httpTest{method: http.MethodPut, path: path, token: f.token(t, f.staff), body: []byte(body)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, []int{f.outsider.ID}, f.participantIDs(t, f.group.ID))
	})

	t.Run("Deleted", func(t *testing.T) {
		rec := f.serve(httpTest{method: http.MethodDelete, path: fmt.Sprintf("/api/chat/%d", f.other.ID), token: f.token(t, f.staff)})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		_, err := f.chatSvc.Get(ctx, f.other.ID)
		assert.Equal(t, chat.ErrNotFound, errors.Cause(err))
	})
}

func Test_chatApi_participants(t *testing.T) {
	f := setupChats(t)

	add := func(userID int) string {
		return fmt.Sprintf("/api/chat/%d/add-participant?user_id=%d", f.group.ID, userID)
	}
	remove := func(userID int) string {
		return fmt.Sprintf("/api/chat/%d/remove-participant?user_id=%d", f.group.ID, userID)
	}
	token := f.token(t, f.staff)

	f.run(t, []httpTest{
		{name: "Staff required", method: http.MethodPost, path: add(f.outsider.ID), token: f.token(t, f.member), wantCode: http.StatusForbidden},
		{
			name: "Missing user", method: http.MethodPost, path: fmt.Sprintf("/api/chat/%d/add-participant", f.group.ID),
			token: token, wantCode: http.StatusBadRequest, wantData: []byte(`{"user_id": "must be a positive integer"}`),
		},
		{
			name: "Unknown user", method: http.MethodPost, path: add(999), token: token,
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name: "Unknown chat", method: http.MethodPost, path: fmt.Sprintf("/api/chat/999/add-participant?user_id=%d", f.outsider.ID),
			token: token, wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "chat not found"}),
		},
		{name: "Added", method: http.MethodPost, path: add(f.outsider.ID), token: token, wantCode: http.StatusCreated},
		{
			name: "Already a participant", method: http.MethodPost, path: add(f.outsider.ID), token: token,
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "user is already a participant of this chat"}),
		},
		{name: "Removed", method: http.MethodPost, path: remove(f.member.ID), token: token, wantCode: http.StatusNoContent},
		{
			name: "Not a participant", method: http.MethodPost, path: remove(f.member.ID), token: token,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "participant not found"}),
		},
	})

	assert.Equal(t, []int{f.outsider.ID}, f.participantIDs(t, f.group.ID))
}

func Test_chatApi_messages(t *testing.T) {
	f := setupChats(t)

	path := fmt.Sprintf("/api/chat/%d/messages", f.group.ID)
	f.run(t, []httpTest{
		{
			name: "Outsider cannot post", method: http.MethodPost, path: path, token: f.token(t, f.outsider),
			body: []byte(`{"text": "hi"}`), wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "user is not a participant of this chat"}),
		},
		{
			name: "Empty message", method: http.MethodPost, path: path, token: f.token(t, f.member),
			body: []byte(`{"text": "  "}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"text": "a message needs a text or at least one file"}`),
		},
		{
			name: "Outsider cannot read", method: http.MethodGet, path: path, token: f.token(t, f.outsider),
			wantCode: http.StatusForbidden,
		},
		{name: "No messages yet", method: http.MethodGet, path: path, token: f.token(t, f.member), wantData: []byte(`[]`)},
	})

	var sent []chat.Message
	for _, tt := range []struct {
		usr  user.User
		body string
	}{
		{f.member, `{"text": " hello "}`},
		{f.staff, `{"text": "welcome", "files": ["syllabus.pdf"]}`},
	} {
		rec := f.serve(httpTest{method: http.MethodPost, path: path, token: f.token(t, tt.usr), body: []byte(tt.body)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var msg chat.Message
		decode(t, rec, &msg)
		assert.Equal(t, f.group.ID, msg.ChatID)
		assert.Equal(t, tt.usr.ID, msg.SenderID)
		sent = append(sent, msg)
	}
	assert.Equal(t, "hello", sent[0].Text)
	require.Len(t, sent[1].Attachments, 1)
	assert.Contains(t, sent[1].Attachments[0].File, "syllabus")

	rec := f.serve(httpTest{method: http.MethodGet, path: path, token: f.token(t, f.member)})
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []chat.Message
	decode(t, rec, &msgs)
	assert.Len(t, msgs, 2)
}
