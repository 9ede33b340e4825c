package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.t.users))
	for _, u := range repo.db.t.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := make([]int, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded = append(excluded, u.ID)
	}

	for _, usr := range repo.query() {
		if core.ContainsID(excluded, usr.ID) {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr.ID = repo.db.nextID("user")
	repo.db.t.users[usr.ID] = usr
	return usr, nil
}

func matchSearch(usr user.User, search string) bool {
	search = strings.ToLower(search)
	for _, field := range []string{usr.Username, usr.Email, usr.FirstName, usr.LastName} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if filter.Search != "" && !matchSearch(usr, filter.Search) {
			continue
		}
		if len(filter.Roles) > 0 {
			var ok bool
			for _, role := range filter.Roles {
				if usr.Role == role {
					ok = true
					break
				}
			}
			if !ok {
				continue
			}
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		if filter.IsStaff != nil && usr.IsStaff != *filter.IsStaff {
			continue
		}
		if len(filter.IDs) > 0 && !core.ContainsID(filter.IDs, usr.ID) {
			continue
		}
		users = append(users, usr)
	}

	sortUsers(users, ordering)
	return users, nil
}

// sortUsers supports ordering by the string fields and the ID; other fields are ignored.
func sortUsers(users []user.User, ordering []core.DBOrdering) {
	key := func(u user.User, field string) (string, bool) {
		switch field {
		case "username":
			return u.Username, true
		case "email":
			return u.Email, true
		case "first_name":
			return u.FirstName, true
		case "last_name":
			return u.LastName, true
		case "role":
			return u.Role, true
		}
		return "", false
	}

	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			if ord.Field == "id" {
				if users[i].ID != users[j].ID {
					return (users[i].ID < users[j].ID) == ord.Ascending
				}
				continue
			}
			a, ok := key(users[i], ord.Field)
			if !ok {
				continue
			}
			b, _ := key(users[j], ord.Field)
			if a != b {
				return (a < b) == ord.Ascending
			}
		}
		return false
	})
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != 0 {
		if usr, ok := repo.db.t.users[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}

	for _, usr := range repo.query() {
		switch {
		case filter.Username != "":
			if usr.Username == filter.Username {
				return usr, nil
			}
		case filter.Email != "":
			if usr.Email == filter.Email {
				return usr, nil
			}
		case filter.UsernameOrEmail != "":
			if usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) ExistingUserIDs(_ context.Context, ids []int, _ ...core.DBExecutor) ([]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := make([]int, 0, len(ids))
	for _, id := range core.UniqueIDs(ids) {
		if _, ok := repo.db.t.users[id]; ok {
			res = append(res, id)
		}
	}
	return res, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.t.users[usr.ID] = usr
	return usr, nil
}

// DeleteUsersByID mirrors the table constraints: participations and enrollments cascade,
// sent messages protect the user.
func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, msg := range repo.db.t.messages {
		if core.ContainsID(ids, msg.SenderID) {
			return user.ErrProtected
		}
	}

	for _, id := range ids {
		delete(repo.db.t.users, id)
	}
	for pid, p := range repo.db.t.participants {
		if core.ContainsID(ids, p.UserID) {
			delete(repo.db.t.participants, pid)
		}
	}
	for key := range repo.db.t.enrollments {
		if core.ContainsID(ids, key.b) {
			delete(repo.db.t.enrollments, key)
		}
	}
	return nil
}
