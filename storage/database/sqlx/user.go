package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

const userColumns = `id, username, email, first_name, last_name, phone, role, is_staff, is_active,
	password_hash, created_at, updated_at, last_login`

type userRow struct {
	ID           int         `db:"id"`
	Username     string      `db:"username"`
	Email        string      `db:"email"`
	FirstName    string      `db:"first_name"`
	LastName     string      `db:"last_name"`
	Phone        null.String `db:"phone"`
	Role         string      `db:"role"`
	IsStaff      bool        `db:"is_staff"`
	IsActive     bool        `db:"is_active"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Phone:        r.Phone.String,
		Role:         r.Role,
		IsStaff:      r.IsStaff,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{baseRepository{db: db}}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	excluded := make([]int, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded = append(excluded, u.ID)
	}

	var found struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	q := `SELECT username, email FROM "user"
		WHERE (username = $1 OR (email <> '' AND email = $2)) AND NOT (id = ANY($3)) LIMIT 1`
	err := sqlx.GetContext(ctx, repo.getExec(exec), &found, q, username, email, pq.Array(excluded))
	if err != nil {
		return trapNoRowsErr(err, nil, "checking user uniqueness")
	}
	if found.Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	q := `INSERT INTO "user" (username, email, first_name, last_name, phone, role, is_staff, is_active,
			password_hash, created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	err := repo.getExec(exec).QueryRowxContext(ctx, q,
		usr.Username, usr.Email, usr.FirstName, usr.LastName,
		null.NewString(usr.Phone, usr.Phone != ""), usr.Role, usr.IsStaff, usr.IsActive, usr.PasswordHash,
		usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(), null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	).Scan(&usr.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	var where whereClause
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		where.add("(username ILIKE ? OR email ILIKE ? OR first_name ILIKE ? OR last_name ILIKE ?)", val, val, val, val)
	}
	if len(filter.Roles) > 0 {
		where.add("role = ANY(?)", pq.Array(filter.Roles))
	}
	if filter.IsActive != nil {
		where.add("is_active = ?", *filter.IsActive)
	}
	if filter.IsStaff != nil {
		where.add("is_staff = ?", *filter.IsStaff)
	}
	if len(filter.IDs) > 0 {
		where.add("id = ANY(?)", pq.Array(filter.IDs))
	}

	e := repo.getExec(exec)
	q := e.Rebind(`SELECT ` + userColumns + ` FROM "user"` + where.String() + orderBy(ordering, "id"))
	var rows []userRow
	if err := sqlx.SelectContext(ctx, e, &rows, q, where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}

	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var where whereClause
	switch {
	case filter.ID != 0:
		where.add("id = ?", filter.ID)
	case filter.Username != "":
		where.add("username = ?", filter.Username)
	case filter.Email != "":
		where.add("email = ?", filter.Email)
	case filter.UsernameOrEmail != "":
		where.add("(username = ? OR email = ?)", filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	e := repo.getExec(exec)
	var row userRow
	q := e.Rebind(`SELECT ` + userColumns + ` FROM "user"` + where.String() + ` LIMIT 1`)
	if err := sqlx.GetContext(ctx, e, &row, q, where.args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "selecting user")
	}
	return row.user(), nil
}

func (repo userRepository) ExistingUserIDs(ctx context.Context, ids []int, exec ...core.DBExecutor) ([]int, error) {
	res, err := selectIDs(ctx, repo.getExec(exec), `SELECT id FROM "user" WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	return res, errors.Wrap(err, "selecting user IDs")
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	q := `UPDATE "user" SET username = $1, email = $2, first_name = $3, last_name = $4, phone = $5, role = $6,
			is_staff = $7, is_active = $8, password_hash = $9, updated_at = $10, last_login = $11
		WHERE id = $12`
	n, err := rowsAffected(repo.getExec(exec).ExecContext(ctx, q,
		usr.Username, usr.Email, usr.FirstName, usr.LastName, null.NewString(usr.Phone, usr.Phone != ""),
		usr.Role, usr.IsStaff, usr.IsActive, usr.PasswordHash, usr.UpdatedAt.UTC(),
		null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()), usr.ID,
	))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []int, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM "user" WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		if pqErrCode(err) == fkViolation {
			return user.ErrProtected
		}
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
