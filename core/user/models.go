package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/academia/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleMentor  = "mentor"
	RoleCurator = "curator"
)

var (
	AllRoles = []string{RoleStudent, RoleMentor, RoleCurator}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Mentor", Value: RoleMentor},
		{Name: "Curator", Value: RoleCurator},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Phone        string    `json:"phone"`
	Role         string    `json:"role"`
	IsStaff      bool      `json:"is_staff"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) FullName() string {
	return core.CleanString(u.FirstName + " " + u.LastName)
}

func (u User) IsStudent() bool { return u.Role == RoleStudent }
func (u User) IsMentor() bool  { return u.Role == RoleMentor }
func (u User) IsCurator() bool { return u.Role == RoleCurator }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username        string `json:"username" validate:"required,min=3,max=150,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	FirstName       string `json:"first_name" validate:"required,max=150"`
	LastName        string `json:"last_name" validate:"required,max=150"`
	Phone           string `json:"phone" validate:"omitempty,max=20"`
	Role            string `json:"-"`
	IsStaff         bool   `json:"-"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	CourseIDs       []int  `json:"course_ids" validate:"omitempty,dive,gt=0"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc ServiceInterface) error {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Phone = core.CleanString(nu.Phone)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Nil pointers and nil slices leave the matching field untouched.
type UpdateUser struct {
	Username        *string `json:"username" validate:"omitempty,min=3,max=150,alphanum_"`
	Email           *string `json:"email" validate:"omitempty,email"`
	FirstName       *string `json:"first_name" validate:"omitempty,max=150"`
	LastName        *string `json:"last_name" validate:"omitempty,max=150"`
	Phone           *string `json:"phone" validate:"omitempty,max=20"`
	Role            *string `json:"role" validate:"omitempty,role"`
	IsStaff         *bool   `json:"is_staff"`
	IsActive        *bool   `json:"is_active"`
	Password        string  `json:"password" validate:"omitempty"`
	PasswordConfirm string  `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
	CourseIDs       []int   `json:"course_ids" validate:"omitempty,dive,gt=0"`
}

func cleanPtr(s *string, lower ...bool) {
	if s != nil {
		*s = core.CleanString(*s, lower...)
	}
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc ServiceInterface) error {
	cleanPtr(uu.Username, true /* lower */)
	cleanPtr(uu.Email, true /* lower */)
	cleanPtr(uu.FirstName)
	cleanPtr(uu.LastName)
	cleanPtr(uu.Phone)

	if err := validate.Struct(uu); err != nil {
		return err
	}

	uname, email := origUsr.Username, origUsr.Email
	if uu.Username != nil {
		uname = *uu.Username
	}
	if uu.Email != nil {
		email = *uu.Email
	}
	return svc.CheckUniqueness(ctx, uname, email, origUsr)
}

// apply copies the set fields of uu onto usr.
func (uu UpdateUser) apply(usr *User) error {
	if uu.Username != nil {
		usr.Username = *uu.Username
	}
	if uu.Email != nil {
		usr.Email = *uu.Email
	}
	if uu.FirstName != nil {
		usr.FirstName = *uu.FirstName
	}
	if uu.LastName != nil {
		usr.LastName = *uu.LastName
	}
	if uu.Phone != nil {
		usr.Phone = *uu.Phone
	}
	if uu.Role != nil {
		usr.Role = *uu.Role
	}
	if uu.IsStaff != nil {
		usr.IsStaff = *uu.IsStaff
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		return usr.SetPassword(uu.Password)
	}
	return nil
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"is_active"`
	IsStaff  *bool    `query:"is_staff"`
	IDs      []int    `query:"id"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.IsStaff == nil && qf.IDs == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single User; the first non-zero field wins.
type GetFilter struct {
	ID              int
	Username        string
	Email           string
	UsernameOrEmail string
}
