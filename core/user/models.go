package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/schoolsys/core"
)

type Role string

// Roles
const (
	RoleStudent   Role = "student"
	RoleTeacher   Role = "teacher"
	RolePrincipal Role = "principal"

	DefaultRole = RoleStudent
)

var (
	AllRoles = []Role{RoleStudent, RoleTeacher, RolePrincipal}

	RoleChoices = []RoleChoice{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Principal", Value: RolePrincipal},
	}
)

type RoleChoice struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

func (r Role) IsValid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	Role         Role      `db:"role" json:"role"`
	UniqueID     string    `db:"unique_id" json:"unique_id"`
	PasswordHash []byte    `db:"password_hash" json:"-"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"` // UTC
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"` // UTC
	LastLogin    null.Time `db:"last_login" json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// CheckRoleUnchanged returns a core.ConstraintViolation if updated has a different role than stored.
// A role is set at registration & never changes.
func CheckRoleUnchanged(stored, updated User) error {
	if updated.Role != stored.Role {
		return core.NewConstraintViolation("role", "cannot change the role of "+stored.Username+" from "+string(stored.Role))
	}
	return nil
}

func (u *User) IsPrincipal() bool { return u.Role == RolePrincipal }
func (u *User) IsTeacher() bool   { return u.Role == RoleTeacher }
func (u *User) IsStudent() bool   { return u.Role == RoleStudent }

// NewUser contains information needed to register a new User.
type NewUser struct {
	Username        string `json:"username" form:"username" validate:"required,max=150,username"`
	Email           string `json:"email" form:"email" validate:"omitempty,email"`
	Password        string `json:"password" form:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm" validate:"omitempty,eqfield=Password"`
	Role            Role   `json:"role" form:"role" validate:"omitempty,role"`
	UniqueID        string `json:"unique_id" form:"unique_id" validate:"required,max=20,notblank"`
}

func (nu *NewUser) Clean() {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.UniqueID = core.CleanString(nu.UniqueID)
	nu.Role = Role(core.CleanString(string(nu.Role), true /* lower */))
	if nu.Role == "" {
		nu.Role = DefaultRole
	}
}

// Validate cleans & validates the NewUser then checks that its username & unique_id are not taken.
func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Clean()
	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.UniqueID)
}

// Filter applies AND operation on its set fields.
type Filter struct {
	IDs  []string
	Role Role
}

func (f Filter) Match(usr User) bool {
	if f.IDs != nil && !core.ContainsString(f.IDs, usr.ID) {
		return false
	}
	if f.Role != "" && usr.Role != f.Role {
		return false
	}
	return true
}
