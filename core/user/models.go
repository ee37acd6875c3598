package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/shule/core"
)

type Role string

// Roles
const (
	RoleAdmin   Role = "Admin"
	RoleTeacher Role = "Teacher"
	RoleStudent Role = "Student"
)

type Status string

// Statuses
const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
	StatusArchived  Status = "archived"
)

const (
	SexMale   = "Male"
	SexFemale = "Female"
	SexOther  = "Other"
)

var (
	AllRoles    = []Role{RoleAdmin, RoleTeacher, RoleStudent}
	AllStatuses = []Status{StatusActive, StatusInactive, StatusSuspended, StatusPending, StatusArchived}

	// RestorableStatuses are the statuses an archived user may be restored to.
	RestorableStatuses = []Status{StatusActive, StatusInactive, StatusSuspended, StatusPending}
)

func (r Role) IsValid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (s Status) IsValid() bool {
	for _, status := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s Status) IsRestorable() bool {
	for _, status := range RestorableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type (
	// TeacherProfile is the payload carried by Teacher users only.
	TeacherProfile struct {
		AssignedCourses []string `json:"assignedCourses"`
	}

	// StudentProfile is the payload carried by Student users only.
	StudentProfile struct {
		EnrolledCourses []string `json:"enrolledCourses"`
	}

	// User is tagged by Role: Teacher is set for teachers, Student for students, neither for admins.
	User struct {
		ID             string          `json:"id"`
		UserID         string          `json:"userId"`
		Username       string          `json:"username"`
		Email          string          `json:"email"`
		FirstName      string          `json:"firstName"`
		MiddleName     string          `json:"middleName,omitempty"`
		LastName       string          `json:"lastName"`
		Phone          string          `json:"phone,omitempty"`
		Address        string          `json:"address,omitempty"`
		Sex            string          `json:"sex,omitempty"`
		Gender         string          `json:"gender,omitempty"`
		Bio            string          `json:"bio,omitempty"`
		ProfilePicture string          `json:"profilePicture,omitempty"`
		Role           Role            `json:"role"`
		Status         Status          `json:"status"`
		Teacher        *TeacherProfile `json:"teacher,omitempty"`
		Student        *StudentProfile `json:"student,omitempty"`
		PasswordHash   []byte          `json:"-"`
		CreatedAt      time.Time       `json:"createdAt"` // UTC
		UpdatedAt      time.Time       `json:"updatedAt"` // UTC
		LastLogin      null.Time       `json:"lastLogin"` // UTC
	}
)

// New returns a User of the given role carrying the matching empty payload.
func New(role Role) User {
	usr := User{Role: role, Status: StatusPending}
	switch role {
	case RoleTeacher:
		usr.Teacher = &TeacherProfile{AssignedCourses: []string{}}
	case RoleStudent:
		usr.Student = &StudentProfile{EnrolledCourses: []string{}}
	}
	return usr
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

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsStudent() bool { return u.Role == RoleStudent }
func (u User) IsActive() bool  { return u.Status == StatusActive }

func (u User) FullName() string {
	name := u.FirstName
	if u.MiddleName != "" {
		name += " " + u.MiddleName
	}
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

// AssignedCourses is nil for non teachers.
func (u User) AssignedCourses() []string {
	if u.Teacher == nil {
		return nil
	}
	return u.Teacher.AssignedCourses
}

// EnrolledCourses is nil for non students.
func (u User) EnrolledCourses() []string {
	if u.Student == nil {
		return nil
	}
	return u.Student.EnrolledCourses
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username        string `json:"username" validate:"required,min=3,max=50,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	FirstName       string `json:"firstName" validate:"required,max=100"`
	MiddleName      string `json:"middleName" validate:"max=100"`
	LastName        string `json:"lastName" validate:"required,max=100"`
	Phone           string `json:"phone" validate:"max=30"`
	Address         string `json:"address" validate:"max=255"`
	Sex             string `json:"sex" validate:"omitempty,sex"`
	Gender          string `json:"gender" validate:"max=50"`
	Bio             string `json:"bio" validate:"max=1000"`
	ProfilePicture  string `json:"profilePicture" validate:"omitempty,uri"`
	Role            Role   `json:"role" validate:"required,role"`
	Status          Status `json:"status" validate:"omitempty,status,ne=archived"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Clean() {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.MiddleName = core.CleanString(nu.MiddleName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Phone = core.CleanString(nu.Phone)
	nu.Address = core.CleanString(nu.Address)
	nu.Gender = core.CleanString(nu.Gender)
	nu.Bio = core.CleanString(nu.Bio)
	nu.ProfilePicture = core.CleanString(nu.ProfilePicture)
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Clean()
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
// nil fields are left untouched.
type UpdateUser struct {
	Username        *string `json:"username" validate:"omitempty,min=3,max=50,alphanum_"`
	Email           *string `json:"email" validate:"omitempty,email"`
	FirstName       *string `json:"firstName" validate:"omitempty,notblank,max=100"`
	MiddleName      *string `json:"middleName" validate:"omitempty,max=100"`
	LastName        *string `json:"lastName" validate:"omitempty,notblank,max=100"`
	Phone           *string `json:"phone" validate:"omitempty,max=30"`
	Address         *string `json:"address" validate:"omitempty,max=255"`
	Sex             *string `json:"sex" validate:"omitempty,sex"`
	Gender          *string `json:"gender" validate:"omitempty,max=50"`
	Bio             *string `json:"bio" validate:"omitempty,max=1000"`
	ProfilePicture  *string `json:"profilePicture" validate:"omitempty,uri"`
	Role            *Role   `json:"role" validate:"omitempty,role"`
	Status          *Status `json:"status" validate:"omitempty,status"`
	Password        string  `json:"password"`
	PasswordConfirm string  `json:"passwordConfirm" validate:"required_with=Password,eqfield=Password"`

	// set by Validate for the password similarity checks
	orig User
}

func (uu *UpdateUser) Clean() {
	uu.Username = core.CleanStringPtr(uu.Username, true /* lower */)
	uu.Email = core.CleanStringPtr(uu.Email, true /* lower */)
	uu.FirstName = core.CleanStringPtr(uu.FirstName)
	uu.MiddleName = core.CleanStringPtr(uu.MiddleName)
	uu.LastName = core.CleanStringPtr(uu.LastName)
	uu.Phone = core.CleanStringPtr(uu.Phone)
	uu.Address = core.CleanStringPtr(uu.Address)
	uu.Gender = core.CleanStringPtr(uu.Gender)
	uu.Bio = core.CleanStringPtr(uu.Bio)
	uu.ProfilePicture = core.CleanStringPtr(uu.ProfilePicture)
}

// Validate checks the update against the original User. Role changes are rejected.
func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	uu.Clean()
	uu.orig = origUsr
	if err := validate.Struct(uu); err != nil {
		return err
	}
	if uu.Role != nil && *uu.Role != origUsr.Role {
		return core.NewValidationError(ErrRoleImmutable, core.FieldError{Field: "role", Error: ErrRoleImmutable.Error()})
	}
	return nil
}

// ChangesProtectedFields reports whether the update touches fields only admins may set.
func (uu *UpdateUser) ChangesProtectedFields() bool {
	return uu.Status != nil || uu.Role != nil || uu.Username != nil || uu.Email != nil
}

// apply copies the set fields onto usr.
func (uu *UpdateUser) apply(usr *User) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&usr.Username, uu.Username)
	set(&usr.Email, uu.Email)
	set(&usr.FirstName, uu.FirstName)
	set(&usr.MiddleName, uu.MiddleName)
	set(&usr.LastName, uu.LastName)
	set(&usr.Phone, uu.Phone)
	set(&usr.Address, uu.Address)
	set(&usr.Sex, uu.Sex)
	set(&usr.Gender, uu.Gender)
	set(&usr.Bio, uu.Bio)
	set(&usr.ProfilePicture, uu.ProfilePicture)
	if uu.Status != nil {
		usr.Status = *uu.Status
	}
}

// ResetPassword carries the uid & token of a password reset link along with the new password.
type ResetPassword struct {
	UID             string `json:"uid" validate:"required"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (rp *ResetPassword) Validate(validate *validator.Validate) error {
	rp.UID = core.CleanString(rp.UID)
	rp.Token = core.CleanString(rp.Token)
	return validate.Struct(rp)
}

type RestoreUser struct {
	Status Status `json:"status" validate:"omitempty,status"`
}

type GetFilter struct {
	ID              string
	UserID          string
	Username        string
	Email           string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search   string   `query:"search"`
	IDs      []string `query:"id"`
	Roles    []Role   `query:"role"`
	Statuses []Status `query:"status"`
	Page     int      `query:"page"`
	Limit    int      `query:"limit"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
