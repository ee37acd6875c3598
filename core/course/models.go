package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type Course struct {
	ID          string      `json:"id"`
	CourseCode  string      `json:"courseCode"`
	CourseName  string      `json:"courseName"`
	Description string      `json:"description"`
	Teacher     null.String `json:"teacher"`
	Students    []string    `json:"students"`
	CreatedAt   time.Time   `json:"createdAt"` // UTC
	UpdatedAt   time.Time   `json:"updatedAt"` // UTC
}

// TeacherID is empty when no teacher is assigned.
func (c Course) TeacherID() string {
	if !c.Teacher.Valid {
		return ""
	}
	return c.Teacher.String
}

func (c Course) HasStudent(studentID string) bool {
	return core.ContainsString(c.Students, studentID)
}

// Member is the populated view of a course teacher or student.
type Member struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Role      user.Role   `json:"role"`
	Status    user.Status `json:"status"`
}

func NewMember(usr user.User) Member {
	return Member{
		ID:        usr.ID,
		UserID:    usr.UserID,
		Username:  usr.Username,
		Email:     usr.Email,
		FirstName: usr.FirstName,
		LastName:  usr.LastName,
		Role:      usr.Role,
		Status:    usr.Status,
	}
}

// Detail is a Course with its teacher, students and activities populated.
// Archived members are listed with their status.
type Detail struct {
	ID          string     `json:"id"`
	CourseCode  string     `json:"courseCode"`
	CourseName  string     `json:"courseName"`
	Description string     `json:"description"`
	Teacher     *Member    `json:"teacher"`
	Students    []Member   `json:"students"`
	Activities  []Activity `json:"activities"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	CourseCode  string      `json:"courseCode" validate:"required,max=20"`
	CourseName  string      `json:"courseName" validate:"required,max=200"`
	Description string      `json:"description" validate:"max=2000"`
	TeacherID   null.String `json:"teacherId"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.CourseCode = core.CleanString(nc.CourseCode)
	nc.CourseName = core.CleanString(nc.CourseName)
	nc.Description = core.CleanString(nc.Description)
	nc.TeacherID = cleanID(nc.TeacherID)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	if nc.TeacherID.Valid {
		return core.CheckID("teacherId", nc.TeacherID.String)
	}
	return nil
}

// OptionalID tells an absent JSON value apart from an explicit null.
type OptionalID struct {
	Set   bool
	Value null.String
}

func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	return o.Value.UnmarshalJSON(data)
}

// SetID is a test & caller helper: an empty id means unassign.
func SetID(id string) OptionalID {
	return OptionalID{Set: true, Value: null.NewString(id, id != "")}
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// TeacherID set to null (or "") unassigns the teacher.
type UpdateCourse struct {
	CourseCode  *string    `json:"courseCode" validate:"omitempty,notblank,max=20"`
	CourseName  *string    `json:"courseName" validate:"omitempty,notblank,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	TeacherID   OptionalID `json:"teacherId" validate:"-"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.CourseCode = core.CleanStringPtr(uc.CourseCode)
	uc.CourseName = core.CleanStringPtr(uc.CourseName)
	uc.Description = core.CleanStringPtr(uc.Description)
	uc.TeacherID.Value = cleanID(uc.TeacherID.Value)

	if err := validate.Struct(uc); err != nil {
		return err
	}
	if uc.TeacherID.Value.Valid {
		return core.CheckID("teacherId", uc.TeacherID.Value.String)
	}
	return nil
}

type AssignTeacher struct {
	TeacherID string `json:"teacherId" validate:"required"`
}

func (at *AssignTeacher) Validate(validate *validator.Validate) error {
	at.TeacherID = core.CleanString(at.TeacherID)
	if err := validate.Struct(at); err != nil {
		return err
	}
	return core.CheckID("teacherId", at.TeacherID)
}

type EnrollStudent struct {
	StudentID string `json:"studentId" validate:"required"`
}

type QueryFilter struct {
	Search    string `query:"search"`
	TeacherID string `query:"teacherId"`
	StudentID string `query:"studentId"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.TeacherID = core.CleanString(qf.TeacherID)
	qf.StudentID = core.CleanString(qf.StudentID)
}

// cleanID trims id; a blank id is treated as null.
func cleanID(id null.String) null.String {
	if !id.Valid {
		return id
	}
	s := core.CleanString(id.String)
	return null.NewString(s, s != "")
}
