package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

// Password satisfies the password policy.
const Password = "Sup3r-S3cret!"

// Env wires the services on top of the in-memory store.
type Env struct {
	Conf       *core.Config
	DB         *inmemdb.DB
	UserRepo   user.Repository
	CourseRepo course.Repository
	Activities course.ActivityRepository
	Grades     course.GradeRepository
	Mail       *emailsvc.ConsoleServiceMock
	Validate   *validator.Validate
	Translator ut.Translator
	UserSvc    *user.Service
	CourseSvc  *course.Service
}

func NewEnv() *Env {
	conf := core.NewTestConfig()
	db := inmemdb.Open()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	env := &Env{
		Conf:       conf,
		DB:         db,
		UserRepo:   inmemdb.NewUserRepository(db),
		CourseRepo: inmemdb.NewCourseRepository(db),
		Activities: inmemdb.NewActivityRepository(db),
		Grades:     inmemdb.NewGradeRepository(db),
		Mail:       emailsvc.NewConsoleServiceMock(conf),
		Validate:   validate,
		Translator: translator,
	}
	env.UserSvc = user.NewService(env.UserRepo, env.CourseRepo, db, env.Mail, validate, conf)
	env.CourseSvc = course.NewService(
		env.CourseRepo,
		env.Activities,
		env.Grades,
		inmemdb.NewUserRepository(db),
		db,
		env.Mail,
		validate,
		conf,
	)
	return env
}

// Reset empties the store and the sent emails.
func (env *Env) Reset() {
	env.DB.Flush()
	env.Mail.Reset()
}

// CreateUser stores an active user of role straight into repo; the username doubles as first name & email local part.
func CreateUser(t *testing.T, repo user.Repository, role user.Role, uname string, status ...user.Status) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.New(role)
	usr.Username = uname
	usr.Email = uname + "@test.cd"
	usr.FirstName = uname
	usr.LastName = string(role)
	usr.Status = user.StatusActive
	if len(status) > 0 {
		usr.Status = status[0]
	}
	usr.CreatedAt = now
	usr.UpdatedAt = now
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	uid, err := user.GenerateUserID(now)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr.UserID = uid

	usr, err = repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCourse stores a course straight into repo, without touching any back-reference.
func CreateCourse(t *testing.T, repo course.Repository, code string, teacherID string, studentIDs ...string) course.Course {
	t.Helper()

	now := time.Now().UTC()
	students := make([]string, 0, len(studentIDs))
	students = append(students, studentIDs...)
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		CourseCode: code,
		CourseName: "Course " + code,
		Teacher:    null.NewString(teacherID, teacherID != ""),
		Students:   students,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

// Reload fetches the current state of usr.
func Reload(t *testing.T, repo user.Repository, usr user.User) user.User {
	t.Helper()

	usr, err := repo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	if err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	return usr
}

// ReloadCourse fetches the current state of crs.
func ReloadCourse(t *testing.T, repo course.Repository, crs course.Course) course.Course {
	t.Helper()

	crs, err := repo.GetCourse(context.Background(), crs.ID)
	if err != nil {
		t.Fatalf("ReloadCourse() failed: %v", err)
	}
	return crs
}
