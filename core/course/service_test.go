package course_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
	testutil "github.com/trezcool/shule/tests"
)

type fixture struct {
	env      *testutil.Env
	admin    user.User
	teacher  user.User
	teacher2 user.User
	student  user.User
	student2 user.User
}

func newFixture(t *testing.T) fixture {
	env := testutil.NewEnv()
	return fixture{
		env:      env,
		admin:    testutil.CreateUser(t, env.UserRepo, user.RoleAdmin, "admin"),
		teacher:  testutil.CreateUser(t, env.UserRepo, user.RoleTeacher, "teacher"),
		teacher2: testutil.CreateUser(t, env.UserRepo, user.RoleTeacher, "teacher2"),
		student:  testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "student"),
		student2: testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "student2"),
	}
}

func (f fixture) reload(t *testing.T, usr user.User) user.User {
	return testutil.Reload(t, f.env.UserRepo, usr)
}

// assertConsistent checks that every course reference has its back-reference and vice versa.
func (f fixture) assertConsistent(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	courses, err := f.env.CourseRepo.QueryCourses(ctx, nil)
	require.NoError(t, err)
	users, _, err := f.env.UserRepo.QueryUsers(ctx, nil, nil, nil)
	require.NoError(t, err)

	byID := make(map[string]course.Course, len(courses))
	for _, crs := range courses {
		byID[crs.ID] = crs
	}
	for _, usr := range users {
		for _, id := range usr.AssignedCourses() {
			assert.Equal(t, usr.ID, byID[id].TeacherID(), "teacher %s lists course %s", usr.Username, id)
		}
		for _, id := range usr.EnrolledCourses() {
			assert.True(t, byID[id].HasStudent(usr.ID), "student %s lists course %s", usr.Username, id)
		}
	}
	usersByID := make(map[string]user.User, len(users))
	for _, usr := range users {
		usersByID[usr.ID] = usr
	}
	for _, crs := range courses {
		if id := crs.TeacherID(); id != "" {
			assert.Contains(t, usersByID[id].AssignedCourses(), crs.ID)
		}
		for _, id := range crs.Students {
			assert.Contains(t, usersByID[id].EnrolledCourses(), crs.ID)
		}
	}
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.env.CourseSvc
	suspended := testutil.CreateUser(t, f.env.UserRepo, user.RoleTeacher, "suspended", user.StatusSuspended)

	tests := []struct {
		name    string
		nc      course.NewCourse
		wantErr error
	}{
		{name: "malformed teacher id", nc: course.NewCourse{CourseCode: "X1", CourseName: "X", TeacherID: null.StringFrom("lol")}, wantErr: core.NewMalformedIDError("teacherId", "lol")},
		{name: "unknown teacher", nc: course.NewCourse{CourseCode: "X1", CourseName: "X", TeacherID: null.StringFrom(core.NewID())}, wantErr: course.ErrTeacherNotFound},
		{name: "student as teacher", nc: course.NewCourse{CourseCode: "X1", CourseName: "X", TeacherID: null.StringFrom(f.student.ID)}, wantErr: course.ErrTeacherNotFound},
		{name: "inactive teacher", nc: course.NewCourse{CourseCode: "X1", CourseName: "X", TeacherID: null.StringFrom(suspended.ID)}, wantErr: course.ErrTeacherNotFound},
		{name: "without teacher", nc: course.NewCourse{CourseCode: "NT1", CourseName: "No teacher", TeacherID: null.StringFrom("  ")}},
		{name: "with teacher", nc: course.NewCourse{CourseCode: "MATH1", CourseName: "Maths", TeacherID: null.StringFrom(f.teacher.ID)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crs, err := svc.Create(ctx, tt.nc)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, crs.ID)
			assert.Equal(t, core.CleanString(tt.nc.TeacherID.String), crs.TeacherID())
			assert.Empty(t, crs.Students)
		})
	}

	t.Run("duplicate code", func(t *testing.T) {
		_, err := svc.Create(ctx, course.NewCourse{CourseCode: "MATH1", CourseName: "Again"})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), err)
		assert.Equal(t, course.ErrCodeExists, verr.Err)
	})

	assert.Len(t, f.reload(t, f.teacher).AssignedCourses(), 1)
	f.assertConsistent(t)
}

func TestService_TeacherAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.env.CourseSvc

	crs, err := svc.Create(ctx, course.NewCourse{CourseCode: "PHY1", CourseName: "Physics", TeacherID: null.StringFrom(f.teacher.ID)})
	require.NoError(t, err)

	t.Run("same teacher again writes nothing", func(t *testing.T) {
		got, err := svc.AssignTeacher(ctx, crs.ID, course.AssignTeacher{TeacherID: f.teacher.ID})
		require.NoError(t, err)
		assert.Equal(t, crs.UpdatedAt, got.UpdatedAt)
		assert.Equal(t, []string{crs.ID}, f.reload(t, f.teacher).AssignedCourses())
	})

	t.Run("reassign", func(t *testing.T) {
		got, err := svc.AssignTeacher(ctx, crs.ID, course.AssignTeacher{TeacherID: f.teacher2.ID})
		require.NoError(t, err)
		assert.Equal(t, f.teacher2.ID, got.TeacherID())
		assert.Empty(t, f.reload(t, f.teacher).AssignedCourses())
		assert.Equal(t, []string{crs.ID}, f.reload(t, f.teacher2).AssignedCourses())
		f.assertConsistent(t)
	})

	t.Run("assign a student", func(t *testing.T) {
		_, err := svc.AssignTeacher(ctx, crs.ID, course.AssignTeacher{TeacherID: f.student.ID})
		assert.Equal(t, course.ErrTeacherNotFound, err)
	})

	t.Run("update keeps teacher when absent", func(t *testing.T) {
		got, err := svc.Update(ctx, crs.ID, course.UpdateCourse{CourseName: strPtr("Physics I")})
		require.NoError(t, err)
		assert.Equal(t, "Physics I", got.CourseName)
		assert.Equal(t, f.teacher2.ID, got.TeacherID())
	})

	t.Run("update moves teacher", func(t *testing.T) {
		got, err := svc.Update(ctx, crs.ID, course.UpdateCourse{TeacherID: course.SetID(f.teacher.ID)})
		require.NoError(t, err)
		assert.Equal(t, f.teacher.ID, got.TeacherID())
		f.assertConsistent(t)
	})

	t.Run("update unassigns teacher", func(t *testing.T) {
		got, err := svc.Update(ctx, crs.ID, course.UpdateCourse{TeacherID: course.SetID("")})
		require.NoError(t, err)
		assert.False(t, got.Teacher.Valid)
		assert.Empty(t, f.reload(t, f.teacher).AssignedCourses())
		f.assertConsistent(t)
	})

	t.Run("update code taken", func(t *testing.T) {
		other := testutil.CreateCourse(t, f.env.CourseRepo, "TAKEN", "")
		_, err := svc.Update(ctx, crs.ID, course.UpdateCourse{CourseCode: strPtr(other.CourseCode)})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), err)
		assert.Equal(t, "courseCode", verr.Fields[0].Field)
	})
}

func TestService_Students(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.env.CourseSvc

	crs, err := svc.Create(ctx, course.NewCourse{CourseCode: "HIS1", CourseName: "History", TeacherID: null.StringFrom(f.teacher.ID)})
	require.NoError(t, err)
	archived := testutil.CreateUser(t, f.env.UserRepo, user.RoleStudent, "archived", user.StatusArchived)

	tests := []struct {
		name      string
		actor     user.User
		studentID string
		wantErr   error
	}{
		{name: "student actor", actor: f.student, studentID: f.student.ID, wantErr: course.ErrForbidden},
		{name: "other teacher", actor: f.teacher2, studentID: f.student.ID, wantErr: course.ErrNotCourseTeacher},
		{name: "archived student", actor: f.admin, studentID: archived.ID, wantErr: course.ErrStudentNotFound},
		{name: "teacher as student", actor: f.admin, studentID: f.teacher2.ID, wantErr: course.ErrStudentNotFound},
		{name: "malformed student id", actor: f.admin, studentID: "lol", wantErr: core.NewMalformedIDError("studentId", "lol")},
		{name: "by course teacher", actor: f.teacher, studentID: f.student.ID},
		{name: "by admin", actor: f.admin, studentID: f.student2.ID},
		{name: "twice", actor: f.admin, studentID: f.student2.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := svc.EnrollStudent(ctx, tt.actor, crs.ID, tt.studentID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, d.Teacher)
			assert.Equal(t, f.teacher.ID, d.Teacher.ID)
		})
	}

	got := testutil.ReloadCourse(t, f.env.CourseRepo, crs)
	assert.ElementsMatch(t, []string{f.student.ID, f.student2.ID}, got.Students)
	assert.Equal(t, []string{crs.ID}, f.reload(t, f.student2).EnrolledCourses())
	// one email per actual enrollment
	assert.Len(t, f.env.Mail.SentMessages(), 2)
	f.assertConsistent(t)

	t.Run("detail lists archived members", func(t *testing.T) {
		_, err := f.env.UserSvc.Archive(ctx, f.admin, f.student.ID)
		require.NoError(t, err)
		d, err := svc.Get(ctx, crs.ID)
		require.NoError(t, err)
		require.Len(t, d.Students, 2)
		statuses := []user.Status{d.Students[0].Status, d.Students[1].Status}
		assert.ElementsMatch(t, []user.Status{user.StatusActive, user.StatusArchived}, statuses)
	})

	t.Run("remove", func(t *testing.T) {
		d, err := svc.RemoveStudent(ctx, f.teacher, crs.ID, f.student.ID)
		require.NoError(t, err)
		assert.Len(t, d.Students, 1)
		assert.Empty(t, f.reload(t, f.student).EnrolledCourses())
		f.assertConsistent(t)
	})

	t.Run("remove non member", func(t *testing.T) {
		d, err := svc.RemoveStudent(ctx, f.admin, crs.ID, f.student.ID)
		require.NoError(t, err)
		assert.Len(t, d.Students, 1)
	})
}

func TestService_WorkAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.env.CourseSvc

	crs, err := svc.Create(ctx, course.NewCourse{CourseCode: "ART1", CourseName: "Art", TeacherID: null.StringFrom(f.teacher.ID)})
	require.NoError(t, err)
	_, err = svc.EnrollStudent(ctx, f.admin, crs.ID, f.student.ID)
	require.NoError(t, err)

	_, err = svc.CreateActivity(ctx, f.teacher2, crs.ID, course.NewActivity{Title: "Sketch"})
	assert.Equal(t, course.ErrNotCourseTeacher, err)

	act, err := svc.CreateActivity(ctx, f.teacher, crs.ID, course.NewActivity{Title: "Sketch", MaxScore: 20})
	require.NoError(t, err)
	assert.Equal(t, course.ActivityAssignment, act.Type)

	t.Run("grades", func(t *testing.T) {
		_, err := svc.RecordGrade(ctx, f.teacher, crs.ID, course.NewGrade{StudentID: f.student2.ID, Score: 10})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), err)
		assert.Equal(t, course.ErrNotEnrolled, verr.Err)

		_, err = svc.RecordGrade(ctx, f.teacher, crs.ID, course.NewGrade{StudentID: f.student.ID, ActivityID: null.StringFrom(act.ID), Score: 25})
		require.True(t, errors.As(err, &verr), err)
		assert.Equal(t, "score", verr.Fields[0].Field)

		_, err = svc.RecordGrade(ctx, f.student, crs.ID, course.NewGrade{StudentID: f.student.ID, Score: 100})
		assert.Equal(t, course.ErrForbidden, err)

		grade, err := svc.RecordGrade(ctx, f.teacher, crs.ID, course.NewGrade{StudentID: f.student.ID, ActivityID: null.StringFrom(act.ID), Score: 18})
		require.NoError(t, err)
		assert.Equal(t, f.teacher.ID, grade.GradedBy)

		own, err := svc.QueryGrades(ctx, f.student, crs.ID)
		require.NoError(t, err)
		assert.Len(t, own, 1)

		others, err := svc.QueryGrades(ctx, f.student2, crs.ID)
		require.NoError(t, err)
		assert.Empty(t, others)

		_, err = svc.QueryGrades(ctx, f.teacher2, crs.ID)
		assert.Equal(t, course.ErrNotCourseTeacher, err)
	})

	t.Run("delete cascades", func(t *testing.T) {
		_, err := svc.EnrollStudent(ctx, f.teacher, crs.ID, f.student2.ID)
		require.NoError(t, err)
		_, err = svc.CreateActivity(ctx, f.teacher, crs.ID, course.NewActivity{Title: "Portrait", Type: "project"})
		require.NoError(t, err)
		acts, err := f.env.Activities.QueryActivities(ctx, crs.ID)
		require.NoError(t, err)
		require.Len(t, acts, 2)

		require.NoError(t, svc.Delete(ctx, crs.ID))
		_, err = svc.GetByID(ctx, crs.ID)
		assert.Equal(t, course.ErrNotFound, err)
		assert.Empty(t, f.reload(t, f.teacher).AssignedCourses())
		assert.Empty(t, f.reload(t, f.student).EnrolledCourses())
		assert.Empty(t, f.reload(t, f.student2).EnrolledCourses())

		acts, err = f.env.Activities.QueryActivities(ctx, crs.ID)
		require.NoError(t, err)
		assert.Empty(t, acts)
		grades, err := f.env.Grades.QueryGrades(ctx, course.GradeFilter{Course: crs.ID})
		require.NoError(t, err)
		assert.Empty(t, grades)
		f.assertConsistent(t)
	})

	t.Run("delete missing", func(t *testing.T) {
		assert.Equal(t, course.ErrNotFound, svc.Delete(ctx, crs.ID))
	})
}

func TestService_Query(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.env.CourseSvc

	testutil.CreateCourse(t, f.env.CourseRepo, "ENG1", f.teacher.ID, f.student.ID)
	testutil.CreateCourse(t, f.env.CourseRepo, "ENG2", f.teacher2.ID)
	testutil.CreateCourse(t, f.env.CourseRepo, "GEO1", "", f.student.ID)

	tests := []struct {
		name    string
		filter  *course.QueryFilter
		want    int
		wantErr bool
	}{
		{name: "all", want: 3},
		{name: "by teacher", filter: &course.QueryFilter{TeacherID: f.teacher.ID}, want: 1},
		{name: "by student", filter: &course.QueryFilter{StudentID: f.student.ID}, want: 2},
		{name: "search", filter: &course.QueryFilter{Search: "eng"}, want: 2},
		{name: "malformed teacher", filter: &course.QueryFilter{TeacherID: "lol"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			courses, err := svc.Query(ctx, tt.filter)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, courses, tt.want)
		})
	}
}

func TestService_Reconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.env.CourseSvc

	ghost := core.NewID()
	crs := testutil.CreateCourse(t, f.env.CourseRepo, "BIO1", f.teacher.ID, f.student.ID, ghost)
	orphan := testutil.CreateCourse(t, f.env.CourseRepo, "GONE", f.teacher2.ID)
	require.NoError(t, f.env.UserRepo.AddAssignedCourse(ctx, f.teacher2.ID, orphan.ID))
	require.NoError(t, f.env.UserRepo.AddEnrolledCourse(ctx, f.student2.ID, crs.ID))
	_, err := f.env.Activities.CreateActivity(ctx, course.Activity{Course: orphan.ID, Title: "Lost"})
	require.NoError(t, err)
	require.NoError(t, f.env.CourseRepo.DeleteCourse(ctx, orphan.ID))

	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, course.ReconcileReport{
		StudentsPulled:          1,
		AssignedCoursesAdded:    1,
		AssignedCoursesPulled:   1,
		EnrolledCoursesAdded:    1,
		EnrolledCoursesPulled:   1,
		OrphanActivitiesDeleted: 1,
	}, report)
	f.assertConsistent(t)

	report, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Total())
}

func strPtr(s string) *string { return &s }
