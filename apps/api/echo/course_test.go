package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
	testutil "github.com/trezcool/shule/tests"
)

func Test_courseApi_createUpdate(t *testing.T) {
	server, env := setup(t)
	admin := testutil.CreateUser(t, env.UserRepo, user.RoleAdmin, "admin")
	teacher := testutil.CreateUser(t, env.UserRepo, user.RoleTeacher, "teacher")
	other := testutil.CreateUser(t, env.UserRepo, user.RoleTeacher, "other")
	student := testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "student")
	archived := testutil.CreateUser(t, env.UserRepo, user.RoleTeacher, "gone", user.StatusArchived)

	adminToken := getToken(t, env, admin)
	newCourse := func(code, teacherID string) course.NewCourse {
		return course.NewCourse{CourseCode: code, CourseName: "Course " + code, TeacherID: null.NewString(teacherID, teacherID != "")}
	}

	runTests(t, server, []httpTest{
		{name: "admin required", method: http.MethodPost, path: "/api/courses", body: newCourse("M1", ""), token: getToken(t, env, teacher), wantCode: http.StatusForbidden},
		{name: "missing fields", method: http.MethodPost, path: "/api/courses", body: course.NewCourse{}, token: adminToken, wantCode: http.StatusBadRequest},
		{name: "malformed teacher", method: http.MethodPost, path: "/api/courses", body: newCourse("M1", "lol"), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "unknown teacher", method: http.MethodPost, path: "/api/courses", body: newCourse("M1", core.NewID()), token: adminToken, wantCode: http.StatusNotFound},
		{name: "student as teacher", method: http.MethodPost, path: "/api/courses", body: newCourse("M1", student.ID), token: adminToken, wantCode: http.StatusNotFound},
		{name: "archived teacher", method: http.MethodPost, path: "/api/courses", body: newCourse("M1", archived.ID), token: adminToken, wantCode: http.StatusNotFound},
	})
	assert.Empty(t, testutil.Reload(t, env.UserRepo, teacher).AssignedCourses())

	resp := do(t, server, httpTest{method: http.MethodPost, path: "/api/courses", body: newCourse("M1", teacher.ID), token: adminToken, wantCode: http.StatusCreated})
	var crs course.Course
	decode(t, resp.Data, &crs)
	assert.Equal(t, null.StringFrom(teacher.ID), crs.Teacher)
	assert.Equal(t, []string{crs.ID}, testutil.Reload(t, env.UserRepo, teacher).AssignedCourses())

	resp = do(t, server, httpTest{method: http.MethodPost, path: "/api/courses", body: newCourse("M1", ""), token: adminToken, wantCode: http.StatusBadRequest})
	assert.Contains(t, resp.Errors, "courseCode")

	path := "/api/courses/" + crs.ID
	runTests(t, server, []httpTest{
		{name: "update: unknown", method: http.MethodPut, path: "/api/courses/" + core.NewID(), body: map[string]interface{}{}, token: adminToken, wantCode: http.StatusNotFound},
		{name: "update: malformed", method: http.MethodPut, path: "/api/courses/lol", body: map[string]interface{}{}, token: adminToken, wantCode: http.StatusBadRequest},
		{
			name: "update: reassign", method: http.MethodPut, path: path,
			body: map[string]interface{}{"courseName": "Algebra", "teacherId": other.ID}, token: adminToken, wantCode: http.StatusOK,
		},
	})
	assert.Empty(t, testutil.Reload(t, env.UserRepo, teacher).AssignedCourses())
	assert.Equal(t, []string{crs.ID}, testutil.Reload(t, env.UserRepo, other).AssignedCourses())

	do(t, server, httpTest{
		method: http.MethodPut, path: path, body: map[string]interface{}{"teacherId": nil}, token: adminToken, wantCode: http.StatusOK,
	})
	assert.Empty(t, testutil.Reload(t, env.UserRepo, other).AssignedCourses())
	crs = testutil.ReloadCourse(t, env.CourseRepo, crs)
	assert.False(t, crs.Teacher.Valid)
	assert.Equal(t, "Algebra", crs.CourseName)

	runTests(t, server, []httpTest{
		{name: "assign: missing", method: http.MethodPut, path: path + "/assign-teacher", body: course.AssignTeacher{}, token: adminToken, wantCode: http.StatusBadRequest},
		{name: "assign: student", method: http.MethodPut, path: path + "/assign-teacher", body: course.AssignTeacher{TeacherID: student.ID}, token: adminToken, wantCode: http.StatusNotFound},
		{name: "assign", method: http.MethodPut, path: path + "/assign-teacher", body: course.AssignTeacher{TeacherID: teacher.ID}, token: adminToken, wantCode: http.StatusOK},
		{name: "assign again", method: http.MethodPut, path: path + "/assign-teacher", body: course.AssignTeacher{TeacherID: teacher.ID}, token: adminToken, wantCode: http.StatusOK},
	})
	assert.Equal(t, []string{crs.ID}, testutil.Reload(t, env.UserRepo, teacher).AssignedCourses())
}

func Test_courseApi_members(t *testing.T) {
	server, env := setup(t)
	admin := testutil.CreateUser(t, env.UserRepo, user.RoleAdmin, "admin")
	teacher := testutil.CreateUser(t, env.UserRepo, user.RoleTeacher, "teacher")
	other := testutil.CreateUser(t, env.UserRepo, user.RoleTeacher, "other")
	student := testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "student")
	pending := testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "pending", user.StatusPending)

	crs := testutil.CreateCourse(t, env.CourseRepo, "PHY101", teacher.ID)
	path := "/api/courses/" + crs.ID + "/students"
	teacherToken := getToken(t, env, teacher)

	runTests(t, server, []httpTest{
		{name: "student forbidden", method: http.MethodPost, path: path, body: course.EnrollStudent{StudentID: student.ID}, token: getToken(t, env, student), wantCode: http.StatusForbidden},
		{name: "not the course teacher", method: http.MethodPost, path: path, body: course.EnrollStudent{StudentID: student.ID}, token: getToken(t, env, other), wantCode: http.StatusForbidden},
		{name: "malformed student", method: http.MethodPost, path: path, body: course.EnrollStudent{StudentID: "lol"}, token: teacherToken, wantCode: http.StatusBadRequest},
		{name: "malformed course", method: http.MethodPost, path: "/api/courses/lol/students", body: course.EnrollStudent{StudentID: student.ID}, token: teacherToken, wantCode: http.StatusBadRequest},
		{name: "unknown course", method: http.MethodPost, path: "/api/courses/" + core.NewID() + "/students", body: course.EnrollStudent{StudentID: student.ID}, token: teacherToken, wantCode: http.StatusNotFound},
		{name: "teacher as student", method: http.MethodPost, path: path, body: course.EnrollStudent{StudentID: other.ID}, token: teacherToken, wantCode: http.StatusNotFound},
		{name: "inactive student", method: http.MethodPost, path: path, body: course.EnrollStudent{StudentID: pending.ID}, token: teacherToken, wantCode: http.StatusNotFound},
		{name: "enroll", method: http.MethodPost, path: path, body: course.EnrollStudent{StudentID: student.ID}, token: teacherToken, wantCode: http.StatusOK},
		{name: "enroll again", method: http.MethodPost, path: path, body: course.EnrollStudent{StudentID: student.ID}, token: getToken(t, env, admin), wantCode: http.StatusOK},
	})
	assert.Equal(t, []string{student.ID}, testutil.ReloadCourse(t, env.CourseRepo, crs).Students)
	assert.Equal(t, []string{crs.ID}, testutil.Reload(t, env.UserRepo, student).EnrolledCourses())
	assert.Len(t, env.Mail.SentMessages(), 1)

	resp := do(t, server, httpTest{path: "/api/courses/" + crs.ID, token: getToken(t, env, student), wantCode: http.StatusOK})
	var detail course.Detail
	decode(t, resp.Data, &detail)
	require.NotNil(t, detail.Teacher)
	assert.Equal(t, teacher.ID, detail.Teacher.ID)
	require.Len(t, detail.Students, 1)
	assert.Equal(t, student.ID, detail.Students[0].ID)

	runTests(t, server, []httpTest{
		{name: "remove", method: http.MethodDelete, path: path + "/" + student.ID, token: teacherToken, wantCode: http.StatusOK},
		{name: "remove again", method: http.MethodDelete, path: path + "/" + student.ID, token: teacherToken, wantCode: http.StatusOK},
		{name: "remove: malformed", method: http.MethodDelete, path: path + "/lol", token: teacherToken, wantCode: http.StatusBadRequest},
	})
	assert.Empty(t, testutil.ReloadCourse(t, env.CourseRepo, crs).Students)
	assert.Empty(t, testutil.Reload(t, env.UserRepo, student).EnrolledCourses())
}

func Test_courseApi_workAndDelete(t *testing.T) {
	server, env := setup(t)
	admin := testutil.CreateUser(t, env.UserRepo, user.RoleAdmin, "admin")
	teacher := testutil.CreateUser(t, env.UserRepo, user.RoleTeacher, "teacher")
	student := testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "student")
	classmate := testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "classmate")

	adminToken := getToken(t, env, admin)
	teacherToken := getToken(t, env, teacher)
	studentToken := getToken(t, env, student)

	resp := do(t, server, httpTest{
		method: http.MethodPost, path: "/api/courses", token: adminToken, wantCode: http.StatusCreated,
		body: course.NewCourse{CourseCode: "BIO101", CourseName: "Biology", TeacherID: null.StringFrom(teacher.ID)},
	})
	var crs course.Course
	decode(t, resp.Data, &crs)
	path := "/api/courses/" + crs.ID
	for _, s := range []user.User{student, classmate} {
		do(t, server, httpTest{method: http.MethodPost, path: path + "/students", body: course.EnrollStudent{StudentID: s.ID}, token: teacherToken, wantCode: http.StatusOK})
	}

	runTests(t, server, []httpTest{
		{name: "activity: student", method: http.MethodPost, path: path + "/activities", body: course.NewActivity{Title: "Quiz"}, token: studentToken, wantCode: http.StatusForbidden},
		{name: "activity: missing title", method: http.MethodPost, path: path + "/activities", body: course.NewActivity{}, token: teacherToken, wantCode: http.StatusBadRequest},
	})
	resp = do(t, server, httpTest{
		method: http.MethodPost, path: path + "/activities", token: teacherToken, wantCode: http.StatusCreated,
		body: course.NewActivity{Title: "Cells", Type: course.ActivityQuiz, MaxScore: 20},
	})
	var act course.Activity
	decode(t, resp.Data, &act)

	resp = do(t, server, httpTest{path: path + "/activities", token: studentToken, wantCode: http.StatusOK})
	assert.Equal(t, 1, resp.Count)

	grade := func(studentID string, score float64) course.NewGrade {
		return course.NewGrade{StudentID: studentID, ActivityID: null.StringFrom(act.ID), Score: score}
	}
	runTests(t, server, []httpTest{
		{name: "grade: student", method: http.MethodPost, path: path + "/grades", body: grade(student.ID, 10), token: studentToken, wantCode: http.StatusForbidden},
		{name: "grade: above max", method: http.MethodPost, path: path + "/grades", body: grade(student.ID, 21), token: teacherToken, wantCode: http.StatusBadRequest},
		{name: "grade: not enrolled", method: http.MethodPost, path: path + "/grades", body: grade(teacher.ID, 10), token: teacherToken, wantCode: http.StatusBadRequest},
		{name: "grade", method: http.MethodPost, path: path + "/grades", body: grade(student.ID, 18), token: teacherToken, wantCode: http.StatusCreated},
		{name: "grade classmate", method: http.MethodPost, path: path + "/grades", body: grade(classmate.ID, 12), token: adminToken, wantCode: http.StatusCreated},
	})

	resp = do(t, server, httpTest{path: path + "/grades", token: studentToken, wantCode: http.StatusOK})
	var grades []course.Grade
	decode(t, resp.Data, &grades)
	require.Len(t, grades, 1)
	assert.Equal(t, student.ID, grades[0].Student)
	resp = do(t, server, httpTest{path: path + "/grades", token: teacherToken, wantCode: http.StatusOK})
	assert.Equal(t, 2, resp.Count)

	runTests(t, server, []httpTest{
		{name: "delete: teacher", method: http.MethodDelete, path: path, token: teacherToken, wantCode: http.StatusForbidden},
		{name: "delete: unknown", method: http.MethodDelete, path: "/api/courses/" + core.NewID(), token: adminToken, wantCode: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, path: path, token: adminToken, wantCode: http.StatusOK, wantMsg: "course deleted"},
		{name: "deleted", path: path, token: adminToken, wantCode: http.StatusNotFound},
	})
	assert.Empty(t, testutil.Reload(t, env.UserRepo, teacher).AssignedCourses())
	assert.Empty(t, testutil.Reload(t, env.UserRepo, student).EnrolledCourses())
	assert.Empty(t, testutil.Reload(t, env.UserRepo, classmate).EnrolledCourses())

	resp = do(t, server, httpTest{path: "/api/courses", token: studentToken, wantCode: http.StatusOK})
	assert.Equal(t, 0, resp.Count)
	assert.Equal(t, "[]", string(resp.Data))
}
