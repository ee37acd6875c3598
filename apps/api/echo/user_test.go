package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	testutil "github.com/trezcool/shule/tests"
)

func userIDs(users []user.User) []string {
	ids := make([]string, 0, len(users))
	for _, usr := range users {
		ids = append(ids, usr.ID)
	}
	return ids
}

func Test_userApi_query(t *testing.T) {
	server, env := setup(t)
	admin := testutil.CreateUser(t, env.UserRepo, user.RoleAdmin, "admin")
	teacher := testutil.CreateUser(t, env.UserRepo, user.RoleTeacher, "teacher")
	student := testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "student")
	pending := testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "newbie", user.StatusPending)
	archived := testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "gone", user.StatusArchived)

	adminToken := getToken(t, env, admin)
	path := func(params ...string) string {
		v := make(url.Values)
		for i := 0; i+1 < len(params); i += 2 {
			v.Add(params[i], params[i+1])
		}
		return "/api/users?" + v.Encode()
	}

	tests := []struct {
		name      string
		path      string
		token     string
		wantCode  int
		wantIDs   []string
		wantTotal int
	}{
		{name: "auth required", path: "/api/users", wantCode: http.StatusUnauthorized},
		{name: "admin required", path: "/api/users", token: getToken(t, env, teacher), wantCode: http.StatusForbidden},
		{
			name: "archived left out", path: "/api/users", token: adminToken, wantCode: http.StatusOK,
			wantIDs: userIDs([]user.User{admin, teacher, student, pending}), wantTotal: 4,
		},
		{
			name: "archived", path: path("status", "archived"), token: adminToken, wantCode: http.StatusOK,
			wantIDs: []string{archived.ID}, wantTotal: 1,
		},
		{
			name: "role", path: path("role", "Student"), token: adminToken, wantCode: http.StatusOK,
			wantIDs: userIDs([]user.User{student, pending}), wantTotal: 2,
		},
		{name: "invalid role", path: path("role", "Janitor"), token: adminToken, wantCode: http.StatusBadRequest},
		{
			name: "search", path: path("search", "TEACH"), token: adminToken, wantCode: http.StatusOK,
			wantIDs: []string{teacher.ID}, wantTotal: 1,
		},
		{
			name: "ids", path: path("id", student.ID, "id", teacher.ID), token: adminToken, wantCode: http.StatusOK,
			wantIDs: userIDs([]user.User{teacher, student}), wantTotal: 2,
		},
		{name: "malformed id", path: path("id", "lol"), token: adminToken, wantCode: http.StatusBadRequest},
		{
			name: "ordering", path: path("ordering", "-username"), token: adminToken, wantCode: http.StatusOK,
			wantIDs: userIDs([]user.User{teacher, student, pending, admin}), wantTotal: 4,
		},
		{
			name: "paginated", path: path("ordering", "username", "limit", "2", "page", "2"), token: adminToken, wantCode: http.StatusOK,
			wantIDs: userIDs([]user.User{student, teacher}), wantTotal: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, server, httpTest{path: tt.path, token: tt.token, wantCode: tt.wantCode})
			if tt.wantCode != http.StatusOK {
				return
			}
			var users []user.User
			decode(t, resp.Data, &users)
			if tt.name == "ordering" || tt.name == "paginated" {
				assert.Equal(t, tt.wantIDs, userIDs(users))
			} else {
				assert.ElementsMatch(t, tt.wantIDs, userIDs(users))
			}
			assert.Equal(t, len(users), resp.Count)
			assert.Equal(t, tt.wantTotal, resp.Total)
		})
	}
}

func Test_userApi_create(t *testing.T) {
	server, env := setup(t)
	admin := testutil.CreateUser(t, env.UserRepo, user.RoleAdmin, "admin")
	teacher := testutil.CreateUser(t, env.UserRepo, user.RoleTeacher, "teacher")

	nu := user.NewUser{
		Username:        "prof",
		Email:           "prof@test.cd",
		FirstName:       "Prof",
		LastName:        "Essor",
		Role:            user.RoleTeacher,
		Status:          user.StatusActive,
		Password:        testutil.Password,
		PasswordConfirm: testutil.Password,
	}
	archived := nu
	archived.Status = user.StatusArchived

	runTests(t, server, []httpTest{
		{name: "admin required", method: http.MethodPost, path: "/api/users", body: nu, token: getToken(t, env, teacher), wantCode: http.StatusForbidden},
		{name: "archived status", method: http.MethodPost, path: "/api/users", body: archived, token: getToken(t, env, admin), wantCode: http.StatusBadRequest},
	})

	resp := do(t, server, httpTest{method: http.MethodPost, path: "/api/users", body: nu, token: getToken(t, env, admin), wantCode: http.StatusCreated})
	var usr user.User
	decode(t, resp.Data, &usr)
	assert.Equal(t, user.StatusActive, usr.Status)
	require.NotNil(t, usr.Teacher)
	assert.Empty(t, usr.Teacher.AssignedCourses)
	assert.Nil(t, usr.Student)
}

func Test_userApi_retrieveUpdate(t *testing.T) {
	server, env := setup(t)
	admin := testutil.CreateUser(t, env.UserRepo, user.RoleAdmin, "admin")
	student := testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "student")
	other := testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "other")

	adminToken := getToken(t, env, admin)
	studentToken := getToken(t, env, student)
	sPtr := func(s string) *string { return &s }
	role := user.RoleTeacher
	archived := user.StatusArchived
	inactive := user.StatusInactive

	runTests(t, server, []httpTest{
		{name: "malformed id", path: "/api/users/lol", token: adminToken, wantCode: http.StatusBadRequest},
		{name: "unknown", path: "/api/users/" + core.NewID(), token: adminToken, wantCode: http.StatusNotFound},
		{name: "other user", path: "/api/users/" + other.ID, token: studentToken, wantCode: http.StatusNotFound},
		{name: "self", path: "/api/users/" + student.ID, token: studentToken, wantCode: http.StatusOK},
		{name: "admin", path: "/api/users/" + student.ID, token: adminToken, wantCode: http.StatusOK},
		{
			name: "self: profile", method: http.MethodPut, path: "/api/users/" + student.ID, token: studentToken,
			body: user.UpdateUser{Bio: sPtr("Hi")}, wantCode: http.StatusOK,
		},
		{
			name: "self: status", method: http.MethodPut, path: "/api/users/" + student.ID, token: studentToken,
			body: user.UpdateUser{Status: &inactive}, wantCode: http.StatusForbidden,
		},
		{
			name: "role is immutable", method: http.MethodPut, path: "/api/users/" + student.ID, token: adminToken,
			body: user.UpdateUser{Role: &role}, wantCode: http.StatusBadRequest,
		},
		{
			name: "admin archives self", method: http.MethodPut, path: "/api/users/" + admin.ID, token: adminToken,
			body: user.UpdateUser{Status: &archived}, wantCode: http.StatusForbidden,
		},
		{
			name: "last admin", method: http.MethodPut, path: "/api/users/" + admin.ID, token: adminToken,
			body: user.UpdateUser{Status: &inactive}, wantCode: http.StatusConflict,
		},
		{
			name: "duplicate email", method: http.MethodPut, path: "/api/users/" + student.ID, token: adminToken,
			body: user.UpdateUser{Email: sPtr(other.Email)}, wantCode: http.StatusBadRequest,
		},
	})

	student = testutil.Reload(t, env.UserRepo, student)
	assert.Equal(t, "Hi", student.Bio)
	assert.Equal(t, user.RoleStudent, student.Role)
}

func Test_userApi_lifecycle(t *testing.T) {
	server, env := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, env.UserRepo, user.RoleAdmin, "admin")
	teacher := testutil.CreateUser(t, env.UserRepo, user.RoleTeacher, "teacher")
	student := testutil.CreateUser(t, env.UserRepo, user.RoleStudent, "student")
	crs := testutil.CreateCourse(t, env.CourseRepo, "MATH101", teacher.ID, student.ID)
	require.NoError(t, env.UserRepo.AddAssignedCourse(ctx, teacher.ID, crs.ID))
	require.NoError(t, env.UserRepo.AddEnrolledCourse(ctx, student.ID, crs.ID))

	adminToken := getToken(t, env, admin)
	studentPath := "/api/users/" + student.ID
	teacherPath := "/api/users/" + teacher.ID

	runTests(t, server, []httpTest{
		{name: "archive: admin required", method: http.MethodDelete, path: studentPath, token: getToken(t, env, teacher), wantCode: http.StatusForbidden},
		{name: "archive: self", method: http.MethodDelete, path: "/api/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "archive: malformed id", method: http.MethodDelete, path: "/api/users/lol", token: adminToken, wantCode: http.StatusBadRequest},
		{name: "archive: unknown", method: http.MethodDelete, path: "/api/users/" + core.NewID(), token: adminToken, wantCode: http.StatusNotFound},
		{name: "restore: not archived", method: http.MethodPut, path: studentPath + "/restore", token: adminToken, wantCode: http.StatusConflict},
		{name: "permanent: not archived", method: http.MethodDelete, path: studentPath + "/permanent", token: adminToken, wantCode: http.StatusConflict},
		{name: "archive", method: http.MethodDelete, path: studentPath, token: adminToken, wantCode: http.StatusOK},
		{name: "archive again", method: http.MethodDelete, path: studentPath, token: adminToken, wantCode: http.StatusOK},
		{name: "archived token", path: studentPath, token: getToken(t, env, student), wantCode: http.StatusForbidden},
	})

	// archiving keeps the course references
	student = testutil.Reload(t, env.UserRepo, student)
	assert.Equal(t, user.StatusArchived, student.Status)
	assert.Equal(t, []string{crs.ID}, student.EnrolledCourses())
	assert.Equal(t, []string{student.ID}, testutil.ReloadCourse(t, env.CourseRepo, crs).Students)

	runTests(t, server, []httpTest{
		{
			name: "restore: archived target", method: http.MethodPut, path: studentPath + "/restore", token: adminToken,
			body: user.RestoreUser{Status: user.StatusArchived}, wantCode: http.StatusBadRequest,
		},
		{
			name: "restore", method: http.MethodPut, path: studentPath + "/restore", token: adminToken,
			body: user.RestoreUser{Status: user.StatusActive}, wantCode: http.StatusOK,
		},
		{name: "archive teacher", method: http.MethodDelete, path: teacherPath, token: adminToken, wantCode: http.StatusOK},
		{name: "permanent", method: http.MethodDelete, path: teacherPath + "/permanent", token: adminToken, wantCode: http.StatusOK},
		{name: "permanent: gone", method: http.MethodDelete, path: teacherPath + "/permanent", token: adminToken, wantCode: http.StatusNotFound},
	})

	student = testutil.Reload(t, env.UserRepo, student)
	assert.Equal(t, user.StatusActive, student.Status)
	crs = testutil.ReloadCourse(t, env.CourseRepo, crs)
	assert.False(t, crs.Teacher.Valid)
	assert.Equal(t, []string{student.ID}, crs.Students)
}

func Test_userApi_enums(t *testing.T) {
	server, env := setup(t)
	adminToken := getToken(t, env, testutil.CreateUser(t, env.UserRepo, user.RoleAdmin, "admin"))

	resp := do(t, server, httpTest{path: "/api/users/roles", token: adminToken, wantCode: http.StatusOK})
	var roles []user.Role
	decode(t, resp.Data, &roles)
	assert.Equal(t, user.AllRoles, roles)

	resp = do(t, server, httpTest{path: "/api/users/statuses", token: adminToken, wantCode: http.StatusOK})
	var statuses []user.Status
	decode(t, resp.Data, &statuses)
	assert.Equal(t, user.AllStatuses, statuses)
}
