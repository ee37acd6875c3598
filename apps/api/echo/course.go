package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
)

type courseApi struct {
	svc *course.Service
}

func registerCourseAPI(g *echo.Group, s *Server) {
	api := courseApi{svc: s.CourseSvc}
	staff := rolesMiddleware(user.RoleAdmin, user.RoleTeacher)

	cg := g.Group("/courses")
	cg.POST("", api.create, adminMiddleware())
	cg.GET("", api.query)

	// detail endpoints
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id", api.update, adminMiddleware())
	cg.DELETE("/:id", api.destroy, adminMiddleware())
	cg.PUT("/:id/assign-teacher", api.assignTeacher, adminMiddleware())

	// members
	cg.POST("/:id/students", api.enrollStudent, staff)
	cg.DELETE("/:id/students/:studentId", api.removeStudent, staff)

	// course work
	cg.POST("/:id/activities", api.createActivity, staff)
	cg.GET("/:id/activities", api.queryActivities)
	cg.POST("/:id/grades", api.recordGrade, staff)
	cg.GET("/:id/grades", api.queryGrades)
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}

	crs, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return respond(ctx, http.StatusCreated, crs)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}

	courses, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return respondList(ctx, courses, len(courses), len(courses), nil)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	detail, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return respond(ctx, http.StatusOK, detail)
}

func (api *courseApi) update(ctx echo.Context) error {
	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}

	crs, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return respond(ctx, http.StatusOK, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return respondMessage(ctx, "course deleted")
}

func (api *courseApi) assignTeacher(ctx echo.Context) error {
	var data course.AssignTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignTeacher")
	}

	crs, err := api.svc.AssignTeacher(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "assigning teacher")
	}
	return respond(ctx, http.StatusOK, crs)
}

func (api *courseApi) enrollStudent(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data course.EnrollStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollStudent")
	}

	detail, err := api.svc.EnrollStudent(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data.StudentID)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return respond(ctx, http.StatusOK, detail)
}

func (api *courseApi) removeStudent(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	detail, err := api.svc.RemoveStudent(ctx.Request().Context(), ctxUsr, ctx.Param("id"), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "removing student")
	}
	return respond(ctx, http.StatusOK, detail)
}

func (api *courseApi) createActivity(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data course.NewActivity
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewActivity")
	}

	act, err := api.svc.CreateActivity(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating activity")
	}
	return respond(ctx, http.StatusCreated, act)
}

func (api *courseApi) queryActivities(ctx echo.Context) error {
	activities, err := api.svc.QueryActivities(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}
	if activities == nil {
		activities = []course.Activity{}
	}
	return respondList(ctx, activities, len(activities), len(activities), nil)
}

func (api *courseApi) recordGrade(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data course.NewGrade
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrade")
	}

	grade, err := api.svc.RecordGrade(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "recording grade")
	}
	return respond(ctx, http.StatusCreated, grade)
}

func (api *courseApi) queryGrades(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	grades, err := api.svc.QueryGrades(ctx.Request().Context(), ctxUsr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying grades")
	}
	if grades == nil {
		grades = []course.Grade{}
	}
	return respondList(ctx, grades, len(grades), len(grades), nil)
}
