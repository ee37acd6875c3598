package course

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// ReconcileReport counts the repairs made by Service.Reconcile.
type ReconcileReport struct {
	TeachersUnset           int `json:"teachersUnset"`
	StudentsPulled          int `json:"studentsPulled"`
	AssignedCoursesAdded    int `json:"assignedCoursesAdded"`
	AssignedCoursesPulled   int `json:"assignedCoursesPulled"`
	EnrolledCoursesAdded    int `json:"enrolledCoursesAdded"`
	EnrolledCoursesPulled   int `json:"enrolledCoursesPulled"`
	OrphanActivitiesDeleted int `json:"orphanActivitiesDeleted"`
	OrphanGradesDeleted     int `json:"orphanGradesDeleted"`
}

func (r ReconcileReport) Total() int {
	return r.TeachersUnset + r.StudentsPulled +
		r.AssignedCoursesAdded + r.AssignedCoursesPulled +
		r.EnrolledCoursesAdded + r.EnrolledCoursesPulled +
		r.OrphanActivitiesDeleted + r.OrphanGradesDeleted
}

// Reconcile repairs references left inconsistent by interrupted multi document writes.
// Course documents are authoritative: user back-references are made to match them,
// and references to missing users are dropped from courses.
// Archived users keep their references.
func (svc *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	courses, err := svc.repo.QueryCourses(ctx, nil)
	if err != nil {
		return report, errors.Wrap(err, "querying courses")
	}
	members, _, err := svc.users.QueryUsers(ctx, &user.QueryFilter{Roles: []user.Role{user.RoleTeacher, user.RoleStudent}}, nil, nil)
	if err != nil {
		return report, errors.Wrap(err, "querying teachers & students")
	}

	coursesByID := make(map[string]Course, len(courses))
	usersByID := make(map[string]user.User, len(members))
	for _, usr := range members {
		usersByID[usr.ID] = usr
	}

	for _, crs := range courses {
		if teacherID := crs.TeacherID(); teacherID != "" {
			teacher, ok := usersByID[teacherID]
			switch {
			case !ok || !teacher.IsTeacher():
				if crs, err = svc.repo.SetTeacher(ctx, crs.ID, null.String{}); err != nil {
					return report, errors.Wrap(err, "unsetting missing teacher")
				}
				report.TeachersUnset++
			case !core.ContainsString(teacher.AssignedCourses(), crs.ID):
				if err = svc.users.AddAssignedCourse(ctx, teacherID, crs.ID); err != nil {
					return report, errors.Wrap(err, "adding course to teacher")
				}
				report.AssignedCoursesAdded++
			}
		}

		for _, studentID := range crs.Students {
			student, ok := usersByID[studentID]
			switch {
			case !ok || !student.IsStudent():
				if _, err = svc.repo.PullStudent(ctx, crs.ID, studentID); err != nil {
					return report, errors.Wrap(err, "pulling missing student")
				}
				report.StudentsPulled++
			case !core.ContainsString(student.EnrolledCourses(), crs.ID):
				if err = svc.users.AddEnrolledCourse(ctx, studentID, crs.ID); err != nil {
					return report, errors.Wrap(err, "adding course to student")
				}
				report.EnrolledCoursesAdded++
			}
		}
		coursesByID[crs.ID] = crs
	}

	for _, usr := range members {
		for _, courseID := range usr.AssignedCourses() {
			if crs, ok := coursesByID[courseID]; !ok || crs.TeacherID() != usr.ID {
				if err = svc.users.PullAssignedCourse(ctx, usr.ID, courseID); err != nil {
					return report, errors.Wrap(err, "pulling course from teacher")
				}
				report.AssignedCoursesPulled++
			}
		}
		for _, courseID := range usr.EnrolledCourses() {
			if crs, ok := coursesByID[courseID]; !ok || !crs.HasStudent(usr.ID) {
				if err = svc.users.PullEnrolledCourse(ctx, courseID, usr.ID); err != nil {
					return report, errors.Wrap(err, "pulling course from student")
				}
				report.EnrolledCoursesPulled++
			}
		}
	}

	courseIDs := make([]string, 0, len(coursesByID))
	for id := range coursesByID {
		courseIDs = append(courseIDs, id)
	}
	if report.OrphanActivitiesDeleted, err = svc.activities.DeleteOrphanActivities(ctx, courseIDs); err != nil {
		return report, errors.Wrap(err, "deleting orphan activities")
	}
	if report.OrphanGradesDeleted, err = svc.grades.DeleteOrphanGrades(ctx, courseIDs); err != nil {
		return report, errors.Wrap(err, "deleting orphan grades")
	}
	return report, nil
}
