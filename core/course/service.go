package course

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("course not found")
	ErrTeacherNotFound  = core.NewNotFoundError("teacher not found")
	ErrStudentNotFound  = core.NewNotFoundError("student not found")
	ErrActivityNotFound = core.NewNotFoundError("activity not found")
	ErrNotCourseTeacher = core.NewForbiddenError("only the teacher of this course can manage it")
	ErrForbidden        = core.NewForbiddenError("permission denied")
	ErrCodeExists       = errors.New("a course with this code already exists")
	ErrNotEnrolled      = errors.New("student is not enrolled in this course")

	// students of a course are listed by name
	memberOrdering = []core.DBOrdering{{Field: "lastName", Ascending: true}, {Field: "firstName", Ascending: true}}
)

type (
	Repository interface {
		// CheckCodeUniqueness returns ErrCodeExists if code is taken by a course other than excludedIDs.
		CheckCodeUniqueness(ctx context.Context, code string, excludedIDs ...string) error
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields; filter may be nil.
		QueryCourses(ctx context.Context, filter *QueryFilter) ([]Course, error)
		// UpdateCourse saves code, name, description and teacher. Students are never written.
		UpdateCourse(ctx context.Context, crs Course) (Course, error)
		SetTeacher(ctx context.Context, id string, teacherID null.String) (Course, error)
		// AddStudent is an atomic set union; reports whether the student was added.
		AddStudent(ctx context.Context, courseID, studentID string) (bool, error)
		// PullStudent is an atomic set removal; reports whether the student was removed.
		PullStudent(ctx context.Context, courseID, studentID string) (bool, error)
		DeleteCourse(ctx context.Context, id string) error

		user.CourseUnlinker
	}

	ActivityRepository interface {
		CreateActivity(ctx context.Context, act Activity) (Activity, error)
		GetActivity(ctx context.Context, id string) (Activity, error)
		QueryActivities(ctx context.Context, courseID string) ([]Activity, error)
		DeleteActivities(ctx context.Context, courseID string) (int, error)
		// DeleteOrphanActivities deletes activities whose course is not in courseIDs.
		DeleteOrphanActivities(ctx context.Context, courseIDs []string) (int, error)
	}

	GradeRepository interface {
		CreateGrade(ctx context.Context, grade Grade) (Grade, error)
		QueryGrades(ctx context.Context, filter GradeFilter) ([]Grade, error)
		DeleteGrades(ctx context.Context, courseID string) (int, error)
		// DeleteOrphanGrades deletes grades whose course is not in courseIDs.
		DeleteOrphanGrades(ctx context.Context, courseIDs []string) (int, error)
	}

	// UserRepository is the part of user.Repository the course service relies on.
	UserRepository interface {
		GetUser(ctx context.Context, filter user.GetFilter) (user.User, error)
		QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]user.User, int, error)
		AddAssignedCourse(ctx context.Context, teacherID, courseID string) error
		PullAssignedCourse(ctx context.Context, teacherID, courseID string) error
		AddEnrolledCourse(ctx context.Context, studentID, courseID string) error
		PullEnrolledCourse(ctx context.Context, courseID string, studentIDs ...string) error
	}

	// Service keeps Course.teacher/Teacher.assignedCourses and Course.students/Student.enrolledCourses
	// in agreement. Multi document writes are issued in a fixed order, course first.
	Service struct {
		repo       Repository
		activities ActivityRepository
		grades     GradeRepository
		users      UserRepository
		tx         core.Transactor
		mailSvc    core.EmailService
		validate   *validator.Validate
		conf       *core.Config
	}
)

var _ user.CourseUnlinker = (Repository)(nil) // interface compliance check

func NewService(
	repo Repository,
	activities ActivityRepository,
	grades GradeRepository,
	users UserRepository,
	tx core.Transactor,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
) *Service {
	return &Service{
		repo:       repo,
		activities: activities,
		grades:     grades,
		users:      users,
		tx:         tx,
		mailSvc:    mailSvc,
		validate:   validate,
		conf:       conf,
	}
}

// trapCodeErr turns ErrCodeExists into a courseCode field error and wraps anything else with msg.
// Course writes can still hit the unique index after the uniqueness check passed.
func trapCodeErr(err error, msg string) error {
	if errors.Cause(err) == ErrCodeExists {
		return core.NewValidationError(ErrCodeExists, core.FieldError{Field: "courseCode", Error: ErrCodeExists.Error()})
	}
	return errors.Wrap(err, msg)
}

func (svc *Service) checkCodeUniqueness(ctx context.Context, code string, excludedIDs ...string) error {
	if err := svc.repo.CheckCodeUniqueness(ctx, code, excludedIDs...); err != nil {
		return trapCodeErr(err, "checking course code uniqueness")
	}
	return nil
}

// activeMember finds an active user of the given role, notFound otherwise.
func (svc *Service) activeMember(ctx context.Context, id string, role user.Role, notFound error) (user.User, error) {
	usr, err := svc.users.GetUser(ctx, user.GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, notFound
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if usr.Role != role || !usr.IsActive() {
		return user.User{}, notFound
	}
	return usr, nil
}

func (svc *Service) getCourse(ctx context.Context, id string) (Course, error) {
	crs, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Course{}, ErrNotFound
		}
		return Course{}, errors.Wrap(err, "finding course by ID")
	}
	return crs, nil
}

// authorize allows admins, and teachers on their own courses.
func authorize(actor user.User, crs Course) error {
	switch actor.Role {
	case user.RoleAdmin:
		return nil
	case user.RoleTeacher:
		if crs.TeacherID() == actor.ID {
			return nil
		}
		return ErrNotCourseTeacher
	}
	return ErrForbidden
}

// reassignTeacher moves the courseID back-reference from oldID to newID; no-op when equal.
func (svc *Service) reassignTeacher(ctx context.Context, courseID, oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	if oldID != "" {
		if err := svc.users.PullAssignedCourse(ctx, oldID, courseID); err != nil {
			return errors.Wrap(err, "pulling course from old teacher")
		}
	}
	if newID != "" {
		if err := svc.users.AddAssignedCourse(ctx, newID, courseID); err != nil {
			return errors.Wrap(err, "adding course to new teacher")
		}
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	if err := nc.Validate(svc.validate); err != nil {
		return Course{}, err
	}
	teacherID := nc.TeacherID.String
	if nc.TeacherID.Valid {
		if _, err := svc.activeMember(ctx, teacherID, user.RoleTeacher, ErrTeacherNotFound); err != nil {
			return Course{}, err
		}
	}
	if err := svc.checkCodeUniqueness(ctx, nc.CourseCode); err != nil {
		return Course{}, err
	}

	now := time.Now().UTC()
	crs := Course{
		CourseCode:  nc.CourseCode,
		CourseName:  nc.CourseName,
		Description: nc.Description,
		Teacher:     nc.TeacherID,
		Students:    []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var created Course
	err := svc.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if created, err = svc.repo.CreateCourse(ctx, crs); err != nil {
			return trapCodeErr(err, "creating course")
		}
		return svc.reassignTeacher(ctx, created.ID, "", created.TeacherID())
	})
	if err != nil {
		return Course{}, err
	}
	return created, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	if err := core.CheckID("id", id); err != nil {
		return Course{}, err
	}
	return svc.getCourse(ctx, id)
}

// Get returns the course `id` populated with its teacher, students & activities.
func (svc *Service) Get(ctx context.Context, id string) (Detail, error) {
	crs, err := svc.GetByID(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return svc.populate(ctx, crs)
}

func (svc *Service) populate(ctx context.Context, crs Course) (Detail, error) {
	d := Detail{
		ID:          crs.ID,
		CourseCode:  crs.CourseCode,
		CourseName:  crs.CourseName,
		Description: crs.Description,
		Students:    []Member{},
		CreatedAt:   crs.CreatedAt,
		UpdatedAt:   crs.UpdatedAt,
	}

	if teacherID := crs.TeacherID(); teacherID != "" {
		usr, err := svc.users.GetUser(ctx, user.GetFilter{ID: teacherID})
		if err == nil {
			m := NewMember(usr)
			d.Teacher = &m
		} else if errors.Cause(err) != user.ErrNotFound {
			return Detail{}, errors.Wrap(err, "finding course teacher")
		}
	}

	if len(crs.Students) > 0 {
		students, _, err := svc.users.QueryUsers(ctx, &user.QueryFilter{IDs: crs.Students}, memberOrdering, nil)
		if err != nil {
			return Detail{}, errors.Wrap(err, "querying course students")
		}
		for _, s := range students {
			d.Students = append(d.Students, NewMember(s))
		}
	}

	acts, err := svc.activities.QueryActivities(ctx, crs.ID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "querying course activities")
	}
	if acts == nil {
		acts = []Activity{}
	}
	d.Activities = acts
	return d, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Course, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	if filter.TeacherID != "" {
		if err := core.CheckID("teacherId", filter.TeacherID); err != nil {
			return nil, err
		}
	}
	if filter.StudentID != "" {
		if err := core.CheckID("studentId", filter.StudentID); err != nil {
			return nil, err
		}
	}
	courses, err := svc.repo.QueryCourses(ctx, filter)
	return courses, errors.Wrap(err, "querying courses")
}

// Update applies uc to the course `id`. The teacher back-references move only on an actual change.
func (svc *Service) Update(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	if err := core.CheckID("id", id); err != nil {
		return Course{}, err
	}
	if err := uc.Validate(svc.validate); err != nil {
		return Course{}, err
	}

	crs, err := svc.getCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	oldTeacherID := crs.TeacherID()

	if uc.TeacherID.Set && uc.TeacherID.Value.Valid {
		if _, err = svc.activeMember(ctx, uc.TeacherID.Value.String, user.RoleTeacher, ErrTeacherNotFound); err != nil {
			return Course{}, err
		}
	}
	if uc.CourseCode != nil && *uc.CourseCode != crs.CourseCode {
		if err = svc.checkCodeUniqueness(ctx, *uc.CourseCode, crs.ID); err != nil {
			return Course{}, err
		}
	}

	if uc.CourseCode != nil {
		crs.CourseCode = *uc.CourseCode
	}
	if uc.CourseName != nil {
		crs.CourseName = *uc.CourseName
	}
	if uc.Description != nil {
		crs.Description = *uc.Description
	}
	if uc.TeacherID.Set {
		crs.Teacher = uc.TeacherID.Value
	}
	crs.UpdatedAt = time.Now().UTC()

	var updated Course
	err = svc.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if updated, err = svc.repo.UpdateCourse(ctx, crs); err != nil {
			return trapCodeErr(err, "updating course")
		}
		return svc.reassignTeacher(ctx, updated.ID, oldTeacherID, updated.TeacherID())
	})
	if err != nil {
		return Course{}, err
	}
	return updated, nil
}

// AssignTeacher sets the course teacher. Assigning the current teacher again writes nothing.
func (svc *Service) AssignTeacher(ctx context.Context, id string, at AssignTeacher) (Course, error) {
	if err := core.CheckID("id", id); err != nil {
		return Course{}, err
	}
	if err := at.Validate(svc.validate); err != nil {
		return Course{}, err
	}

	crs, err := svc.getCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if _, err = svc.activeMember(ctx, at.TeacherID, user.RoleTeacher, ErrTeacherNotFound); err != nil {
		return Course{}, err
	}
	oldTeacherID := crs.TeacherID()
	if oldTeacherID == at.TeacherID {
		return crs, nil
	}

	var updated Course
	err = svc.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if updated, err = svc.repo.SetTeacher(ctx, crs.ID, null.StringFrom(at.TeacherID)); err != nil {
			return errors.Wrap(err, "setting course teacher")
		}
		return svc.reassignTeacher(ctx, crs.ID, oldTeacherID, at.TeacherID)
	})
	if err != nil {
		return Course{}, err
	}
	return updated, nil
}

// EnrollStudent adds studentID to the course students, on behalf of an admin or the course teacher.
func (svc *Service) EnrollStudent(ctx context.Context, actor user.User, courseID, studentID string) (Detail, error) {
	if err := core.CheckID("courseId", courseID); err != nil {
		return Detail{}, err
	}
	if err := core.CheckID("studentId", studentID); err != nil {
		return Detail{}, err
	}

	crs, err := svc.getCourse(ctx, courseID)
	if err != nil {
		return Detail{}, err
	}
	if err = authorize(actor, crs); err != nil {
		return Detail{}, err
	}
	student, err := svc.activeMember(ctx, studentID, user.RoleStudent, ErrStudentNotFound)
	if err != nil {
		return Detail{}, err
	}

	var added bool
	err = svc.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if added, err = svc.repo.AddStudent(ctx, crs.ID, student.ID); err != nil {
			return errors.Wrap(err, "adding student to course")
		}
		return errors.Wrap(svc.users.AddEnrolledCourse(ctx, student.ID, crs.ID), "adding course to student")
	})
	if err != nil {
		return Detail{}, err
	}
	if added {
		svc.sendEnrollmentEmail(crs, student)
	}
	return svc.Get(ctx, crs.ID)
}

// RemoveStudent pulls studentID from the course students. Removing a non member is a no-op.
func (svc *Service) RemoveStudent(ctx context.Context, actor user.User, courseID, studentID string) (Detail, error) {
	if err := core.CheckID("courseId", courseID); err != nil {
		return Detail{}, err
	}
	if err := core.CheckID("studentId", studentID); err != nil {
		return Detail{}, err
	}

	crs, err := svc.getCourse(ctx, courseID)
	if err != nil {
		return Detail{}, err
	}
	if err = authorize(actor, crs); err != nil {
		return Detail{}, err
	}

	err = svc.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := svc.repo.PullStudent(ctx, crs.ID, studentID); err != nil {
			return errors.Wrap(err, "pulling student from course")
		}
		return errors.Wrap(svc.users.PullEnrolledCourse(ctx, crs.ID, studentID), "pulling course from student")
	})
	if err != nil {
		return Detail{}, err
	}
	return svc.Get(ctx, crs.ID)
}

// Delete removes the course `id` and everything that depends on it.
// Back-references go first so that an interrupted delete leaves orphan activities & grades at worst.
func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := core.CheckID("id", id); err != nil {
		return err
	}
	crs, err := svc.getCourse(ctx, id)
	if err != nil {
		return err
	}

	return svc.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if teacherID := crs.TeacherID(); teacherID != "" {
			if err := svc.users.PullAssignedCourse(ctx, teacherID, crs.ID); err != nil {
				return errors.Wrap(err, "pulling course from teacher")
			}
		}
		if len(crs.Students) > 0 {
			if err := svc.users.PullEnrolledCourse(ctx, crs.ID, crs.Students...); err != nil {
				return errors.Wrap(err, "pulling course from students")
			}
		}
		if _, err := svc.activities.DeleteActivities(ctx, crs.ID); err != nil {
			return errors.Wrap(err, "deleting course activities")
		}
		if _, err := svc.grades.DeleteGrades(ctx, crs.ID); err != nil {
			return errors.Wrap(err, "deleting course grades")
		}
		return errors.Wrap(svc.repo.DeleteCourse(ctx, crs.ID), "deleting course")
	})
}

func (svc *Service) CreateActivity(ctx context.Context, actor user.User, courseID string, na NewActivity) (Activity, error) {
	if err := core.CheckID("courseId", courseID); err != nil {
		return Activity{}, err
	}
	if err := na.Validate(svc.validate); err != nil {
		return Activity{}, err
	}
	crs, err := svc.getCourse(ctx, courseID)
	if err != nil {
		return Activity{}, err
	}
	if err = authorize(actor, crs); err != nil {
		return Activity{}, err
	}

	now := time.Now().UTC()
	act, err := svc.activities.CreateActivity(ctx, Activity{
		Course:      crs.ID,
		Title:       na.Title,
		Description: na.Description,
		Type:        na.Type,
		DueDate:     na.DueDate,
		MaxScore:    na.MaxScore,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return act, errors.Wrap(err, "creating activity")
}

func (svc *Service) QueryActivities(ctx context.Context, courseID string) ([]Activity, error) {
	crs, err := svc.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	acts, err := svc.activities.QueryActivities(ctx, crs.ID)
	return acts, errors.Wrap(err, "querying activities")
}

// RecordGrade grades an enrolled student, optionally against one of the course activities.
func (svc *Service) RecordGrade(ctx context.Context, actor user.User, courseID string, ng NewGrade) (Grade, error) {
	if err := core.CheckID("courseId", courseID); err != nil {
		return Grade{}, err
	}
	if err := ng.Validate(svc.validate); err != nil {
		return Grade{}, err
	}
	crs, err := svc.getCourse(ctx, courseID)
	if err != nil {
		return Grade{}, err
	}
	if err = authorize(actor, crs); err != nil {
		return Grade{}, err
	}
	if !crs.HasStudent(ng.StudentID) {
		return Grade{}, core.NewValidationError(ErrNotEnrolled, core.FieldError{Field: "studentId", Error: ErrNotEnrolled.Error()})
	}

	maxScore := float64(DefaultMaxScore)
	if ng.ActivityID.Valid {
		act, err := svc.activities.GetActivity(ctx, ng.ActivityID.String)
		if err != nil {
			if errors.Cause(err) == ErrActivityNotFound {
				return Grade{}, ErrActivityNotFound
			}
			return Grade{}, errors.Wrap(err, "finding activity by ID")
		}
		if act.Course != crs.ID {
			return Grade{}, ErrActivityNotFound
		}
		maxScore = act.MaxScore
	}
	if ng.Score > maxScore {
		msg := fmt.Sprintf("score cannot exceed %g", maxScore)
		return Grade{}, core.NewValidationError(nil, core.FieldError{Field: "score", Error: msg})
	}

	now := time.Now().UTC()
	grade, err := svc.grades.CreateGrade(ctx, Grade{
		Course:    crs.ID,
		Student:   ng.StudentID,
		Activity:  ng.ActivityID,
		Score:     ng.Score,
		Remarks:   ng.Remarks,
		GradedBy:  actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return grade, errors.Wrap(err, "creating grade")
}

// QueryGrades lists the course grades: all of them for admins & the course teacher, their own for students.
func (svc *Service) QueryGrades(ctx context.Context, actor user.User, courseID string) ([]Grade, error) {
	crs, err := svc.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}

	filter := GradeFilter{Course: crs.ID}
	if actor.IsStudent() {
		filter.Student = actor.ID
	} else if err = authorize(actor, crs); err != nil {
		return nil, err
	}
	grades, err := svc.grades.QueryGrades(ctx, filter)
	return grades, errors.Wrap(err, "querying grades")
}

type enrollmentEmailData struct {
	StudentName string
	CourseCode  string
	CourseName  string
}

func (svc *Service) sendEnrollmentEmail(crs Course, student user.User) {
	if svc.mailSvc == nil || student.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(core.NewEmailMessage(
		svc.conf,
		mail.Address{Name: student.FullName(), Address: student.Email},
		"You have been enrolled in "+crs.CourseCode,
		"course_enrollment",
		enrollmentEmailData{StudentName: student.FirstName, CourseCode: crs.CourseCode, CourseName: crs.CourseName},
	))
}
