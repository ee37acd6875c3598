package inmemdb

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func copyCourse(crs course.Course) course.Course {
	crs.Students = copyStrings(crs.Students)
	return crs
}

func courseField(crs *course.Course, name string) string {
	switch name {
	case "id":
		return crs.ID
	case "courseCode":
		return crs.CourseCode
	case "courseName":
		return crs.CourseName
	default:
		return sortable(crs.CreatedAt)
	}
}

func (repo *courseRepository) checkCodeUniqueness(code string, excludedIDs ...string) error {
	for id, crs := range repo.db.courses {
		if crs.CourseCode == code && !core.ContainsString(excludedIDs, id) {
			return course.ErrCodeExists
		}
	}
	return nil
}

func (repo *courseRepository) CheckCodeUniqueness(ctx context.Context, code string, excludedIDs ...string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.checkCodeUniqueness(code, excludedIDs...)
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.checkCodeUniqueness(crs.CourseCode); err != nil {
		return course.Course{}, err
	}
	crs.ID = core.NewID()
	crs = copyCourse(crs)
	repo.db.courses[crs.ID] = &crs
	return copyCourse(crs), nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if crs, ok := repo.db.courses[id]; ok {
		return copyCourse(*crs), nil
	}
	return course.Course{}, course.ErrNotFound
}

func matchCourse(crs *course.Course, filter *course.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" && !containsFold(crs.CourseCode, filter.Search) && !containsFold(crs.CourseName, filter.Search) {
		return false
	}
	if filter.TeacherID != "" && crs.TeacherID() != filter.TeacherID {
		return false
	}
	if filter.StudentID != "" && !crs.HasStudent(filter.StudentID) {
		return false
	}
	return true
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var matched []*course.Course
	for _, crs := range repo.db.courses {
		if matchCourse(crs, filter) {
			matched = append(matched, crs)
		}
	}
	orderBy(
		len(matched),
		[]core.DBOrdering{{Field: "courseCode", Ascending: true}},
		func(i int, name string) string { return courseField(matched[i], name) },
		func(i, j int) { matched[i], matched[j] = matched[j], matched[i] },
	)

	courses := make([]course.Course, 0, len(matched))
	for _, crs := range matched {
		courses = append(courses, copyCourse(*crs))
	}
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.courses[crs.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	if err := repo.checkCodeUniqueness(crs.CourseCode, crs.ID); err != nil {
		return course.Course{}, err
	}
	orig.CourseCode = crs.CourseCode
	orig.CourseName = crs.CourseName
	orig.Description = crs.Description
	orig.Teacher = crs.Teacher
	orig.UpdatedAt = crs.UpdatedAt
	return copyCourse(*orig), nil
}

func (repo *courseRepository) SetTeacher(ctx context.Context, id string, teacherID null.String) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	crs, ok := repo.db.courses[id]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	crs.Teacher = teacherID
	crs.UpdatedAt = time.Now().UTC()
	return copyCourse(*crs), nil
}

func (repo *courseRepository) AddStudent(ctx context.Context, courseID, studentID string) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return false, course.ErrNotFound
	}
	var added bool
	crs.Students, added = addString(crs.Students, studentID)
	return added, nil
}

func (repo *courseRepository) PullStudent(ctx context.Context, courseID, studentID string) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return false, course.ErrNotFound
	}
	var pulled bool
	crs.Students, pulled = pullString(crs.Students, studentID)
	return pulled, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return course.ErrNotFound
	}
	delete(repo.db.courses, id)
	return nil
}

func (repo *courseRepository) UnsetTeacher(ctx context.Context, teacherID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, crs := range repo.db.courses {
		if crs.TeacherID() == teacherID {
			crs.Teacher = null.String{}
		}
	}
	return nil
}

func (repo *courseRepository) PullStudentFromCourses(ctx context.Context, studentID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, crs := range repo.db.courses {
		crs.Students, _ = pullString(crs.Students, studentID)
	}
	return nil
}
