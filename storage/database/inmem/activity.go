package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
)

type activityRepository struct {
	db *DB
}

var _ course.ActivityRepository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *DB) *activityRepository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateActivity(ctx context.Context, act course.Activity) (course.Activity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	act.ID = core.NewID()
	stored := act
	repo.db.activities[act.ID] = &stored
	return act, nil
}

func (repo *activityRepository) GetActivity(ctx context.Context, id string) (course.Activity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if act, ok := repo.db.activities[id]; ok {
		return *act, nil
	}
	return course.Activity{}, course.ErrActivityNotFound
}

func (repo *activityRepository) QueryActivities(ctx context.Context, courseID string) ([]course.Activity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var matched []*course.Activity
	for _, act := range repo.db.activities {
		if act.Course == courseID {
			matched = append(matched, act)
		}
	}
	orderBy(
		len(matched),
		[]core.DBOrdering{{Field: "createdAt", Ascending: true}},
		func(i int, name string) string {
			if name == "id" {
				return matched[i].ID
			}
			return sortable(matched[i].CreatedAt)
		},
		func(i, j int) { matched[i], matched[j] = matched[j], matched[i] },
	)

	acts := make([]course.Activity, 0, len(matched))
	for _, act := range matched {
		acts = append(acts, *act)
	}
	return acts, nil
}

func (repo *activityRepository) DeleteActivities(ctx context.Context, courseID string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	deleted := 0
	for id, act := range repo.db.activities {
		if act.Course == courseID {
			delete(repo.db.activities, id)
			deleted++
		}
	}
	return deleted, nil
}

func (repo *activityRepository) DeleteOrphanActivities(ctx context.Context, courseIDs []string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	deleted := 0
	for id, act := range repo.db.activities {
		if !core.ContainsString(courseIDs, act.Course) {
			delete(repo.db.activities, id)
			deleted++
		}
	}
	return deleted, nil
}

type gradeRepository struct {
	db *DB
}

var _ course.GradeRepository = (*gradeRepository)(nil) // interface compliance check

func NewGradeRepository(db *DB) *gradeRepository {
	return &gradeRepository{db: db}
}

func (repo *gradeRepository) CreateGrade(ctx context.Context, grade course.Grade) (course.Grade, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	grade.ID = core.NewID()
	stored := grade
	repo.db.grades[grade.ID] = &stored
	return grade, nil
}

func (repo *gradeRepository) QueryGrades(ctx context.Context, filter course.GradeFilter) ([]course.Grade, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var matched []*course.Grade
	for _, grade := range repo.db.grades {
		if (filter.Course != "" && grade.Course != filter.Course) ||
			(filter.Student != "" && grade.Student != filter.Student) ||
			(filter.Activity != "" && grade.Activity.String != filter.Activity) {
			continue
		}
		matched = append(matched, grade)
	}
	orderBy(
		len(matched),
		[]core.DBOrdering{{Field: "createdAt", Ascending: true}},
		func(i int, name string) string {
			if name == "id" {
				return matched[i].ID
			}
			return sortable(matched[i].CreatedAt)
		},
		func(i, j int) { matched[i], matched[j] = matched[j], matched[i] },
	)

	grades := make([]course.Grade, 0, len(matched))
	for _, grade := range matched {
		grades = append(grades, *grade)
	}
	return grades, nil
}

func (repo *gradeRepository) DeleteGrades(ctx context.Context, courseID string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	deleted := 0
	for id, grade := range repo.db.grades {
		if grade.Course == courseID {
			delete(repo.db.grades, id)
			deleted++
		}
	}
	return deleted, nil
}

func (repo *gradeRepository) DeleteOrphanGrades(ctx context.Context, courseIDs []string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	deleted := 0
	for id, grade := range repo.db.grades {
		if !core.ContainsString(courseIDs, grade.Course) {
			delete(repo.db.grades, id)
			deleted++
		}
	}
	return deleted, nil
}
