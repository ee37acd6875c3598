package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

const DefaultMaxScore = 100

// Activity types
const (
	ActivityAssignment = "assignment"
	ActivityQuiz       = "quiz"
	ActivityExam       = "exam"
	ActivityProject    = "project"
	ActivityLesson     = "lesson"
)

type Activity struct {
	ID          string    `json:"id"`
	Course      string    `json:"course"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	DueDate     null.Time `json:"dueDate"`
	MaxScore    float64   `json:"maxScore"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type NewActivity struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	Type        string    `json:"type" validate:"omitempty,oneof=assignment quiz exam project lesson"`
	DueDate     null.Time `json:"dueDate"`
	MaxScore    float64   `json:"maxScore" validate:"gte=0"`
}

func (na *NewActivity) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.Type = core.CleanString(na.Type, true /* lower */)
	if na.Type == "" {
		na.Type = ActivityAssignment
	}
	if na.MaxScore == 0 {
		na.MaxScore = DefaultMaxScore
	}
	return validate.Struct(na)
}

type Grade struct {
	ID        string      `json:"id"`
	Course    string      `json:"course"`
	Student   string      `json:"student"`
	Activity  null.String `json:"activity"`
	Score     float64     `json:"score"`
	Remarks   string      `json:"remarks"`
	GradedBy  string      `json:"gradedBy"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type NewGrade struct {
	StudentID  string      `json:"studentId" validate:"required"`
	ActivityID null.String `json:"activityId"`
	Score      float64     `json:"score" validate:"gte=0"`
	Remarks    string      `json:"remarks" validate:"max=2000"`
}

func (ng *NewGrade) Validate(validate *validator.Validate) error {
	ng.StudentID = core.CleanString(ng.StudentID)
	ng.ActivityID = cleanID(ng.ActivityID)
	ng.Remarks = core.CleanString(ng.Remarks)
	if err := validate.Struct(ng); err != nil {
		return err
	}
	if err := core.CheckID("studentId", ng.StudentID); err != nil {
		return err
	}
	if ng.ActivityID.Valid {
		return core.CheckID("activityId", ng.ActivityID.String)
	}
	return nil
}

type GradeFilter struct {
	Course   string
	Student  string
	Activity string
}
