package mongorepos

import (
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
)

// documents, as stored. References are ObjectIDs, domain types carry their hex form.
type (
	teacherDoc struct {
		AssignedCourses []primitive.ObjectID `bson:"assignedCourses"`
	}

	studentDoc struct {
		EnrolledCourses []primitive.ObjectID `bson:"enrolledCourses"`
	}

	userDoc struct {
		ID             primitive.ObjectID `bson:"_id,omitempty"`
		UserID         string             `bson:"userId"`
		Username       string             `bson:"username"`
		Email          string             `bson:"email"`
		FirstName      string             `bson:"firstName"`
		MiddleName     string             `bson:"middleName,omitempty"`
		LastName       string             `bson:"lastName"`
		Phone          string             `bson:"phone,omitempty"`
		Address        string             `bson:"address,omitempty"`
		Sex            string             `bson:"sex,omitempty"`
		Gender         string             `bson:"gender,omitempty"`
		Bio            string             `bson:"bio,omitempty"`
		ProfilePicture string             `bson:"profilePicture,omitempty"`
		Role           string             `bson:"role"`
		Status         string             `bson:"status"`
		Teacher        *teacherDoc        `bson:"teacher,omitempty"`
		Student        *studentDoc        `bson:"student,omitempty"`
		PasswordHash   []byte             `bson:"passwordHash"`
		CreatedAt      time.Time          `bson:"createdAt"`
		UpdatedAt      time.Time          `bson:"updatedAt"`
		LastLogin      *time.Time         `bson:"lastLogin"`
	}

	courseDoc struct {
		ID          primitive.ObjectID   `bson:"_id,omitempty"`
		CourseCode  string               `bson:"courseCode"`
		CourseName  string               `bson:"courseName"`
		Description string               `bson:"description"`
		Teacher     *primitive.ObjectID  `bson:"teacher"`
		Students    []primitive.ObjectID `bson:"students"`
		CreatedAt   time.Time            `bson:"createdAt"`
		UpdatedAt   time.Time            `bson:"updatedAt"`
	}

	activityDoc struct {
		ID          primitive.ObjectID `bson:"_id,omitempty"`
		Course      primitive.ObjectID `bson:"course"`
		Title       string             `bson:"title"`
		Description string             `bson:"description"`
		Type        string             `bson:"type"`
		DueDate     *time.Time         `bson:"dueDate"`
		MaxScore    float64            `bson:"maxScore"`
		CreatedBy   primitive.ObjectID `bson:"createdBy"`
		CreatedAt   time.Time          `bson:"createdAt"`
		UpdatedAt   time.Time          `bson:"updatedAt"`
	}

	gradeDoc struct {
		ID        primitive.ObjectID  `bson:"_id,omitempty"`
		Course    primitive.ObjectID  `bson:"course"`
		Student   primitive.ObjectID  `bson:"student"`
		Activity  *primitive.ObjectID `bson:"activity"`
		Score     float64             `bson:"score"`
		Remarks   string              `bson:"remarks"`
		GradedBy  primitive.ObjectID  `bson:"gradedBy"`
		CreatedAt time.Time           `bson:"createdAt"`
		UpdatedAt time.Time           `bson:"updatedAt"`
	}
)

// oid returns the ObjectID for hex, NilObjectID if malformed.
func oid(hex string) primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID
	}
	return id
}

// oids drops malformed ids.
func oids(hexes []string) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		if id, err := primitive.ObjectIDFromHex(h); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func hexes(ids []primitive.ObjectID) []string {
	hs := make([]string, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, id.Hex())
	}
	return hs
}

func nullableOID(id null.String) *primitive.ObjectID {
	if !id.Valid {
		return nil
	}
	o := oid(id.String)
	return &o
}

func nullableHex(id *primitive.ObjectID) null.String {
	if id == nil {
		return null.String{}
	}
	return null.StringFrom(id.Hex())
}

func nullableTime(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

// duplicateKey names the unique index an insert or update collided with, "" if none.
func duplicateKey(err error) string {
	if !mongo.IsDuplicateKeyError(err) {
		return ""
	}
	msg := err.Error()
	for _, field := range []string{"userId", "username", "email", "courseCode"} {
		if strings.Contains(msg, field+"_unique") {
			return field
		}
	}
	return "unknown"
}

func toUserDoc(usr user.User) userDoc {
	doc := userDoc{
		UserID:         usr.UserID,
		Username:       usr.Username,
		Email:          usr.Email,
		FirstName:      usr.FirstName,
		MiddleName:     usr.MiddleName,
		LastName:       usr.LastName,
		Phone:          usr.Phone,
		Address:        usr.Address,
		Sex:            usr.Sex,
		Gender:         usr.Gender,
		Bio:            usr.Bio,
		ProfilePicture: usr.ProfilePicture,
		Role:           string(usr.Role),
		Status:         string(usr.Status),
		PasswordHash:   usr.PasswordHash,
		CreatedAt:      usr.CreatedAt.UTC(),
		UpdatedAt:      usr.UpdatedAt.UTC(),
		LastLogin:      nullableTime(usr.LastLogin),
	}
	if usr.ID != "" {
		doc.ID = oid(usr.ID)
	}
	if usr.Teacher != nil {
		doc.Teacher = &teacherDoc{AssignedCourses: oids(usr.Teacher.AssignedCourses)}
	}
	if usr.Student != nil {
		doc.Student = &studentDoc{EnrolledCourses: oids(usr.Student.EnrolledCourses)}
	}
	return doc
}

func (doc userDoc) toUser() user.User {
	usr := user.User{
		ID:             doc.ID.Hex(),
		UserID:         doc.UserID,
		Username:       doc.Username,
		Email:          doc.Email,
		FirstName:      doc.FirstName,
		MiddleName:     doc.MiddleName,
		LastName:       doc.LastName,
		Phone:          doc.Phone,
		Address:        doc.Address,
		Sex:            doc.Sex,
		Gender:         doc.Gender,
		Bio:            doc.Bio,
		ProfilePicture: doc.ProfilePicture,
		Role:           user.Role(doc.Role),
		Status:         user.Status(doc.Status),
		PasswordHash:   doc.PasswordHash,
		CreatedAt:      doc.CreatedAt.UTC(),
		UpdatedAt:      doc.UpdatedAt.UTC(),
		LastLogin:      nullTime(doc.LastLogin),
	}
	// the payload follows the role, even for documents written without one
	switch usr.Role {
	case user.RoleTeacher:
		usr.Teacher = &user.TeacherProfile{AssignedCourses: []string{}}
		if doc.Teacher != nil {
			usr.Teacher.AssignedCourses = hexes(doc.Teacher.AssignedCourses)
		}
	case user.RoleStudent:
		usr.Student = &user.StudentProfile{EnrolledCourses: []string{}}
		if doc.Student != nil {
			usr.Student.EnrolledCourses = hexes(doc.Student.EnrolledCourses)
		}
	}
	return usr
}

func toCourseDoc(crs course.Course) courseDoc {
	doc := courseDoc{
		CourseCode:  crs.CourseCode,
		CourseName:  crs.CourseName,
		Description: crs.Description,
		Teacher:     nullableOID(crs.Teacher),
		Students:    oids(crs.Students),
		CreatedAt:   crs.CreatedAt.UTC(),
		UpdatedAt:   crs.UpdatedAt.UTC(),
	}
	if crs.ID != "" {
		doc.ID = oid(crs.ID)
	}
	return doc
}

func (doc courseDoc) toCourse() course.Course {
	return course.Course{
		ID:          doc.ID.Hex(),
		CourseCode:  doc.CourseCode,
		CourseName:  doc.CourseName,
		Description: doc.Description,
		Teacher:     nullableHex(doc.Teacher),
		Students:    hexes(doc.Students),
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}
}

func toActivityDoc(act course.Activity) activityDoc {
	return activityDoc{
		Course:      oid(act.Course),
		Title:       act.Title,
		Description: act.Description,
		Type:        act.Type,
		DueDate:     nullableTime(act.DueDate),
		MaxScore:    act.MaxScore,
		CreatedBy:   oid(act.CreatedBy),
		CreatedAt:   act.CreatedAt.UTC(),
		UpdatedAt:   act.UpdatedAt.UTC(),
	}
}

func (doc activityDoc) toActivity() course.Activity {
	return course.Activity{
		ID:          doc.ID.Hex(),
		Course:      doc.Course.Hex(),
		Title:       doc.Title,
		Description: doc.Description,
		Type:        doc.Type,
		DueDate:     nullTime(doc.DueDate),
		MaxScore:    doc.MaxScore,
		CreatedBy:   doc.CreatedBy.Hex(),
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}
}

func toGradeDoc(grade course.Grade) gradeDoc {
	return gradeDoc{
		Course:    oid(grade.Course),
		Student:   oid(grade.Student),
		Activity:  nullableOID(grade.Activity),
		Score:     grade.Score,
		Remarks:   grade.Remarks,
		GradedBy:  oid(grade.GradedBy),
		CreatedAt: grade.CreatedAt.UTC(),
		UpdatedAt: grade.UpdatedAt.UTC(),
	}
}

func (doc gradeDoc) toGrade() course.Grade {
	return course.Grade{
		ID:        doc.ID.Hex(),
		Course:    doc.Course.Hex(),
		Student:   doc.Student.Hex(),
		Activity:  nullableHex(doc.Activity),
		Score:     doc.Score,
		Remarks:   doc.Remarks,
		GradedBy:  doc.GradedBy.Hex(),
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}
