package mongorepos

import (
	"context"
	"regexp"
	"time"

	"github.com/volatiletech/null/v8"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/storage/database"
)

type courseRepository struct {
	coll *mongo.Collection
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *database.DB) *courseRepository {
	return &courseRepository{coll: db.Collection(database.Courses)}
}

func (repo courseRepository) trapErr(err error, msg string) error {
	switch {
	case err == mongo.ErrNoDocuments:
		return course.ErrNotFound
	case duplicateKey(err) != "":
		return course.ErrCodeExists
	}
	return database.Wrap(err, msg)
}

func (repo courseRepository) findOneAndUpdate(ctx context.Context, id string, update bson.M, msg string) (course.Course, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return course.Course{}, course.ErrNotFound
	}
	var doc courseDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err = repo.coll.FindOneAndUpdate(ctx, bson.M{"_id": objID}, update, opts).Decode(&doc); err != nil {
		return course.Course{}, repo.trapErr(err, msg)
	}
	return doc.toCourse(), nil
}

// updateOne reports whether the course `id` was modified; course.ErrNotFound if it does not exist.
func (repo courseRepository) updateOne(ctx context.Context, id string, update bson.M, msg string) (bool, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, course.ErrNotFound
	}
	res, err := repo.coll.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return false, database.Wrap(err, msg)
	}
	if res.MatchedCount == 0 {
		return false, course.ErrNotFound
	}
	return res.ModifiedCount > 0, nil
}

func (repo courseRepository) CheckCodeUniqueness(ctx context.Context, code string, excludedIDs ...string) error {
	filter := bson.M{"courseCode": code}
	if len(excludedIDs) > 0 {
		filter["_id"] = bson.M{"$nin": oids(excludedIDs)}
	}
	count, err := repo.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return database.Wrap(err, "checking course code uniqueness")
	}
	if count > 0 {
		return course.ErrCodeExists
	}
	return nil
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	doc := toCourseDoc(crs)
	doc.ID = primitive.NewObjectID()
	if _, err := repo.coll.InsertOne(ctx, doc); err != nil {
		return course.Course{}, repo.trapErr(err, "inserting course")
	}
	return doc.toCourse(), nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return course.Course{}, course.ErrNotFound
	}
	var doc courseDoc
	if err = repo.coll.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc); err != nil {
		return course.Course{}, repo.trapErr(err, "finding course")
	}
	return doc.toCourse(), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter) ([]course.Course, error) {
	query := bson.M{}
	if filter != nil {
		if filter.Search != "" {
			rgx := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
			query["$or"] = []bson.M{{"courseCode": rgx}, {"courseName": rgx}}
		}
		if filter.TeacherID != "" {
			query["teacher"] = oid(filter.TeacherID)
		}
		if filter.StudentID != "" {
			query["students"] = oid(filter.StudentID)
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "courseCode", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := repo.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, database.Wrap(err, "querying courses")
	}
	var docs []courseDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, database.Wrap(err, "decoding courses")
	}

	courses := make([]course.Course, 0, len(docs))
	for _, doc := range docs {
		courses = append(courses, doc.toCourse())
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	doc := toCourseDoc(crs)
	return repo.findOneAndUpdate(ctx, crs.ID, bson.M{"$set": bson.M{
		"courseCode":  doc.CourseCode,
		"courseName":  doc.CourseName,
		"description": doc.Description,
		"teacher":     doc.Teacher,
		"updatedAt":   doc.UpdatedAt,
	}}, "updating course")
}

func (repo courseRepository) SetTeacher(ctx context.Context, id string, teacherID null.String) (course.Course, error) {
	return repo.findOneAndUpdate(ctx, id, bson.M{"$set": bson.M{
		"teacher":   nullableOID(teacherID),
		"updatedAt": time.Now().UTC(),
	}}, "setting course teacher")
}

func (repo courseRepository) AddStudent(ctx context.Context, courseID, studentID string) (bool, error) {
	return repo.updateOne(ctx, courseID, bson.M{"$addToSet": bson.M{"students": oid(studentID)}}, "adding student")
}

func (repo courseRepository) PullStudent(ctx context.Context, courseID, studentID string) (bool, error) {
	return repo.updateOne(ctx, courseID, bson.M{"$pull": bson.M{"students": oid(studentID)}}, "pulling student")
}

func (repo courseRepository) DeleteCourse(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return course.ErrNotFound
	}
	res, err := repo.coll.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return database.Wrap(err, "deleting course")
	}
	if res.DeletedCount == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo courseRepository) UnsetTeacher(ctx context.Context, teacherID string) error {
	tid := oid(teacherID)
	_, err := repo.coll.UpdateMany(ctx, bson.M{"teacher": tid}, bson.M{"$set": bson.M{"teacher": nil}})
	return database.Wrap(err, "unsetting teacher")
}

func (repo courseRepository) PullStudentFromCourses(ctx context.Context, studentID string) error {
	sid := oid(studentID)
	_, err := repo.coll.UpdateMany(ctx, bson.M{"students": sid}, bson.M{"$pull": bson.M{"students": sid}})
	return database.Wrap(err, "pulling student from courses")
}
