package mongorepos

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/storage/database"
)

var byCreation = options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

type activityRepository struct {
	coll *mongo.Collection
}

var _ course.ActivityRepository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *database.DB) *activityRepository {
	return &activityRepository{coll: db.Collection(database.Activities)}
}

func (repo activityRepository) CreateActivity(ctx context.Context, act course.Activity) (course.Activity, error) {
	doc := toActivityDoc(act)
	doc.ID = primitive.NewObjectID()
	if _, err := repo.coll.InsertOne(ctx, doc); err != nil {
		return course.Activity{}, database.Wrap(err, "inserting activity")
	}
	return doc.toActivity(), nil
}

func (repo activityRepository) GetActivity(ctx context.Context, id string) (course.Activity, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return course.Activity{}, course.ErrActivityNotFound
	}
	var doc activityDoc
	if err = repo.coll.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return course.Activity{}, course.ErrActivityNotFound
		}
		return course.Activity{}, database.Wrap(err, "finding activity")
	}
	return doc.toActivity(), nil
}

func (repo activityRepository) QueryActivities(ctx context.Context, courseID string) ([]course.Activity, error) {
	cursor, err := repo.coll.Find(ctx, bson.M{"course": oid(courseID)}, byCreation)
	if err != nil {
		return nil, database.Wrap(err, "querying activities")
	}
	var docs []activityDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, database.Wrap(err, "decoding activities")
	}

	acts := make([]course.Activity, 0, len(docs))
	for _, doc := range docs {
		acts = append(acts, doc.toActivity())
	}
	return acts, nil
}

func (repo activityRepository) DeleteActivities(ctx context.Context, courseID string) (int, error) {
	res, err := repo.coll.DeleteMany(ctx, bson.M{"course": oid(courseID)})
	if err != nil {
		return 0, database.Wrap(err, "deleting activities")
	}
	return int(res.DeletedCount), nil
}

func (repo activityRepository) DeleteOrphanActivities(ctx context.Context, courseIDs []string) (int, error) {
	res, err := repo.coll.DeleteMany(ctx, bson.M{"course": bson.M{"$nin": oids(courseIDs)}})
	if err != nil {
		return 0, database.Wrap(err, "deleting orphan activities")
	}
	return int(res.DeletedCount), nil
}

type gradeRepository struct {
	coll *mongo.Collection
}

var _ course.GradeRepository = (*gradeRepository)(nil) // interface compliance check

func NewGradeRepository(db *database.DB) *gradeRepository {
	return &gradeRepository{coll: db.Collection(database.Grades)}
}

func (repo gradeRepository) CreateGrade(ctx context.Context, grade course.Grade) (course.Grade, error) {
	doc := toGradeDoc(grade)
	doc.ID = primitive.NewObjectID()
	if _, err := repo.coll.InsertOne(ctx, doc); err != nil {
		return course.Grade{}, database.Wrap(err, "inserting grade")
	}
	return doc.toGrade(), nil
}

func (repo gradeRepository) QueryGrades(ctx context.Context, filter course.GradeFilter) ([]course.Grade, error) {
	query := bson.M{}
	if filter.Course != "" {
		query["course"] = oid(filter.Course)
	}
	if filter.Student != "" {
		query["student"] = oid(filter.Student)
	}
	if filter.Activity != "" {
		query["activity"] = oid(filter.Activity)
	}

	cursor, err := repo.coll.Find(ctx, query, byCreation)
	if err != nil {
		return nil, database.Wrap(err, "querying grades")
	}
	var docs []gradeDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, database.Wrap(err, "decoding grades")
	}

	grades := make([]course.Grade, 0, len(docs))
	for _, doc := range docs {
		grades = append(grades, doc.toGrade())
	}
	return grades, nil
}

func (repo gradeRepository) DeleteGrades(ctx context.Context, courseID string) (int, error) {
	res, err := repo.coll.DeleteMany(ctx, bson.M{"course": oid(courseID)})
	if err != nil {
		return 0, database.Wrap(err, "deleting grades")
	}
	return int(res.DeletedCount), nil
}

func (repo gradeRepository) DeleteOrphanGrades(ctx context.Context, courseIDs []string) (int, error) {
	res, err := repo.coll.DeleteMany(ctx, bson.M{"course": bson.M{"$nin": oids(courseIDs)}})
	if err != nil {
		return 0, database.Wrap(err, "deleting orphan grades")
	}
	return int(res.DeletedCount), nil
}
