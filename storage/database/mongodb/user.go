package mongorepos

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/storage/database"
)

var userSortFields = map[string]string{
	"id":        "_id",
	"userId":    "userId",
	"username":  "username",
	"email":     "email",
	"firstName": "firstName",
	"lastName":  "lastName",
	"role":      "role",
	"status":    "status",
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
	"lastLogin": "lastLogin",
}

type userRepository struct {
	coll *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *database.DB) *userRepository {
	return &userRepository{coll: db.Collection(database.Users)}
}

// trapNoDocsErr maps mongo "no documents" err to user.ErrNotFound
func (repo userRepository) trapNoDocsErr(err error, msg string) error {
	if err == mongo.ErrNoDocuments {
		return user.ErrNotFound
	}
	return database.Wrap(err, msg)
}

// trapDupKeyErr maps unique index collisions to the matching user error.
func (repo userRepository) trapDupKeyErr(err error, msg string) error {
	switch duplicateKey(err) {
	case "":
		return database.Wrap(err, msg)
	case "userId":
		return user.ErrUserIDExists
	case "username":
		return user.ErrUsernameExists
	default:
		return user.ErrEmailExists
	}
}

func (repo userRepository) findOneAndUpdate(ctx context.Context, id string, update bson.M, msg string) (user.User, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return user.User{}, user.ErrNotFound
	}
	var doc userDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err = repo.coll.FindOneAndUpdate(ctx, bson.M{"_id": objID}, update, opts).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, repo.trapDupKeyErr(err, msg)
	}
	return doc.toUser(), nil
}

func (repo userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	filter := bson.M{"$or": []bson.M{{"username": username}, {"email": email}}}
	if len(excludedIDs) > 0 {
		filter["_id"] = bson.M{"$nin": oids(excludedIDs)}
	}

	var doc userDoc
	if err := repo.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil
		}
		return database.Wrap(err, "checking user uniqueness")
	}
	if doc.Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	doc := toUserDoc(usr)
	doc.ID = primitive.NewObjectID()
	if _, err := repo.coll.InsertOne(ctx, doc); err != nil {
		return user.User{}, repo.trapDupKeyErr(err, "inserting user")
	}
	return doc.toUser(), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var query bson.M
	switch {
	case filter.ID != "":
		objID, err := primitive.ObjectIDFromHex(filter.ID)
		if err != nil {
			return user.User{}, user.ErrNotFound
		}
		query = bson.M{"_id": objID}
	case filter.UserID != "":
		query = bson.M{"userId": filter.UserID}
	case filter.Username != "":
		query = bson.M{"username": filter.Username}
	case filter.Email != "":
		query = bson.M{"email": filter.Email}
	case filter.UsernameOrEmail != "":
		query = bson.M{"$or": []bson.M{{"username": filter.UsernameOrEmail}, {"email": filter.UsernameOrEmail}}}
	default:
		return user.User{}, user.ErrNotFound
	}

	var doc userDoc
	if err := repo.coll.FindOne(ctx, query).Decode(&doc); err != nil {
		return user.User{}, repo.trapNoDocsErr(err, "finding user")
	}
	return doc.toUser(), nil
}

func userQuery(filter *user.QueryFilter) bson.M {
	query := bson.M{}
	if filter == nil {
		return query
	}

	// users with names, Username, Email or UserID matching the search keyword
	if filter.Search != "" {
		rgx := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = []bson.M{
			{"firstName": rgx},
			{"middleName": rgx},
			{"lastName": rgx},
			{"username": rgx},
			{"email": rgx},
			{"userId": rgx},
		}
	}
	if len(filter.IDs) > 0 {
		query["_id"] = bson.M{"$in": oids(filter.IDs)}
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, r := range filter.Roles {
			roles = append(roles, string(r))
		}
		query["role"] = bson.M{"$in": roles}
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		query["status"] = bson.M{"$in": statuses}
	}
	return query
}

func sortDoc(ordering []core.DBOrdering, fields map[string]string, fallback string) bson.D {
	sort := make(bson.D, 0, len(ordering)+1)
	for _, ord := range ordering {
		field, ok := fields[ord.Field]
		if !ok {
			continue
		}
		direction := -1
		if ord.Ascending {
			direction = 1
		}
		sort = append(sort, bson.E{Key: field, Value: direction})
	}
	if len(sort) == 0 {
		sort = append(sort, bson.E{Key: fallback, Value: 1})
	}
	return append(sort, bson.E{Key: "_id", Value: 1})
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]user.User, int, error) {
	query := userQuery(filter)

	total, err := repo.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, database.Wrap(err, "counting users")
	}

	opts := options.Find().SetSort(sortDoc(ordering, userSortFields, "createdAt"))
	if page != nil {
		opts.SetSkip(int64(page.Skip())).SetLimit(int64(page.Limit))
	}
	cursor, err := repo.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, database.Wrap(err, "querying users")
	}
	var docs []userDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, 0, database.Wrap(err, "decoding users")
	}

	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.toUser())
	}
	return users, int(total), nil
}

func (repo userRepository) CountUsers(ctx context.Context, role user.Role, status user.Status) (int, error) {
	count, err := repo.coll.CountDocuments(ctx, bson.M{"role": string(role), "status": string(status)})
	if err != nil {
		return 0, database.Wrap(err, "counting users")
	}
	return int(count), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	doc := toUserDoc(usr)
	return repo.findOneAndUpdate(ctx, usr.ID, bson.M{"$set": bson.M{
		"username":       doc.Username,
		"email":          doc.Email,
		"firstName":      doc.FirstName,
		"middleName":     doc.MiddleName,
		"lastName":       doc.LastName,
		"phone":          doc.Phone,
		"address":        doc.Address,
		"sex":            doc.Sex,
		"gender":         doc.Gender,
		"bio":            doc.Bio,
		"profilePicture": doc.ProfilePicture,
		"status":         doc.Status,
		"passwordHash":   doc.PasswordHash,
		"updatedAt":      doc.UpdatedAt,
	}}, "updating user")
}

func (repo userRepository) SetStatus(ctx context.Context, id string, status user.Status) (user.User, error) {
	return repo.findOneAndUpdate(ctx, id, bson.M{"$set": bson.M{
		"status":    string(status),
		"updatedAt": time.Now().UTC(),
	}}, "setting user status")
}

func (repo userRepository) SetLastLogin(ctx context.Context, id string, at time.Time) (user.User, error) {
	return repo.findOneAndUpdate(ctx, id, bson.M{"$set": bson.M{"lastLogin": at.UTC()}}, "setting lastLogin")
}

func (repo userRepository) DeleteUser(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return user.ErrNotFound
	}
	res, err := repo.coll.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return database.Wrap(err, "deleting user")
	}
	if res.DeletedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

// payloadUpdate runs update on the users `ids` of the given role; unmatched users are left alone.
func (repo userRepository) payloadUpdate(ctx context.Context, role user.Role, ids []string, update bson.M, msg string) error {
	filter := bson.M{"_id": bson.M{"$in": oids(ids)}, "role": string(role)}
	_, err := repo.coll.UpdateMany(ctx, filter, update)
	return database.Wrap(err, msg)
}

func (repo userRepository) AddAssignedCourse(ctx context.Context, teacherID, courseID string) error {
	update := bson.M{"$addToSet": bson.M{"teacher.assignedCourses": oid(courseID)}}
	return repo.payloadUpdate(ctx, user.RoleTeacher, []string{teacherID}, update, "adding assigned course")
}

func (repo userRepository) PullAssignedCourse(ctx context.Context, teacherID, courseID string) error {
	update := bson.M{"$pull": bson.M{"teacher.assignedCourses": oid(courseID)}}
	return repo.payloadUpdate(ctx, user.RoleTeacher, []string{teacherID}, update, "pulling assigned course")
}

func (repo userRepository) AddEnrolledCourse(ctx context.Context, studentID, courseID string) error {
	update := bson.M{"$addToSet": bson.M{"student.enrolledCourses": oid(courseID)}}
	return repo.payloadUpdate(ctx, user.RoleStudent, []string{studentID}, update, "adding enrolled course")
}

func (repo userRepository) PullEnrolledCourse(ctx context.Context, courseID string, studentIDs ...string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	update := bson.M{"$pull": bson.M{"student.enrolledCourses": oid(courseID)}}
	return repo.payloadUpdate(ctx, user.RoleStudent, studentIDs, update, "pulling enrolled course")
}
