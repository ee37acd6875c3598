package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var defaultUserOrdering = []core.DBOrdering{{Field: "createdAt", Ascending: true}}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

// copyUser returns a copy of usr that shares no slices or payloads with it.
func copyUser(usr user.User) user.User {
	if usr.Teacher != nil {
		usr.Teacher = &user.TeacherProfile{AssignedCourses: copyStrings(usr.Teacher.AssignedCourses)}
	}
	if usr.Student != nil {
		usr.Student = &user.StudentProfile{EnrolledCourses: copyStrings(usr.Student.EnrolledCourses)}
	}
	usr.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	return usr
}

func userField(usr *user.User, name string) string {
	switch name {
	case "id":
		return usr.ID
	case "userId":
		return usr.UserID
	case "username":
		return usr.Username
	case "email":
		return usr.Email
	case "firstName":
		return strings.ToLower(usr.FirstName)
	case "lastName":
		return strings.ToLower(usr.LastName)
	case "role":
		return string(usr.Role)
	case "status":
		return string(usr.Status)
	case "updatedAt":
		return sortable(usr.UpdatedAt)
	case "lastLogin":
		return sortable(usr.LastLogin.Time)
	default:
		return sortable(usr.CreatedAt)
	}
}

// checkUniqueness must be called with the lock held.
func (repo *userRepository) checkUniqueness(username, email string, excludedIDs ...string) error {
	for id, usr := range repo.db.users {
		if core.ContainsString(excludedIDs, id) {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.checkUniqueness(username, email, excludedIDs...)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, u := range repo.db.users {
		if u.UserID == usr.UserID {
			return user.User{}, user.ErrUserIDExists
		}
	}
	if err := repo.checkUniqueness(usr.Username, usr.Email); err != nil {
		return user.User{}, err
	}

	usr.ID = core.NewID()
	usr = copyUser(usr)
	repo.db.users[usr.ID] = &usr
	return copyUser(usr), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return copyUser(*usr), nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.users {
		switch {
		case filter.UserID != "" && usr.UserID == filter.UserID,
			filter.Username != "" && usr.Username == filter.Username,
			filter.Email != "" && usr.Email == filter.Email,
			filter.UsernameOrEmail != "" && (usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail):
			return copyUser(*usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func matchUser(usr *user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" &&
		!containsFold(usr.FirstName, filter.Search) &&
		!containsFold(usr.MiddleName, filter.Search) &&
		!containsFold(usr.LastName, filter.Search) &&
		!containsFold(usr.Username, filter.Search) &&
		!containsFold(usr.Email, filter.Search) &&
		!containsFold(usr.UserID, filter.Search) {
		return false
	}
	if len(filter.IDs) > 0 && !core.ContainsString(filter.IDs, usr.ID) {
		return false
	}
	if len(filter.Roles) > 0 {
		found := false
		for _, role := range filter.Roles {
			found = found || usr.Role == role
		}
		if !found {
			return false
		}
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			found = found || usr.Status == status
		}
		if !found {
			return false
		}
	}
	return true
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]user.User, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var matched []*user.User
	for _, usr := range repo.db.users {
		if matchUser(usr, filter) {
			matched = append(matched, usr)
		}
	}
	if len(ordering) == 0 {
		ordering = defaultUserOrdering
	}
	orderBy(
		len(matched),
		ordering,
		func(i int, name string) string { return userField(matched[i], name) },
		func(i, j int) { matched[i], matched[j] = matched[j], matched[i] },
	)

	total := len(matched)
	if page != nil {
		start := page.Skip()
		if start > total {
			start = total
		}
		end := start + page.Limit
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}

	users := make([]user.User, 0, len(matched))
	for _, usr := range matched {
		users = append(users, copyUser(*usr))
	}
	return users, total, nil
}

func (repo *userRepository) CountUsers(ctx context.Context, role user.Role, status user.Status) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	count := 0
	for _, usr := range repo.db.users {
		if usr.Role == role && usr.Status == status {
			count++
		}
	}
	return count, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := repo.checkUniqueness(usr.Username, usr.Email, usr.ID); err != nil {
		return user.User{}, err
	}

	// role & course references are left as stored
	orig.Username = usr.Username
	orig.Email = usr.Email
	orig.FirstName = usr.FirstName
	orig.MiddleName = usr.MiddleName
	orig.LastName = usr.LastName
	orig.Phone = usr.Phone
	orig.Address = usr.Address
	orig.Sex = usr.Sex
	orig.Gender = usr.Gender
	orig.Bio = usr.Bio
	orig.ProfilePicture = usr.ProfilePicture
	orig.Status = usr.Status
	orig.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	orig.UpdatedAt = usr.UpdatedAt
	return copyUser(*orig), nil
}

func (repo *userRepository) update(id string, fn func(usr *user.User)) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr, ok := repo.db.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	fn(usr)
	return copyUser(*usr), nil
}

func (repo *userRepository) SetStatus(ctx context.Context, id string, status user.Status) (user.User, error) {
	return repo.update(id, func(usr *user.User) {
		usr.Status = status
		usr.UpdatedAt = time.Now().UTC()
	})
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id string, at time.Time) (user.User, error) {
	return repo.update(id, func(usr *user.User) {
		usr.LastLogin.SetValid(at.UTC())
	})
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(repo.db.users, id)
	return nil
}

// A missing user, or a user without the matching payload, is left alone.

func (repo *userRepository) AddAssignedCourse(ctx context.Context, teacherID, courseID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if usr, ok := repo.db.users[teacherID]; ok && usr.Teacher != nil {
		usr.Teacher.AssignedCourses, _ = addString(usr.Teacher.AssignedCourses, courseID)
	}
	return nil
}

func (repo *userRepository) PullAssignedCourse(ctx context.Context, teacherID, courseID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if usr, ok := repo.db.users[teacherID]; ok && usr.Teacher != nil {
		usr.Teacher.AssignedCourses, _ = pullString(usr.Teacher.AssignedCourses, courseID)
	}
	return nil
}

func (repo *userRepository) AddEnrolledCourse(ctx context.Context, studentID, courseID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if usr, ok := repo.db.users[studentID]; ok && usr.Student != nil {
		usr.Student.EnrolledCourses, _ = addString(usr.Student.EnrolledCourses, courseID)
	}
	return nil
}

func (repo *userRepository) PullEnrolledCourse(ctx context.Context, courseID string, studentIDs ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range studentIDs {
		if usr, ok := repo.db.users[id]; ok && usr.Student != nil {
			usr.Student.EnrolledCourses, _ = pullString(usr.Student.EnrolledCourses, courseID)
		}
	}
	return nil
}
