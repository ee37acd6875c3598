package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

const userIDAttempts = 5

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("user not found")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrUsernameExists       = errors.New("a user with this username already exists")
	ErrUserIDExists         = errors.New("a user with this user id already exists")
	ErrRoleImmutable        = errors.New("role cannot be changed once the user is created")
	ErrAdminRegistration    = errors.New("admins cannot self register")
	ErrAuthenticationFailed = core.NewValidationError(errors.New("invalid credentials"))
	ErrAccountNotActive     = core.NewForbiddenError("account is not active")
	ErrProtectedFields      = core.NewForbiddenError("only admins can change the role, status, username or email")
	ErrSelfArchive          = core.NewForbiddenError("you cannot archive your own account")
	ErrSelfDelete           = core.NewForbiddenError("you cannot delete your own account")
	ErrLastActiveAdmin      = core.NewConflictError("cannot archive the last active admin")
	ErrLastActiveAdminState = core.NewConflictError("cannot deactivate the last active admin")
	ErrNotArchived          = core.NewConflictError("only archived users can be restored")
	ErrDeleteNotArchived    = core.NewConflictError("only archived users can be permanently deleted")
	ErrInvalidResetToken    = core.NewValidationError(errors.New("invalid or expired password reset link"))
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists if taken by a user other than excludedIDs.
		CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error
		// CreateUser stores usr with a new ID. Returns ErrUserIDExists if usr.UserID is taken.
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields and returns the total before paging.
		// QueryFilter.Search does a case-insensitive match on one of names, Username, Email or UserID.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) ([]User, int, error)
		CountUsers(ctx context.Context, role Role, status Status) (int, error)
		// UpdateUser saves profile fields, status and password. Role and course references are never written.
		UpdateUser(ctx context.Context, usr User) (User, error)
		// SetStatus writes the status alone, bypassing profile validation.
		SetStatus(ctx context.Context, id string, status Status) (User, error)
		SetLastLogin(ctx context.Context, id string, at time.Time) (User, error)
		DeleteUser(ctx context.Context, id string) error

		// course back-references: atomic set operations, no-ops when already (un)set.
		AddAssignedCourse(ctx context.Context, teacherID, courseID string) error
		PullAssignedCourse(ctx context.Context, teacherID, courseID string) error
		AddEnrolledCourse(ctx context.Context, studentID, courseID string) error
		PullEnrolledCourse(ctx context.Context, courseID string, studentIDs ...string) error
	}

	// CourseUnlinker removes the course side references to a user about to be removed for good.
	CourseUnlinker interface {
		UnsetTeacher(ctx context.Context, teacherID string) error
		PullStudentFromCourses(ctx context.Context, studentID string) error
	}

	Service struct {
		repo     Repository
		courses  CourseUnlinker
		tx       core.Transactor
		mailSvc  core.EmailService
		validate *validator.Validate
		conf     *core.Config
		tokens   tokenGenerator
	}
)

func NewService(
	repo Repository,
	courses CourseUnlinker,
	tx core.Transactor,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
) *Service {
	return &Service{
		repo:     repo,
		courses:  courses,
		tx:       tx,
		mailSvc:  mailSvc,
		validate: validate,
		conf:     conf,
		tokens:   newTokenGenerator(conf),
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string, excludedIDs ...string) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, excludedIDs...); err != nil {
		return uniquenessError(err)
	}
	return nil
}

func uniquenessError(err error) error {
	var field string
	switch err {
	case ErrUsernameExists:
		field = "username"
	case ErrEmailExists:
		field = "email"
	default:
		return err
	}
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

// Create creates a user of any role on behalf of an admin.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if err := nu.Validate(svc.validate); err != nil {
		return User{}, err
	}
	return svc.create(ctx, nu)
}

// Register creates a pending Teacher or Student account.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	nu.Status = StatusPending
	if err := nu.Validate(svc.validate); err != nil {
		return User{}, err
	}
	if nu.Role == RoleAdmin {
		return User{}, core.NewValidationError(ErrAdminRegistration, core.FieldError{Field: "role", Error: ErrAdminRegistration.Error()})
	}
	return svc.create(ctx, nu)
}

func (svc *Service) create(ctx context.Context, nu NewUser) (User, error) {
	if err := svc.checkUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := New(nu.Role)
	usr.Username = nu.Username
	usr.Email = nu.Email
	usr.FirstName = nu.FirstName
	usr.MiddleName = nu.MiddleName
	usr.LastName = nu.LastName
	usr.Phone = nu.Phone
	usr.Address = nu.Address
	usr.Sex = nu.Sex
	usr.Gender = nu.Gender
	usr.Bio = nu.Bio
	usr.ProfilePicture = nu.ProfilePicture
	if nu.Status != "" {
		usr.Status = nu.Status
	}
	usr.CreatedAt = now
	usr.UpdatedAt = now
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	created, err := svc.CreateWithUserID(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.sendAccountCreatedEmail(created)
	return created, nil
}

// CreateWithUserID stores usr under a freshly generated UserID, retrying on collisions.
func (svc *Service) CreateWithUserID(ctx context.Context, usr User) (User, error) {
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now().UTC()
		usr.UpdatedAt = usr.CreatedAt
	}
	for i := 0; i < userIDAttempts; i++ {
		uid, err := GenerateUserID(usr.CreatedAt)
		if err != nil {
			return User{}, errors.Wrap(err, "generating user id")
		}
		usr.UserID = uid

		created, err := svc.repo.CreateUser(ctx, usr)
		if err == nil {
			return created, nil
		}
		switch cause := errors.Cause(err); cause {
		case ErrUserIDExists: // try another one
		case ErrUsernameExists, ErrEmailExists:
			return User{}, uniquenessError(cause)
		default:
			return User{}, errors.Wrap(err, "creating user")
		}
	}
	return User{}, errors.Wrap(ErrUserIDExists, "creating user")
}

func (svc *Service) sendAccountCreatedEmail(usr User) {
	if svc.mailSvc == nil || usr.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(core.NewEmailMessage(
		svc.conf,
		mail.Address{Name: usr.FullName(), Address: usr.Email},
		"Your account has been created",
		"account_created",
		usr,
	))
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	if err := core.CheckID("id", id); err != nil {
		return User{}, err
	}
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// Query lists users. Archived users are left out unless the archived status is requested.
func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, int, *core.Pagination, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	for _, id := range filter.IDs {
		if err := core.CheckID("id", id); err != nil {
			return nil, 0, nil, err
		}
	}
	for _, role := range filter.Roles {
		if !role.IsValid() {
			return nil, 0, nil, core.NewValidationError(nil, core.FieldError{Field: "role", Error: roleText})
		}
	}
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return nil, 0, nil, core.NewValidationError(nil, core.FieldError{Field: "status", Error: statusText})
		}
	}
	if len(filter.Statuses) == 0 {
		filter.Statuses = RestorableStatuses
	}

	page := core.NewPagination(filter.Page, filter.Limit)
	users, total, err := svc.repo.QueryUsers(ctx, filter, ordering, page)
	if err != nil {
		return nil, 0, nil, errors.Wrap(err, "querying users")
	}
	if page != nil {
		page.SetTotal(total)
	}
	return users, total, page, nil
}

// Authenticate checks credentials and stamps the last login. Only active users may sign in.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive() {
		return User{}, ErrAccountNotActive
	}
	usr, err = svc.repo.SetLastLogin(ctx, usr.ID, time.Now().UTC())
	return usr, errors.Wrap(err, "setting lastLogin")
}

// Update applies uu to the user `id` on behalf of actor.
// Non admins may only edit their own profile fields.
func (svc *Service) Update(ctx context.Context, actor User, id string, uu UpdateUser) (User, error) {
	if err := core.CheckID("id", id); err != nil {
		return User{}, err
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if !actor.IsAdmin() {
		if actor.ID != usr.ID {
			return User{}, ErrNotFound
		}
		if uu.ChangesProtectedFields() {
			return User{}, ErrProtectedFields
		}
	}
	if err = uu.Validate(usr, svc.validate); err != nil {
		return User{}, err
	}

	if uu.Status != nil && *uu.Status != usr.Status {
		if *uu.Status == StatusArchived && actor.ID == usr.ID {
			return User{}, ErrSelfArchive
		}
		if *uu.Status != StatusActive {
			if err = svc.guardLastActiveAdmin(ctx, usr, ErrLastActiveAdminState); err != nil {
				return User{}, err
			}
		}
	}

	if uu.Username != nil || uu.Email != nil {
		uname, email := usr.Username, usr.Email
		if uu.Username != nil {
			uname = *uu.Username
		}
		if uu.Email != nil {
			email = *uu.Email
		}
		if err = svc.checkUniqueness(ctx, uname, email, usr.ID); err != nil {
			return User{}, err
		}
	}

	uu.apply(&usr)
	if uu.Password != "" {
		if err = usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()

	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

// guardLastActiveAdmin returns guardErr when target is the only active admin left.
func (svc *Service) guardLastActiveAdmin(ctx context.Context, target User, guardErr error) error {
	if !target.IsAdmin() || !target.IsActive() {
		return nil
	}
	count, err := svc.repo.CountUsers(ctx, RoleAdmin, StatusActive)
	if err != nil {
		return errors.Wrap(err, "counting active admins")
	}
	if count <= 1 {
		return guardErr
	}
	return nil
}

// Archive soft deletes the user `id`. Course references are kept as they are.
func (svc *Service) Archive(ctx context.Context, actor User, id string) (User, error) {
	if err := core.CheckID("id", id); err != nil {
		return User{}, err
	}
	if actor.ID == id {
		return User{}, ErrSelfArchive
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if usr.Status == StatusArchived {
		return usr, nil
	}
	if err = svc.guardLastActiveAdmin(ctx, usr, ErrLastActiveAdmin); err != nil {
		return User{}, err
	}

	usr, err = svc.repo.SetStatus(ctx, usr.ID, StatusArchived)
	return usr, errors.Wrap(err, "archiving user")
}

// Restore moves an archived user to status, pending when empty.
func (svc *Service) Restore(ctx context.Context, id string, status Status) (User, error) {
	if err := core.CheckID("id", id); err != nil {
		return User{}, err
	}
	if status == "" {
		status = StatusPending
	} else if !status.IsRestorable() {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "cannot restore to " + string(status)})
	}

	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if usr.Status != StatusArchived {
		return User{}, ErrNotArchived
	}

	usr, err = svc.repo.SetStatus(ctx, usr.ID, status)
	return usr, errors.Wrap(err, "restoring user")
}

// PermanentDelete removes an archived user for good, after unlinking them from every course.
func (svc *Service) PermanentDelete(ctx context.Context, actor User, id string) error {
	if err := core.CheckID("id", id); err != nil {
		return err
	}
	if actor.ID == id {
		return ErrSelfDelete
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	if usr.Status != StatusArchived {
		return ErrDeleteNotArchived
	}

	return svc.tx.WithTransaction(ctx, func(ctx context.Context) error {
		switch usr.Role {
		case RoleTeacher:
			if err := svc.courses.UnsetTeacher(ctx, usr.ID); err != nil {
				return errors.Wrap(err, "unsetting teacher from courses")
			}
		case RoleStudent:
			if err := svc.courses.PullStudentFromCourses(ctx, usr.ID); err != nil {
				return errors.Wrap(err, "pulling student from courses")
			}
		}
		return errors.Wrap(svc.repo.DeleteUser(ctx, usr.ID), "deleting user")
	})
}

type passwordResetEmailData struct {
	FirstName string
	ResetURL  string
}

// RequestPasswordReset emails a reset link to the active user owning email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return errors.Wrap(err, "finding user by email")
	}
	if !usr.IsActive() {
		return ErrAccountNotActive
	}

	token, err := svc.tokens.MakeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making password reset token")
	}
	if svc.mailSvc != nil {
		svc.mailSvc.SendMessages(core.NewEmailMessage(
			svc.conf,
			mail.Address{Name: usr.FullName(), Address: usr.Email},
			"Password reset",
			"password_reset",
			passwordResetEmailData{
				FirstName: usr.FirstName,
				ResetURL:  fmt.Sprintf("%s/password-reset/%s/%s", svc.conf.FrontendBaseURL, EncodeUID(usr), token),
			},
		))
	}
	return nil
}

// ResetPassword sets a new password for the user identified by a reset link.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetPassword) (User, error) {
	if err := rp.Validate(svc.validate); err != nil {
		return User{}, err
	}
	id, err := decodeUID(rp.UID)
	if err != nil || !core.IsValidID(id) {
		return User{}, ErrInvalidResetToken
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidResetToken
		}
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokens.VerifyToken(usr, rp.Token); err != nil || !usr.IsActive() {
		return User{}, ErrInvalidResetToken
	}

	uu := UpdateUser{Password: rp.Password, PasswordConfirm: rp.PasswordConfirm}
	if err = uu.Validate(usr, svc.validate); err != nil {
		return User{}, err
	}
	if err = usr.SetPassword(uu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()

	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}
