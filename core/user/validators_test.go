package user

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

func TestPasswordPolicy(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	SetCommonPasswords("passw0rd!")
	defer SetCommonPasswords()

	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "too short", pwd: "Ab1!", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcd 123!", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", wantTag: pwdNotAllNumTag},
		{name: "no special", pwd: "Abcdefg123", wantTag: pwdComplexityTag},
		{name: "no upper", pwd: "abcdefg12!", wantTag: pwdComplexityTag},
		{name: "similar to username", pwd: "Gakuseii1!", wantTag: pwdAttrSimTag},
		{name: "common", pwd: "Passw0rd!", wantTag: pwdNoCommonTag},
		{name: "valid", pwd: "Sup3r-S3cret!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := NewUser{
				Username:        "gakusei1",
				Email:           "g@test.cd",
				FirstName:       "Ko",
				LastName:        "Yo",
				Role:            RoleStudent,
				Password:        tt.pwd,
				PasswordConfirm: tt.pwd,
			}
			err := nu.Validate(validate)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			verrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok, err)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.wantTag, verrs[0].Tag())
		})
	}
}

func TestUserID(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := GenerateUserID(at)
		require.NoError(t, err)
		assert.True(t, IsValidUserID(id), id)
		assert.Equal(t, "2024-", id[:5])
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1)

	for _, id := range []string{"", "2024-12345", "24-123456", "2024_123456", "2024-1234567"} {
		assert.False(t, IsValidUserID(id), id)
	}
}

func TestRoleStatus(t *testing.T) {
	assert.True(t, RoleTeacher.IsValid())
	assert.False(t, Role("Janitor").IsValid())
	assert.True(t, StatusSuspended.IsRestorable())
	assert.False(t, StatusArchived.IsRestorable())
	assert.True(t, StatusArchived.IsValid())
}
