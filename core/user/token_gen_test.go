package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

func TestMakeVerifyToken(t *testing.T) {
	conf := core.NewTestConfig()
	conf.PasswordResetTimeout = 3 * 24 * time.Hour
	gen := newTokenGenerator(conf)

	now := time.Now().UTC()
	usr := New(RoleStudent)
	usr.ID = core.NewID()
	usr.Username = "t"
	usr.Email = "t@test.test"
	usr.Status = StatusActive
	usr.LastLogin = null.TimeFrom(now)
	_ = usr.SetPassword("pwd")

	validToken, err := gen.MakeToken(usr)
	assert.NoError(t, err)

	// generate an expired token
	dayLate := conf.PasswordResetTimeout + (24 * time.Hour)
	NowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken, err := gen.MakeToken(usr)
	NowFunc = time.Now // reset
	assert.NoError(t, err)

	loggedIn := usr
	loggedIn.LastLogin = null.TimeFrom(now.Add(time.Minute))
	suspended := usr
	suspended.Status = StatusSuspended

	otherSecret := core.NewTestConfig()
	otherSecret.SecretKey = "another-secret"
	otherSecret.PasswordResetTimeout = conf.PasswordResetTimeout

	tests := []struct {
		name    string
		gen     tokenGenerator
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "logged in since", usr: loggedIn, token: validToken, wantErr: errInvalidToken},
		{name: "status changed since", usr: suspended, token: validToken, wantErr: errInvalidToken},
		{name: "other secret", gen: newTokenGenerator(otherSecret), usr: usr, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := gen
			if tt.gen.secret != nil {
				g = tt.gen
			}
			assert.Equal(t, tt.wantErr, g.VerifyToken(tt.usr, tt.token))
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: core.NewID()}
	id, err := decodeUID(EncodeUID(usr))
	assert.NoError(t, err)
	assert.Equal(t, usr.ID, id)

	_, err = decodeUID("not base64!")
	assert.Error(t, err)
}
