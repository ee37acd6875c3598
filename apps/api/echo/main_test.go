package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core/user"
	logsvc "github.com/trezcool/shule/services/logger"
	testutil "github.com/trezcool/shule/tests"
)

func setup(t *testing.T) (*echoapi.Server, *testutil.Env) {
	env := testutil.NewEnv()
	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       env.Conf,
		Logger:     logsvc.NewRollbarLogger(logsvc.NewStdLogger("TEST : "), env.Conf),
		UserSvc:    env.UserSvc,
		CourseSvc:  env.CourseSvc,
		Validate:   env.Validate,
		Translator: env.Translator,
	})
	t.Cleanup(func() { _ = server.Close() })
	return server, env
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantMsg  string
}

// envelope mirrors echoapi.Response, echoapi.ListResponse & echoapi.ErrorResponse at once.
type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Message string            `json:"message"`
	Count   int               `json:"count"`
	Total   int               `json:"total"`
	Errors  map[string]string `json:"errors"`
}

func newAuthRequest(t *testing.T, method, path, token string, data interface{}) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if data != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(data))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func do(t *testing.T, server http.Handler, tt httpTest) envelope {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(t, method, tt.path, tt.token, tt.body)
	server.ServeHTTP(rec, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	if tt.wantCode != 0 {
		assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		assert.Equal(t, tt.wantCode < http.StatusBadRequest, resp.Success)
	}
	if tt.wantMsg != "" {
		assert.Equal(t, tt.wantMsg, resp.Message)
	}
	return resp
}

func runTests(t *testing.T, server http.Handler, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			do(t, server, tt)
		})
	}
}

func getToken(t *testing.T, env *testutil.Env, usr user.User) string {
	token, err := echoapi.GenerateToken(env.Conf, echoapi.GetUserClaims(env.Conf, usr))
	require.NoError(t, err)
	return token
}

func decode(t *testing.T, data json.RawMessage, v interface{}) {
	require.NoError(t, json.Unmarshal(data, v), string(data))
}
