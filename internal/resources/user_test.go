package resources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"firewatch/internal/auth"
	"firewatch/internal/dbexec"
	"firewatch/internal/resource"
	"firewatch/internal/scope"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	emailOwnerQuery   = "SELECT id FROM user WHERE email = ?"
	currentGroupQuery = "SELECT group_id FROM user WHERE id = ?"
)

func newUser(t *testing.T) (*User, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUser(dbexec.NewStandardExecutor(db), bcrypt.MinCost), mock
}

func TestUserGroupIDScopeRule(t *testing.T) {
	groupAdmin := scope.Scope{"user_group": {"update": true}}

	tests := []struct {
		name    string
		scope   scope.Scope
		current *int64
		want    resource.ValidationErrors
	}{
		{name: "change without permission", current: int64Ptr(1), want: resource.ValidationErrors{"group_id": "Insufficient permissions to change group ID."}},
		{name: "unchanged without permission", current: int64Ptr(2), want: resource.ValidationErrors{}},
		{name: "change with permission", scope: groupAdmin, want: resource.ValidationErrors{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, mock := newUser(t)
			if tt.current != nil {
				mock.ExpectQuery(currentGroupQuery).WithArgs(int64(7)).
					WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow(*tt.current))
			}
			errs := resource.ValidationErrors{}
			in := resource.ValidationInput{Params: map[string]string{"group_id": "2"}, ID: 7, Mode: resource.ModeUpdate, Scope: tt.scope}
			require.NoError(t, u.Validate(context.Background(), in, errs))
			assert.Equal(t, tt.want, errs)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("new user without permission", func(t *testing.T) {
		u, mock := newUser(t)
		errs := resource.ValidationErrors{}
		in := resource.ValidationInput{Params: map[string]string{"group_id": "2"}, Mode: resource.ModeCreate}
		require.NoError(t, u.Validate(context.Background(), in, errs))
		assert.Equal(t, "Insufficient permissions to change group ID.", errs["group_id"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non numeric group", func(t *testing.T) {
		u, mock := newUser(t)
		errs := resource.ValidationErrors{}
		in := resource.ValidationInput{Params: map[string]string{"group_id": "admins"}, ID: 7, Mode: resource.ModeUpdate}
		require.NoError(t, u.Validate(context.Background(), in, errs))
		assert.Equal(t, "Group ID is not numeric.", errs["group_id"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserEmailValidation(t *testing.T) {
	t.Run("malformed", func(t *testing.T) {
		u, mock := newUser(t)
		errs := resource.ValidationErrors{}
		in := resource.ValidationInput{Params: map[string]string{"email": "not an email"}, Mode: resource.ModeCreate}
		require.NoError(t, u.Validate(context.Background(), in, errs))
		assert.Equal(t, "EMail doesn't match recognised format or is empty.", errs["email"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("taken by another user", func(t *testing.T) {
		u, mock := newUser(t)
		mock.ExpectQuery(emailOwnerQuery).WithArgs("a@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
		errs := resource.ValidationErrors{}
		in := resource.ValidationInput{Params: map[string]string{"email": "a@example.com"}, ID: 9, Mode: resource.ModeUpdate}
		require.NoError(t, u.Validate(context.Background(), in, errs))
		assert.Equal(t, "EMail already exists in the database.", errs["email"])
	})

	t.Run("owned by the same user", func(t *testing.T) {
		u, mock := newUser(t)
		mock.ExpectQuery(emailOwnerQuery).WithArgs("a@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
		errs := resource.ValidationErrors{}
		in := resource.ValidationInput{Params: map[string]string{"email": "a@example.com"}, ID: 9, Mode: resource.ModeUpdate}
		require.NoError(t, u.Validate(context.Background(), in, errs))
		assert.Empty(t, errs)
	})

	t.Run("lookup failure", func(t *testing.T) {
		u, mock := newUser(t)
		mock.ExpectQuery(emailOwnerQuery).WithArgs("a@example.com").WillReturnError(assert.AnError)
		in := resource.ValidationInput{Params: map[string]string{"email": "a@example.com"}, Mode: resource.ModeCreate}
		assert.Error(t, u.Validate(context.Background(), in, resource.ValidationErrors{}))
	})
}

func TestUserPasswordRules(t *testing.T) {
	u, _ := newUser(t)

	errs := resource.ValidationErrors{}
	require.NoError(t, u.Validate(context.Background(), resource.ValidationInput{Params: map[string]string{"password": "short"}, Mode: resource.ModeUpdate}, errs))
	assert.Contains(t, errs["password"], "greater than or equal to")

	params := map[string]string{"password": "correct horse"}
	require.NoError(t, u.PrepareWrite(context.Background(), resource.ModeCreate, params))
	ok, err := auth.CheckPassword(params["password"], "correct horse")
	require.NoError(t, err)
	assert.True(t, ok)

	params = map[string]string{"password": "", "forename": "Ann"}
	require.NoError(t, u.PrepareWrite(context.Background(), resource.ModeUpdate, params))
	assert.Equal(t, map[string]string{"forename": "Ann"}, params)
}

func TestUserReadsMaskPassword(t *testing.T) {
	u, mock := newUser(t)
	db, hmock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	h := resource.NewHandler(u, dbexec.NewStandardExecutor(db), nil)

	hmock.ExpectQuery("SELECT user.*, NULL AS password FROM user").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password", "password"}).
			AddRow(int64(1), "a@example.com", "$2y$10$hash", nil))

	r := httptest.NewRequest(http.MethodGet, "/users", nil)
	r = r.WithContext(scope.WithScope(r.Context(), scope.Scope{"user": {"get": true}}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":1,"email":"a@example.com","password":null}]`, w.Body.String())
	assert.NoError(t, hmock.ExpectationsWereMet())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserSearchSkipsWriteChecks(t *testing.T) {
	u, mock := newUser(t)
	errs := resource.ValidationErrors{}
	in := resource.ValidationInput{Params: map[string]string{"email": "partial", "group_id": "x"}, Mode: resource.ModeSearch}
	require.NoError(t, u.Validate(context.Background(), in, errs))
	assert.Empty(t, errs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserSearchIgnoresPassword(t *testing.T) {
	u, mock := newUser(t)
	db, hmock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	h := resource.NewHandler(u, dbexec.NewStandardExecutor(db), nil)

	hmock.ExpectQuery("SELECT user.*, NULL AS password FROM user WHERE user.forename LIKE ?").
		WithArgs("%Ann%").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	r := httptest.NewRequest(http.MethodPost, "/users/searches", strings.NewReader(`{"password":"$2a$10$A","forename":"Ann","not_exact":true}`))
	r.Header.Set("Content-Type", "application/json")
	r = mux.SetURLVars(r, map[string]string{"id": resource.SearchesID})
	r = r.WithContext(scope.WithScope(r.Context(), scope.Scope{"user": {"get": true}}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, u.Definition().SearchExcluded, "password")
	assert.NoError(t, hmock.ExpectationsWereMet())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func int64Ptr(v int64) *int64 { return &v }
