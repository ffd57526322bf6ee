package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"firewatch/internal/dbexec"
	"firewatch/internal/scope"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const credentialQuery = "SELECT user.group_id, user.forename, user.password, user_group.roles, user.id FROM user " +
	"LEFT JOIN user_group ON user_group.id = user.group_id WHERE email = ?"

const roleQuery = "SELECT id, category, action FROM group_roles WHERE id IN (?,?)"

var credentialColumns = []string{"group_id", "forename", "password", "roles", "id"}

func TestAuthenticate(t *testing.T) {
	hash, err := HashPassword("password1", 4)
	require.NoError(t, err)

	tests := []struct {
		name      string
		password  string
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
		wantScope func(*testing.T, scope.Scope)
	}{
		{
			name:     "valid credentials",
			password: "password1",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(credentialQuery)).
					WithArgs("ada@example.com").
					WillReturnRows(sqlmock.NewRows(credentialColumns).AddRow(1, "Ada", hash, "[1, 2]", 7))
				mock.ExpectQuery(regexp.QuoteMeta(roleQuery)).
					WithArgs(int64(1), int64(2)).
					WillReturnRows(sqlmock.NewRows([]string{"id", "category", "action"}).
						AddRow(1, "fire", "get").
						AddRow(2, "user_group", "update"))
			},
			wantScope: func(t *testing.T, s scope.Scope) {
				assert.True(t, s.Allows("fire", scope.ActionGet))
				assert.True(t, s.Allows("user_group", scope.ActionUpdate))
				assert.False(t, s.Allows("fire", scope.ActionDelete))
			},
		},
		{
			name:     "wrong password",
			password: "nope",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(credentialQuery)).
					WillReturnRows(sqlmock.NewRows(credentialColumns).AddRow(1, "Ada", hash, "[1]", 7))
			},
			wantErr: ErrInvalidCredentials,
		},
		{
			name:     "unknown email",
			password: "password1",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(credentialQuery)).
					WillReturnRows(sqlmock.NewRows(credentialColumns))
			},
			wantErr: ErrInvalidCredentials,
		},
		{
			name:     "duplicate email",
			password: "password1",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(credentialQuery)).
					WillReturnRows(sqlmock.NewRows(credentialColumns).
						AddRow(1, "Ada", hash, "[1]", 7).
						AddRow(1, "Ada", hash, "[1]", 8))
			},
			wantErr: ErrInvalidCredentials,
		},
		{
			name:     "user without group",
			password: "password1",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(credentialQuery)).
					WillReturnRows(sqlmock.NewRows(credentialColumns).AddRow(nil, "Ada", hash, nil, 7))
			},
			wantScope: func(t *testing.T, s scope.Scope) {
				assert.Empty(t, s)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setupMock(mock)

			store := NewCredentialStore(dbexec.NewStandardExecutor(db), 0, 0)
			details, err := store.Authenticate(context.Background(), "ada@example.com", tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(7), details.ID)
				assert.Equal(t, "Ada", details.Forename)
				tt.wantScope(t, details.Scope)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAuthenticateQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta(credentialQuery)).WillReturnError(errors.New("connection reset"))

	store := NewCredentialStore(dbexec.NewStandardExecutor(db), 0, 0)
	_, err = store.Authenticate(context.Background(), "ada@example.com", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestScopeForRolesIsCached(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(roleQuery)).
		WithArgs(int64(3), int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "category", "action"}).AddRow(3, "scrape", "get"))

	store := NewCredentialStore(dbexec.NewStandardExecutor(db), 4, time.Minute)
	first, err := store.ScopeForRoles(context.Background(), `["3", 4]`)
	require.NoError(t, err)
	first.Grant("fire", scope.ActionDelete)

	second, err := store.ScopeForRoles(context.Background(), `["3", 4]`)
	require.NoError(t, err)
	assert.True(t, second.Allows("scrape", scope.ActionGet))
	assert.False(t, second.Allows("fire", scope.ActionDelete))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParseRoleIDs(t *testing.T) {
	ids, err := ParseRoleIDs(`[1, "2", 30]`)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 30}, ids)

	_, err = ParseRoleIDs(`{"a": 1}`)
	assert.Error(t, err)
	_, err = ParseRoleIDs(`[1.5]`)
	assert.Error(t, err)
	_, err = ParseRoleIDs(`["x"]`)
	assert.Error(t, err)
}
