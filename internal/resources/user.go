package resources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"

	"firewatch/internal/auth"
	"firewatch/internal/dbexec"
	"firewatch/internal/querybuilder"
	"firewatch/internal/resource"

	sq "github.com/Masterminds/squirrel"
)

// MinPasswordLength is the shortest password a user may set.
const MinPasswordLength = 8

// User is an API account. Passwords are write-only.
type User struct {
	exec       dbexec.QueryExecutor
	bcryptCost int
}

// NewUser returns the user resource. cost is the bcrypt cost for new
// passwords; zero means the library default.
func NewUser(exec dbexec.QueryExecutor, cost int) *User {
	return &User{exec: exec, bcryptCost: cost}
}

func (u *User) Definition() resource.Definition {
	return resource.Definition{
		Table: "user",
		RecognisedFields: map[string]int{
			"forename": 20,
			"surname":  30,
			"password": 255,
			"email":    255,
			"group_id": 11,
		},
		MandatoryFields: []string{"forename", "surname", "password", "email", "group_id"},
		SearchExcluded:  []string{"password"},
	}
}

func (u *User) Validate(ctx context.Context, in resource.ValidationInput, errs resource.ValidationErrors) error {
	if in.Mode == resource.ModeSearch {
		return nil
	}

	if email, ok := in.Params["email"]; ok {
		if !validEmail(email) {
			errs.Add("email", "EMail doesn't match recognised format or is empty.")
		} else {
			owner, found, err := u.lookupInt(ctx, sq.Select("id").From("user").Where(sq.Eq{"email": email}))
			if err != nil {
				return fmt.Errorf("check email uniqueness: %w", err)
			}
			if found && owner != in.ID {
				errs.Add("email", "EMail already exists in the database.")
			}
		}
	}

	if raw, ok := in.Params["group_id"]; ok {
		groupID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		switch {
		case err != nil:
			errs.Add("group_id", "Group ID is not numeric.")
		case !in.Scope.Allows("user_group", "update"):
			unchanged, err := u.groupUnchanged(ctx, in.ID, groupID)
			if err != nil {
				return err
			}
			if !unchanged {
				errs.Add("group_id", "Insufficient permissions to change group ID.")
			}
		}
	}

	if pw := in.Params["password"]; pw != "" && utf8.RuneCountInString(pw) < MinPasswordLength {
		errs.Add("password", "Password doesn't match parameters (greater than or equal to than 8 characters).")
	}
	return nil
}

// groupUnchanged reports whether user id already belongs to groupID. A new
// user has no current group, so any group counts as a change.
func (u *User) groupUnchanged(ctx context.Context, id, groupID int64) (bool, error) {
	if id == 0 {
		return false, nil
	}
	current, found, err := u.lookupInt(ctx, sq.Select("group_id").From("user").Where(sq.Eq{"id": id}))
	if err != nil {
		return false, fmt.Errorf("read current group: %w", err)
	}
	return found && current == groupID, nil
}

func (u *User) lookupInt(ctx context.Context, query sq.SelectBuilder) (int64, bool, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return 0, false, err
	}
	rows, err := u.exec.QueryContext(ctx, stmt, args...)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, false, rows.Err()
	}
	var value sql.NullInt64
	if err := rows.Scan(&value); err != nil {
		return 0, false, err
	}
	return value.Int64, value.Valid, rows.Err()
}

// PrepareWrite hashes the password. An empty password on update leaves the
// stored hash alone.
func (u *User) PrepareWrite(_ context.Context, mode resource.Mode, params map[string]string) error {
	pw, ok := params["password"]
	if !ok {
		return nil
	}
	if pw == "" {
		if mode == resource.ModeUpdate {
			delete(params, "password")
			return nil
		}
		return errors.New("password is required")
	}
	hash, err := auth.HashPassword(pw, u.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	params["password"] = hash
	return nil
}

// CustomiseSelect masks the stored hash in every read.
func (u *User) CustomiseSelect(b *querybuilder.Builder) {
	b.SelectCustom([]string{"user"}, "NULL AS password")
}

func validEmail(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}
