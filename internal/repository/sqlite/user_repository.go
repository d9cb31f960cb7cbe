package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ground-truth-bench/internal/domain"
	"ground-truth-bench/internal/repository"
)

// UserRepository keeps the credential table in the users table.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Load returns every user. A query failure yields an empty table plus the error.
func (r *UserRepository) Load(ctx context.Context) (domain.Users, error) {
	users := domain.Users{}

	rows, err := r.db.QueryContext(ctx, `
SELECT username, password_hash, last_activity
FROM users`)
	if err != nil {
		return users, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	loaded := domain.Users{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return users, err
		}
		loaded[user.Username] = *user
	}
	if err := rows.Err(); err != nil {
		return users, fmt.Errorf("iterate users: %w", err)
	}
	return loaded, nil
}

// Save makes the users table match the given table in a single transaction.
// Rows that survive keep their created_at.
func (r *UserRepository) Save(ctx context.Context, users domain.Users) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := usernames(ctx, tx)
	if err != nil {
		return err
	}
	for _, name := range existing {
		if _, keep := users[name]; keep {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE username=?`, name); err != nil {
			return fmt.Errorf("delete user %s: %w", name, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for name, user := range users {
		_, err := tx.ExecContext(ctx, `
INSERT INTO users (username, password_hash, last_activity, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(username) DO UPDATE SET
	password_hash=excluded.password_hash,
	last_activity=excluded.last_activity,
	updated_at=excluded.updated_at`,
			name,
			user.PasswordHash,
			nullTimestamp(user.LastActivity),
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("upsert user %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit users: %w", err)
	}
	return nil
}

func usernames(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT username FROM users`)
	if err != nil {
		return nil, fmt.Errorf("query usernames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user         domain.User
		lastActivity sql.NullString
	)
	if err := row.Scan(&user.Username, &user.PasswordHash, &lastActivity); err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if lastActivity.Valid && lastActivity.String != "" {
		ts, err := time.Parse(time.RFC3339Nano, lastActivity.String)
		if err != nil {
			return nil, fmt.Errorf("user %s last activity: %w: %v", user.Username, repository.ErrCorrupt, err)
		}
		ts = ts.UTC()
		user.LastActivity = &ts
	}
	return &user, nil
}

func nullTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

var _ repository.CredentialStore = (*UserRepository)(nil)
