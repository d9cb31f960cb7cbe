package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"ground-truth-bench/internal/auth"
	"ground-truth-bench/internal/domain"
	"ground-truth-bench/internal/repository"
)

var (
	// ErrUserAlreadyExists is returned when registering an existing username without reset.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrUserNotFound is returned when resetting the password of an unknown user.
	ErrUserNotFound = fmt.Errorf("user %w", domain.ErrNotFound)
)

// UserService provisions credential records. Logins go through auth.Authenticator.
type UserService interface {
	// Register creates username, or replaces its password when reset is set.
	Register(ctx context.Context, username, password string, reset bool) error
	Remove(ctx context.Context, username string) error
	List(ctx context.Context) ([]string, error)
}

type userService struct {
	users             repository.CredentialStore
	minPasswordLength int
}

func NewUserService(users repository.CredentialStore, minPasswordLength int) UserService {
	if minPasswordLength <= 0 {
		minPasswordLength = 8
	}
	return &userService{
		users:             users,
		minPasswordLength: minPasswordLength,
	}
}

func (s *userService) Register(ctx context.Context, username, password string, reset bool) error {
	username = strings.TrimSpace(username)

	fields := map[string]string{}
	if username == "" {
		fields["username"] = "username is required"
	} else if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		fields["username"] = "username must not contain spaces"
	}
	if password == "" {
		fields["password"] = "password is required"
	} else if len(password) < s.minPasswordLength {
		fields["password"] = fmt.Sprintf("password must be at least %d characters", s.minPasswordLength)
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return domain.NewValidationError(map[string]string{"password": err.Error()})
		}
		return err
	}

	users, err := s.load(ctx)
	if err != nil {
		return err
	}

	existing, exists := users[username]
	switch {
	case exists && !reset:
		return ErrUserAlreadyExists
	case !exists && reset:
		return ErrUserNotFound
	}

	existing.Username = username
	existing.PasswordHash = hash
	users[username] = existing

	if err := s.users.Save(ctx, users); err != nil {
		return fmt.Errorf("save user %s: %w", username, err)
	}
	return nil
}

func (s *userService) Remove(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	users, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := users[username]; !ok {
		return ErrUserNotFound
	}
	delete(users, username)
	if err := s.users.Save(ctx, users); err != nil {
		return fmt.Errorf("remove user %s: %w", username, err)
	}
	return nil
}

func (s *userService) List(ctx context.Context) ([]string, error) {
	users, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// load refuses to continue on a degraded read, since saving the empty
// fallback table would wipe every other user.
func (s *userService) load(ctx context.Context) (domain.Users, error) {
	users, err := s.users.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credential store: %w", err)
	}
	return users, nil
}
