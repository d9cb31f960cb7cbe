package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ground-truth-bench/internal/domain"
	"ground-truth-bench/internal/repository"
	"ground-truth-bench/internal/storage"
)

// UsersFile is the name of the credential document below the JSON prefix.
const UsersFile = "users.json"

// naive ISO timestamps written without a zone are read as UTC
const naiveTimestampLayout = "2006-01-02T15:04:05.999999999"

const (
	fieldPasswordHash = "password_hash"
	fieldLastActivity = "last_activity"
)

// usersDocument keeps each record as raw fields so keys written by other
// tools survive a load and save.
type usersDocument struct {
	Users map[string]map[string]json.RawMessage `json:"users"`
}

// CredentialStore keeps the whole user table in one JSON document.
type CredentialStore struct {
	blobs  storage.BlobStore
	key    string
	logger logrus.FieldLogger
}

func NewCredentialStore(blobs storage.BlobStore, prefix string, logger logrus.FieldLogger) *CredentialStore {
	if logger == nil {
		logger = logrus.New()
	}
	key := storage.JoinKey(prefix, UsersFile)
	return &CredentialStore{
		blobs:  blobs,
		key:    key,
		logger: logger.WithField("key", key),
	}
}

func (s *CredentialStore) Load(ctx context.Context) (domain.Users, error) {
	users := domain.Users{}

	data, err := s.blobs.Read(ctx, s.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return users, nil
		}
		return users, fmt.Errorf("load credentials: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return users, nil
	}

	var doc usersDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return users, fmt.Errorf("decode %s: %w: %v", s.key, repository.ErrCorrupt, err)
	}

	for name, fields := range doc.Users {
		user, err := s.decodeUser(name, fields)
		if err != nil {
			return domain.Users{}, fmt.Errorf("decode %s: %w: %v", s.key, repository.ErrCorrupt, err)
		}
		users[name] = user
	}
	return users, nil
}

func (s *CredentialStore) decodeUser(name string, fields map[string]json.RawMessage) (domain.User, error) {
	user := domain.User{Username: name}
	for key, raw := range fields {
		switch key {
		case fieldPasswordHash:
			if err := json.Unmarshal(raw, &user.PasswordHash); err != nil {
				return user, fmt.Errorf("user %s: %s: %w", name, key, err)
			}
		case fieldLastActivity:
			var value *string
			if err := json.Unmarshal(raw, &value); err != nil {
				return user, fmt.Errorf("user %s: %s: %w", name, key, err)
			}
			if value == nil || *value == "" {
				continue
			}
			ts, err := parseTimestamp(*value)
			if err != nil {
				s.logger.WithField("username", name).WithError(err).Warn("ignore unreadable last activity")
				continue
			}
			user.LastActivity = &ts
		default:
			if user.Extra == nil {
				user.Extra = make(map[string]json.RawMessage)
			}
			user.Extra[key] = raw
		}
	}
	return user, nil
}

// Save writes the table with sorted keys and indentation, so saving an
// unchanged table reproduces the same bytes.
func (s *CredentialStore) Save(ctx context.Context, users domain.Users) error {
	doc := usersDocument{Users: make(map[string]map[string]json.RawMessage, len(users))}
	for name, user := range users {
		fields := make(map[string]json.RawMessage, len(user.Extra)+2)
		for key, raw := range user.Extra {
			fields[key] = raw
		}
		hash, err := json.Marshal(user.PasswordHash)
		if err != nil {
			return fmt.Errorf("encode credentials: %w", err)
		}
		fields[fieldPasswordHash] = hash
		delete(fields, fieldLastActivity)
		if user.LastActivity != nil {
			ts, err := json.Marshal(user.LastActivity.UTC().Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("encode credentials: %w", err)
			}
			fields[fieldLastActivity] = ts
		}
		doc.Users[name] = fields
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	data = append(data, '\n')

	if err := s.blobs.Write(ctx, s.key, data); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func parseTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.ParseInLocation(naiveTimestampLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return ts, nil
}

var _ repository.CredentialStore = (*CredentialStore)(nil)
