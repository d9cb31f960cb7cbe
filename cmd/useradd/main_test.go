package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ground-truth-bench/internal/domain"
	"ground-truth-bench/internal/service"
)

type memoryStore struct {
	users domain.Users
}

func (m *memoryStore) Load(context.Context) (domain.Users, error) {
	if m.users == nil {
		return domain.Users{}, nil
	}
	return m.users.Clone(), nil
}

func (m *memoryStore) Save(_ context.Context, users domain.Users) error {
	m.users = users.Clone()
	return nil
}

func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	readPassword = func() ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
}

func TestParseArgs(t *testing.T) {
	opts, err := parseArgs([]string{"-reset", "alice"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, options{username: "alice", reset: true}, opts)

	opts, err = parseArgs([]string{"-list"}, io.Discard)
	require.NoError(t, err)
	assert.True(t, opts.list)

	for _, args := range [][]string{{}, {"a", "b"}, {"-list", "a"}, {"-reset", "-remove", "a"}} {
		_, err := parseArgs(args, io.Discard)
		assert.ErrorIs(t, err, errUsage, "%v", args)
	}
}

func TestRun_CreateResetListRemove(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	users := service.NewUserService(store, 8)
	var out bytes.Buffer

	stubPasswords(t, "first-secret", "first-secret")
	require.NoError(t, run(ctx, options{username: "alice"}, users, &out))
	assert.Contains(t, out.String(), "created alice")
	hash := store.users["alice"].PasswordHash
	require.NotEmpty(t, hash)

	stubPasswords(t, "second-secret", "second-secret")
	require.NoError(t, run(ctx, options{username: "alice", reset: true}, users, &out))
	assert.NotEqual(t, hash, store.users["alice"].PasswordHash)

	out.Reset()
	require.NoError(t, run(ctx, options{list: true}, users, &out))
	assert.Equal(t, "alice\n", out.String())

	require.NoError(t, run(ctx, options{username: "alice", remove: true}, users, &out))
	assert.Empty(t, store.users)
}

func TestRun_PasswordMismatch(t *testing.T) {
	store := &memoryStore{}
	stubPasswords(t, "first-secret", "other-secret")

	err := run(context.Background(), options{username: "alice"}, service.NewUserService(store, 8), io.Discard)
	assert.EqualError(t, err, "passwords do not match")
	assert.Empty(t, store.users)
}

func TestRun_DuplicateUser(t *testing.T) {
	store := &memoryStore{users: domain.Users{"alice": {Username: "alice", PasswordHash: "x"}}}
	stubPasswords(t, "first-secret", "first-secret")

	err := run(context.Background(), options{username: "alice"}, service.NewUserService(store, 8), io.Discard)
	assert.ErrorIs(t, err, service.ErrUserAlreadyExists)
}
