package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_ReadMissing(t *testing.T) {
	store := NewLocalStoreFs(afero.NewMemMapFs())

	_, err := store.Read(context.Background(), "json-db/users.json")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestLocalStore_WriteThenRead(t *testing.T) {
	store := NewLocalStoreFs(afero.NewMemMapFs())
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "json-db/users.json", []byte(`{"users":{}}`)))
	require.NoError(t, store.Write(ctx, "json-db/users.json", []byte(`{"users":{"a":{}}}`)))

	data, err := store.Read(ctx, "json-db/users.json")
	require.NoError(t, err)
	assert.Equal(t, `{"users":{"a":{}}}`, string(data))

	ok, err := store.Exists(ctx, "json-db/users.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalStore_UploadAndList(t *testing.T) {
	store := NewLocalStoreFs(afero.NewMemMapFs())
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "documents/policy.pdf", strings.NewReader("pdf")))
	require.NoError(t, store.Upload(ctx, "documents/handbook.docx", strings.NewReader("docx")))
	require.NoError(t, store.Write(ctx, "json-db/questions.json", []byte("[]")))

	objects, err := store.ListObjects(ctx, "documents/")
	require.NoError(t, err)
	require.Len(t, objects, 2)

	names := []string{objects[0].Name(), objects[1].Name()}
	assert.ElementsMatch(t, []string{"policy.pdf", "handbook.docx"}, names)
	assert.Equal(t, int64(3), sizeOf(objects, "policy.pdf"))

	all, err := store.ListObjects(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store := NewLocalStoreFs(afero.NewMemMapFs())
	ctx := context.Background()

	assert.Error(t, store.Write(ctx, "../etc/passwd", []byte("x")))
	assert.Error(t, store.Write(ctx, "", []byte("x")))

	_, err := store.Read(ctx, "a/../../b")
	assert.Error(t, err)

	assert.NoError(t, store.Upload(ctx, "documents/report..final.pdf", strings.NewReader("x")))
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "json-db/users.json", JoinKey("json-db/", "users.json"))
	assert.Equal(t, "json-db/users.json", JoinKey("/json-db", "/users.json"))
	assert.Equal(t, "users.json", JoinKey("", "users.json"))
}

func sizeOf(objects []ObjectInfo, name string) int64 {
	for _, obj := range objects {
		if obj.Name() == name {
			return obj.Size
		}
	}
	return -1
}
