package phonebook

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "rksokd/pkg/logx"
)

func openFileStore(t *testing.T) (Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "rksok_phonebook")
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, dir
}

func TestFileStoreCRUD(t *testing.T) {
	st, _ := openFileStore(t)
	ctx := context.Background()

	_, err := st.Get(ctx, "Иван")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Put(ctx, "Иван", []string{"89012345678", "89019876543"}))
	phones, err := st.Get(ctx, "Иван")
	require.NoError(t, err)
	assert.Equal(t, []string{"89012345678", "89019876543"}, phones)

	// Put replaces the whole record.
	require.NoError(t, st.Put(ctx, "Иван", []string{"111"}))
	phones, err = st.Get(ctx, "Иван")
	require.NoError(t, err)
	assert.Equal(t, []string{"111"}, phones)

	require.NoError(t, st.Delete(ctx, "Иван"))
	_, err = st.Get(ctx, "Иван")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.Delete(ctx, "Иван"), ErrNotFound)
}

func TestFileStoreLayout(t *testing.T) {
	st, dir := openFileStore(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "Иван Иванов", []string{"111", "222"}))
	b, err := os.ReadFile(filepath.Join(dir, "Иван Иванов"))
	require.NoError(t, err)
	assert.Equal(t, "111\r\n222", string(b))
}

func TestFileStoreEmptyRecord(t *testing.T) {
	st, dir := openFileStore(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "Безномера", nil))
	phones, err := st.Get(ctx, "Безномера")
	require.NoError(t, err)
	assert.Empty(t, phones)

	b, err := os.ReadFile(filepath.Join(dir, "Безномера"))
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestFileStoreList(t *testing.T) {
	st, _ := openFileStore(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "Борис", []string{"2"}))
	require.NoError(t, st.Put(ctx, "Анна", []string{"1"}))

	entries, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Анна", entries[0].Name)
	assert.Equal(t, []string{"1"}, entries[0].Phones)
	assert.Equal(t, "Борис", entries[1].Name)
}

func TestFileStoreBadNames(t *testing.T) {
	st, _ := openFileStore(t)
	ctx := context.Background()

	for _, name := range []string{"", "   ", ".", "..", ".скрытый", "а/б", `а\б`, "../сосед"} {
		_, err := st.Get(ctx, name)
		assert.ErrorIs(t, err, ErrBadName, "get %q", name)
		assert.ErrorIs(t, st.Put(ctx, name, []string{"1"}), ErrBadName, "put %q", name)
		assert.ErrorIs(t, st.Delete(ctx, name), ErrBadName, "delete %q", name)
	}
}

func TestFileStoreNameNormalization(t *testing.T) {
	st, dir := openFileStore(t)
	ctx := context.Background()

	// "й" spelled as "и" + combining breve normalizes to the composed form.
	decomposed := "й"
	require.NoError(t, st.Put(ctx, decomposed, []string{"111"}))

	phones, err := st.Get(ctx, "й")
	require.NoError(t, err)
	assert.Equal(t, []string{"111"}, phones)

	_, err = os.Stat(filepath.Join(dir, "й"))
	assert.NoError(t, err, "record stored under the composed name")
}

func TestFileStoreReadsLFBodies(t *testing.T) {
	st, dir := openFileStore(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Лена"), []byte("111\n222\n"), 0o644))
	phones, err := st.Get(ctx, "Лена")
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, phones)
}

func TestOpenDefaultsToFileDriver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "book")
	st, err := Open(Config{Path: dir}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Put(context.Background(), "Иван", []string{"1"}))
	_, err = os.Stat(filepath.Join(dir, "Иван"))
	assert.NoError(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
}
