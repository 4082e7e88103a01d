package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	records "github.com/goliatone/go-records"
	"github.com/goliatone/go-records/pkg/adapter/sqlite"
	"github.com/goliatone/go-records/pkg/serializer"
)

func openStore(t *testing.T, opts ...sqlite.Option) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "records.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func defineNote(t *testing.T, store records.Adapter) *records.RecordType {
	t.Helper()
	client, err := records.NewClient(records.WithAdapter(store))
	require.NoError(t, err)
	rt, err := client.Define("notes.Note", []records.FieldDescriptor{
		records.Attr("title", "string"),
		records.Attr("stars", "integer"),
		records.Attr("pinned", "boolean"),
		records.Attr("tags", ""),
	})
	require.NoError(t, err)
	return rt
}

func saveNote(t *testing.T, rt *records.RecordType, values map[string]any) *records.Record {
	t.Helper()
	rec := rt.New()
	for name, value := range values {
		require.NoError(t, rec.Set(name, value))
	}
	require.NoError(t, rec.SaveRecord(context.Background()))
	return rec
}

func TestOpenValidatesPath(t *testing.T) {
	_, err := sqlite.Open("")
	assert.Error(t, err)

	_, err = sqlite.Open("records.db?mode=ro")
	assert.Error(t, err)
}

func TestSaveAndFindByKey(t *testing.T) {
	rt := defineNote(t, openStore(t))
	rec := saveNote(t, rt, map[string]any{"title": "groceries", "stars": 4, "tags": []any{"home"}})

	require.NotNil(t, rec.Key())
	assert.True(t, rec.IsLoaded())
	assert.False(t, rec.IsDirty())

	found, err := rt.FindByKey(context.Background(), rec.Key(), nil)
	require.NoError(t, err)
	title, err := found.Get("title")
	require.NoError(t, err)
	assert.Equal(t, "groceries", title)
	stars, err := found.Get("stars")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stars)
	assert.Equal(t, []any{"home"}, found.Raw("tags"))
	assert.True(t, found.IsLoaded())
}

func TestSaveUpserts(t *testing.T) {
	rt := defineNote(t, openStore(t))
	rec := saveNote(t, rt, map[string]any{"title": "draft"})
	require.NoError(t, rec.Set("title", "final"))
	require.NoError(t, rec.SaveRecord(context.Background()))

	all, err := rt.FindAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, all.Len())
	title, _ := all.At(0).Get("title")
	assert.Equal(t, "final", title)
}

func TestFindQueryPushesEqualityAndEvaluatesWhere(t *testing.T) {
	rt := defineNote(t, openStore(t))
	saveNote(t, rt, map[string]any{"title": "a", "stars": 1, "pinned": true})
	saveNote(t, rt, map[string]any{"title": "b", "stars": 5, "pinned": false})
	saveNote(t, rt, map[string]any{"title": "c", "stars": 3, "pinned": true})

	pinned, err := rt.FindQuery(context.Background(), records.Params{"pinned": true})
	require.NoError(t, err)
	assert.Equal(t, 2, pinned.Len())

	starred, err := rt.FindQuery(context.Background(), records.Params{"where": "stars > 2"})
	require.NoError(t, err)
	require.Equal(t, 2, starred.Len())
	first, _ := starred.At(0).Get("title")
	assert.Equal(t, "b", first)

	limited, err := rt.FindQuery(context.Background(), records.Params{"limit": 1, "offset": 2})
	require.NoError(t, err)
	require.Equal(t, 1, limited.Len())
	last, _ := limited.At(0).Get("title")
	assert.Equal(t, "c", last)
}

func TestFindByKeyAndDeleteReportNotFound(t *testing.T) {
	rt := defineNote(t, openStore(t))
	_, err := rt.FindByKey(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, records.ErrNotFound)

	rec := saveNote(t, rt, map[string]any{"title": "x", "stars": 2})
	_, err = rt.FindByKey(context.Background(), rec.Key(), records.Params{"stars": 3})
	assert.ErrorIs(t, err, records.ErrNotFound)

	require.NoError(t, rec.DeleteRecord(context.Background()))
	_, err = rt.FindByKey(context.Background(), rec.Key(), nil)
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestNewUsesExistingHandle(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := sqlite.New(db, sqlite.WithSerializer(serializer.NewJSON()), sqlite.WithKeyFunc(func() string { return "fixed" }))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	rt := defineNote(t, store)
	rec := saveNote(t, rt, map[string]any{"title": "kept"})
	assert.Equal(t, "fixed", rec.Key())

	var payload string
	require.NoError(t, db.QueryRow(`SELECT data FROM records WHERE key = 'fixed'`).Scan(&payload))
	assert.Contains(t, payload, `"title":"kept"`)
}

type brokenSerializer struct {
	records.Serializer
}

func (brokenSerializer) Serialize(*records.Record) ([]byte, error) {
	return nil, errors.New("encode failed")
}

func TestFailedEncodeLeavesRecordNew(t *testing.T) {
	store := openStore(t, sqlite.WithSerializer(brokenSerializer{}))
	rt := defineNote(t, store)

	rec := rt.New()
	require.Error(t, rec.SaveRecord(context.Background()))
	assert.Nil(t, rec.Key())
	assert.True(t, rec.IsNew())
	assert.False(t, rec.IsLoaded())

	all, err := rt.FindAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, all.Len())

	require.NoError(t, rec.Set("title", "retry"))
	assert.True(t, rec.IsDirty())
}
