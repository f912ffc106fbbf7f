package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/oidbt/bangumi-ani-getter/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return st
}

func TestNormalizeSQLitePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "OIDBT_SQLite.db"},
		{"OIDBT_SQLite", "OIDBT_SQLite.db"},
		{"data/bangumi.db", "data/bangumi.db"},
		{"archive.db.bak", "archive.db.bak.db"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeSQLitePath(tt.input), "input %q", tt.input)
	}
}

func TestSQLite_UpsertAndGet(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()

	records := []catalog.Record{
		{ID: 8, Name: "Code Geass", NameCN: "反叛的鲁路修", NameAlias: []string{"Lelouch", "CG"}},
		{ID: 9, Name: "x", NameCN: "", NameAlias: nil},
	}
	require.NoError(t, st.UpsertBatch(ctx, records))

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := st.Get(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, records[0], *got)

	got, err = st.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, []string{}, got.NameAlias, "nil aliases are stored as an empty list")
}

func TestSQLite_GetMissing(t *testing.T) {
	st := openTestSQLite(t)

	_, err := st.Get(context.Background(), 404)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_UpsertIsIdempotent(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()

	record := catalog.Record{ID: 1, Name: "a", NameCN: "甲", NameAlias: []string{"A"}}
	require.NoError(t, st.UpsertBatch(ctx, []catalog.Record{record}))
	require.NoError(t, st.UpsertBatch(ctx, []catalog.Record{record}))

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := st.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, record, *got)
}

func TestSQLite_UpsertReplacesWholeRecord(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertBatch(ctx, []catalog.Record{
		{ID: 1, Name: "old", NameCN: "旧", NameAlias: []string{"x", "y"}},
	}))
	require.NoError(t, st.UpsertBatch(ctx, []catalog.Record{
		{ID: 1, Name: "new", NameCN: "", NameAlias: []string{}},
	}))

	got, err := st.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, catalog.Record{ID: 1, Name: "new", NameCN: "", NameAlias: []string{}}, *got)
}

func TestSQLite_FailedBatchLeavesNoPartialWrites(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertBatch(ctx, []catalog.Record{
		{ID: 1, Name: "kept", NameCN: "", NameAlias: []string{}},
	}))

	// The trigger aborts the third row after the first two were written.
	_, err := st.db.ExecContext(ctx, `
		CREATE TRIGGER reject_poisoned BEFORE INSERT ON bangumi_ani_data
		WHEN NEW.name = 'poisoned'
		BEGIN SELECT RAISE(ABORT, 'poisoned row'); END`)
	require.NoError(t, err)

	err = st.UpsertBatch(ctx, []catalog.Record{
		{ID: 1, Name: "overwritten", NameCN: "", NameAlias: []string{}},
		{ID: 2, Name: "new", NameCN: "", NameAlias: []string{}},
		{ID: 3, Name: "poisoned", NameCN: "", NameAlias: []string{}},
	})
	require.Error(t, err)

	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "upsert", storageErr.Op)
	assert.Equal(t, BackendSQLite, storageErr.Backend)

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := st.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Name)
}

func TestSQLite_StoresZeroID(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertBatch(ctx, []catalog.Record{
		{ID: 1, Name: "one", NameCN: "", NameAlias: []string{}},
		{ID: 0, Name: "zero", NameCN: "", NameAlias: []string{}},
	}))

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := st.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "zero", got.Name)
}

func TestSQLite_List(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertBatch(ctx, []catalog.Record{
		{ID: 30, Name: "c", NameAlias: []string{}},
		{ID: 10, Name: "a", NameAlias: []string{"alpha"}},
		{ID: 20, Name: "b", NameAlias: []string{}},
	}))

	records, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []int{10, 20, 30}, []int{records[0].ID, records[1].ID, records[2].ID})
	assert.Equal(t, []string{"alpha"}, records[0].NameAlias)
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	st, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, st.UpsertBatch(ctx, []catalog.Record{{ID: 5, Name: "five", NameAlias: []string{}}}))
	require.NoError(t, st.Close())

	st, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer st.Close()

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLite_ConcurrentBatchesAreSerialized(t *testing.T) {
	st := openTestSQLite(t)
	ctx := context.Background()

	const writers = 8
	const perBatch = 50

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := make([]catalog.Record, perBatch)
			for i := range batch {
				id := w*perBatch + i + 1
				batch[i] = catalog.Record{ID: id, Name: fmt.Sprintf("s%d", id), NameAlias: []string{}}
			}
			errs <- st.UpsertBatch(ctx, batch)
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers*perBatch, count)
}

func TestSQLite_ClosedStoreReturnsStorageError(t *testing.T) {
	st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "closed"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	err = st.UpsertBatch(context.Background(), []catalog.Record{{ID: 1, Name: "a"}})

	var storageErr *StorageError
	assert.True(t, errors.As(err, &storageErr))
}

func TestAliasColumn_Scan(t *testing.T) {
	tests := []struct {
		name     string
		src      any
		expected aliasColumn
		wantErr  bool
	}{
		{"string", `["a","b"]`, aliasColumn{"a", "b"}, false},
		{"bytes", []byte(`["a"]`), aliasColumn{"a"}, false},
		{"json null", `null`, aliasColumn{}, false},
		{"sql null", nil, aliasColumn{}, false},
		{"garbage", `not json`, nil, true},
		{"wrong type", 42, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var col aliasColumn
			err := col.Scan(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, col)
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "postgres"})
	assert.EqualError(t, err, `unknown storage backend "postgres"`)
}

func TestStorageError(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := &StorageError{Op: "upsert", Backend: BackendSQLite, Err: cause}

	assert.Equal(t, "sqlite store upsert: disk I/O error", err.Error())
	assert.True(t, errors.Is(err, cause))
}
