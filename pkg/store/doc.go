// Package store persists catalog records keyed by subject id.
//
// Two backends are provided:
//
//   - SQLite: a single bangumi_ani_data table managed by embedded goose
//     migrations, accessed through sqlx with statement logging.
//   - Redis: one JSON value per subject plus an id index set. A batch is a
//     single Lua script that checks key types before writing anything.
//
// Both backends share the same contract:
//
//   - UpsertBatch replaces each record with the same id wholesale. Columns
//     are never merged with a previous version of the row.
//   - A batch is committed atomically. On failure none of it is visible.
//   - At most one batch is in flight per store. Writers are serialized by a
//     mutex held for the duration of one commit. Readers do not take it and
//     observe the state either before or after a batch.
//
// # Basic Usage
//
//	st, err := store.Open(ctx, store.Config{Backend: store.BackendSQLite, SQLitePath: "OIDBT_SQLite"})
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//
//	if err := st.UpsertBatch(ctx, page.Records()); err != nil {
//		return err
//	}
//
// # Metrics
//
//   - bangumi_store_batches_total{backend, result}
//   - bangumi_store_records_total{backend}
//   - bangumi_store_batch_duration_seconds{backend}
package store
