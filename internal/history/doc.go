// Package history records and presents the fan's state transitions.
//
// A Writer listens to the device aggregate and, for every tracked change,
// queues a Record that is inserted into the append-only
// device_status_history table on its own goroutine. Inserts never block
// MQTT ingest or API requests, and a failed insert is logged and dropped.
//
// The Formatter turns stored rows into the dashboard projection: localised
// timestamp and labels, with threshold suppressed for manual-mode rows.
//
// # Usage
//
//	repo := history.NewSQLiteRepository(db.DB)
//	writer := history.NewWriter(repo, "esp32", 256)
//	agg.AddListener(writer)
//	go writer.Run(ctx)
//
//	rows, err := repo.List(ctx, 0)
//	view := history.NewFormatter("vi", loc).Format(rows)
package history
