// Package logstore keeps a persistent record of the agent's log output so it
// can be reviewed later with the logs command.
//
// Entries carry a time, a level (VERBOSE through ERROR), the message text and
// flattened attributes. Two stores are provided: FileStore appends JSON lines
// to a file and reads the tail with a single-pass ring buffer; KVStore keeps a
// bounded JSON array in a kv.Store.
//
// Handler adapts a Store to log/slog. It persists records at or above its
// level and forwards every record the next handler accepts:
//
//	store := logstore.NewFileStore(path)
//	logger := slog.New(logstore.NewHandler(store, slog.NewTextHandler(os.Stderr, nil), nil))
package logstore
