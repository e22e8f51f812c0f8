// Package ingest is the receiving side of the agent's uploads.
//
// A Server exposes a small chi router:
//
//	GET  /hello   liveness text
//	GET  /health  repository ping
//	POST /jot     store one jot
//	GET  /jots    newest jots, optionally ?type= and ?limit=
//
// POST /jot answers 200 "Jot received!" on success. Malformed bodies get a
// 400 and well-formed but unacceptable jots a 422, both carrying
// {"error", "error_description"} so the upload client can surface them.
// Location and steps jots are checked for their required fields; other
// types are stored as-is.
//
// Jots are kept by a Repository: PostgreSQL through pgx, SQLite through
// modernc.org/sqlite, or process memory. OpenRepository picks one from a DSN.
package ingest
