// Package all wires the built-in gold store backends into the storage
// registry. Import it for side effects:
//
//	import _ "crashpipe/internal/storage/all"
//
// after which storage.New accepts Kind "sqlite", "duckdb" and "postgres".
package all

import (
	_ "crashpipe/internal/storage/duckdb"
	_ "crashpipe/internal/storage/postgres"
	_ "crashpipe/internal/storage/sqlite"
)
