package migrations

import "embed"

// PostgresFS holds the PostgreSQL schema: fetch checkpoints and dataset
// run records.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the ClickHouse schema: the candles table the
// dataset builder writes into.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
