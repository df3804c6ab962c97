// Package database stores generated narratives in PostgreSQL.
//
// Uses pgx for connection pooling and tern for embedded migrations. NarrativeRepo implements
// domain.NarrativeStore.
package database
