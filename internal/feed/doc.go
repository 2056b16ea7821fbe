// Package feed implements the ingestion pipeline: downloading feed
// payloads over HTTP, parsing YML catalogs (plus JSON and CSV exports)
// into catalog products, and coordinating full and delta index updates
// behind a per-project lock.
//
// The Manager owns every write to the project:{p}:feed status hash, so
// API handlers and the scheduler observe a single consistent state
// machine: not_loaded -> downloading -> indexing -> success | error.
package feed
