// Package logging provides structured JSON logging with file rotation.
// The server writes to ~/.vitrina/logs/server.log and mirrors to stderr;
// `vitrina logs` tails and filters the same files.
package logging
