// Package logtail incrementally tails append-only newline-delimited JSON log
// files and keeps a bounded buffer of recent entries per stream.
//
// Each stream moves through three transitions on every sync: append (the file
// grew past the stored offset), reset (the file shrank, so it was truncated or
// rotated) and no-op. A stream seen for the first time with more than the
// flood threshold of backlog skips straight to end of file.
package logtail
