// Package audit writes an append-only JSONL record of every command issued
// through the monitor: who asked, what was asked, and how it ended.
// Files rotate by size.
package audit
