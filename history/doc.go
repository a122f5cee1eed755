// Package history persists resolved runs in SQLite.
package history
