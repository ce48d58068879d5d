// Package history keeps a journal of burn, blank and check operations in a
// SQLite database so past runs can be listed after the process exits.
//
// Every operation gets a row when it starts and is finalized with its
// outcome, the error kind when it failed, and the session log path.
package history
