// Package apperr defines the user-facing error kinds reported by lockscan.
// Errors carry a reason, an optional suggested solution and a documentation
// link, and map to a process exit code.
package apperr
