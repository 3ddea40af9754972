// Package gomod resolves Go module dependencies from go.mod, go.sum, go.work
// and vendor/modules.txt without running the go command.
//
// The main module is versioned from the git tags reachable from HEAD, the
// same way the go command derives pseudo-versions. Every required module
// becomes a component; modules whose zip checksum is absent from go.sum (or
// go.work.sum in workspaces) are marked with the file that should hold it.
package gomod
