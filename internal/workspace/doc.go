// Package workspace integrates request and lock loading with source
// directory resolution. It provides the Context type that holds the resolved
// source root and loaded configuration, and the Mode type that decides how
// strictly validation problems are treated.
package workspace
