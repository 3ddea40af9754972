// Package request parses and validates lockscan request files. A request
// lists the package inputs to scan inside a source directory together with
// the flags and enforcement mode that apply to them.
package request
