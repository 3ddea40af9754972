// Package lockfile detects the format of a single manifest or lockfile and
// parses it into a JSON-ready structure.
package lockfile
