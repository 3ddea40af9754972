// Package lock handles parsing and writing of lockscan.lock.yaml files.
// Lock files record a digest of every input file a scan consumed, so a later
// status check can tell which package inputs changed since.
package lock
