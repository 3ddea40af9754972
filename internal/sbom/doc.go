// Package sbom models the CycloneDX document lockscan emits and implements
// the merge rules used when the same component is found more than once.
package sbom
