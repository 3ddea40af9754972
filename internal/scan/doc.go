// Package scan runs the resolvers for every package of a request, merges
// their outputs and writes the SBOM, environment file and lock state.
package scan
