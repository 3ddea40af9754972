// Package yarnclassic resolves Yarn v1 projects: it reads the v1 yarn.lock
// format, discovers workspaces declared in package.json and reports every
// locked package as an SBOM component.
package yarnclassic
