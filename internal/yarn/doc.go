// Package yarn reads Yarn Berry (v3 and v4) projects: package.json,
// .yarnrc.yml and the YAML yarn.lock they produce.
//
// Zero-install projects are rejected since their committed cache cannot be
// verified against the lockfile without running yarn.
package yarn
