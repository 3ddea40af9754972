// Package git reads repository metadata with go-git: the origin URL and
// HEAD commit used to qualify package URLs, tags reachable from HEAD for
// versioning the main module, and worktree status for vendor checks.
// It does not depend on other internal packages except apperr.
package git
