// Package pip reads pip requirements files and Python project metadata.
//
// Requirements must be fully pinned: index requirements with == or ===,
// VCS requirements with a full git commit and plain URL requirements with
// exactly one hash. The main package is named from pyproject.toml, setup.py
// or setup.cfg, in that order, falling back to the name of the git origin.
package pip
