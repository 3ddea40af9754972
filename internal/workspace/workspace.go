package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fbkclanna/lockscan/internal/lock"
	"github.com/fbkclanna/lockscan/internal/request"
	"github.com/fbkclanna/lockscan/internal/rootedpath"
)

// DefaultRequestFile is looked up in the source directory when no request
// path is given.
const DefaultRequestFile = "lockscan.yaml"

// Context holds the resolved paths and loaded request for a source directory.
type Context struct {
	Source      rootedpath.RootedPath
	RequestPath string
	LockPath    string
	Request     *request.Request // nil when no request file exists
	Lock        *lock.File       // may be nil
}

// Load resolves the source directory and loads the request and lock state if
// present. A relative requestPath is taken relative to source. A request file
// that was named explicitly must exist.
func Load(source, requestPath string) (*Context, error) {
	src, err := rootedpath.New(source)
	if err != nil {
		return nil, fmt.Errorf("resolving source directory: %w", err)
	}
	if !src.IsDir() {
		return nil, fmt.Errorf("source directory does not exist: %s", src.Path())
	}

	explicit := requestPath != ""
	if !explicit {
		requestPath = DefaultRequestFile
	}
	if !filepath.IsAbs(requestPath) {
		requestPath = filepath.Join(src.Path(), requestPath)
	}

	ctx := &Context{
		Source:      src,
		RequestPath: requestPath,
		LockPath:    filepath.Join(filepath.Dir(requestPath), lock.FileName),
	}

	if _, statErr := os.Stat(requestPath); statErr == nil {
		req, err := request.Load(requestPath)
		if err != nil {
			return nil, err
		}
		ctx.Request = req
	} else if explicit {
		return nil, fmt.Errorf("request file not found: %s", requestPath)
	}

	if _, statErr := os.Stat(ctx.LockPath); statErr == nil {
		lf, err := lock.Load(ctx.LockPath)
		if err != nil {
			return nil, err
		}
		ctx.Lock = lf
	}

	return ctx, nil
}

// PackageDir returns the package's directory, which must stay inside the
// source directory.
func (c *Context) PackageDir(pkg request.Package) (rootedpath.RootedPath, error) {
	return c.Source.Join(pkg.EffectivePath())
}

// Mode represents how validation problems in package inputs are handled.
type Mode string

const (
	ModeStrict     Mode = "strict"
	ModePermissive Mode = "permissive"
)

// ParseMode parses a mode string, defaulting to "strict".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStrict, "":
		return ModeStrict, nil
	case ModePermissive:
		return ModePermissive, nil
	default:
		return "", fmt.Errorf("unknown mode: %q (must be strict or permissive)", s)
	}
}

// Input is what a resolver receives for one package of the request.
type Input struct {
	Source       rootedpath.RootedPath
	Package      request.Package
	Mode         Mode
	Flags        []request.Flag
	PipIndexURL  string
	YarnRegistry string
	Logger       *slog.Logger
}

// Dir returns the package directory.
func (in Input) Dir() (rootedpath.RootedPath, error) {
	return in.Source.Join(in.Package.EffectivePath())
}

// HasFlag reports whether the request enabled f.
func (in Input) HasFlag(f request.Flag) bool {
	for _, g := range in.Flags {
		if g == f {
			return true
		}
	}
	return false
}

// Log returns the input's logger, or the default one.
func (in Input) Log() *slog.Logger {
	if in.Logger != nil {
		return in.Logger
	}
	return slog.Default()
}
