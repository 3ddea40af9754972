package scan

import (
	"context"
	"fmt"

	"github.com/fbkclanna/lockscan/internal/apperr"
	"github.com/fbkclanna/lockscan/internal/gomod"
	"github.com/fbkclanna/lockscan/internal/output"
	"github.com/fbkclanna/lockscan/internal/pip"
	"github.com/fbkclanna/lockscan/internal/request"
	"github.com/fbkclanna/lockscan/internal/workspace"
	"github.com/fbkclanna/lockscan/internal/yarn"
	"github.com/fbkclanna/lockscan/internal/yarnclassic"
)

// Resolver resolves one package of a request.
type Resolver interface {
	Resolve(ctx context.Context, in workspace.Input) (*output.RequestOutput, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, in workspace.Input) (*output.RequestOutput, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, in workspace.Input) (*output.RequestOutput, error) {
	return f(ctx, in)
}

// Registry maps package types to their resolvers.
type Registry map[request.PackageType]Resolver

// DefaultRegistry returns the resolvers for all supported package types.
func DefaultRegistry() Registry {
	return Registry{
		request.TypeGomod:       ResolverFunc(gomod.Resolve),
		request.TypePip:         ResolverFunc(pip.Resolve),
		request.TypeYarn:        ResolverFunc(yarn.Resolve),
		request.TypeYarnClassic: ResolverFunc(yarnclassic.Resolve),
	}
}

// Lookup returns the resolver for t.
func (r Registry) Lookup(t request.PackageType) (Resolver, error) {
	res, ok := r[t]
	if !ok {
		return nil, apperr.UnsupportedFeature(
			fmt.Sprintf("Package type '%s' is not supported", t),
			apperr.WithSolution(fmt.Sprintf("Supported package types: %v", request.Types)),
		)
	}
	return res, nil
}
