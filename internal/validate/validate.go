// Package validate holds small generic checks shared by the request model and
// the package resolvers.
package validate

import (
	"cmp"
	"fmt"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
)

// Unique returns items with one entry per key, in first-seen order.
//
// When two items share a key and dedupe is true, the later one is dropped if
// it is equal to the first; otherwise the pair is reported as a conflict.
func Unique[T any, K comparable](items []T, by func(T) K, dedupe bool) ([]T, error) {
	seen := make(map[K]int, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		key := by(item)
		idx, ok := seen[key]
		if !ok {
			seen[key] = len(out)
			out = append(out, item)
			continue
		}
		if !dedupe || !reflect.DeepEqual(out[idx], item) {
			return nil, fmt.Errorf("conflict by %v: %v X %v", key, out[idx], item)
		}
	}
	return out, nil
}

// UniqueSorted is Unique followed by a stable sort on the key.
func UniqueSorted[T any, K cmp.Ordered](items []T, by func(T) K, dedupe bool) ([]T, error) {
	out, err := Unique(items, by, dedupe)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b T) int { return cmp.Compare(by(a), by(b)) })
	return out, nil
}

// CheckSaneRelpath rejects absolute paths and paths with ".." components.
func CheckSaneRelpath(p string) error {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return fmt.Errorf("path must be relative: %s", p)
	}
	for _, part := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == filepath.Separator }) {
		if part == ".." {
			return fmt.Errorf("path contains ..: %s", p)
		}
	}
	return nil
}
