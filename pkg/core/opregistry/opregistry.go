// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package opregistry implements a registry of handlers indexed by operator name.
//
// It is used by frontends to route the name of an operator of the source framework (e.g. "add",
// "__add__" or "add_") to the function that converts it.
//
// Names are canonicalized before lookup:
//
//   - A name wrapped in double underscores ("__and__") has one leading and one trailing "__" stripped ("and").
//   - Otherwise, a name ending with a single underscore denotes an in-place variant ("sub_"), and the
//     underscore is stripped ("sub").
//
// In-place variants can't be registered directly: they are automatically resolved to the handler of
// their non-in-place version.
package opregistry

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrDuplicateRegistration is returned when registering a name that already has a handler,
	// without the Override option.
	ErrDuplicateRegistration = errors.New("operator already registered")

	// ErrInvalidName is returned when registering an empty name or the name of an in-place
	// variant (ending with "_").
	ErrInvalidName = errors.New("invalid operator name")
)

const dunder = "__"

// isDunder returns whether name is wrapped in double underscores, e.g.: "__add__".
func isDunder(name string) bool {
	return len(name) >= 2*len(dunder) && strings.HasPrefix(name, dunder) && strings.HasSuffix(name, dunder)
}

// Canonicalize returns the name used for lookup: see package documentation.
func Canonicalize(name string) string {
	if isDunder(name) {
		return name[len(dunder) : len(name)-len(dunder)]
	}
	if strings.HasSuffix(name, "_") {
		return name[:len(name)-1]
	}
	return name
}

// IsInPlace returns whether name denotes an in-place variant of an operator: it ends with a single
// "_" and is not wrapped in double underscores.
func IsInPlace(name string) bool {
	return !isDunder(name) && strings.HasSuffix(name, "_")
}

// Registry maps canonical operator names to handlers of type H.
//
// It is safe for concurrent use, but it is expected to be populated once, during initialization
// (usually from `init()` functions), and only read afterward.
type Registry[H any] struct {
	kind string

	mu       sync.RWMutex
	handlers map[string]H
}

// New creates an empty registry. kind describes the handlers, and is used in error messages.
func New[H any](kind string) *Registry[H] {
	return &Registry[H]{kind: kind, handlers: make(map[string]H)}
}

// Option configures a call to Register.
type Option func(*registerConfig)

type registerConfig struct {
	aliases  []string
	override bool
}

// WithAliases also registers the handler under the given aliases.
func WithAliases(aliases ...string) Option {
	return func(c *registerConfig) {
		c.aliases = append(c.aliases, aliases...)
	}
}

// Override allows replacing handlers previously registered for the same names.
func Override() Option {
	return func(c *registerConfig) {
		c.override = true
	}
}

// Register handler under name, and under the aliases given with WithAliases.
//
// All names are checked before anything is registered: if any of them is invalid (see ErrInvalidName),
// or already registered without the Override option (see ErrDuplicateRegistration), nothing is registered.
func (r *Registry[H]) Register(name string, handler H, options ...Option) error {
	var cfg registerConfig
	for _, option := range options {
		option(&cfg)
	}
	names := append([]string{name}, cfg.aliases...)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if n == "" {
			return errors.Wrapf(ErrInvalidName, "%s: empty name", r.kind)
		}
		if strings.HasSuffix(n, "_") {
			return errors.Wrapf(ErrInvalidName,
				"%s: attempting to register %q, in-place variants (ending in \"_\") can't be registered; "+
					"register %q instead, and the in-place variant will be supported automatically",
				r.kind, n, n[:len(n)-1])
		}
		if _, found := r.handlers[n]; found && !cfg.override {
			return errors.Wrapf(ErrDuplicateRegistration, "%s %q", r.kind, n)
		}
	}
	for _, n := range names {
		r.handlers[n] = handler
	}
	return nil
}

// MustRegister is like Register, but panics with the error. Convenient for `init()` functions.
func (r *Registry[H]) MustRegister(name string, handler H, options ...Option) {
	if err := r.Register(name, handler, options...); err != nil {
		panic(err)
	}
}

// Resolve returns the handler for the canonicalized name, and whether it was found.
func (r *Registry[H]) Resolve(name string) (handler H, found bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, found = r.handlers[Canonicalize(name)]
	return
}

// Contains returns whether there is a handler for the canonicalized name.
func (r *Registry[H]) Contains(name string) bool {
	_, found := r.Resolve(name)
	return found
}

// Names returns the sorted list of registered names (including aliases).
func (r *Registry[H]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}

// Len returns the number of registered names (including aliases).
func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
