// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package passes defines the contract of graph passes over a mil.Program, a registry of passes
// indexed by (namespace, name), and a Pipeline to run a sequence of them.
//
// Passes register themselves during initialization, usually from an `init()` function of the package
// implementing them. E.g., to make the common passes available:
//
//	import _ "github.com/HennerM/coremltools/pkg/core/passes/common"
package passes

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/HennerM/coremltools/pkg/core/mil"
	"github.com/pkg/errors"
)

// Pass transforms a program in place.
//
// Passes are expected to be idempotent: running a pass a second time, with no further matches, must not
// change the program.
//
// Violations of the graph contracts (see mil.ErrInvariantViolation) panic: use Pipeline.Run to convert
// them to errors.
type Pass interface {
	Apply(prog *mil.Program)
}

// OpsSkipper is implemented by passes that allow the caller to exempt some operations from their rewrites.
type OpsSkipper interface {
	// SetSkipOps configures the hook called at the start of Apply, returning the operations to leave untouched.
	// A nil hook exempts nothing.
	SetSkipOps(hook func(prog *mil.Program) []*mil.Operation)
}

// Constructor creates a new instance of a pass.
type Constructor func() Pass

// Separator between the namespace and the name in the full name of a pass, e.g.: "common::noop_elimination".
const Separator = "::"

var (
	// ErrDuplicatePass is returned when registering a pass under a (namespace, name) already taken.
	ErrDuplicatePass = errors.New("pass already registered")

	// ErrUnknownPass is returned when creating a pass that was not registered.
	ErrUnknownPass = errors.New("unknown pass")

	muRegistry sync.RWMutex

	registeredConstructors = make(map[string]Constructor)
)

// FullName returns the name under which a pass is registered: "<namespace>::<name>".
func FullName(namespace, name string) string {
	return namespace + Separator + name
}

// SplitName splits a full pass name into namespace and name.
func SplitName(fullName string) (namespace, name string, err error) {
	namespace, name, found := strings.Cut(fullName, Separator)
	if !found || namespace == "" || name == "" {
		return "", "", errors.Errorf("invalid pass name %q, it must be formatted as \"<namespace>%s<name>\"",
			fullName, Separator)
	}
	return namespace, name, nil
}

// Register the constructor of a pass under (namespace, name).
//
// To be safe, call Register during initialization of a package.
func Register(namespace, name string, constructor Constructor) error {
	if namespace == "" || name == "" || strings.Contains(namespace, Separator) || strings.Contains(name, Separator) {
		return errors.Errorf("invalid pass namespace %q or name %q", namespace, name)
	}
	fullName := FullName(namespace, name)
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if _, found := registeredConstructors[fullName]; found {
		return errors.Wrapf(ErrDuplicatePass, "%q", fullName)
	}
	registeredConstructors[fullName] = constructor
	return nil
}

// MustRegister is like Register, but panics with the error.
func MustRegister(namespace, name string, constructor Constructor) {
	if err := Register(namespace, name, constructor); err != nil {
		panic(err)
	}
}

// New creates a new instance of the pass registered under fullName ("<namespace>::<name>").
func New(fullName string) (Pass, error) {
	if _, _, err := SplitName(fullName); err != nil {
		return nil, err
	}
	muRegistry.RLock()
	constructor, found := registeredConstructors[fullName]
	muRegistry.RUnlock()
	if !found {
		return nil, errors.Wrapf(ErrUnknownPass, "%q (maybe the package implementing it was not imported?)", fullName)
	}
	return constructor(), nil
}

// Names returns the sorted full names of the passes registered in namespace, or of all passes if namespace is empty.
func Names(namespace string) []string {
	muRegistry.RLock()
	defer muRegistry.RUnlock()
	names := slices.Sorted(maps.Keys(registeredConstructors))
	if namespace == "" {
		return names
	}
	prefix := namespace + Separator
	return slices.DeleteFunc(names, func(name string) bool { return !strings.HasPrefix(name, prefix) })
}
