// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mil

import "github.com/pkg/errors"

// ErrInvariantViolation is the cause of panics raised when a rewrite would leave the program
// in an inconsistent state: removing an operation whose outputs are still used, leaving a
// block output dangling, or replacing a value with one of a different type.
//
// These are bugs in the code doing the rewrite, and are never expected in a correct pass.
// Use errors.Is to check for it after recovering (e.g. with exceptions.TryCatch[error]).
var ErrInvariantViolation = errors.New("MIL invariant violation")

// panicInvariantf panics with an error wrapping ErrInvariantViolation, with a stack trace.
func panicInvariantf(format string, args ...any) {
	panic(errors.Wrapf(ErrInvariantViolation, format, args...))
}
