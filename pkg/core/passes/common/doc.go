// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package common implements the generic cleanup passes, registered under the "common" namespace:
//
//   - "common::noop_elimination": see NoopElimination.
//   - "common::dead_code_elimination": see DeadCodeElimination.
package common
