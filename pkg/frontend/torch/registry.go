// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package torch converts traced torch graphs (torch.fx style) to MIL programs.
//
// Conversion functions are registered by operator name in Ops. Names are canonicalized on lookup
// (see package opregistry): "__add__" and the in-place "add_" are both converted by the function
// registered for "add".
package torch

import (
	"strings"

	"github.com/HennerM/coremltools/pkg/core/opregistry"
	"k8s.io/klog/v2"
)

// ConversionFunc converts a node, setting its value in ctx with Context.SetValue.
type ConversionFunc func(ctx *Context, node *Node) error

// Ops holds the conversion functions of the supported torch operators.
var Ops = opregistry.New[ConversionFunc]("torch op")

// RegisterOp registers fn as the conversion function of the torch operator name.
// Use opregistry.WithAliases and opregistry.Override to configure it.
//
// It panics on errors, and it is meant to be called during initialization.
func RegisterOp(name string, fn ConversionFunc, options ...opregistry.Option) {
	Ops.MustRegister(name, fn, options...)
}

const atenPrefix = "aten."

// TargetName returns the lower-cased operator name of a call target, without the "aten." namespace and
// without the overload suffix: "aten.add.Tensor" becomes "add".
func TargetName(target string) string {
	name := strings.ToLower(target)
	if strings.HasPrefix(name, atenPrefix) {
		name = name[len(atenPrefix):]
		if idx := strings.Index(name, "."); idx != -1 {
			name = name[:idx]
		}
	}
	return name
}

// IsNodeSupported returns whether node can be converted.
//
// Only CallFunction nodes hold operators, and they must be functional: in-place operators are not supported.
func IsNodeSupported(node *Node) bool {
	if node.Kind != CallFunction {
		klog.Warningf("torch node %s: only %q nodes are supported, got %q", node.Name, CallFunction, node.Kind)
		return false
	}
	name := TargetName(node.Target)
	if opregistry.IsInPlace(name) {
		klog.Warningf("torch node %s: in-place operator %q is not supported, all operators must be functional",
			node.Name, name)
		return false
	}
	return Ops.Contains(name)
}
