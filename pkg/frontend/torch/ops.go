// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package torch

import (
	"github.com/HennerM/coremltools/pkg/core/mil"
	"github.com/HennerM/coremltools/pkg/core/opregistry"
	"github.com/HennerM/coremltools/pkg/support/xslices"
	"github.com/pkg/errors"
)

func init() {
	RegisterOp("add", convertAddOrSub((*mil.Builder).Add))
	RegisterOp("sub", convertAddOrSub((*mil.Builder).Sub), opregistry.WithAliases("subtract"))
	RegisterOp("mul", convertBinary((*mil.Builder).Mul), opregistry.WithAliases("multiply"))
	RegisterOp("div", convertDiv, opregistry.WithAliases("true_divide", "truediv"))
	RegisterOp("floordiv", convertBinary((*mil.Builder).FloorDiv), opregistry.WithAliases("floor_divide"))
	RegisterOp("pow", convertBinary((*mil.Builder).Pow))
	RegisterOp("relu", convertRelu)
	RegisterOp("reshape", convertReshape, opregistry.WithAliases("view"))
	RegisterOp("permute", convertPermute)
	RegisterOp("transpose", convertTranspose)
	RegisterOp("contiguous", convertIdentity, opregistry.WithAliases("clone", "dropout", "detach"))
}

type binaryOp func(b *mil.Builder, x, y *mil.Var) *mil.Var

// binaryOperands returns the first two arguments of node as MIL values. One of them can be a numeric
// literal, converted to a constant of the dtype of the other.
func binaryOperands(ctx *Context, node *Node) (x, y *mil.Var, err error) {
	if len(node.Args) < 2 {
		return nil, nil, errors.Errorf("node %s: expected 2 operands, got %d", node, len(node.Args))
	}
	xArg, yArg := node.Args[0], node.Args[1]
	switch {
	case xArg.IsRef() && yArg.IsRef():
		if x, err = ctx.Value(xArg.Ref); err != nil {
			return
		}
		y, err = ctx.Value(yArg.Ref)
	case xArg.IsRef():
		if x, err = ctx.Value(xArg.Ref); err != nil {
			return
		}
		y, err = literalLike(ctx, x, yArg)
	case yArg.IsRef():
		if y, err = ctx.Value(yArg.Ref); err != nil {
			return
		}
		x, err = literalLike(ctx, y, xArg)
	default:
		err = errors.Errorf("node %s: at least one operand must be a tensor", node)
	}
	return
}

func literalLike(ctx *Context, like *mil.Var, arg Arg) (*mil.Var, error) {
	value, err := arg.Float()
	if err != nil {
		return nil, err
	}
	return ctx.Builder.ScalarLike(like, value), nil
}

func convertBinary(op binaryOp) ConversionFunc {
	return func(ctx *Context, node *Node) error {
		x, y, err := binaryOperands(ctx, node)
		if err != nil {
			return err
		}
		ctx.SetValue(node, op(ctx.Builder, x, y))
		return nil
	}
}

// convertAddOrSub handles the optional third argument alpha, multiplying the second operand.
func convertAddOrSub(op binaryOp) ConversionFunc {
	return func(ctx *Context, node *Node) error {
		x, y, err := binaryOperands(ctx, node)
		if err != nil {
			return err
		}
		if len(node.Args) > 2 {
			alphaArg, err := ctx.Literal(node, 2)
			if err != nil {
				return err
			}
			alpha, err := alphaArg.Float()
			if err != nil {
				return err
			}
			if alpha != 1 {
				y = ctx.Builder.Mul(y, ctx.Builder.ScalarLike(y, alpha))
			}
		}
		ctx.SetValue(node, op(ctx.Builder, x, y))
		return nil
	}
}

// convertDiv handles the optional rounding mode: only "floor" (and none) are supported.
func convertDiv(ctx *Context, node *Node) error {
	op := (*mil.Builder).RealDiv
	if len(node.Args) > 2 {
		mode, err := ctx.Literal(node, 2)
		if err != nil {
			return err
		}
		switch mode.Literal {
		case nil:
		case "floor":
			op = (*mil.Builder).FloorDiv
		default:
			return errors.Errorf("node %s: rounding mode %v not supported", node, mode.Literal)
		}
	}
	return convertBinary(op)(ctx, node)
}

func convertRelu(ctx *Context, node *Node) error {
	x, err := ctx.Arg(node, 0)
	if err != nil {
		return err
	}
	ctx.SetValue(node, ctx.Builder.Relu(x))
	return nil
}

func convertIdentity(ctx *Context, node *Node) error {
	x, err := ctx.Arg(node, 0)
	if err != nil {
		return err
	}
	ctx.SetValue(node, x)
	return nil
}

// intsFromArgs collects a list of ints given either as one list argument, or as multiple int arguments.
func intsFromArgs(ctx *Context, node *Node, first int) ([]int, error) {
	if len(node.Args) == first+1 {
		arg, err := ctx.Literal(node, first)
		if err != nil {
			return nil, err
		}
		return arg.Ints()
	}
	values := make([]int, 0, len(node.Args)-first)
	for ii := first; ii < len(node.Args); ii++ {
		arg, err := ctx.Literal(node, ii)
		if err != nil {
			return nil, err
		}
		v, err := arg.Int()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func convertReshape(ctx *Context, node *Node) error {
	x, err := ctx.Arg(node, 0)
	if err != nil {
		return err
	}
	dims, err := intsFromArgs(ctx, node, 1)
	if err != nil {
		return err
	}
	inferred := -1
	known := 1
	for ii, d := range dims {
		if d == -1 {
			if inferred != -1 {
				return errors.Errorf("node %s: only one dimension can be inferred, got %v", node, dims)
			}
			inferred = ii
			continue
		}
		known *= d
	}
	if inferred != -1 {
		size, ok := x.Shape().Size()
		if !ok {
			return errors.Errorf("node %s: can't infer dimension of reshape of symbolic shape %s", node, x.Shape())
		}
		if known == 0 || size%known != 0 {
			return errors.Errorf("node %s: can't reshape %s to %v", node, x.Shape(), dims)
		}
		dims[inferred] = size / known
	}
	ctx.SetValue(node, ctx.Builder.Reshape(x, dims...))
	return nil
}

func convertPermute(ctx *Context, node *Node) error {
	x, err := ctx.Arg(node, 0)
	if err != nil {
		return err
	}
	perm, err := intsFromArgs(ctx, node, 1)
	if err != nil {
		return err
	}
	ctx.SetValue(node, ctx.Builder.Transpose(x, perm...))
	return nil
}

func convertTranspose(ctx *Context, node *Node) error {
	x, err := ctx.Arg(node, 0)
	if err != nil {
		return err
	}
	axes := make([]int, 2)
	for ii := range axes {
		arg, err := ctx.Literal(node, ii+1)
		if err != nil {
			return err
		}
		if axes[ii], err = arg.Int(); err != nil {
			return err
		}
	}
	rank := x.Shape().Rank()
	perm := xslices.Iota(0, rank)
	for ii, axis := range axes {
		if axis < 0 {
			axis += rank
		}
		if axis < 0 || axis >= rank {
			return errors.Errorf("node %s: axis %d out of range for rank %d", node, axes[ii], rank)
		}
		axes[ii] = axis
	}
	perm[axes[0]], perm[axes[1]] = perm[axes[1]], perm[axes[0]]
	ctx.SetValue(node, ctx.Builder.Transpose(x, perm...))
	return nil
}
