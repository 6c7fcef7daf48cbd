// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mil

import (
	"fmt"
	"strings"
)

// printer writes programs in a textual form close to the one used by MIL:
//
//	function main(%x: fp32[2,3]) {
//	  %const_0: fp32 = const(val=0)
//	  %add_0: fp32[2,3] = add(x=%x, y=%const_0)
//	} -> (%add_0)
type printer struct {
	sb     strings.Builder
	indent int
}

func (p *printer) w(format string, args ...any) {
	_, _ = fmt.Fprintf(&p.sb, format, args...)
}

func (p *printer) newLine() {
	p.sb.WriteByte('\n')
	p.sb.WriteString(strings.Repeat("  ", p.indent))
}

func (p *printer) writeVarDecls(vars []*Var) {
	for ii, v := range vars {
		if ii > 0 {
			p.w(", ")
		}
		p.w("%s: %s", v, v.shape)
	}
}

func (p *printer) writeVarRefs(vars []*Var) {
	for ii, v := range vars {
		if ii > 0 {
			p.w(", ")
		}
		p.w("%s", v)
	}
}

func (p *printer) writeOpHeader(op *Operation) {
	if len(op.outputs) > 0 {
		p.writeVarDecls(op.outputs)
		p.w(" = ")
	}
	p.w("%s(", op.opType)
	for ii, in := range op.inputs {
		if ii > 0 {
			p.w(", ")
		}
		p.w("%s=%s", in.Name, in.Var)
	}
	if op.opType == "const" && len(op.outputs) == 1 && op.outputs[0].value != nil {
		p.w("val=%s", op.outputs[0].value)
	}
	p.w(")")
}

func (p *printer) writeOp(op *Operation) {
	p.newLine()
	p.writeOpHeader(op)
	if len(op.blocks) == 0 {
		return
	}
	p.w(" {")
	p.indent++
	for _, nested := range op.blocks {
		p.writeBlock("block "+nested.name, nested)
	}
	p.indent--
	p.newLine()
	p.w("}")
}

func (p *printer) writeBlock(header string, b *Block) {
	p.newLine()
	p.w("%s(", header)
	p.writeVarDecls(b.inputs)
	p.w(") {")
	p.indent++
	for _, op := range b.operations {
		p.writeOp(op)
	}
	p.indent--
	p.newLine()
	p.w("} -> (")
	p.writeVarRefs(b.outputs)
	p.w(")")
}

// String returns the block in textual form.
func (b *Block) String() string {
	var p printer
	p.writeBlock("block "+b.name, b)
	return strings.TrimPrefix(p.sb.String(), "\n")
}

// String returns the program in textual form.
func (p *Program) String() string {
	var pr printer
	pr.w("program %s {", p.ID)
	pr.indent++
	for name, fn := range p.Functions() {
		pr.writeBlock("function "+name, fn)
	}
	pr.indent--
	pr.newLine()
	pr.w("}")
	return pr.sb.String()
}
