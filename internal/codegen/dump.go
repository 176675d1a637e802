package codegen

import (
	"fmt"

	"github.com/xlab/treeprint"

	"octet/internal/reg"
)

// Dump renders the IR of a program as a tree, for debugging.
func Dump(p *Program) string {
	tree := treeprint.New()
	tree.SetValue("program " + p.Name)
	if len(p.Globals) > 0 {
		globals := tree.AddBranch("globals")
		for _, v := range p.Globals {
			globals.AddNode(fmt.Sprintf("%s %s", v.Name, v.Type))
		}
	}
	for _, fn := range p.Functions {
		dumpFunction(tree, fn)
	}
	return tree.String()
}

func dumpFunction(tree treeprint.Tree, fn *Function) {
	name := fn.Name
	if fn.Result.ByteCount > 0 {
		name += " " + fn.Result.Name
	}
	branch := tree.AddBranch("func " + name)
	if len(fn.Parameters) > 0 {
		params := branch.AddBranch("parameters")
		for _, p := range fn.Parameters {
			params.AddNode(p.String())
		}
	}
	var locals []*Variable
	for _, v := range fn.Variables() {
		if !isParameterVariable(fn, v) {
			locals = append(locals, v)
		}
	}
	if len(locals) > 0 {
		vars := branch.AddBranch("variables")
		for _, v := range locals {
			if v.Register != nil {
				vars.AddNode(fmt.Sprintf("%s %s in %s", v.Name, v.Type, v.Register))
			} else {
				vars.AddNode(fmt.Sprintf("%s %s", v.Name, v.Type))
			}
		}
	}
	code := branch.AddBranch("instructions")
	for _, instr := range fn.Instructions() {
		for _, a := range fn.Anchors() {
			if a.Address == instr.Address() {
				code.AddNode(a.Label + ":")
			}
		}
		code.AddMetaNode(instr.Address(), instr.String())
	}
}

func isParameterVariable(fn *Function, v *Variable) bool {
	for _, p := range fn.Parameters {
		if p.Variable == v {
			return true
		}
	}
	return false
}

// RegisterTree renders an architecture's register file and calling
// convention.
func RegisterTree(arch *Architecture) string {
	tree := treeprint.New()
	tree.SetValue(arch.Name)

	bytes := tree.AddBranch("bytes")
	for _, b := range arch.Registers.Bytes() {
		if p := b.Pair(); p != nil {
			bytes.AddMetaNode("half of "+p.Name(), b.Name())
		} else {
			bytes.AddNode(b.Name())
		}
	}
	halves := "independent halves"
	if arch.Registers.AliasesHalves() {
		halves = "aliased halves"
	}
	words := tree.AddMetaBranch(halves, "words")
	for _, w := range arch.Registers.Words() {
		var node treeprint.Tree
		if w.IsPair() {
			node = words.AddMetaBranch("pair", w.Name())
			node.AddNode("high " + w.High().Name())
			node.AddNode("low " + w.Low().Name())
		} else {
			node = words.AddBranch(w.Name())
		}
		switch {
		case w.IsIndex():
			node.AddNode("indexed")
		case w.IsPointerCapable():
			node.AddNode("pointer")
		}
	}

	conv := tree.AddBranch("convention")
	conv.AddMetaNode("byte parameters", names(arch.ByteParameters))
	conv.AddMetaNode("word parameters", names(arch.WordParameters))
	conv.AddMetaNode("returns", fmt.Sprintf("%s %s", arch.ByteReturn, arch.WordReturn))
	conv.AddMetaNode("memory parameters", arch.Passing.String())
	conv.AddMetaNode("preserved", names(arch.Preserved))
	return tree.String()
}

func names[R reg.Register](rs []R) string {
	if len(rs) == 0 {
		return "-"
	}
	out := ""
	for i, r := range rs {
		if i > 0 {
			out += " "
		}
		out += reg.Register(r).Name()
	}
	return out
}
