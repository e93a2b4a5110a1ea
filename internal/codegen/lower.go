package codegen

import (
	"github.com/dekarrin/quosi/internal/ast"
	"github.com/dekarrin/quosi/internal/bytecode"
)

// compileExpr lowers an expression. When ieq is true, identifier/immediate
// leaves emit IeqK/IeqV instead of Load/Push, pushing the comparison result
// while leaving the scrutinee beneath it on the stack. No caller currently
// passes true: match arms emit IeqV for their pattern values directly.
func (g *generator) compileExpr(e *ast.Expr, ieq bool) {
	switch e.Kind {
	case ast.ExprIdent:
		if ieq {
			g.emitOp(bytecode.IeqK)
		} else {
			g.emitOp(bytecode.Load)
		}
		g.emitU32(g.resolveSym(e.Ident))
	case ast.ExprImmediate:
		if ieq {
			g.emitOp(bytecode.IeqV)
		} else {
			g.emitOp(bytecode.Push)
		}
		g.emitU64(e.Immediate)
	case ast.ExprOp:
		if len(e.Children) == 1 {
			g.compileExpr(e.Children[0], false)
			g.emitOp(e.Op)
			return
		}
		g.compileExpr(e.Children[0], false)
		g.compileExpr(e.Children[1], false)
		g.emitOp(e.Op)
	}
}

// compileEffect lowers an edge's effect sequence: assignment-shaped actions
// and event emissions, run in source order before the edge's transition
// jump (see SPEC_FULL.md §1.1).
func (g *generator) compileEffect(actions []ast.EffectAction) {
	for _, a := range actions {
		switch a.Kind {
		case ast.EffectAssign:
			g.compileExpr(a.Value, false)
			g.emitOp(bytecode.Store)
			g.emitU32(g.resolveSym(a.Target))
		case ast.EffectAddAssign:
			g.emitOp(bytecode.Load)
			g.emitU32(g.resolveSym(a.Target))
			g.compileExpr(a.Value, false)
			g.emitOp(bytecode.Add)
			g.emitOp(bytecode.Store)
			g.emitU32(g.resolveSym(a.Target))
		case ast.EffectSubAssign:
			g.emitOp(bytecode.Load)
			g.emitU32(g.resolveSym(a.Target))
			g.compileExpr(a.Value, false)
			g.emitOp(bytecode.Sub)
			g.emitOp(bytecode.Store)
			g.emitU32(g.resolveSym(a.Target))
		case ast.EffectEmitEvent:
			g.emitOp(bytecode.Event)
			pos := g.emitU32(0)
			g.addStringPatch(pos, a.EventText)
		}
	}
}

// compileEdgeLeaf lowers a single edge: a Prop enqueue, plus (if the edge
// carries an effect) a deferred mini-block compiled after the vertex's
// Switch that runs the effect and then jumps to the edge's target.
func (g *generator) compileEdgeLeaf(e ast.Edge) {
	g.emitOp(bytecode.Prop)
	pos := g.emitU32(0)
	g.addStringPatch(pos, e.LineText)
	g.emitU8(g.currentEdgeIndex)
	g.currentEdgeIndex++

	if len(e.Effect) == 0 {
		g.edgeEntries = append(g.edgeEntries, edgeEntry{target: e.Next})
		return
	}

	lbl := g.genLabel()
	g.edgeEntries = append(g.edgeEntries, edgeEntry{target: lbl})
	g.pendingEffects = append(g.pendingEffects, pendingEffect{label: lbl, actions: e.Effect, next: e.Next})
}

// compileEdgeBlock lowers a (possibly conditionally-wrapped) list of edges,
// per spec.md §4.4.
func (g *generator) compileEdgeBlock(b ast.EdgeBlock) {
	switch b.Kind {
	case ast.EdgeBlockList:
		for _, e := range b.List {
			g.compileEdgeLeaf(e)
		}

	case ast.EdgeBlockMatch:
		endLbl := g.genLabel()
		g.compileExpr(b.MatchScrutinee, false)

		var catchall *ast.EdgeMatchArm
		for i := range b.MatchArms {
			arm := &b.MatchArms[i]
			if arm.IsCatchall {
				if catchall == nil {
					catchall = arm
				}
				continue
			}
			nextLbl := g.genLabel()
			g.emitOp(bytecode.IeqV)
			g.emitU64(arm.Value)
			g.emitOp(bytecode.Jz)
			pos := g.emitU32(0)
			g.addJumpPatch(pos, nextLbl)

			g.compileEdgeLeaf(arm.Body[0])

			g.emitOp(bytecode.Jump)
			pos2 := g.emitU32(0)
			g.addJumpPatch(pos2, endLbl)
			g.setLabel(nextLbl)
		}
		if catchall != nil {
			g.compileEdgeLeaf(catchall.Body[0])
		}
		g.setLabel(endLbl)
		g.emitOp(bytecode.Pop)

	case ast.EdgeBlockIfElse:
		endLbl := g.genLabel()
		n := len(b.IfBranches)
		for i, br := range b.IfBranches {
			nextLbl := g.genLabel()
			g.compileExpr(br.Cond, false)
			g.emitOp(bytecode.Jz)
			pos := g.emitU32(0)
			g.addJumpPatch(pos, nextLbl)

			for _, sub := range br.Body {
				g.compileEdgeBlock(sub)
			}

			if len(b.IfCatchall) > 0 || i < n-1 {
				g.emitOp(bytecode.Jump)
				pos2 := g.emitU32(0)
				g.addJumpPatch(pos2, endLbl)
			}
			g.setLabel(nextLbl)
		}
		for _, sub := range b.IfCatchall {
			g.compileEdgeBlock(sub)
		}
		g.setLabel(endLbl)
	}
}

// compileVertex lowers a single vertex: its line sets, then either a
// fallthrough Jump or a full choice sequence (edge blocks, Pick, Switch,
// and any deferred effect mini-blocks).
func (g *generator) compileVertex(v ast.Vertex) {
	for _, ls := range v.LineSets {
		speakerSym := g.resolveSym(ls.Speaker)
		for _, line := range ls.Lines {
			g.emitOp(bytecode.Line)
			g.emitU32(speakerSym)
			pos := g.emitU32(0)
			g.addStringPatch(pos, line)
		}
	}

	if len(v.Edges) == 0 {
		g.emitOp(bytecode.Jump)
		pos := g.emitU32(0)
		g.addJumpPatch(pos, v.FallthroughNext)
		return
	}

	savedIndex, savedEntries, savedPending := g.currentEdgeIndex, g.edgeEntries, g.pendingEffects
	g.currentEdgeIndex = 0
	g.edgeEntries = nil
	g.pendingEffects = nil

	for _, eb := range v.Edges {
		g.compileEdgeBlock(eb)
	}
	entries, pending := g.edgeEntries, g.pendingEffects
	g.currentEdgeIndex, g.edgeEntries, g.pendingEffects = savedIndex, savedEntries, savedPending

	g.emitOp(bytecode.Pick)
	g.emitOp(bytecode.Switch)
	for _, ee := range entries {
		pos := g.emitU32(0)
		g.addJumpPatch(pos, ee.target)
	}
	for _, pe := range pending {
		g.setLabel(pe.label)
		g.compileEffect(pe.actions)
		g.emitOp(bytecode.Jump)
		pos := g.emitU32(0)
		g.addJumpPatch(pos, pe.next)
	}
}

// compileVertexBlock lowers a (possibly conditionally-wrapped) vertex
// declaration, per spec.md §4.4's "analogous to edge-blocks… tail Jump end
// emissions are unnecessary" rule.
func (g *generator) compileVertexBlock(vb ast.VertexBlock) {
	switch vb.Kind {
	case ast.VertexBlockSingle:
		g.compileVertex(vb.Single)

	case ast.VertexBlockIfElse:
		endLbl := g.genLabel()
		for _, br := range vb.IfBranches {
			nextLbl := g.genLabel()
			g.compileExpr(br.Cond, false)
			g.emitOp(bytecode.Jz)
			pos := g.emitU32(0)
			g.addJumpPatch(pos, nextLbl)

			g.compileVertexBlock(br.Body)
			g.setLabel(nextLbl)
		}
		if vb.IfCatchall != nil {
			g.compileVertexBlock(*vb.IfCatchall)
		}
		g.setLabel(endLbl)

	case ast.VertexBlockMatch:
		endLbl := g.genLabel()
		g.compileExpr(vb.MatchScrutinee, false)

		var catchall *ast.VertexMatchArm
		for i := range vb.MatchArms {
			arm := &vb.MatchArms[i]
			if arm.IsCatchall {
				if catchall == nil {
					catchall = arm
				}
				continue
			}
			nextLbl := g.genLabel()
			g.emitOp(bytecode.IeqV)
			g.emitU64(arm.Value)
			g.emitOp(bytecode.Jz)
			pos := g.emitU32(0)
			g.addJumpPatch(pos, nextLbl)

			g.emitOp(bytecode.Pop) // discard the scrutinee before running this arm
			g.compileVertex(arm.Body)
			g.setLabel(nextLbl)
		}
		if catchall != nil {
			g.emitOp(bytecode.Pop)
			g.compileVertex(catchall.Body)
		}
		g.setLabel(endLbl)
	}
}
