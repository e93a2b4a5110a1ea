package parser

import (
	"github.com/dekarrin/quosi/internal/ast"
	"github.com/dekarrin/quosi/internal/qerr"
)

// validate runs the structural checks that require the whole graph to have
// been parsed: entry-point presence and edge-target closure. These are
// recoverable diagnostics, appended to p.errs without unwinding.
func (p *parser) validate() {
	if _, ok := p.graph.NameIndex["START"]; !ok {
		p.errs.Add(qerr.New(qerr.NoEntryPoint, qerr.Span{}))
	}

	for _, nv := range p.graph.Vertices {
		p.validateVertexBlock(nv.Block)
	}
}

func (p *parser) validateVertexBlock(vb ast.VertexBlock) {
	switch vb.Kind {
	case ast.VertexBlockSingle:
		p.validateVertex(vb.Single)
	case ast.VertexBlockMatch:
		for _, arm := range vb.MatchArms {
			p.validateVertex(arm.Body)
		}
	case ast.VertexBlockIfElse:
		for _, br := range vb.IfBranches {
			p.validateVertexBlock(br.Body)
		}
		if vb.IfCatchall != nil {
			p.validateVertexBlock(*vb.IfCatchall)
		}
	}
}

func (p *parser) validateVertex(v ast.Vertex) {
	if v.FallthroughNext != "" {
		p.validateTarget(v.FallthroughNext)
	}
	for _, eb := range v.Edges {
		p.validateEdgeBlock(eb)
	}
}

func (p *parser) validateEdgeBlock(eb ast.EdgeBlock) {
	switch eb.Kind {
	case ast.EdgeBlockList:
		for _, e := range eb.List {
			p.validateTarget(e.Next)
		}
	case ast.EdgeBlockMatch:
		for _, arm := range eb.MatchArms {
			for _, e := range arm.Body {
				p.validateTarget(e.Next)
			}
		}
	case ast.EdgeBlockIfElse:
		for _, br := range eb.IfBranches {
			for _, sub := range br.Body {
				p.validateEdgeBlock(sub)
			}
		}
		for _, sub := range eb.IfCatchall {
			p.validateEdgeBlock(sub)
		}
	}
}

// validateTarget checks that name is a reserved label, a declared vertex,
// or an alias of one, emitting DanglingEdge if not.
func (p *parser) validateTarget(name string) {
	if ast.IsReservedLabel(name) {
		return
	}
	resolved := p.graph.Resolve(name)
	if _, ok := p.graph.NameIndex[resolved]; ok {
		return
	}
	p.errs.Add(qerr.New(qerr.DanglingEdge, qerr.Span{}))
}
