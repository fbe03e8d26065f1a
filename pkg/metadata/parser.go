package metadata

import (
	"fmt"

	"github.com/bgrewell/lvm2-kit/pkg/consts"
	"github.com/bgrewell/lvm2-kit/pkg/lvmerr"
)

// Parser consumes a Lexer's token stream and produces a Node tree rooted
// at an implicit top-level section (spec §4.4's `file := section_body`).
type Parser struct {
	lex       *Lexer
	tok       Token
	maxDepth  int
	abortPoll func() bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxDepth overrides the default nesting-depth cap.
func WithMaxDepth(depth int) Option {
	return func(p *Parser) { p.maxDepth = depth }
}

// WithAbortPoll installs a function the parser checks between top-level
// items; when it returns true, Parse returns lvmerr.ErrAbortRequested.
func WithAbortPoll(poll func() bool) Option {
	return func(p *Parser) { p.abortPoll = poll }
}

// Parse lexes and parses src in one pass, returning the root section node.
func Parse(src []byte, opts ...Option) (*Node, error) {
	p := &Parser{
		lex:      NewLexer(src),
		maxDepth: consts.MaxParseDepth,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.next(); err != nil {
		return nil, p.wrap(err)
	}

	root := &Node{Kind: NodeSection, Name: ""}
	children, err := p.parseSectionBody(0, true)
	if err != nil {
		return nil, err
	}
	root.Children = children
	return root, nil
}

func (p *Parser) next() error {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *Parser) wrap(err error) error {
	if le, ok := err.(*lexError); ok {
		return &lvmerr.MalformedMetadataError{Line: le.line, Col: le.col, Msg: le.msg}
	}
	return err
}

// parseSectionBody parses assignments and nested sections until it hits
// '}' (or EOF, at the top level).
func (p *Parser) parseSectionBody(depth int, topLevel bool) ([]*Node, error) {
	if depth > p.maxDepth {
		return nil, &lvmerr.MalformedMetadataError{
			Line: p.tok.Line, Col: p.tok.Col,
			Msg: fmt.Sprintf("nesting depth exceeds limit of %d", p.maxDepth),
		}
	}

	var children []*Node
	seenSections := map[string]bool{}
	seenAssignments := map[string]bool{}

	for {
		if topLevel && p.abortPoll != nil && p.abortPoll() {
			return nil, lvmerr.ErrAbortRequested
		}

		switch p.tok.Kind {
		case TokenEOF:
			if !topLevel {
				return nil, &lvmerr.MalformedMetadataError{Line: p.tok.Line, Col: p.tok.Col, Msg: "unexpected end of input, expected '}'"}
			}
			return children, nil
		case TokenRBrace:
			if topLevel {
				return nil, &lvmerr.MalformedMetadataError{Line: p.tok.Line, Col: p.tok.Col, Msg: "unmatched '}'"}
			}
			return children, nil
		case TokenIdent:
			name := p.tok.Text
			nameLine, nameCol := p.tok.Line, p.tok.Col
			if err := p.next(); err != nil {
				return nil, p.wrap(err)
			}
			switch p.tok.Kind {
			case TokenEquals:
				if err := p.next(); err != nil {
					return nil, p.wrap(err)
				}
				val, err := p.parseValue(depth)
				if err != nil {
					return nil, err
				}
				if seenAssignments[name] {
					return nil, &lvmerr.MalformedMetadataError{Line: nameLine, Col: nameCol, Msg: fmt.Sprintf("duplicate assignment %q", name)}
				}
				seenAssignments[name] = true
				children = append(children, &Node{Kind: NodeAssignment, Name: name, Value: val})
			case TokenLBrace:
				if err := p.next(); err != nil {
					return nil, p.wrap(err)
				}
				if seenSections[name] {
					return nil, &lvmerr.MalformedMetadataError{Line: nameLine, Col: nameCol, Msg: fmt.Sprintf("duplicate section %q", name)}
				}
				seenSections[name] = true
				sub, err := p.parseSectionBody(depth+1, false)
				if err != nil {
					return nil, err
				}
				if p.tok.Kind != TokenRBrace {
					return nil, &lvmerr.MalformedMetadataError{Line: p.tok.Line, Col: p.tok.Col, Msg: "expected '}'"}
				}
				if err := p.next(); err != nil {
					return nil, p.wrap(err)
				}
				children = append(children, &Node{Kind: NodeSection, Name: name, Children: sub})
			default:
				return nil, &lvmerr.MalformedMetadataError{Line: p.tok.Line, Col: p.tok.Col, Msg: "expected '=' or '{' after identifier"}
			}
		default:
			return nil, &lvmerr.MalformedMetadataError{Line: p.tok.Line, Col: p.tok.Col, Msg: "expected identifier"}
		}
	}
}

func (p *Parser) parseValue(depth int) (Value, error) {
	switch p.tok.Kind {
	case TokenInteger:
		v := Value{Kind: KindInteger, Integer: p.tok.Integer}
		if err := p.next(); err != nil {
			return Value{}, p.wrap(err)
		}
		return v, nil
	case TokenString:
		v := Value{Kind: KindString, String: p.tok.Text}
		if err := p.next(); err != nil {
			return Value{}, p.wrap(err)
		}
		return v, nil
	case TokenLBracket:
		return p.parseArray(depth)
	default:
		return Value{}, &lvmerr.MalformedMetadataError{Line: p.tok.Line, Col: p.tok.Col, Msg: "expected a value"}
	}
}

func (p *Parser) parseArray(depth int) (Value, error) {
	if depth+1 > p.maxDepth {
		return Value{}, &lvmerr.MalformedMetadataError{
			Line: p.tok.Line, Col: p.tok.Col,
			Msg: fmt.Sprintf("nesting depth exceeds limit of %d", p.maxDepth),
		}
	}
	if err := p.next(); err != nil { // consume '['
		return Value{}, p.wrap(err)
	}

	var elems []Value
	for p.tok.Kind != TokenRBracket {
		if p.tok.Kind == TokenEOF {
			return Value{}, &lvmerr.MalformedMetadataError{Line: p.tok.Line, Col: p.tok.Col, Msg: "unterminated array, expected ']'"}
		}
		v, err := p.parseValue(depth + 1)
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, v)
	}
	if err := p.next(); err != nil { // consume ']'
		return Value{}, p.wrap(err)
	}
	return Value{Kind: KindArray, Array: elems}, nil
}
