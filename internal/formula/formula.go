// Package formula is a small arithmetic expression evaluator.
//
// Profit reporting builds a textual sum-of-products expression from open
// order legs and evaluates it with symbol close prices substituted for
// identifiers. Keeping one generic tokenize, parse, substitute, fold
// pipeline (instead of per-order-pair arithmetic) guarantees the logged
// formula string and the computed value always agree.
package formula

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrUnresolved marks an identifier with no value in the substitution map.
var ErrUnresolved = errors.New("unresolved identifier")

// Node is one node of the parsed expression tree.
type Node interface {
	// Eval folds the subtree to a scalar, resolving identifiers via vars.
	Eval(vars map[string]float64) (float64, error)
}

type numberNode float64

func (n numberNode) Eval(map[string]float64) (float64, error) {
	return float64(n), nil
}

type identNode string

func (n identNode) Eval(vars map[string]float64) (float64, error) {
	v, ok := vars[string(n)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnresolved, string(n))
	}
	return v, nil
}

type binaryNode struct {
	op          byte // one of + - * /
	left, right Node
}

func (n *binaryNode) Eval(vars map[string]float64) (float64, error) {
	l, err := n.left.Eval(vars)
	if err != nil {
		return 0, err
	}
	r, err := n.right.Eval(vars)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	default:
		if r == 0 {
			return 0, errors.New("division by zero")
		}
		return l / r, nil
	}
}

type negNode struct{ inner Node }

func (n *negNode) Eval(vars map[string]float64) (float64, error) {
	v, err := n.inner.Eval(vars)
	return -v, err
}

// token kinds
const (
	tokNumber = iota
	tokIdent
	tokOp // + - * / ( )
	tokEOF
)

type token struct {
	kind int
	text string
	op   byte
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && l.input[l.pos] == ' ' {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF}, nil
	}

	c := l.input[l.pos]
	switch {
	case c == '+' || c == '-' || c == '*' || c == '/' || c == '(' || c == ')':
		l.pos++
		return token{kind: tokOp, op: c}, nil
	case c >= '0' && c <= '9' || c == '.':
		start := l.pos
		for l.pos < len(l.input) && (l.input[l.pos] >= '0' && l.input[l.pos] <= '9' || l.input[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokNumber, text: l.input[start:l.pos]}, nil
	case unicode.IsLetter(rune(c)) || c == '_':
		start := l.pos
		for l.pos < len(l.input) {
			r := rune(l.input[l.pos])
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
				break
			}
			l.pos++
		}
		return token{kind: tokIdent, text: l.input[start:l.pos]}, nil
	default:
		return token{}, fmt.Errorf("unexpected character %q at %d", c, l.pos)
	}
}

type parser struct {
	lex lexer
	cur token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

// Parse tokenizes and parses expr into an expression tree with the usual
// precedence (* / over + -) and parentheses.
func Parse(expr string) (Node, error) {
	p := &parser{lex: lexer{input: expr}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	node, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("trailing input at %d", p.lex.pos)
	}
	return node, nil
}

func (p *parser) parseSum() (Node, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokOp && (p.cur.op == '+' || p.cur.op == '-') {
		op := p.cur.op
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseProduct() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokOp && (p.cur.op == '*' || p.cur.op == '/') {
		op := p.cur.op
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.cur.kind == tokOp && p.cur.op == '-' {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	switch {
	case p.cur.kind == tokNumber:
		v, err := strconv.ParseFloat(p.cur.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", p.cur.text, err)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return numberNode(v), nil
	case p.cur.kind == tokIdent:
		n := identNode(p.cur.text)
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil
	case p.cur.kind == tokOp && p.cur.op == '(':
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokOp || p.cur.op != ')' {
			return nil, errors.New("missing closing parenthesis")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("unexpected token at %d", p.lex.pos)
	}
}

// Evaluate parses expr and folds it with identifiers substituted from
// vars. Any identifier absent from vars fails the whole evaluation.
func Evaluate(expr string, vars map[string]float64) (float64, error) {
	node, err := Parse(expr)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", expr, err)
	}
	return node.Eval(vars)
}

// formatNumber renders a float the way the profit formula builder writes
// constants: shortest round-trip representation.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// joinTerms renders a sum of already-formatted product terms.
func joinTerms(terms []string) string {
	return strings.Join(terms, " + ")
}
