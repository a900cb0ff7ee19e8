package crosscheck

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a compiled integer formula over metric keys. The grammar is
// deliberately small: +, -, unary sign, parentheses, integer literals and
// metric identifiers.
type Expr struct {
	text string
	root node
	keys []string
}

// Parse compiles a formula such as "a + b - (c + d)".
func Parse(text string) (*Expr, error) {
	p := &parser{input: text}
	p.lex()
	if p.err != nil {
		return nil, fmt.Errorf("formula %q: %w", text, p.err)
	}

	root := p.parseExpr()
	if p.err != nil {
		return nil, fmt.Errorf("formula %q: %w", text, p.err)
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("formula %q: unexpected %q", text, p.tokens[p.pos].value)
	}

	expr := &Expr{text: strings.TrimSpace(text), root: root}
	seen := map[string]bool{}
	collectKeys(root, seen, &expr.keys)
	return expr, nil
}

// Text returns the formula source.
func (e *Expr) Text() string {
	return e.text
}

// Keys lists every metric key the formula references, in first-use order.
func (e *Expr) Keys() []string {
	return e.keys
}

// Eval computes the formula. Missing reports the referenced keys absent from
// the value set; the result is only meaningful when it is empty.
func (e *Expr) Eval(values map[string]int64) (result int64, missing []string) {
	for _, key := range e.keys {
		if _, ok := values[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return 0, missing
	}
	return e.root.eval(values), nil
}

type node interface {
	eval(values map[string]int64) int64
}

type literal int64

func (l literal) eval(map[string]int64) int64 { return int64(l) }

type ref string

func (r ref) eval(values map[string]int64) int64 { return values[string(r)] }

type unary struct {
	negative bool
	operand  node
}

func (u unary) eval(values map[string]int64) int64 {
	v := u.operand.eval(values)
	if u.negative {
		return -v
	}
	return v
}

type binary struct {
	subtract bool
	left     node
	right    node
}

func (b binary) eval(values map[string]int64) int64 {
	l, r := b.left.eval(values), b.right.eval(values)
	if b.subtract {
		return l - r
	}
	return l + r
}

func collectKeys(n node, seen map[string]bool, out *[]string) {
	switch t := n.(type) {
	case ref:
		if !seen[string(t)] {
			seen[string(t)] = true
			*out = append(*out, string(t))
		}
	case unary:
		collectKeys(t.operand, seen, out)
	case binary:
		collectKeys(t.left, seen, out)
		collectKeys(t.right, seen, out)
	}
}

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenNumber
	tokenOp
)

type token struct {
	kind  tokenKind
	value string
}

type parser struct {
	input  string
	tokens []token
	pos    int
	err    error
}

func (p *parser) lex() {
	runes := []rune(p.input)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '+' || r == '-' || r == '(' || r == ')':
			p.tokens = append(p.tokens, token{kind: tokenOp, value: string(r)})
			i++
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			p.tokens = append(p.tokens, token{kind: tokenNumber, value: string(runes[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			p.tokens = append(p.tokens, token{kind: tokenIdent, value: string(runes[i:j])})
			i = j
		default:
			p.err = fmt.Errorf("unexpected character %q", string(r))
			return
		}
	}
	if len(p.tokens) == 0 && p.err == nil {
		p.err = fmt.Errorf("empty formula")
	}
}

// expr := term { ("+" | "-") term }
func (p *parser) parseExpr() node {
	left := p.parseTerm()
	for p.err == nil {
		op, ok := p.peekOp()
		if !ok || (op != "+" && op != "-") {
			return left
		}
		p.pos++
		right := p.parseTerm()
		left = binary{subtract: op == "-", left: left, right: right}
	}
	return left
}

// term := ["+" | "-"] (ident | number | "(" expr ")")
func (p *parser) parseTerm() node {
	if op, ok := p.peekOp(); ok && (op == "+" || op == "-") {
		p.pos++
		return unary{negative: op == "-", operand: p.parseTerm()}
	}

	tok, ok := p.next()
	if !ok {
		p.err = fmt.Errorf("unexpected end of formula")
		return literal(0)
	}

	switch tok.kind {
	case tokenIdent:
		return ref(tok.value)
	case tokenNumber:
		v, err := strconv.ParseInt(tok.value, 10, 64)
		if err != nil {
			p.err = fmt.Errorf("bad literal %q", tok.value)
			return literal(0)
		}
		return literal(v)
	default:
		if tok.value == "(" {
			inner := p.parseExpr()
			if p.err != nil {
				return inner
			}
			closing, ok := p.next()
			if !ok || closing.value != ")" {
				p.err = fmt.Errorf("missing closing parenthesis")
			}
			return inner
		}
		p.err = fmt.Errorf("unexpected %q", tok.value)
		return literal(0)
	}
}

func (p *parser) peekOp() (string, bool) {
	if p.pos < len(p.tokens) && p.tokens[p.pos].kind == tokenOp {
		return p.tokens[p.pos].value, true
	}
	return "", false
}

func (p *parser) next() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, true
}
