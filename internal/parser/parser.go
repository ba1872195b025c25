package parser

import (
	"fmt"

	"github.com/weftlang/weft/internal/ast"
)

// outputKinds are the statement keywords that route a program's results
// somewhere. They are contextual: `display` is still a legal binding
// name.
var outputKinds = map[string]bool{
	"display": true,
	"render":  true,
	"play":    true,
	"compute": true,
}

// Parse scans and parses src into an untagged ast.Program.
func Parse(src string) (*ast.Program, error) {
	toks, err := NewLexer(src).Tokens()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.program()
}

// ParseError reports a syntax failure with its source position.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
}

type parser struct {
	toks []Token
	pos  int
}

func (p *parser) program() (*ast.Program, error) {
	prog := &ast.Program{}
	for p.peek().Type != EOF {
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}
	return prog, nil
}

// statement dispatches on the shape of the leading identifier:
// `kind(...)` output statements, `name<outs> = expr` instance bindings,
// `name = expr` assignments, and `spindle name(...) :: <outs> {...}`
// definitions.
func (p *parser) statement() (ast.Node, error) {
	tok := p.peek()
	if tok.Type == SPINDLE {
		return p.spindleDef()
	}
	if tok.Type != IDENT {
		return nil, p.errorf(tok, "expected statement, got %s", tok.Type)
	}

	if outputKinds[tok.Lexeme] && p.peekAt(1).Type == LPAREN {
		return p.outputStatement()
	}

	switch p.peekAt(1).Type {
	case LT:
		return p.instanceBinding()
	case ASSIGN:
		return p.assignment()
	default:
		next := p.peekAt(1)
		return nil, p.errorf(next, "expected '<', '=' or '(' after %q", tok.Lexeme)
	}
}

func (p *parser) outputStatement() (ast.Node, error) {
	kind := p.next().Lexeme
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	out := &ast.Output{Kind: kind}
	if p.peek().Type != RPAREN {
		for {
			// `name: expr` is a named argument.
			if p.peek().Type == IDENT && p.peekAt(1).Type == COLON {
				name := p.next().Lexeme
				p.next() // ':'
				value, err := p.expr()
				if err != nil {
					return nil, err
				}
				if out.Named == nil {
					out.Named = map[string]ast.Node{}
				}
				out.Named[name] = value
			} else {
				arg, err := p.expr()
				if err != nil {
					return nil, err
				}
				out.Args = append(out.Args, arg)
			}
			if p.peek().Type != COMMA {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *parser) instanceBinding() (ast.Node, error) {
	name := p.next().Lexeme
	p.next() // '<'

	var outputs []string
	for {
		id, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, id.Lexeme)
		if p.peek().Type != COMMA {
			break
		}
		p.next()
	}
	if tok := p.next(); tok.Type != GT {
		return nil, p.errorf(tok, "expected '>' closing output list, got %s", tok.Type)
	}
	if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}

	expr, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &ast.InstanceBinding{Name: name, Outputs: outputs, Expr: expr}, nil
}

// spindleDef parses `spindle name(in1, in2) :: <out1, out2> { expr }`.
// The body is one expression; multi-output spindles return a tuple.
func (p *parser) spindleDef() (ast.Node, error) {
	p.next() // 'spindle'
	name, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	var inputs []string
	if p.peek().Type != RPAREN {
		for {
			id, err := p.expect(IDENT)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, id.Lexeme)
			if p.peek().Type != COMMA {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(COLONCOLON); err != nil {
		return nil, err
	}
	if _, err := p.expect(LT); err != nil {
		return nil, err
	}

	var outputs []string
	for {
		id, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, id.Lexeme)
		if p.peek().Type != COMMA {
			break
		}
		p.next()
	}
	if tok := p.next(); tok.Type != GT {
		return nil, p.errorf(tok, "expected '>' closing output list, got %s", tok.Type)
	}

	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	body, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return &ast.SpindleDef{Name: name.Lexeme, Inputs: inputs, Outputs: outputs, Body: body}, nil
}

func (p *parser) assignment() (ast.Node, error) {
	name := p.next().Lexeme
	p.next() // '='
	expr, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &ast.Assignment{Name: name, Op: "=", Expr: expr}, nil
}

// Expression precedence, loosest first: if/else, ||, &&, comparisons,
// + -, * / %, ^ (right-assoc), unary, postfix (@ and remap), primary.

func (p *parser) expr() (ast.Node, error) {
	if p.peek().Type == IF {
		return p.ifExpr()
	}
	return p.orExpr()
}

func (p *parser) ifExpr() (ast.Node, error) {
	p.next() // 'if'
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(THEN); err != nil {
		return nil, err
	}
	then, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(ELSE); err != nil {
		return nil, err
	}
	els, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &ast.If{Cond: cond, Then: then, Else: els}, nil
}

func (p *parser) binaryLeft(next func() (ast.Node, error), ops ...TokenType) (ast.Node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		matched := false
		for _, op := range ops {
			if p.peek().Type == op {
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}
		op := p.next().Lexeme
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) orExpr() (ast.Node, error) {
	return p.binaryLeft(p.andExpr, OROR)
}

func (p *parser) andExpr() (ast.Node, error) {
	return p.binaryLeft(p.cmpExpr, ANDAND)
}

// cmpExpr is non-associative: a < b < c is a syntax error upstream, not
// a chained comparison.
func (p *parser) cmpExpr() (ast.Node, error) {
	left, err := p.addExpr()
	if err != nil {
		return nil, err
	}
	switch p.peek().Type {
	case LT, LE, GT, GE, EQ, NEQ:
		op := p.next().Lexeme
		right, err := p.addExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Op: op, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) addExpr() (ast.Node, error) {
	return p.binaryLeft(p.mulExpr, PLUS, MINUS)
}

func (p *parser) mulExpr() (ast.Node, error) {
	return p.binaryLeft(p.powExpr, STAR, SLASH, PERCENT)
}

func (p *parser) powExpr() (ast.Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	if p.peek().Type == CARET {
		p.next()
		right, err := p.powExpr() // right-assoc
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Op: "^", Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) unary() (ast.Node, error) {
	switch p.peek().Type {
	case MINUS, PLUS, BANG:
		op := p.next().Lexeme
		expr, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: op, Expr: expr}, nil
	}
	return p.postfix()
}

// postfix handles strand access and remapping: `img@r` and
// `img@r[x: me.y, y: me.x]`.
func (p *parser) postfix() (ast.Node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == AT {
		p.next()
		out, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		if p.peek().Type == LBRACKET {
			remap, err := p.remap(base, out.Lexeme)
			if err != nil {
				return nil, err
			}
			base = remap
			continue
		}
		base = &ast.StrandAccess{Base: base, Out: &ast.Var{Name: out.Lexeme}}
	}
	return base, nil
}

func (p *parser) remap(base ast.Node, strand string) (ast.Node, error) {
	p.next() // '['
	node := &ast.StrandRemap{Base: base, Strand: strand}
	for {
		axis, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}
		expr, err := p.expr()
		if err != nil {
			return nil, err
		}
		node.Mappings = append(node.Mappings, ast.AxisMapping{Axis: axis.Lexeme, Expr: expr})
		if p.peek().Type != COMMA {
			break
		}
		p.next()
	}
	if _, err := p.expect(RBRACKET); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *parser) primary() (ast.Node, error) {
	tok := p.peek()
	switch tok.Type {
	case NUMBER:
		p.next()
		return &ast.Num{V: tok.Num}, nil

	case STRING:
		p.next()
		return &ast.Str{V: tok.Lexeme}, nil

	case ME:
		p.next()
		if _, err := p.expect(DOT); err != nil {
			return nil, err
		}
		field, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		return &ast.Me{Field: field.Lexeme}, nil

	case IDENT:
		p.next()
		if p.peek().Type == LPAREN {
			return p.call(tok.Lexeme)
		}
		return &ast.Var{Name: tok.Lexeme}, nil

	case LPAREN:
		p.next()
		first, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.peek().Type != COMMA {
			_, err := p.expect(RPAREN)
			return first, err
		}
		tuple := &ast.Tuple{Items: []ast.Node{first}}
		for p.peek().Type == COMMA {
			p.next()
			item, err := p.expr()
			if err != nil {
				return nil, err
			}
			tuple.Items = append(tuple.Items, item)
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return tuple, nil
	}

	return nil, p.errorf(tok, "expected expression, got %s", tok.Type)
}

func (p *parser) call(name string) (ast.Node, error) {
	p.next() // '('
	node := &ast.Call{Name: &ast.Var{Name: name}}
	if p.peek().Type != RPAREN {
		for {
			if p.peek().Type == IDENT && p.peekAt(1).Type == COLON {
				argName := p.next().Lexeme
				p.next() // ':'
				value, err := p.expr()
				if err != nil {
					return nil, err
				}
				node.Args = append(node.Args, &ast.NamedArg{Name: argName, Value: value})
			} else {
				arg, err := p.expr()
				if err != nil {
					return nil, err
				}
				node.Args = append(node.Args, arg)
			}
			if p.peek().Type != COMMA {
				break
			}
			p.next()
		}
	}
	_, err := p.expect(RPAREN)
	return node, err
}

func (p *parser) peek() Token { return p.toks[p.pos] }

func (p *parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF
	}
	return p.toks[p.pos+offset]
}

func (p *parser) next() Token {
	tok := p.toks[p.pos]
	if tok.Type != EOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(typ TokenType) (Token, error) {
	tok := p.next()
	if tok.Type != typ {
		return Token{}, p.errorf(tok, "expected %s, got %s", typ, tok.Type)
	}
	return tok, nil
}

func (p *parser) errorf(tok Token, format string, args ...any) error {
	return &ParseError{Line: tok.Line, Col: tok.Col, Msg: fmt.Sprintf(format, args...)}
}
