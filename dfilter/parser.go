package dfilter

// Operator precedence levels for parsing expressions.
// Precedence order (lowest to highest): OR < AND < NOT < COMPARISON < MEMBERSHIP
const (
	_ int = iota
	precLowest
	precOr
	precAnd
	precNot
	precComparison
	precMembership
)

var precedences = map[TokenType]int{
	TokenOr:       precOr,
	TokenAnd:      precAnd,
	TokenEq:       precComparison,
	TokenNe:       precComparison,
	TokenLt:       precComparison,
	TokenGt:       precComparison,
	TokenLe:       precComparison,
	TokenGe:       precComparison,
	TokenContains: precComparison,
	TokenMatches:  precComparison,
	TokenIn:       precMembership,
}

// Parser parses tokens from a lexer into an abstract syntax tree. It halts
// at the first unrecoverable error and reports it with the location of the
// offending token.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	err       *FilterError
}

// NewParser creates a new parser for the given lexer.
func NewParser(lexer *Lexer) *Parser {
	p := &Parser{lexer: lexer}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// setError records the first error; later ones are discarded so the reported
// location stays unambiguous.
func (p *Parser) setError(kind ErrorKind, loc Loc, format string, args ...any) {
	if p.err == nil {
		p.err = errorf(kind, loc, format, args...)
	}
}

func (p *Parser) lexErrorAt(tok Token) {
	msg := "invalid input"
	if s, ok := tok.Value.(string); ok {
		msg = s
	}
	p.setError(LexError, tok.Loc, "%s", msg)
}

// Parse parses the input and returns one expression tree. Trailing input
// after a complete expression is a syntax error located at the first
// unexpected token.
func (p *Parser) Parse() (Expression, error) {
	expr := p.parseExpression(precLowest)

	if p.err == nil {
		switch p.peekToken.Type {
		case TokenEOF:
		case TokenError:
			p.lexErrorAt(p.peekToken)
		default:
			p.setError(SyntaxError, p.peekToken.Loc, "unexpected %s after expression", p.peekToken.Type)
		}
	}

	if p.err != nil {
		return nil, p.err
	}
	return expr, nil
}

func (p *Parser) parseExpression(precedence int) Expression {
	var left Expression

	switch p.curToken.Type {
	case TokenError:
		p.lexErrorAt(p.curToken)
		return nil
	case TokenNot:
		left = p.parseUnaryExpression()
	case TokenLParen:
		left = p.parseGroupedExpression()
	case TokenIdent:
		left = p.parseFieldExpression()
	case TokenString, TokenInt, TokenFloat, TokenBytes, TokenIP, TokenEther, TokenRegex:
		left = p.parseLiteralExpression()
	default:
		p.setError(SyntaxError, p.curToken.Loc, "unexpected %s", p.curToken.Type)
		return nil
	}

	for p.err == nil && p.peekToken.Type != TokenEOF && precedence < p.peekPrecedence() {
		p.nextToken()
		left = p.parseBinaryExpression(left)
	}

	return left
}

func (p *Parser) parseUnaryExpression() Expression {
	start := p.curToken.Loc
	p.nextToken()
	operand := p.parseExpression(precNot)
	if operand == nil {
		return nil
	}
	return &UnaryExpr{Operand: operand, Span: spanLoc(start, operand.Loc())}
}

func (p *Parser) parseGroupedExpression() Expression {
	p.nextToken()
	expr := p.parseExpression(precLowest)
	if expr == nil {
		return nil
	}
	if p.peekToken.Type != TokenRParen {
		p.setError(SyntaxError, p.peekToken.Loc, "expected ), got %s", p.peekToken.Type)
		return nil
	}
	p.nextToken()
	return expr
}

func (p *Parser) parseLiteralExpression() Expression {
	tok := p.curToken
	var value Value
	switch tok.Type {
	case TokenString:
		value = StringValue(tok.Literal)
	case TokenRegex:
		value = RegexValue{Pattern: tok.Literal}
	default:
		v, ok := tok.Value.(Value)
		if !ok {
			p.setError(SyntaxError, tok.Loc, "malformed literal %q", tok.Literal)
			return nil
		}
		value = v
	}
	return &LiteralExpr{Value: value, Span: tok.Loc}
}

// parseFieldExpression parses a field reference with its optional layer
// index and byte slice, or a function call when the identifier is followed
// by an opening parenthesis.
func (p *Parser) parseFieldExpression() Expression {
	name := p.curToken.Literal
	start := p.curToken.Loc

	if p.peekToken.Type == TokenLParen {
		return p.parseCallExpression(name, start)
	}

	field := &FieldExpr{Name: name, Span: start}

	if p.peekToken.Type == TokenHash {
		p.nextToken() // consume '#'
		if p.peekToken.Type != TokenInt {
			p.setError(SyntaxError, p.peekToken.Loc, "expected layer number after #, got %s", p.peekToken.Type)
			return nil
		}
		p.nextToken()
		layer, ok := p.curToken.Value.(IntValue)
		if !ok || layer < 1 {
			p.setError(SyntaxError, p.curToken.Loc, "layer index must be a positive integer")
			return nil
		}
		field.Layer = int(layer)
		field.Span = spanLoc(field.Span, p.curToken.Loc)
	}

	if p.peekToken.Type == TokenLBracket {
		p.nextToken() // consume '['
		slice := p.parseSliceRange()
		if slice == nil {
			return nil
		}
		field.Slice = slice
		field.Span = spanLoc(field.Span, p.curToken.Loc)
	}

	return field
}

// parseSliceRange parses the bracketed part of field[start:length],
// field[start-end] or field[index]. The opening bracket is the current
// token.
func (p *Parser) parseSliceRange() *SliceRange {
	sliceInt := func() (int, bool) {
		v, ok := p.curToken.Value.(IntValue)
		if !ok {
			p.setError(SyntaxError, p.curToken.Loc, "slice bounds must be integers")
			return 0, false
		}
		return int(v), true
	}

	p.nextToken()

	sr := &SliceRange{}
	switch p.curToken.Type {
	case TokenColon:
		// [:length]
		sr.Mode = SliceOffsetLength
		sr.Start = 0
		if p.peekToken.Type != TokenInt {
			p.setError(SyntaxError, p.peekToken.Loc, "expected slice length, got %s", p.peekToken.Type)
			return nil
		}
		p.nextToken()
		n, ok := sliceInt()
		if !ok {
			return nil
		}
		sr.Length = n
	case TokenInt:
		n, ok := sliceInt()
		if !ok {
			return nil
		}
		switch p.peekToken.Type {
		case TokenRBracket:
			sr.Mode = SliceSingle
			sr.Start = n
		case TokenColon:
			p.nextToken() // consume ':'
			sr.Mode = SliceOffsetLength
			sr.Start = n
			if p.peekToken.Type == TokenRBracket {
				// [start:] takes the rest of the value
				sr.Length = -1
				break
			}
			if p.peekToken.Type != TokenInt {
				p.setError(SyntaxError, p.peekToken.Loc, "expected slice length, got %s", p.peekToken.Type)
				return nil
			}
			p.nextToken()
			m, ok := sliceInt()
			if !ok {
				return nil
			}
			sr.Length = m
		case TokenInt:
			// The lexer folds "-end" into a negative integer, so the
			// inclusive [start-end] form arrives as two integer tokens.
			p.nextToken()
			m, ok := sliceInt()
			if !ok {
				return nil
			}
			if m >= 0 || n < 0 || -m < n {
				p.setError(SyntaxError, p.curToken.Loc, "invalid slice range")
				return nil
			}
			sr.Mode = SliceRangeForm
			sr.Start = n
			sr.Length = -m
		default:
			p.setError(SyntaxError, p.peekToken.Loc, "unexpected %s in slice", p.peekToken.Type)
			return nil
		}
	default:
		p.setError(SyntaxError, p.curToken.Loc, "unexpected %s in slice", p.curToken.Type)
		return nil
	}

	if p.peekToken.Type != TokenRBracket {
		p.setError(SyntaxError, p.peekToken.Loc, "expected ], got %s", p.peekToken.Type)
		return nil
	}
	p.nextToken()
	return sr
}

// parseCallExpression parses a function call. Only the argument-list shape
// is validated here; name resolution and arity checks happen during semantic
// analysis.
func (p *Parser) parseCallExpression(name string, start Loc) Expression {
	p.nextToken() // consume identifier; current is '('

	call := &CallExpr{Name: name, Span: start}

	if p.peekToken.Type == TokenRParen {
		p.nextToken()
		call.Span = spanLoc(start, p.curToken.Loc)
		return call
	}

	p.nextToken() // move to first argument
	arg := p.parseExpression(precLowest)
	if arg == nil {
		return nil
	}
	call.Args = append(call.Args, arg)

	for p.peekToken.Type == TokenComma {
		p.nextToken() // consume ','
		p.nextToken() // move to next argument
		arg = p.parseExpression(precLowest)
		if arg == nil {
			return nil
		}
		call.Args = append(call.Args, arg)
	}

	if p.peekToken.Type != TokenRParen {
		p.setError(SyntaxError, p.peekToken.Loc, "expected ), got %s", p.peekToken.Type)
		return nil
	}
	p.nextToken()
	call.Span = spanLoc(start, p.curToken.Loc)
	return call
}

func (p *Parser) parseBinaryExpression(left Expression) Expression {
	if left == nil {
		return nil
	}
	op := p.curToken.Type
	opLoc := p.curToken.Loc
	precedence := p.curPrecedence()

	if op == TokenIn {
		if p.peekToken.Type != TokenLBrace {
			p.setError(SyntaxError, p.peekToken.Loc, "expected { after in, got %s", p.peekToken.Type)
			return nil
		}
		p.nextToken()
		return p.parseSetExpression(left)
	}

	p.nextToken()
	right := p.parseExpression(precedence)
	if right == nil {
		return nil
	}

	span := spanLoc(left.Loc(), right.Loc())
	switch op {
	case TokenAnd, TokenOr:
		return &LogicalExpr{Op: op, Left: left, Right: right, Span: span}
	case TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe, TokenContains, TokenMatches:
		return &CompareExpr{Op: op, Left: left, Right: right, Span: span}
	}
	p.setError(SyntaxError, opLoc, "unexpected operator %s", op)
	return nil
}

// parseSetExpression parses the braced member list of a membership test.
// Members are literals or inclusive ranges; the current token is '{'.
func (p *Parser) parseSetExpression(elem Expression) Expression {
	set := &SetExpr{Elem: elem, Span: spanLoc(elem.Loc(), p.curToken.Loc)}

	p.nextToken()
	if p.curToken.Type == TokenRBrace {
		set.Span = spanLoc(set.Span, p.curToken.Loc)
		return set
	}

	for {
		member, ok := p.parseSetMember()
		if !ok {
			return nil
		}
		set.Members = append(set.Members, member)

		if p.peekToken.Type != TokenComma {
			break
		}
		p.nextToken() // consume ','
		p.nextToken() // move to next member
	}

	if p.peekToken.Type != TokenRBrace {
		p.setError(SyntaxError, p.peekToken.Loc, "expected }, got %s", p.peekToken.Type)
		return nil
	}
	p.nextToken()
	set.Span = spanLoc(set.Span, p.curToken.Loc)
	return set
}

func (p *Parser) parseSetMember() (SetMember, bool) {
	low := p.parseSetValue()
	if low == nil {
		return SetMember{}, false
	}
	member := SetMember{Low: low}

	if p.peekToken.Type == TokenRange {
		p.nextToken() // consume '..'
		p.nextToken() // move to the upper bound
		high := p.parseSetValue()
		if high == nil {
			return SetMember{}, false
		}
		member.High = high
	}
	return member, true
}

// parseSetValue parses one set member value: a literal, or a bare identifier
// that the semantic pass will retype against the element's kind.
func (p *Parser) parseSetValue() Expression {
	switch p.curToken.Type {
	case TokenString, TokenInt, TokenFloat, TokenBytes, TokenIP, TokenEther:
		return p.parseLiteralExpression()
	case TokenIdent:
		return &LiteralExpr{Value: UnparsedValue(p.curToken.Literal), Span: p.curToken.Loc}
	case TokenError:
		p.lexErrorAt(p.curToken)
		return nil
	}
	p.setError(SyntaxError, p.curToken.Loc, "unexpected %s in set", p.curToken.Type)
	return nil
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return precLowest
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return precLowest
}
