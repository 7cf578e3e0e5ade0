package dfilter

import (
	"net"
	"strconv"
	"strings"
)

// Lexer tokenizes filter expression strings into tokens. Tokens carry the
// location of their span so errors can be reported against the source text.
type Lexer struct {
	input string
	pos   int
	ch    byte

	// lastType drives the two context-dependent rules: a '/' begins a regex
	// literal only directly after "matches", and bracket contents lex as
	// slice indexes rather than address-shaped runs.
	lastType TokenType
	inSlice  bool
}

// NewLexer creates a new lexer for the given input string.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, lastType: TokenEOF}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.pos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.pos]
	}
	l.pos++
}

func (l *Lexer) peekChar() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

// cur is the byte offset of the character currently in l.ch.
func (l *Lexer) cur() int {
	return l.pos - 1
}

func (l *Lexer) locFrom(start int) Loc {
	return Loc{Start: start, Len: l.cur() - start}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// skipComment consumes a /* ... */ comment. Returns false when the comment
// is unterminated.
func (l *Lexer) skipComment() bool {
	l.readChar() // '/'
	l.readChar() // '*'
	for l.ch != 0 {
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar()
			l.readChar()
			return true
		}
		l.readChar()
	}
	return false
}

func (l *Lexer) errorToken(start int, msg string) Token {
	return Token{Type: TokenError, Literal: l.input[start:l.cur()], Value: msg, Loc: l.locFrom(start)}
}

// readOperatorToken handles multi-character operators.
func (l *Lexer) readOperatorToken() (Token, bool) {
	switch l.ch {
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			return Token{Type: TokenEq, Literal: "=="}, true
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			return Token{Type: TokenNe, Literal: "!="}, true
		}
		return Token{Type: TokenNot, Literal: "!"}, true
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			return Token{Type: TokenLe, Literal: "<="}, true
		}
		return Token{Type: TokenLt, Literal: "<"}, true
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			return Token{Type: TokenGe, Literal: ">="}, true
		}
		return Token{Type: TokenGt, Literal: ">"}, true
	case '&':
		if l.peekChar() == '&' {
			l.readChar()
			return Token{Type: TokenAnd, Literal: "&&"}, true
		}
	case '|':
		if l.peekChar() == '|' {
			l.readChar()
			return Token{Type: TokenOr, Literal: "||"}, true
		}
	case '.':
		if l.peekChar() == '.' {
			l.readChar()
			return Token{Type: TokenRange, Literal: ".."}, true
		}
	}
	return Token{}, false
}

// NextToken returns the next token from the input. After the input is
// exhausted it keeps returning TokenEOF.
func (l *Lexer) NextToken() Token {
	tok := l.nextToken()
	l.lastType = tok.Type
	switch tok.Type {
	case TokenLBracket:
		l.inSlice = true
	case TokenRBracket:
		l.inSlice = false
	}
	return tok
}

func (l *Lexer) nextToken() Token {
	for {
		l.skipWhitespace()
		if l.ch == '/' && l.peekChar() == '*' {
			start := l.cur()
			if !l.skipComment() {
				return l.errorToken(start, "unterminated comment")
			}
			continue
		}
		break
	}

	start := l.cur()

	if l.ch == '/' && l.lastType == TokenMatches {
		return l.readRegex()
	}

	if tok, ok := l.readOperatorToken(); ok {
		l.readChar()
		tok.Loc = l.locFrom(start)
		return tok
	}

	var tok Token

	switch l.ch {
	case 0:
		return Token{Type: TokenEOF, Loc: Loc{Start: len(l.input), Len: 0}}
	case '~':
		tok = Token{Type: TokenMatches, Literal: "~"}
	case '(':
		tok = Token{Type: TokenLParen, Literal: "("}
	case ')':
		tok = Token{Type: TokenRParen, Literal: ")"}
	case '{':
		tok = Token{Type: TokenLBrace, Literal: "{"}
	case '}':
		tok = Token{Type: TokenRBrace, Literal: "}"}
	case '[':
		tok = Token{Type: TokenLBracket, Literal: "["}
	case ']':
		tok = Token{Type: TokenRBracket, Literal: "]"}
	case ',':
		tok = Token{Type: TokenComma, Literal: ","}
	case '#':
		tok = Token{Type: TokenHash, Literal: "#"}
	case ':':
		if l.inSlice {
			tok = Token{Type: TokenColon, Literal: ":"}
			break
		}
		l.readChar()
		return l.errorToken(start, "unexpected character: \":\"")
	case '"':
		return l.readString()
	default:
		switch {
		case isLetter(l.ch):
			return l.readIdentifierToken()
		case isDigit(l.ch) || (l.ch == '-' && isDigit(l.peekChar())):
			return l.readNumberToken()
		default:
			ch := l.ch
			l.readChar()
			return l.errorToken(start, "unexpected character: "+strconv.Quote(string(ch)))
		}
	}

	l.readChar()
	tok.Loc = l.locFrom(start)
	return tok
}

// readString reads a double-quoted string with backslash escapes.
func (l *Lexer) readString() Token {
	start := l.cur()
	l.readChar() // consume opening quote

	var out strings.Builder
	for l.ch != '"' && l.ch != 0 {
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			case 'r':
				out.WriteByte('\r')
			case '0':
				out.WriteByte(0)
			case 'x':
				// \xNN hex escape
				hi, lo := l.peekChar(), byte(0)
				if isHexDigit(hi) || isDigit(hi) {
					l.readChar()
					if isHexDigit(l.peekChar()) || isDigit(l.peekChar()) {
						lo = l.peekChar()
						l.readChar()
						v, _ := strconv.ParseUint(string([]byte{hi, lo}), 16, 8)
						out.WriteByte(byte(v))
					} else {
						v, _ := strconv.ParseUint(string(hi), 16, 8)
						out.WriteByte(byte(v))
					}
				} else {
					out.WriteByte('x')
				}
			default:
				out.WriteByte(l.ch)
			}
		} else {
			out.WriteByte(l.ch)
		}
		l.readChar()
	}

	if l.ch == 0 {
		return l.errorToken(start, "unterminated string")
	}
	l.readChar() // consume closing quote

	s := out.String()
	return Token{Type: TokenString, Literal: s, Value: s, Loc: l.locFrom(start)}
}

// readRegex reads a slash-delimited regular-expression literal. Only "\/" is
// unescaped; every other backslash sequence is kept for the regex engine.
func (l *Lexer) readRegex() Token {
	start := l.cur()
	l.readChar() // consume opening '/'

	var out strings.Builder
	for l.ch != '/' && l.ch != 0 {
		if l.ch == '\\' && l.peekChar() == '/' {
			l.readChar()
			out.WriteByte('/')
		} else {
			out.WriteByte(l.ch)
		}
		l.readChar()
	}

	if l.ch == 0 {
		return l.errorToken(start, "unterminated regular expression")
	}
	l.readChar() // consume closing '/'

	pattern := out.String()
	return Token{Type: TokenRegex, Literal: pattern, Value: pattern, Loc: l.locFrom(start)}
}

// readIdentifierToken reads a run starting with a letter and classifies it:
// keyword, address/byte-sequence literal, or identifier. Address shapes are
// only attempted by shape here; full validation happens during semantic
// analysis.
func (l *Lexer) readIdentifierToken() Token {
	start := l.cur()
	seenColon := false
	for {
		switch {
		case isLetter(l.ch) || isDigit(l.ch) || l.ch == '_':
		case l.ch == '.' && l.peekChar() != '.':
		case l.ch == '-' || l.ch == ':':
			if l.ch == ':' {
				seenColon = true
			}
		case l.ch == '/' && seenColon && (isHexDigit(l.peekChar()) || isDigit(l.peekChar())):
			// IPv6 CIDR suffix, e.g. fe80::/10
		default:
			literal := l.input[start:l.cur()]
			return l.classifyIdentifier(literal, start, seenColon)
		}
		l.readChar()
	}
}

func (l *Lexer) classifyIdentifier(literal string, start int, seenColon bool) Token {
	loc := l.locFrom(start)
	switch strings.ToLower(literal) {
	case "and":
		return Token{Type: TokenAnd, Literal: literal, Loc: loc}
	case "or":
		return Token{Type: TokenOr, Literal: literal, Loc: loc}
	case "not":
		return Token{Type: TokenNot, Literal: literal, Loc: loc}
	case "contains":
		return Token{Type: TokenContains, Literal: literal, Loc: loc}
	case "matches":
		return Token{Type: TokenMatches, Literal: literal, Loc: loc}
	case "in":
		return Token{Type: TokenIn, Literal: literal, Loc: loc}
	}

	if seenColon || strings.Contains(literal, "-") {
		if tok, ok := classifyAddressShape(literal, loc); ok {
			return tok
		}
		if seenColon {
			return Token{Type: TokenError, Literal: literal, Value: "malformed literal: " + literal, Loc: loc}
		}
		// Hyphenated names fall through as identifiers.
	}

	return Token{Type: TokenIdent, Literal: literal, Value: literal, Loc: loc}
}

// classifyAddressShape recognizes Ethernet addresses, byte sequences and
// IPv6 addresses, in that order of specificity.
func classifyAddressShape(literal string, loc Loc) (Token, bool) {
	if hw, err := net.ParseMAC(literal); err == nil && len(hw) == 6 {
		var e EtherValue
		copy(e[:], hw)
		return Token{Type: TokenEther, Literal: literal, Value: e, Loc: loc}, true
	}
	if b, ok := parseByteSequence(literal); ok {
		return Token{Type: TokenBytes, Literal: literal, Value: BytesValue(b), Loc: loc}, true
	}
	if _, ipnet, err := net.ParseCIDR(literal); err == nil {
		return Token{Type: TokenIP, Literal: literal, Value: IPValue{IP: ipnet.IP, Net: ipnet}, Loc: loc}, true
	}
	if ip := net.ParseIP(literal); ip != nil {
		return Token{Type: TokenIP, Literal: literal, Value: IPValue{IP: ip}, Loc: loc}, true
	}
	return Token{}, false
}

// readNumberToken reads a run starting with a digit (or a leading minus) and
// classifies it as an integer, float, IP/CIDR, Ethernet address or byte
// sequence. Inside slice brackets only plain integers are consumed, so that
// "[0:4]" lexes as three tokens.
func (l *Lexer) readNumberToken() Token {
	start := l.cur()
	neg := l.ch == '-'
	if neg {
		l.readChar()
	}

	if l.inSlice {
		for isDigit(l.ch) {
			l.readChar()
		}
		literal := l.input[start:l.cur()]
		n, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return l.errorToken(start, "malformed slice index: "+literal)
		}
		return Token{Type: TokenInt, Literal: literal, Value: IntValue(n), Loc: l.locFrom(start)}
	}

	// Hex literal.
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
		literal := l.input[start:l.cur()]
		return l.classifyNumber(literal, start)
	}

	for {
		switch {
		case isDigit(l.ch) || isHexDigit(l.ch):
		case l.ch == '.' && l.peekChar() != '.':
		case l.ch == ':' || l.ch == '/':
		case l.ch == '-' && !neg && (isDigit(l.peekChar()) || isHexDigit(l.peekChar())):
			// Dash-separated byte sequence or MAC, e.g. 00-50-56.
		default:
			literal := l.input[start:l.cur()]
			return l.classifyNumber(literal, start)
		}
		l.readChar()
	}
}

func (l *Lexer) classifyNumber(literal string, start int) Token {
	loc := l.locFrom(start)

	if literal[0] != '-' && (strings.ContainsAny(literal, ":-/") || strings.Count(literal, ".") > 1) {
		if _, ipnet, err := net.ParseCIDR(literal); err == nil {
			return Token{Type: TokenIP, Literal: literal, Value: IPValue{IP: ipnet.IP, Net: ipnet}, Loc: loc}
		}
		if ip := net.ParseIP(literal); ip != nil {
			return Token{Type: TokenIP, Literal: literal, Value: IPValue{IP: ip}, Loc: loc}
		}
		if tok, ok := classifyAddressShape(literal, loc); ok {
			return tok
		}
		return Token{Type: TokenError, Literal: literal, Value: "malformed literal: " + literal, Loc: loc}
	}

	// Base 0 handles decimal, hex (0x) and octal (leading 0) forms.
	if n, err := strconv.ParseInt(literal, 0, 64); err == nil {
		return Token{Type: TokenInt, Literal: literal, Value: IntValue(n), Loc: loc}
	}
	if n, err := strconv.ParseUint(literal, 0, 64); err == nil {
		return Token{Type: TokenInt, Literal: literal, Value: UintValue(n), Loc: loc}
	}
	if f, err := strconv.ParseFloat(literal, 64); err == nil {
		return Token{Type: TokenFloat, Literal: literal, Value: FloatValue(f), Loc: loc}
	}
	return Token{Type: TokenError, Literal: literal, Value: "malformed literal: " + literal, Loc: loc}
}

// isLetter checks if the byte is an ASCII letter (fast path for common case).
func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// isDigit checks if the byte is an ASCII digit (fast path for common case).
func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// isHexDigit checks if the byte is a hex letter (a-f, A-F).
func isHexDigit(ch byte) bool {
	return (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}
