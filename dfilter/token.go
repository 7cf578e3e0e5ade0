package dfilter

// TokenType represents the type of a token in the filter language.
type TokenType uint8

const (
	TokenEOF TokenType = iota
	TokenError

	TokenIdent  // dotted field name, function name, or context-typed literal
	TokenString // "..." with backslash escapes
	TokenInt
	TokenFloat
	TokenBytes // aa:bb:cc or aa-bb-cc
	TokenIP    // 10.0.0.1, 2001:db8::1, optionally with /prefix
	TokenEther // aa:bb:cc:dd:ee:ff
	TokenRegex // /.../ after matches

	// Comparison operators
	TokenEq // ==
	TokenNe // !=
	TokenLt // <
	TokenGt // >
	TokenLe // <=
	TokenGe // >=

	// Membership and matching
	TokenContains // contains
	TokenMatches  // matches, ~
	TokenIn       // in

	// Logical operators
	TokenAnd // and, &&
	TokenOr  // or, ||
	TokenNot // not, !

	// Delimiters
	TokenLParen   // (
	TokenRParen   // )
	TokenLBrace   // {
	TokenRBrace   // }
	TokenLBracket // [
	TokenRBracket // ]

	// Separators
	TokenComma // ,
	TokenColon // : inside slices
	TokenRange // ..
	TokenHash  // # layer index
)

var tokenNames = map[TokenType]string{
	TokenEOF:      "EOF",
	TokenError:    "ERROR",
	TokenIdent:    "IDENT",
	TokenString:   "STRING",
	TokenInt:      "INT",
	TokenFloat:    "FLOAT",
	TokenBytes:    "BYTES",
	TokenIP:       "IP",
	TokenEther:    "ETHER",
	TokenRegex:    "REGEX",
	TokenEq:       "==",
	TokenNe:       "!=",
	TokenLt:       "<",
	TokenGt:       ">",
	TokenLe:       "<=",
	TokenGe:       ">=",
	TokenContains: "contains",
	TokenMatches:  "matches",
	TokenIn:       "in",
	TokenAnd:      "&&",
	TokenOr:       "||",
	TokenNot:      "!",
	TokenLParen:   "(",
	TokenRParen:   ")",
	TokenLBrace:   "{",
	TokenRBrace:   "}",
	TokenLBracket: "[",
	TokenRBracket: "]",
	TokenComma:    ",",
	TokenColon:    ":",
	TokenRange:    "..",
	TokenHash:     "#",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Token is a lexical unit produced by the lexer. Literal holds the raw text,
// Value the decoded value for literal kinds (and the diagnostic message for
// TokenError), and Loc the span of the token in the input.
type Token struct {
	Type    TokenType
	Literal string
	Value   any
	Loc     Loc
}
