package embedded

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// SplitStatements tokenizes a script and returns its top-level statements with
// whitespace and comments removed. Adjacent words stay separated by one space.
func SplitStatements(src string) ([]string, error) {
	lx := js.NewLexer(parse.NewInputString(src))

	var (
		statements []string
		cur        strings.Builder
		prev       = js.ErrorToken
		depth      int
	)
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		cur.Reset()
		prev = js.ErrorToken
	}

	for {
		tt, text := lx.Next()
		if tt == js.ErrorToken {
			if err := lx.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("tokenize script: %w", err)
			}
			break
		}
		switch tt {
		case js.WhitespaceToken, js.LineTerminatorToken, js.CommentToken, js.CommentLineTerminatorToken:
			continue
		case js.DivToken, js.DivEqToken:
			if !endsExpression(prev) {
				tt, text = lx.RegExp()
				if tt == js.ErrorToken {
					return nil, fmt.Errorf("tokenize script: %w", lx.Err())
				}
			}
		case js.OpenBraceToken, js.OpenParenToken, js.OpenBracketToken:
			depth++
		case js.CloseBraceToken, js.CloseParenToken, js.CloseBracketToken:
			if depth > 0 {
				depth--
			}
		case js.SemicolonToken:
			if depth == 0 {
				flush()
				continue
			}
		}
		if needsSpace(prev, tt) {
			cur.WriteByte(' ')
		}
		cur.Write(text)
		prev = tt
	}
	flush()
	return statements, nil
}

func isWord(tt js.TokenType) bool {
	return js.IsReservedWord(tt) || js.IsIdentifier(tt) || js.IsNumeric(tt)
}

// needsSpace keeps keywords apart from whatever follows and prevents two words
// from fusing into one identifier.
func needsSpace(prev, next js.TokenType) bool {
	if prev == js.ErrorToken {
		return false
	}
	if js.IsReservedWord(prev) {
		return true
	}
	return isWord(prev) && isWord(next)
}

// endsExpression reports whether a slash following tt is a division operator.
func endsExpression(tt js.TokenType) bool {
	switch tt {
	case js.CloseParenToken, js.CloseBracketToken, js.CloseBraceToken,
		js.StringToken, js.TemplateToken, js.TemplateEndToken, js.RegExpToken,
		js.IncrToken, js.DecrToken,
		js.ThisToken, js.SuperToken, js.NullToken, js.TrueToken, js.FalseToken:
		return true
	}
	return js.IsIdentifier(tt) || js.IsNumeric(tt)
}
