// internal/pipeline/execute/guard.go
package execute

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrStatementRejected = errors.New("statement rejected")

var readOnlyKeywords = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"EXPLAIN": true,
	"SHOW":    true,
	"VALUES":  true,
	"TABLE":   true,
}

var (
	leadingWord    = regexp.MustCompile(`^[A-Za-z]+`)
	writeKeywords  = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|MERGE|UPSERT|DROP|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|ATTACH|DETACH|PRAGMA|VACUUM|COPY|CALL)\b`)
	selectIntoLike = regexp.MustCompile(`(?i)\bSELECT\b[^;]*\bINTO\b`)
	dollarTag      = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)?\$`)
)

// CheckReadOnly accepts a single read statement. Comments are ignored and
// string literals and quoted identifiers never count as keywords.
func CheckReadOnly(source string) error {
	stripped, err := stripSQL(source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStatementRejected, err)
	}

	statement := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(stripped), ";"))
	if statement == "" {
		return fmt.Errorf("%w: empty statement", ErrStatementRejected)
	}
	if strings.Contains(statement, ";") {
		return fmt.Errorf("%w: multiple statements are not allowed", ErrStatementRejected)
	}

	keyword := strings.ToUpper(leadingWord.FindString(statement))
	if !readOnlyKeywords[keyword] {
		if keyword == "" {
			keyword = statement
		}
		return fmt.Errorf("%w: only read statements are allowed, got %s", ErrStatementRejected, keyword)
	}
	if m := writeKeywords.FindString(statement); m != "" {
		return fmt.Errorf("%w: %s is not allowed in a read statement", ErrStatementRejected, strings.ToUpper(m))
	}
	if selectIntoLike.MatchString(statement) {
		return fmt.Errorf("%w: SELECT INTO is not allowed", ErrStatementRejected)
	}
	return nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

// stripSQL removes comments and blanks the contents of quoted literals and
// identifiers, keeping the quotes so the statement shape survives. Postgres
// E'' escape strings and $tag$ dollar quoting are recognised.
func stripSQL(src string) (string, error) {
	var b strings.Builder
	b.Grow(len(src))

	for i := 0; i < len(src); i++ {
		c := src[i]
		wordStart := i == 0 || !isIdentByte(src[i-1])
		switch {
		case (c == 'E' || c == 'e') && wordStart && i+1 < len(src) && src[i+1] == '\'':
			j := i + 2
			for {
				if j >= len(src) {
					return "", errors.New("unterminated quoted string")
				}
				if src[j] == '\\' {
					j += 2
					continue
				}
				if src[j] == '\'' {
					if j+1 < len(src) && src[j+1] == '\'' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			b.WriteString("E''")
			i = j
		case c == '$' && wordStart:
			tag := dollarTag.FindString(src[i:])
			if tag == "" {
				b.WriteByte(c)
				continue
			}
			end := strings.Index(src[i+len(tag):], tag)
			if end < 0 {
				return "", errors.New("unterminated dollar-quoted string")
			}
			b.WriteString("''")
			i += len(tag) + end + len(tag) - 1
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			b.WriteByte('\n')
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return "", errors.New("unterminated comment")
			}
			i += end + 3
			b.WriteByte(' ')
		case c == '\'' || c == '"' || c == '`':
			j := i + 1
			for {
				if j >= len(src) {
					return "", errors.New("unterminated quoted string")
				}
				if src[j] == c {
					// doubled quote is an escaped quote
					if j+1 < len(src) && src[j+1] == c {
						j += 2
						continue
					}
					break
				}
				j++
			}
			b.WriteByte(c)
			b.WriteByte(c)
			i = j
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
