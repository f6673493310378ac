// Package repair transforms one raw block's quasi-JSON text into a
// well-formed structured value. It applies an ordered pipeline of
// normalization stages that only rewrite text, then attempts a structural
// parse; a block the pipeline cannot resolve is wrapped by Fallback so that
// no input ever produces zero values.
package repair

import (
	"fmt"
	"regexp"
	"strings"
)

// Reason identifies which condition stopped the repair pipeline.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonUnbalancedStructure
	ReasonAmbiguousQuoting
	ReasonUnparseable
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonUnbalancedStructure:
		return "unbalanced_structure"
	case ReasonAmbiguousQuoting:
		return "ambiguous_quoting"
	case ReasonUnparseable:
		return "unparseable_after_normalization"
	default:
		return "none"
	}
}

// StageError reports that a stage could not proceed confidently. Later
// stages are not attempted on text an earlier stage could not normalize.
type StageError struct {
	Stage  string
	Reason Reason
	Detail string
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("repair stage %s: %s (%s)", e.Stage, e.Reason, e.Detail)
}

// Stage is one normalization step. Apply transforms text without
// interpreting semantics and must be a no-op on already-valid JSON.
type Stage interface {
	// Name returns the stage name for diagnostics.
	Name() string

	// Apply returns the normalized text, or a StageError when the stage
	// cannot proceed confidently.
	Apply(text string) (string, *StageError)
}

// DefaultStages returns the pipeline stages in their fixed order. Extend by
// appending new, independently testable stages; never interleave heuristics
// into existing ones.
func DefaultStages() []Stage {
	return []Stage{
		literalStage{},
		keyQuoteStage{},
		valueQuoteStage{},
		punctuationStage{},
		escapeStage{},
	}
}

// --- shared scanning helpers ---

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '.' || c == '$' || c == '-'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// scanDoubleString returns the index just past the closing quote of the
// double-quoted string starting at i. Raw newlines do not terminate a
// string; only an unescaped closing quote does.
func scanDoubleString(text string, i int) (int, bool) {
	j := i + 1
	for j < len(text) {
		switch text[j] {
		case '\\':
			j += 2
		case '"':
			return j + 1, true
		default:
			j++
		}
	}
	return len(text), false
}

var primitivePattern = regexp.MustCompile(`^([+-]?\d+(\.\d+)?([eE][+-]?\d+)?|true|false|null)$`)

// isPrimitive reports whether token already reads as a JSON number, boolean
// or null.
func isPrimitive(token string) bool {
	return primitivePattern.MatchString(token)
}

// --- stage 1: literal normalization ---

// literalStage rewrites language-native literal tokens (None/True/False as a
// host runtime prints them) to canonical JSON spellings and converts
// single-quoted strings to double-quoted ones with internal escaping.
type literalStage struct{}

func (literalStage) Name() string { return "literals" }

func (literalStage) Apply(text string) (string, *StageError) {
	var sb strings.Builder
	sb.Grow(len(text))

	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == '"':
			j, ok := scanDoubleString(text, i)
			if !ok {
				return "", &StageError{
					Stage:  "literals",
					Reason: ReasonAmbiguousQuoting,
					Detail: "unterminated double-quoted string",
				}
			}
			sb.WriteString(text[i:j])
			i = j

		case c == '\'':
			j := i + 1
			var content strings.Builder
			closed := false
			for j < len(text) {
				if text[j] == '\\' && j+1 < len(text) {
					if text[j+1] == '\'' {
						content.WriteByte('\'')
					} else {
						content.WriteByte('\\')
						content.WriteByte(text[j+1])
					}
					j += 2
					continue
				}
				if text[j] == '\'' {
					closed = true
					j++
					break
				}
				if text[j] == '"' {
					content.WriteString(`\"`)
					j++
					continue
				}
				content.WriteByte(text[j])
				j++
			}
			if !closed {
				return "", &StageError{
					Stage:  "literals",
					Reason: ReasonAmbiguousQuoting,
					Detail: "unterminated single-quoted string",
				}
			}
			sb.WriteByte('"')
			sb.WriteString(content.String())
			sb.WriteByte('"')
			i = j

		case isIdentStart(c):
			j := i
			for j < len(text) && isIdentChar(text[j]) {
				j++
			}
			switch text[i:j] {
			case "None", "NONE":
				sb.WriteString("null")
			case "True", "TRUE":
				sb.WriteString("true")
			case "False", "FALSE":
				sb.WriteString("false")
			default:
				sb.WriteString(text[i:j])
			}
			i = j

		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}

// --- stage 2: key quoting ---

// keyQuoteStage wraps bare identifier keys at mapping scope in double
// quotes. Java map dumps use '=' as the key separator; it is rewritten to
// ':' in the same pass.
type keyQuoteStage struct{}

func (keyQuoteStage) Name() string { return "keys" }

func (keyQuoteStage) Apply(text string) (string, *StageError) {
	var sb strings.Builder
	sb.Grow(len(text))

	var stack []byte
	prevSig := byte(0)

	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == '"':
			j, ok := scanDoubleString(text, i)
			if !ok {
				sb.WriteString(text[i:])
				return sb.String(), nil
			}
			sb.WriteString(text[i:j])
			prevSig = '"'
			i = j

		case c == '{' || c == '[':
			stack = append(stack, c)
			sb.WriteByte(c)
			prevSig = c
			i++

		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			sb.WriteByte(c)
			prevSig = c
			i++

		case isIdentStart(c) && atKeyPosition(stack, prevSig):
			j := i
			for j < len(text) && isIdentChar(text[j]) {
				j++
			}
			k := j
			for k < len(text) && (text[k] == ' ' || text[k] == '\t') {
				k++
			}
			if k < len(text) && (text[k] == ':' || text[k] == '=') {
				sb.WriteByte('"')
				sb.WriteString(text[i:j])
				sb.WriteString(`":`)
				prevSig = ':'
				i = k + 1
			} else {
				sb.WriteString(text[i:j])
				prevSig = text[j-1]
				i = j
			}

		default:
			if !isSpace(c) {
				prevSig = c
			}
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}

func atKeyPosition(stack []byte, prevSig byte) bool {
	if len(stack) == 0 || stack[len(stack)-1] != '{' {
		return false
	}
	return prevSig == '{' || prevSig == ','
}

// --- stage 3: bare-value quoting ---

// valueQuoteStage turns bare tokens in value or array-element position into
// JSON strings: Java object dumps (pkg.Class@hex, [B@hex), unquoted
// timestamps, plain words. Tokens that already read as JSON primitives are
// left alone, and empty values before a ',' or '}' become "".
type valueQuoteStage struct{}

var byteArrayDumpPattern = regexp.MustCompile(`^\[B@[0-9a-fA-F]+\]?`)

func (valueQuoteStage) Name() string { return "values" }

func (valueQuoteStage) Apply(text string) (string, *StageError) {
	var sb strings.Builder
	sb.Grow(len(text))

	var stack []byte
	prevSig := byte(0)

	i := 0
	for i < len(text) {
		c := text[i]

		// Java byte-array dumps start with '[' but are not arrays.
		if atValuePosition(stack, prevSig) {
			if m := byteArrayDumpPattern.FindString(text[i:]); m != "" {
				writeQuoted(&sb, m)
				prevSig = '"'
				i += len(m)
				continue
			}
		}

		switch {
		case c == '"':
			j, ok := scanDoubleString(text, i)
			if !ok {
				sb.WriteString(text[i:])
				return sb.String(), nil
			}
			sb.WriteString(text[i:j])
			prevSig = '"'
			i = j

		case c == '{' || c == '[':
			stack = append(stack, c)
			sb.WriteByte(c)
			prevSig = c
			i++

		case c == '}' || c == ']':
			if prevSig == ':' {
				sb.WriteString(`""`) // empty value before closer
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			sb.WriteByte(c)
			prevSig = c
			i++

		case c == ',':
			if prevSig == ':' {
				sb.WriteString(`""`) // empty value before comma
			}
			sb.WriteByte(c)
			prevSig = c
			i++

		case isSpace(c):
			sb.WriteByte(c)
			i++

		case atValuePosition(stack, prevSig):
			j := i
			for j < len(text) && text[j] != ',' && text[j] != '}' && text[j] != ']' && text[j] != '\n' {
				j++
			}
			token := strings.TrimRight(text[i:j], " \t\r")
			rest := text[i+len(token) : j]
			if isPrimitive(token) {
				sb.WriteString(token)
			} else {
				writeQuoted(&sb, token)
			}
			sb.WriteString(rest)
			prevSig = '"'
			i = j

		default:
			prevSig = c
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}

func atValuePosition(stack []byte, prevSig byte) bool {
	if len(stack) == 0 {
		return false
	}
	switch stack[len(stack)-1] {
	case '{':
		return prevSig == ':'
	case '[':
		return prevSig == '[' || prevSig == ','
	}
	return false
}

func writeQuoted(sb *strings.Builder, token string) {
	sb.WriteByte('"')
	for k := 0; k < len(token); k++ {
		switch token[k] {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteByte(token[k])
		}
	}
	sb.WriteByte('"')
}

// --- stage 4: structural punctuation repair ---

// punctuationStage removes trailing commas before closers and appends the
// missing closers for unmatched openers. A closer without an opener is
// unrecoverable: inserting openers would invent structure.
type punctuationStage struct{}

func (punctuationStage) Name() string { return "punctuation" }

func (punctuationStage) Apply(text string) (string, *StageError) {
	var sb strings.Builder
	sb.Grow(len(text))

	var stack []byte

	i := 0
	for i < len(text) {
		c := text[i]
		switch c {
		case '"':
			j, ok := scanDoubleString(text, i)
			if !ok {
				return "", &StageError{
					Stage:  "punctuation",
					Reason: ReasonAmbiguousQuoting,
					Detail: "unterminated string while balancing",
				}
			}
			sb.WriteString(text[i:j])
			i = j

		case ',':
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				i++ // trailing comma, drop it
				continue
			}
			sb.WriteByte(c)
			i++

		case '{', '[':
			stack = append(stack, c)
			sb.WriteByte(c)
			i++

		case '}', ']':
			want := byte('{')
			if c == ']' {
				want = '['
			}
			if len(stack) == 0 || stack[len(stack)-1] != want {
				return "", &StageError{
					Stage:  "punctuation",
					Reason: ReasonUnbalancedStructure,
					Detail: fmt.Sprintf("closer %q without matching opener", string(c)),
				}
			}
			stack = stack[:len(stack)-1]
			sb.WriteByte(c)
			i++

		default:
			sb.WriteByte(c)
			i++
		}
	}

	// Append missing closers for a truncated trailing block.
	for k := len(stack) - 1; k >= 0; k-- {
		if stack[k] == '{' {
			sb.WriteByte('}')
		} else {
			sb.WriteByte(']')
		}
	}
	return sb.String(), nil
}

// --- stage 5: embedded-value escaping ---

// escapeStage escapes raw control characters inside string tokens (newlines
// from multi-line log formatting, tabs) so each span stays a single valid
// string token.
type escapeStage struct{}

func (escapeStage) Name() string { return "escapes" }

func (escapeStage) Apply(text string) (string, *StageError) {
	var sb strings.Builder
	sb.Grow(len(text))

	inString := false
	i := 0
	for i < len(text) {
		c := text[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			sb.WriteByte(c)
			i++
			continue
		}

		switch {
		case c == '\\' && i+1 < len(text):
			sb.WriteByte(c)
			sb.WriteByte(text[i+1])
			i += 2
		case c == '"':
			inString = false
			sb.WriteByte(c)
			i++
		case c == '\n':
			sb.WriteString(`\n`)
			i++
		case c == '\r':
			sb.WriteString(`\r`)
			i++
		case c == '\t':
			sb.WriteString(`\t`)
			i++
		case c < 0x20:
			sb.WriteString(fmt.Sprintf(`\u%04x`, c))
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}
