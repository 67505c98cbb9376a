package tf

import (
	"encoding/binary"
	"strings"
)

// compiler is a single-pass recursive-descent scanner over a script's raw
// UTF-8 bytes. It carries one piece of state beyond the cursor: eol, true
// at the start of the script and immediately after every newline, which is
// the only thing that makes `//` recognized as a comment (spec.md §4.1's
// scanner state).
//
// Grounded on the teacher's own line-oriented preprocessor
// (vm/compile.go's preprocessLine / vm/parse.go's preprocessLine): same
// comment-stripping and backslash/quote escape handling, adapted from a
// line-at-a-time assembler scan to one continuous buffer since the surface
// language here has no line structure beyond comments.
type compiler struct {
	src []byte
	pos int
	eol bool
}

// Compile parses a script into bytecode. An empty script compiles to an
// empty program (spec.md §8's boundary test), never a failure.
func Compile(script string) (*Bytecode, error) {
	if script == "" {
		return newBytecode(nil), nil
	}

	c := &compiler{src: []byte(script), eol: true}
	body, _, err := c.scan("", 0)
	if err != nil {
		return nil, err
	}
	return newBytecode(body), nil
}

// maxNestingDepth bounds recursion through nested [...] blocks and
// function arguments (spec.md §9's Design Notes: "bound the recursion
// depth to keep stack usage predictable").
const maxNestingDepth = 64

// scan consumes bytes until either the input is exhausted (stop == "") or
// an unescaped, unquoted byte in stop is reached. For stop == "]" the
// terminator is consumed and reported as stopChar; for an argument-list
// stop set (",)" ) the terminator is left unconsumed so the caller can
// tell a comma from a closing paren.
func (c *compiler) scan(stop string, depth int) (out []byte, stopChar byte, err error) {
	if depth > maxNestingDepth {
		return nil, 0, ErrUnterminated
	}

	for c.pos < len(c.src) {
		b := c.src[c.pos]

		if stop != "" && strings.IndexByte(stop, b) >= 0 {
			if stop == "]" {
				c.pos++
				return out, ']', nil
			}
			return out, b, nil
		}

		switch {
		case b == '\\':
			if c.pos+1 >= len(c.src) {
				return nil, 0, ErrUnterminated
			}
			out = append(out, c.src[c.pos+1])
			c.pos += 2
			c.eol = false

		case b == '\'':
			c.pos++
			start := c.pos
			for c.pos < len(c.src) && c.src[c.pos] != '\'' {
				c.pos++
			}
			if c.pos >= len(c.src) {
				return nil, 0, ErrUnterminated
			}
			out = append(out, c.src[start:c.pos]...)
			c.pos++
			c.eol = false

		case b == '\n':
			c.pos++
			c.eol = true

		case c.eol && b == '/' && c.pos+1 < len(c.src) && c.src[c.pos+1] == '/':
			for c.pos < len(c.src) && c.src[c.pos] != '\n' {
				c.pos++
			}

		case b == '$':
			node, cerr := c.compileCall(depth)
			if cerr != nil {
				return nil, 0, cerr
			}
			out = append(out, node...)
			c.eol = false

		case b == '%':
			node, cerr := c.compileField()
			if cerr != nil {
				return nil, 0, cerr
			}
			out = append(out, node...)
			c.eol = false

		case b == '[':
			c.pos++
			node, cerr := c.compileIfDefined(depth)
			if cerr != nil {
				return nil, 0, cerr
			}
			out = append(out, node...)
			c.eol = false

		default:
			out = append(out, b)
			c.pos++
			c.eol = false
		}
	}

	if stop != "" {
		return nil, 0, ErrUnterminated
	}
	return out, 0, nil
}

// compileCall parses `$name(arg1, arg2, …)`, with c.pos positioned at the
// leading '$'.
func (c *compiler) compileCall(depth int) ([]byte, error) {
	c.pos++ // consume '$'

	nameStart := c.pos
	for c.pos < len(c.src) && c.src[c.pos] != '(' {
		c.pos++
	}
	if c.pos >= len(c.src) {
		return nil, ErrUnterminated
	}
	name := string(c.src[nameStart:c.pos])
	c.pos++ // consume '('

	idx, ok := lookupFunc(name)
	if !ok {
		return nil, ErrUnknownFunction
	}

	var args [][]byte
	if c.pos < len(c.src) && c.src[c.pos] == ')' {
		c.pos++ // empty arg list: $f() encodes as argc=0
	} else {
		for {
			body, stopChar, err := c.scan(",)", depth+1)
			if err != nil {
				return nil, err
			}
			if len(body) > 255 {
				return nil, ErrArgTooLong
			}
			args = append(args, body)

			if c.pos >= len(c.src) {
				return nil, ErrUnterminated
			}
			c.pos++ // consume the ',' or ')' scan left unconsumed
			if stopChar == ')' {
				break
			}
		}
	}

	out := make([]byte, 0, 4+len(args)+len(args)*2)
	out = append(out, sentinel, byte(nodeCall), idx, byte(len(args)))
	for _, a := range args {
		out = append(out, byte(len(a)))
	}
	for _, a := range args {
		out = append(out, a...)
	}
	return out, nil
}

// compileField parses `%field name%`, with c.pos positioned at the leading
// '%'.
func (c *compiler) compileField() ([]byte, error) {
	c.pos++ // consume '%'

	start := c.pos
	for c.pos < len(c.src) && c.src[c.pos] != '%' {
		c.pos++
	}
	if c.pos >= len(c.src) {
		return nil, ErrUnterminated
	}
	name := c.src[start:c.pos]
	c.pos++ // consume closing '%'

	if len(name) > 255 {
		return nil, ErrFieldNameTooLong
	}

	out := make([]byte, 0, 3+len(name))
	out = append(out, sentinel, byte(nodeField), byte(len(name)))
	out = append(out, name...)
	return out, nil
}

// compileIfDefined parses the body of `[…]`, with c.pos positioned just
// after the leading '['.
func (c *compiler) compileIfDefined(depth int) ([]byte, error) {
	body, _, err := c.scan("]", depth+1)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 6+len(body))
	out = append(out, sentinel, byte(nodeIfDefined))
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	out = append(out, lenBuf[:]...)
	out = append(out, body...)
	return out, nil
}
