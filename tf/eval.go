package tf

import (
	"encoding/binary"
	"errors"
	"strings"
	"unicode/utf8"
)

// errUndef is the internal failure signal threaded through recursive block
// evaluation: an undefined field or a builtin's own argument evaluation
// failing while fail_on_undef is in effect. It never escapes Evaluate
// directly - an if-defined block swallows it, and a failure that reaches
// the top unswallowed is reported as ErrCorruptBytecode (the bytecode
// asked for something that can never succeed at the top level, since the
// top level always evaluates with fail_on_undef == false other than the
// explicit function-arity failures below and a built-in's own hard
// failures, such as division by zero).
var errUndef = errors.New("titlefmt: undefined")

// walker evaluates one compiled program against a Context. A walker is
// created fresh for each top-level Evaluate call and never outlives it.
type walker struct {
	ctx   *Context
	depth int
}

// Evaluate runs bc against ctx and writes the rendered, NUL-terminated
// result into out, returning the number of bytes written before the
// terminator. out must have room for at least one byte (the terminator).
//
// The two short-circuit columns (FILENUMBER, PLAYING) are resolved before
// any bytecode is walked, matching spec.md §6.
func Evaluate(ctx *Context, bc *Bytecode, out []byte) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	for i := range out {
		out[i] = 0
	}

	if ctx.Flags&HasID != 0 {
		switch ctx.ID {
		case FileNumberColumn:
			return evalFileNumberColumn(ctx, out)
		case PlayingColumn:
			return evalPlayingColumn(ctx, out)
		}
	}

	w := &walker{ctx: ctx}
	budget := len(out) - 1
	n, _, err := w.evalBlock(bc.program(), out[:budget], false)
	if err != nil {
		traceEval(0, ErrCorruptBytecode)
		return 0, ErrCorruptBytecode
	}
	out[n] = 0
	traceEval(n, nil)
	return n, nil
}

func evalFileNumberColumn(ctx *Context, out []byte) (int, error) {
	idx := -1
	if ctx.Flags&HasIndex != 0 {
		idx = ctx.Idx
	} else if ctx.Playlists != nil {
		if i, ok := ctx.Playlists.ItemIndex(ctx.Playlist, ctx.Track, ctx.Iter); ok {
			idx = i
		}
	}
	if idx < 0 {
		out[0] = 0
		return 0, nil
	}
	n := copyUTF8Bounded(out[:len(out)-1], []byte(itoa(idx+1)))
	out[n] = 0
	return n, nil
}

func evalPlayingColumn(ctx *Context, out []byte) (int, error) {
	if !ctx.hasTrack() || ctx.Queue == nil {
		out[0] = 0
		return 0, nil
	}
	pos, queued := ctx.Queue.Test(ctx.Track)
	if !queued {
		out[0] = 0
		return 0, nil
	}
	n := copyUTF8Bounded(out[:len(out)-1], []byte(itoa(pos)))
	out[n] = 0
	return n, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// copyUTF8Bounded copies as many complete UTF-8 runes from src as fit in
// dst, never splitting a code point across the boundary, and returns the
// number of bytes written.
func copyUTF8Bounded(dst, src []byte) int {
	if len(dst) >= len(src) {
		return copy(dst, src)
	}
	n := 0
	for n < len(src) {
		_, size := utf8.DecodeRune(src[n:])
		if n+size > len(dst) {
			break
		}
		n += size
	}
	copy(dst[:n], src[:n])
	return n
}

// evalBlock walks one node sequence, writing into out and returning the
// number of bytes written and whether the block was truthy. failOnUndef
// governs whether an undefined field aborts this block (propagating
// errUndef) or is silently treated as empty/false. A failing nested call
// always propagates its error, whatever failOnUndef is.
func (w *walker) evalBlock(code []byte, out []byte, failOnUndef bool) (int, bool, error) {
	if w.depth > maxNestingDepth {
		return 0, false, ErrCorruptBytecode
	}

	pos := 0
	n := 0
	truthy := false

	for pos < len(code) {
		if code[pos] != sentinel {
			start := pos
			for pos < len(code) && code[pos] != sentinel {
				pos++
			}
			written := copyUTF8Bounded(out[n:], code[start:pos])
			n += written
			if written < pos-start {
				return n, truthy, nil
			}
			continue
		}

		pos++
		if pos >= len(code) {
			return n, truthy, ErrCorruptBytecode
		}
		kind := nodeKind(code[pos])
		pos++

		switch kind {
		case nodeCall:
			written, ok, consumed, err := w.evalCall(code[pos:], out[n:], failOnUndef)
			if err != nil {
				return n, truthy, err
			}
			n += written
			if ok || written > 0 {
				truthy = true
			}
			pos += consumed

		case nodeField:
			if pos >= len(code) {
				return n, truthy, ErrCorruptBytecode
			}
			l := int(code[pos])
			pos++
			if pos+l > len(code) {
				return n, truthy, ErrCorruptBytecode
			}
			name := string(code[pos : pos+l])
			pos += l

			val, state := resolveField(w.ctx, name)
			switch state {
			case fieldFound:
				truthy = true
				val = strings.ReplaceAll(val, "\n", ";")
				n += copyUTF8Bounded(out[n:], []byte(val))
			case fieldComputed:
				n += copyUTF8Bounded(out[n:], []byte(val))
			case fieldAbsent:
				if failOnUndef {
					return n, truthy, errUndef
				}
			}

		case nodeIfDefined:
			if pos+4 > len(code) {
				return n, truthy, ErrCorruptBytecode
			}
			blen := int(binary.LittleEndian.Uint32(code[pos : pos+4]))
			pos += 4
			if pos+blen > len(code) {
				return n, truthy, ErrCorruptBytecode
			}
			body := code[pos : pos+blen]
			pos += blen

			w.depth++
			written, bodyTruthy, err := w.evalBlock(body, out[n:], true)
			w.depth--
			if err == nil {
				n += written
				if bodyTruthy {
					truthy = true
				}
			}

		case nodeLiteralRun:
			if pos+4 > len(code) {
				return n, truthy, ErrCorruptBytecode
			}
			blen := int(binary.LittleEndian.Uint32(code[pos : pos+4]))
			pos += 4
			if pos+blen > len(code) {
				return n, truthy, ErrCorruptBytecode
			}
			n += copyUTF8Bounded(out[n:], code[pos:pos+blen])
			pos += blen

		default:
			return n, truthy, ErrCorruptBytecode
		}
	}

	return n, truthy, nil
}

// evalCall decodes and runs one nodeCall's payload (idx, argc, arglens,
// concatenated arg bodies) starting at body[0]. It returns bytes written,
// whether the call was truthy, and how many bytes of body the call node
// occupied (so the caller can advance past it).
func (w *walker) evalCall(body []byte, out []byte, failOnUndef bool) (n int, truthy bool, consumed int, err error) {
	if len(body) < 2 {
		return 0, false, 0, ErrCorruptBytecode
	}
	idx := body[0]
	argc := int(body[1])
	pos := 2
	if pos+argc > len(body) {
		return 0, false, 0, ErrCorruptBytecode
	}
	argLens := body[pos : pos+argc]
	pos += argc

	args := make([][]byte, argc)
	for i := 0; i < argc; i++ {
		l := int(argLens[i])
		if pos+l > len(body) {
			return 0, false, 0, ErrCorruptBytecode
		}
		args[i] = body[pos : pos+l]
		pos += l
	}
	consumed = pos

	entry, ok := funcAt(idx)
	if !ok {
		return 0, false, consumed, ErrCorruptBytecode
	}
	if !entry.arity.accepts(argc) {
		// A hard contract failure, matching the original's unconditional
		// -1 for bad arity: always propagates, regardless of
		// fail_on_undef, to be caught only by an enclosing if-defined.
		return 0, false, consumed, errUndef
	}

	w.depth++
	written, callTruthy, callErr := entry.fn(w, w.ctx, args, out, failOnUndef)
	w.depth--
	if callErr != nil {
		return 0, false, consumed, callErr
	}
	return written, callTruthy, consumed, nil
}

// evalArg runs one already-split argument body through the walker,
// surfacing errUndef on failure so built-ins can propagate it via their
// own TF_EVAL_CHECK-equivalent (the teacher/original's convention of
// passing fail_on_undef straight through to every nested evaluation).
func (w *walker) evalArg(arg []byte, out []byte, failOnUndef bool) (int, bool, error) {
	w.depth++
	n, truthy, err := w.evalBlock(arg, out, failOnUndef)
	w.depth--
	return n, truthy, err
}
