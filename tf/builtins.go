package tf

import (
	"fmt"
	"hash/crc32"
	"math/rand"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// installBuiltins populates the registry in the order that becomes the
// compiler<->evaluator ABI (spec.md §3). Never reorder an existing entry;
// append new ones at the end.
func installBuiltins() {
	// Control flow
	registerBuiltin("if", between(2, 3), biIf)
	registerBuiltin("if2", exactly(2), biIf2)
	registerBuiltin("if3", atLeast(2), biIf3)
	registerBuiltin("ifequal", exactly(4), biIfEqual)
	registerBuiltin("ifgreater", exactly(4), biIfGreater)
	registerBuiltin("iflonger", exactly(4), biIfLonger)
	registerBuiltin("select", atLeast(3), biSelect)

	// Arithmetic
	registerBuiltin("add", atLeast(0), biAdd)
	registerBuiltin("sub", atLeast(2), biSub)
	registerBuiltin("mul", atLeast(2), biMul)
	registerBuiltin("div", atLeast(2), biDiv)
	registerBuiltin("mod", atLeast(2), biMod)
	registerBuiltin("muldiv", exactly(3), biMulDiv)
	registerBuiltin("min", atLeast(1), biMin)
	registerBuiltin("max", atLeast(1), biMax)
	registerBuiltin("greater", exactly(2), biGreater)
	registerBuiltin("rand", exactly(0), biRand)

	// Boolean
	registerBuiltin("and", atLeast(0), biAnd)
	registerBuiltin("or", atLeast(0), biOr)
	registerBuiltin("not", exactly(1), biNot)
	registerBuiltin("xor", atLeast(0), biXor)

	// String
	registerBuiltin("abbr", between(1, 2), biAbbr)
	registerBuiltin("caps", exactly(1), biCaps)
	registerBuiltin("caps2", exactly(1), biCaps2)
	registerBuiltin("char", exactly(1), biChar)
	registerBuiltin("crc32", exactly(1), biCrc32)
	registerBuiltin("crlf", exactly(0), biCrlf)
	registerBuiltin("left", exactly(2), biLeft)
	registerBuiltin("cut", exactly(2), biLeft)
	registerBuiltin("directory", between(1, 2), biDirectory)
	registerBuiltin("directory_path", between(1, 2), biDirectoryPath)
	registerBuiltin("ext", between(1, 2), biExt)
	registerBuiltin("filename", between(1, 2), biFilenameOf)
	registerBuiltin("strcmp", exactly(2), biStrcmp)
	registerBuiltin("ansi", exactly(1), biAnsi)
	registerBuiltin("ascii", exactly(1), biAscii)

	// Track info
	registerBuiltin("meta", exactly(1), biMeta)
	registerBuiltin("channels", exactly(0), biChannels)
}

// evalArgStr evaluates arg into a scratch buffer and returns it as a
// string, for built-ins that only care about the textual result, not
// where it lands in the caller's output.
func evalArgStr(w *walker, arg []byte, failOnUndef bool) (string, bool, error) {
	buf := make([]byte, 1024)
	n, truthy, err := w.evalArg(arg, buf, failOnUndef)
	if err != nil {
		return "", false, err
	}
	return string(buf[:n]), truthy, nil
}

// cAtoi mimics C's atoi: optional leading whitespace and sign, then
// decimal digits, stopping at the first non-digit; 0 if nothing parses.
func cAtoi(s string) int {
	s = strings.TrimLeft(s, " \t\n\r")
	neg := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	if neg {
		n = -n
	}
	return n
}

func writeOut(out []byte, s string) int {
	return copyUTF8Bounded(out, []byte(s))
}

// --- control flow ---

func biIf(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	_, truthy, err := w.evalArg(args[0], out, failOnUndef)
	if err != nil {
		return 0, false, err
	}
	if truthy {
		return w.evalArg(args[1], out, failOnUndef)
	}
	if len(args) == 3 {
		return w.evalArg(args[2], out, failOnUndef)
	}
	return 0, false, nil
}

func biIf2(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	n, truthy, err := w.evalArg(args[0], out, failOnUndef)
	if err != nil {
		return 0, false, err
	}
	if truthy {
		return n, truthy, nil
	}
	return w.evalArg(args[1], out, failOnUndef)
}

func biIf3(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	for i, a := range args {
		n, truthy, err := w.evalArg(a, out, failOnUndef)
		if err != nil {
			return 0, false, err
		}
		if truthy || i == len(args)-1 {
			return n, truthy, nil
		}
	}
	return 0, false, nil
}

func biIfEqual(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	s1, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	s2, _, err := evalArgStr(w, args[1], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	idx := 2
	if cAtoi(s1) != cAtoi(s2) {
		idx = 3
	}
	return w.evalArg(args[idx], out, failOnUndef)
}

func biIfGreater(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	s1, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	s2, _, err := evalArgStr(w, args[1], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	idx := 2
	if cAtoi(s1) <= cAtoi(s2) {
		idx = 3
	}
	return w.evalArg(args[idx], out, failOnUndef)
}

func biIfLonger(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	s1, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	s2, _, err := evalArgStr(w, args[1], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	idx := 2
	if len(s1) <= len(s2) {
		idx = 3
	}
	return w.evalArg(args[idx], out, failOnUndef)
}

func biSelect(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	s, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	n := cAtoi(s)
	if n < 1 || n >= len(args) {
		return 0, false, nil
	}
	return w.evalArg(args[n], out, failOnUndef)
}

// --- arithmetic ---

func biAdd(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	total := 0
	for _, a := range args {
		s, _, err := evalArgStr(w, a, failOnUndef)
		if err != nil {
			return 0, false, err
		}
		total += cAtoi(s)
	}
	return writeOut(out, fmt.Sprintf("%d", total)), false, nil
}

func biSub(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	total := 0
	for i, a := range args {
		s, _, err := evalArgStr(w, a, failOnUndef)
		if err != nil {
			return 0, false, err
		}
		if i == 0 {
			total = cAtoi(s)
		} else {
			total -= cAtoi(s)
		}
	}
	return writeOut(out, fmt.Sprintf("%d", total)), false, nil
}

func biMul(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	total := 0
	for i, a := range args {
		s, _, err := evalArgStr(w, a, failOnUndef)
		if err != nil {
			return 0, false, err
		}
		if i == 0 {
			total = cAtoi(s)
		} else {
			total *= cAtoi(s)
		}
	}
	return writeOut(out, fmt.Sprintf("%d", total)), false, nil
}

func biDiv(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	var total float64
	for i, a := range args {
		s, _, err := evalArgStr(w, a, failOnUndef)
		if err != nil {
			return 0, false, err
		}
		if i == 0 {
			total = float64(cAtoi(s))
			continue
		}
		divider := cAtoi(s)
		if divider == 0 {
			return 0, false, errUndef
		}
		total /= float64(divider)
	}
	return writeOut(out, fmt.Sprintf("%d", int(roundHalfAwayFromZero(total)))), false, nil
}

func biMod(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	total := 0
	for i, a := range args {
		s, _, err := evalArgStr(w, a, failOnUndef)
		if err != nil {
			return 0, false, err
		}
		if i == 0 {
			total = cAtoi(s)
			continue
		}
		divider := cAtoi(s)
		if divider == 0 {
			return 0, false, errUndef
		}
		total %= divider
	}
	return writeOut(out, fmt.Sprintf("%d", total)), false, nil
}

func biMulDiv(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	vals := make([]int, 3)
	for i, a := range args {
		s, _, err := evalArgStr(w, a, failOnUndef)
		if err != nil {
			return 0, false, err
		}
		vals[i] = cAtoi(s)
	}
	if vals[2] == 0 {
		return 0, false, errUndef
	}
	result := roundHalfAwayFromZero(float64(vals[0]) * float64(vals[1]) / float64(vals[2]))
	return writeOut(out, fmt.Sprintf("%d", int(result))), false, nil
}

func biMin(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	nmin := 0x7fffffff
	for _, a := range args {
		s, _, err := evalArgStr(w, a, failOnUndef)
		if err != nil {
			return 0, false, err
		}
		if n := cAtoi(s); n < nmin {
			nmin = n
		}
	}
	return writeOut(out, fmt.Sprintf("%d", nmin)), false, nil
}

func biMax(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	nmax := -1
	for _, a := range args {
		s, _, err := evalArgStr(w, a, failOnUndef)
		if err != nil {
			return 0, false, err
		}
		if n := cAtoi(s); n > nmax {
			nmax = n
		}
	}
	return writeOut(out, fmt.Sprintf("%d", nmax)), false, nil
}

func biGreater(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	s1, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	s2, _, err := evalArgStr(w, args[1], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	return 0, cAtoi(s1) > cAtoi(s2), nil
}

func biRand(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	return writeOut(out, fmt.Sprintf("%d", rand.Int())), false, nil
}

func roundHalfAwayFromZero(f float64) float64 {
	if f >= 0 {
		return float64(int64(f + 0.5))
	}
	return float64(int64(f - 0.5))
}

// --- boolean ---

func biAnd(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	for _, a := range args {
		_, truthy, err := w.evalArg(a, out, failOnUndef)
		if err != nil {
			return 0, false, err
		}
		if !truthy {
			return 0, false, nil
		}
	}
	return 0, true, nil
}

func biOr(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	for _, a := range args {
		_, truthy, err := w.evalArg(a, out, failOnUndef)
		if err != nil {
			return 0, false, err
		}
		if truthy {
			return 0, true, nil
		}
	}
	return 0, false, nil
}

func biNot(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	_, truthy, err := w.evalArg(args[0], out, failOnUndef)
	if err != nil {
		return 0, false, err
	}
	return 0, !truthy, nil
}

func biXor(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	result := false
	for i, a := range args {
		_, truthy, err := w.evalArg(a, out, failOnUndef)
		if err != nil {
			return 0, false, err
		}
		if i == 0 {
			result = truthy
		} else {
			result = result != truthy
		}
	}
	return 0, result, nil
}

// --- string ---

const skipChars = "() ,/\\|"

func biAbbr(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	text, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	if len(args) == 2 {
		s, _, err := evalArgStr(w, args[1], failOnUndef)
		if err != nil {
			return 0, false, err
		}
		if len(text) <= cAtoi(s) {
			return writeOut(out, text), false, nil
		}
	}

	var b strings.Builder
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		for i < len(runes) && strings.ContainsRune(skipChars, runes[i]) {
			i++
		}
		if i >= len(runes) {
			break
		}
		if runes[i] == '[' || runes[i] == ']' {
			for i < len(runes) && !strings.ContainsRune(skipChars, runes[i]) {
				b.WriteRune(runes[i])
				i++
			}
			continue
		}
		b.WriteRune(runes[i])
		i++
		for i < len(runes) && !strings.ContainsRune(skipChars, runes[i]) {
			i++
		}
	}
	return writeOut(out, b.String()), false, nil
}

// capsImpl title-cases text word by word; a word beginning with '[' or ']'
// is copied verbatim (bracketed spans are preserved, matching abbr's own
// treatment of bracket characters).
func capsImpl(text string, lowerRest bool) string {
	runes := []rune(text)
	var b strings.Builder
	i := 0
	for i < len(runes) {
		for i < len(runes) && strings.ContainsRune(skipChars, runes[i]) {
			b.WriteRune(runes[i])
			i++
		}
		if i >= len(runes) {
			break
		}
		bracket := runes[i] == '[' || runes[i] == ']'
		b.WriteRune(unicode.ToUpper(runes[i]))
		i++
		for i < len(runes) && !strings.ContainsRune(skipChars, runes[i]) {
			if bracket {
				b.WriteRune(runes[i])
			} else if lowerRest {
				b.WriteRune(unicode.ToLower(runes[i]))
			} else {
				b.WriteRune(runes[i])
			}
			i++
		}
	}
	return b.String()
}

func biCaps(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	text, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	return writeOut(out, capsImpl(text, true)), false, nil
}

func biCaps2(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	text, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	return writeOut(out, capsImpl(text, false)), false, nil
}

func biChar(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	s, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	n := cAtoi(s)
	if len(out) < 4 {
		return 0, false, errUndef
	}
	var buf [utf8.UTFMax]byte
	size := utf8.EncodeRune(buf[:], rune(n))
	return writeOut(out, string(buf[:size])), false, nil
}

func biCrc32(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	s, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	sum := crc32.ChecksumIEEE([]byte(s))
	return writeOut(out, fmt.Sprintf("%d", sum)), false, nil
}

func biCrlf(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	return writeOut(out, "\n"), false, nil
}

func biLeft(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	s, _, err := evalArgStr(w, args[1], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	numChars := cAtoi(s)
	text, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	if numChars <= 0 {
		return 0, false, errUndef
	}
	runes := []rune(text)
	if numChars > len(runes) {
		numChars = len(runes)
	}
	return writeOut(out, string(runes[:numChars])), false, nil
}

func biDirectory(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	path, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	levels := 1
	if len(args) == 2 {
		s, _, err := evalArgStr(w, args[1], failOnUndef)
		if err != nil {
			return 0, false, err
		}
		levels = cAtoi(s)
		if levels < 0 {
			return 0, false, errUndef
		}
	}

	parts := strings.Split(strings.TrimRight(path, "/"), "/")
	// drop the filename itself
	if len(parts) > 0 {
		parts = parts[:len(parts)-1]
	}
	if levels > len(parts) {
		return 0, false, errUndef
	}
	if levels == 0 {
		return 0, false, nil
	}
	component := parts[len(parts)-levels]
	return writeOut(out, component), false, nil
}

func biDirectoryPath(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	path, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	trimmed := strings.TrimRight(path, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return 0, false, errUndef
	}
	return writeOut(out, trimmed[:idx]), false, nil
}

func biExt(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	path, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	base := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		base = path[idx+1:]
	}
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 {
		return 0, false, nil
	}
	return writeOut(out, base[dot+1:]), false, nil
}

func biFilenameOf(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	path, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	base := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		base = path[idx+1:]
	}
	return writeOut(out, base), false, nil
}

func biStrcmp(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	s1, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	s2, _, err := evalArgStr(w, args[1], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	return 0, s1 == s2, nil
}

func biAnsi(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	return w.evalArg(args[0], out, failOnUndef)
}

func biAscii(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	text, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	if ctx.ASCII != nil {
		ascii, convErr := ctx.ASCII.ToASCII(text)
		if convErr != nil {
			return 0, false, errUndef
		}
		return writeOut(out, ascii), false, nil
	}
	return writeOut(out, bestEffortASCII(text)), false, nil
}

// bestEffortASCII is used only when a Context carries no Transcoder: it
// drops every rune outside the printable ASCII range rather than leaving
// it to mangle the output.
func bestEffortASCII(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// --- track info ---

func biMeta(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	if !ctx.hasTrack() {
		return 0, false, nil
	}
	key, _, err := evalArgStr(w, args[0], failOnUndef)
	if err != nil {
		return 0, false, err
	}
	val, ok := ctx.findMeta(key)
	if !ok {
		return 0, false, nil
	}
	return writeOut(out, val), false, nil
}

func biChannels(w *walker, ctx *Context, args [][]byte, out []byte, failOnUndef bool) (int, bool, error) {
	if !ctx.hasTrack() {
		return 0, false, nil
	}
	return writeOut(out, channelsString(ctx)), false, nil
}
