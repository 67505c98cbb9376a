package tf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Plain literal text never sets the truthy bit on its own - only a
// resolved %field% or a truthy nested call does (spec.md §4.3/§9). These
// tests drive conditions off a present/absent field for that reason.
func truthyCtx() *Context {
	return ctxWithMeta("t1", map[string]string{"present": "1"})
}

func TestBuiltinIf(t *testing.T) {
	ctx := truthyCtx()
	require.Equal(t, "yes", evalString(t, ctx, "$if(%present%,yes,no)"))
	require.Equal(t, "no", evalString(t, ctx, "$if(%missing%,yes,no)"))
	require.Equal(t, "", evalString(t, ctx, "$if(%missing%,yes)"))
}

func TestBuiltinIf2(t *testing.T) {
	ctx := truthyCtx()
	require.Equal(t, "1", evalString(t, ctx, "$if2(%present%,fallback)"))
	require.Equal(t, "fallback", evalString(t, ctx, "$if2(%missing%,fallback)"))
}

func TestBuiltinIf3(t *testing.T) {
	ctx := truthyCtx()
	// the literal "b" is not truthy, so no argument is and the last one wins
	require.Equal(t, "c", evalString(t, ctx, "$if3(%missing%,b,c)"))
	require.Equal(t, "c", evalString(t, ctx, "$if3(%missing%,%missing%,c)"))
}

func TestBuiltinIfEqual(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "same", evalString(t, ctx, "$ifequal(3,3,same,diff)"))
	require.Equal(t, "diff", evalString(t, ctx, "$ifequal(3,4,same,diff)"))
}

func TestBuiltinIfGreater(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "yes", evalString(t, ctx, "$ifgreater(5,3,yes,no)"))
	require.Equal(t, "no", evalString(t, ctx, "$ifgreater(3,5,yes,no)"))
	require.Equal(t, "no", evalString(t, ctx, "$ifgreater(3,3,yes,no)"))
}

func TestBuiltinIfLonger(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "yes", evalString(t, ctx, "$iflonger(hello,hi,yes,no)"))
	require.Equal(t, "no", evalString(t, ctx, "$iflonger(hi,hello,yes,no)"))
}

func TestBuiltinSelect(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "two", evalString(t, ctx, "$select(2,one,two,three)"))
	require.Equal(t, "", evalString(t, ctx, "$select(0,one,two,three)"))
	require.Equal(t, "", evalString(t, ctx, "$select(9,one,two,three)"))
}

func TestBuiltinArithmetic(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "6", evalString(t, ctx, "$add(1,2,3)"))
	require.Equal(t, "0", evalString(t, ctx, "$add()"))
	require.Equal(t, "4", evalString(t, ctx, "$sub(10,4,2)"))
	require.Equal(t, "24", evalString(t, ctx, "$mul(2,3,4)"))
	require.Equal(t, "5", evalString(t, ctx, "$div(10,2)"))
	require.Equal(t, "1", evalString(t, ctx, "$mod(10,3)"))
	require.Equal(t, "6", evalString(t, ctx, "$muldiv(3,4,2)"))
	require.Equal(t, "2", evalString(t, ctx, "$min(5,2,9)"))
	require.Equal(t, "9", evalString(t, ctx, "$max(5,2,9)"))
}

func TestBuiltinArithmeticCallIsTruthyWhenItWritesOutput(t *testing.T) {
	// any call that writes output is truthy regardless of its own bool
	// result - $add never reports its own truthiness, but the characters
	// it writes still flip the surrounding block's bool_out.
	ctx := &Context{}
	require.Equal(t, "yes", evalString(t, ctx, "$if($add(1,2),yes,no)"))
}

func TestBuiltinSelectOutOfRangeIsNotTruthy(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "no", evalString(t, ctx, "$if($select(9,one,two,three),yes,no)"))
}

func TestBuiltinDivideByZeroFailsInsideIfDefined(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "", evalString(t, ctx, "[$div(10,0)]"))
	require.Equal(t, "", evalString(t, ctx, "[$mod(10,0)]"))
	require.Equal(t, "", evalString(t, ctx, "[$muldiv(1,2,0)]"))
}

func TestBuiltinGreater(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "yes", evalString(t, ctx, "$if($greater(5,3),yes,no)"))
	require.Equal(t, "no", evalString(t, ctx, "$if($greater(3,5),yes,no)"))
}

func TestBuiltinBooleanShortCircuit(t *testing.T) {
	ctx := truthyCtx()
	require.Equal(t, "yes", evalString(t, ctx, "$if($and(%present%,%present%),yes,no)"))
	require.Equal(t, "no", evalString(t, ctx, "$if($and(%present%,%missing%),yes,no)"))
	require.Equal(t, "yes", evalString(t, ctx, "$if($or(%missing%,%present%),yes,no)"))
	require.Equal(t, "no", evalString(t, ctx, "$if($or(%missing%,%missing%),yes,no)"))
	require.Equal(t, "yes", evalString(t, ctx, "$if($not(%missing%),yes,no)"))
	require.Equal(t, "no", evalString(t, ctx, "$if($not(%present%),yes,no)"))
	require.Equal(t, "yes", evalString(t, ctx, "$if($xor(%present%,%missing%),yes,no)"))
	require.Equal(t, "no", evalString(t, ctx, "$if($xor(%present%,%present%),yes,no)"))
}

func TestBuiltinAbbr(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "TBS", evalString(t, ctx, "$abbr(The Beatles Story)"))
	require.Equal(t, "short", evalString(t, ctx, "$abbr(short,10)"))
}

func TestBuiltinAbbrCopiesFirstCharVerbatim(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "tbs", evalString(t, ctx, "$abbr(the beatles story)"))
}

func TestBuiltinAbbrPreservesBracketedSpans(t *testing.T) {
	// brackets are escaped here so they reach biAbbr as literal text rather
	// than being parsed as an if-defined block by the compiler.
	ctx := &Context{}
	require.Equal(t, "f[eat]b", evalString(t, ctx, `$abbr(foo \[eat\] bar)`))
}

func TestBuiltinCaps(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "Hello World", evalString(t, ctx, "$caps(hello WORLD)"))
}

func TestBuiltinCaps2(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "Hello WORLD", evalString(t, ctx, "$caps2(hello WORLD)"))
}

func TestBuiltinChar(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "A", evalString(t, ctx, "$char(65)"))
}

func TestBuiltinCrc32(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "3421780262", evalString(t, ctx, "$crc32(123456789)"))
}

func TestBuiltinCrlf(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "a\nb", evalString(t, ctx, "a$crlf()b"))
}

func TestBuiltinLeftAndCut(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "hel", evalString(t, ctx, "$left(hello,3)"))
	require.Equal(t, "hel", evalString(t, ctx, "$cut(hello,3)"))
	require.Equal(t, "hello", evalString(t, ctx, "$left(hello,30)"))
}

func TestBuiltinDirectory(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "artist", evalString(t, ctx, "$directory(/music/artist/track.flac)"))
	require.Equal(t, "music", evalString(t, ctx, "$directory(/music/artist/track.flac,2)"))
}

func TestBuiltinDirectoryPath(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "/music/artist", evalString(t, ctx, "$directory_path(/music/artist/track.flac)"))
}

func TestBuiltinExt(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "flac", evalString(t, ctx, "$ext(/music/artist/track.flac)"))
}

func TestBuiltinFilename(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "track.flac", evalString(t, ctx, "$filename(/music/artist/track.flac)"))
}

func TestBuiltinStrcmp(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "yes", evalString(t, ctx, "$if($strcmp(abc,abc),yes,no)"))
	require.Equal(t, "no", evalString(t, ctx, "$if($strcmp(abc,abd),yes,no)"))
}

func TestBuiltinAscii(t *testing.T) {
	ctx := &Context{}
	require.Equal(t, "caf", evalString(t, ctx, "$ascii(café)"))
}

func TestBuiltinAsciiUsesTranscoderCollaborator(t *testing.T) {
	ctx := &Context{ASCII: fakeASCII{}}
	require.Equal(t, "caf", evalString(t, ctx, "$ascii(café)"))
}

func TestBuiltinMeta(t *testing.T) {
	ctx := ctxWithMeta("t1", map[string]string{"custom": "value"})
	require.Equal(t, "value", evalString(t, ctx, "$meta(custom)"))
	require.Equal(t, "", evalString(t, ctx, "$meta(missing)"))
}

func TestBuiltinChannels(t *testing.T) {
	ctx := &Context{Track: "t1", Meta: newFakeMeta()}
	require.Equal(t, "stereo", evalString(t, ctx, "$channels()"))
}
