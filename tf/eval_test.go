package tf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func evalString(t *testing.T, ctx *Context, script string) string {
	t.Helper()
	bc, err := Compile(script)
	require.NoError(t, err)
	out := make([]byte, 1024)
	n, err := Evaluate(ctx, bc, out)
	require.NoError(t, err)
	return string(out[:n])
}

func basicTrack() *Context {
	meta := newFakeMeta()
	meta.set("t1", "artist", "Kraftwerk")
	meta.set("t1", "title", "Autobahn")
	meta.set("t1", "album", "Autobahn")
	meta.set("t1", "track", "1")
	return &Context{Track: "t1", Meta: meta}
}

func TestEvaluateLiteralAndFields(t *testing.T) {
	ctx := basicTrack()
	require.Equal(t, "Kraftwerk - Autobahn", evalString(t, ctx, "%artist% - %title%"))
}

func TestEvaluateMissingFieldOutsideIfDefinedIsEmpty(t *testing.T) {
	ctx := basicTrack()
	require.Equal(t, "", evalString(t, ctx, "%nosuchtag%"))
}

func TestEvaluateIfDefinedElidesOnFailure(t *testing.T) {
	ctx := basicTrack()
	require.Equal(t, "", evalString(t, ctx, "[%nosuchtag%]"))
}

func TestEvaluateIfDefinedKeepsSuccessfulBody(t *testing.T) {
	ctx := basicTrack()
	require.Equal(t, "(Autobahn)", evalString(t, ctx, "[(%album%)]"))
}

func TestEvaluateIfDefinedPartialWriteDiscarded(t *testing.T) {
	ctx := basicTrack()
	// the literal prefix inside the brackets must not leak out when the
	// trailing field reference fails
	require.Equal(t, "end", evalString(t, ctx, "[prefix-%nosuchtag%]end"))
}

func TestEvaluateIfBuiltinUsesTrackTruthiness(t *testing.T) {
	ctx := basicTrack()
	require.Equal(t, "yes", evalString(t, ctx, "$if(%artist%,yes,no)"))

	empty := &Context{}
	require.Equal(t, "no", evalString(t, empty, "$if(%artist%,yes,no)"))
}

func TestEvaluateIfDefinedAfterField(t *testing.T) {
	ctx := basicTrack()
	require.Equal(t, "Kraftwerk (Autobahn)", evalString(t, ctx, "%artist% [(%album%)]"))

	ctx2 := basicTrack()
	ctx2.Meta.(*fakeMeta).byKey["t1"] = map[string]string{"artist": "Kraftwerk"}
	require.Equal(t, "Kraftwerk ", evalString(t, ctx2, "%artist% [(%album%)]"))
}

func TestEvaluateUTF8BoundarySafeTruncation(t *testing.T) {
	meta := newFakeMeta()
	meta.set("t1", "title", "café")
	ctx := &Context{Track: "t1", Meta: meta}

	bc, err := Compile("%title%")
	require.NoError(t, err)

	// "caf" is 3 bytes, then the 2-byte UTF-8 encoding of e-acute; give room
	// for only one more byte than "caf" so the multi-byte rune can't fit.
	out := make([]byte, 5)
	n, err := Evaluate(ctx, bc, out)
	require.NoError(t, err)
	require.Equal(t, "caf", string(out[:n]))
}

func TestEvaluateFileNumberColumnShortCircuits(t *testing.T) {
	ctx := &Context{
		Track: "t1",
		Flags: HasID | HasIndex,
		ID:    FileNumberColumn,
		Idx:   4,
	}
	bc, err := Compile("ignored script text")
	require.NoError(t, err)
	out := make([]byte, 64)
	n, err := Evaluate(ctx, bc, out)
	require.NoError(t, err)
	require.Equal(t, "5", string(out[:n]))
}

func TestEvaluatePlayingColumnShortCircuits(t *testing.T) {
	ctx := &Context{
		Track: "t1",
		Flags: HasID,
		ID:    PlayingColumn,
		Queue: &fakeQueue{positions: map[string][]int{"t1": {2}}},
	}
	bc, err := Compile("ignored")
	require.NoError(t, err)
	out := make([]byte, 64)
	n, err := Evaluate(ctx, bc, out)
	require.NoError(t, err)
	require.Equal(t, "2", string(out[:n]))
}

func TestEvaluatePlayingColumnNotQueuedIsEmpty(t *testing.T) {
	ctx := &Context{
		Track: "t1",
		Flags: HasID,
		ID:    PlayingColumn,
		Queue: &fakeQueue{positions: map[string][]int{}},
	}
	bc, err := Compile("ignored")
	require.NoError(t, err)
	out := make([]byte, 64)
	n, err := Evaluate(ctx, bc, out)
	require.NoError(t, err)
	require.Equal(t, "", string(out[:n]))
}

func TestEvaluateCorruptBytecodeSurfaces(t *testing.T) {
	raw := []byte{4, 0, 0, 0, sentinel, 0xff, 0, 0, 0, 0, 0, 0}
	bc, err := FromBytes(raw)
	require.NoError(t, err)
	ctx := &Context{}
	out := make([]byte, 64)
	_, err = Evaluate(ctx, bc, out)
	require.ErrorIs(t, err, ErrCorruptBytecode)
}

func TestEvaluateZeroLengthOutBuffer(t *testing.T) {
	ctx := basicTrack()
	bc, err := Compile("%artist%")
	require.NoError(t, err)
	n, err := Evaluate(ctx, bc, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestEvaluateMaxNestingDepthAtEvalTime(t *testing.T) {
	// evalBlock bounds recursion via w.depth even when the compiler itself
	// would have rejected deeper nesting; this exercises the runtime guard
	// directly using the compiled if-defined chain at the compiler's own
	// allowed depth, confirming no error is raised at a legal depth.
	script := ""
	for i := 0; i < maxNestingDepth-2; i++ {
		script += "["
	}
	script += "x"
	for i := 0; i < maxNestingDepth-2; i++ {
		script += "]"
	}
	ctx := &Context{}
	require.Equal(t, "x", evalString(t, ctx, script))
}
