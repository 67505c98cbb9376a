package tf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytecodeRoundTrip(t *testing.T) {
	bc, err := Compile("%artist% - %title%")
	require.NoError(t, err)

	raw := bc.Bytes()
	bc2, err := FromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, bc.program(), bc2.program())
}

func TestFromBytesRejectsTruncated(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrCorruptBytecode)
}

func TestFromBytesRejectsBadLength(t *testing.T) {
	buf := make([]byte, 8)
	buf[0] = 0xff // claims a huge program length
	_, err := FromBytes(buf)
	require.ErrorIs(t, err, ErrCorruptBytecode)
}

func TestEmptyScriptCompilesToEmptyProgram(t *testing.T) {
	bc, err := Compile("")
	require.NoError(t, err)
	require.Equal(t, 0, bc.Len())
}
