package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kts-audio/titlefmt/tf"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	script := "%artist% - %title%"
	bc, err := tf.Compile(script)
	require.NoError(t, err)

	_, ok := s.Get(script)
	require.False(t, ok)

	require.NoError(t, s.Put(script, bc))
	require.Equal(t, 1, s.Len())

	got, ok := s.Get(script)
	require.True(t, ok)
	require.Equal(t, bc.Bytes(), got.Bytes())
}

func TestGetMissIsNotAnError(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.Get("never stored")
	require.False(t, ok)
}
