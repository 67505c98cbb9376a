package tf

import "time"

// Flags is the evaluation context's bitset of recognized options.
type Flags uint8

const (
	// HasID marks ctx.ID as meaningful, enabling the short-circuit column
	// lookup before any bytecode is walked.
	HasID Flags = 1 << iota
	// HasIndex marks ctx.Idx as meaningful (the track's zero-based
	// position within the surrounding list), overriding a playlist query.
	HasIndex
)

// ColumnID names a short-circuit column, checked before the bytecode walk
// (spec.md §6). Any other value is ignored - the script is evaluated
// normally.
type ColumnID int

const (
	NoColumn ColumnID = iota
	FileNumberColumn
	PlayingColumn
)

// Context binds one evaluation to a track and its surroundings. The zero
// value is a context with no track, no playlist, no collaborators - field
// resolution degrades to "everything absent" rather than panicking, so a
// caller can Evaluate with a bare Context for quick smoke tests.
type Context struct {
	Track    TrackRef
	Playlist PlaylistRef
	Iter     int
	Flags    Flags
	ID       ColumnID
	Idx      int

	// Update is an output field: the smallest refresh interval the
	// rendered value requires, set when time-dependent fields (playback
	// position) are referenced. The zero value and NeverUpdate both mean
	// "no refresh needed"; the engine never resets it to either.
	Update time.Duration

	Meta      MetaSource
	Lock      Locker
	Playlists PlaylistSource
	Queue     QueueSource
	Stream    Streamer
	ASCII     Transcoder
}

// NeverUpdate is the sentinel Update value meaning "no refresh needed".
const NeverUpdate time.Duration = -1

// bumpUpdate lowers ctx.Update to at most interval, treating NeverUpdate
// (and the zero value) as "no constraint yet".
func (c *Context) bumpUpdate(interval time.Duration) {
	if c.Update == NeverUpdate || c.Update == 0 || interval < c.Update {
		c.Update = interval
	}
}

func (c *Context) hasTrack() bool    { return c.Track != nil }
func (c *Context) hasPlaylist() bool { return c.Playlist != nil }

// findMeta looks up a raw metadata key, bracketing the read with Lock (per
// spec.md §5). An absent track, or a nil MetaSource, resolves every key to
// absent - there is no singleton "empty track" to dereference, the engine
// simply short-circuits.
func (c *Context) findMeta(key string) (string, bool) {
	if !c.hasTrack() || c.Meta == nil {
		return "", false
	}
	if c.Lock != nil {
		c.Lock.Lock()
		defer c.Lock.Unlock()
	}
	return c.Meta.FindMeta(c.Track, key)
}

func (c *Context) isPlayingTrack() bool {
	if !c.hasTrack() || c.Stream == nil {
		return false
	}
	playing, ok := c.Stream.PlayingTrack()
	return ok && sameTrack(playing, c.Track)
}
