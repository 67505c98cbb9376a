package tf

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// fieldState classifies how a resolved field participates in truthiness and
// in the fail_on_undef contract (spec.md §4.3/§7).
//
//   - fieldAbsent: the field has no value. Counts as "undefined": never
//     marks the surrounding call truthy, and - if the enclosing evaluation
//     requires it - causes the whole sub-block to fail (caught only by an
//     enclosing if-defined).
//   - fieldFound: a plain metadata value was located. Marks truthy, subject
//     to the fail_on_undef rule when absent.
//   - fieldComputed: a derived value (track position, duration, filename
//     piece, …) that was computed directly into its final string. Never
//     marks truthy and never triggers fail_on_undef, even when the
//     computed string is empty - this mirrors the asymmetry in the
//     original implementation, where computed fields skip the normal
//     found/not-found bookkeeping entirely.
type fieldState int

const (
	fieldAbsent fieldState = iota
	fieldFound
	fieldComputed
)

var albumArtistChain = []string{"album artist", "albumartist", "band", "artist", "composer", "performer"}
var artistChain = []string{"artist", "album artist", "albumartist", "composer", "performer"}
var albumChain = []string{"album", "venue"}

func findFirst(ctx *Context, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := ctx.findMeta(k); ok {
			return v, true
		}
	}
	return "", false
}

// resolveField implements the %field name% alias table of spec.md §4.3,
// including the foobar2000-compatibility special cases and the derived
// (computed) fields, which take part in fail_on_undef only when they
// resolve to fieldAbsent.
func resolveField(ctx *Context, name string) (string, fieldState) {
	switch name {
	case "album artist":
		if v, ok := findFirst(ctx, albumArtistChain); ok {
			return v, fieldFound
		}
		return "", fieldAbsent

	case "artist":
		if v, ok := findFirst(ctx, artistChain); ok {
			return v, fieldFound
		}
		return "", fieldAbsent

	case "album":
		if v, ok := findFirst(ctx, albumChain); ok {
			return v, fieldFound
		}
		return "", fieldAbsent

	case "title":
		return resolveTitle(ctx)

	case "track artist":
		aa, _ := findFirst(ctx, albumArtistChain)
		val, ok := findFirst(ctx, artistChain)
		if ok && aa != "" && val == aa {
			return "", fieldAbsent
		}
		if ok {
			return val, fieldFound
		}
		return "", fieldAbsent

	case "tracknumber":
		v, ok := ctx.findMeta("track")
		if !ok || v == "" {
			return "", fieldAbsent
		}
		for _, r := range v {
			if r < '0' || r > '9' {
				return "", fieldAbsent
			}
		}
		n, _ := strconv.Atoi(v)
		return fmt.Sprintf("%02d", n), fieldComputed

	case "discnumber":
		return metaOrAbsent(ctx, "disc")
	case "totaldiscs":
		return metaOrAbsent(ctx, "numdiscs")
	case "track number":
		return metaOrAbsent(ctx, "track")
	case "date":
		return metaOrAbsent(ctx, "year")
	case "samplerate":
		return metaOrAbsent(ctx, ":SAMPLERATE")
	case "bitrate":
		return metaOrAbsent(ctx, ":BITRATE")
	case "filesize":
		return metaOrAbsent(ctx, ":FILE_SIZE")

	case "filesize_natural":
		v, ok := ctx.findMeta(":FILE_SIZE")
		if !ok {
			return "", fieldAbsent
		}
		bs, _ := strconv.ParseInt(v, 10, 64)
		return formatNaturalSize(bs), fieldComputed

	case "channels":
		return channelsString(ctx), fieldFound

	case "codec":
		return metaOrAbsent(ctx, ":FILETYPE")
	case "replaygain_album_gain":
		return metaOrAbsent(ctx, ":REPLAYGAIN_ALBUMGAIN")
	case "replaygain_album_peak":
		return metaOrAbsent(ctx, ":REPLAYGAIN_ALBUMPEAK")
	case "replaygain_track_gain":
		return metaOrAbsent(ctx, ":REPLAYGAIN_TRACKGAIN")
	case "replaygain_track_peak":
		return metaOrAbsent(ctx, ":REPLAYGAIN_TRACKPEAK")

	case "playback_time", "playback_time_seconds", "playback_time_remaining", "playback_time_remaining_seconds":
		return resolvePlaybackTime(ctx, name)

	case "length", "length_ex":
		return resolveLength(ctx, name)

	case "length_seconds", "length_seconds_fp":
		return resolveLengthSeconds(ctx, name)

	case "length_samples":
		return fmt.Sprintf("%d", 0), fieldComputed

	case "isplaying", "ispaused":
		return resolvePlayState(ctx, name)

	case "filename":
		return resolveFilename(ctx)
	case "filename_ext":
		return resolveFilenameExt(ctx)
	case "directoryname":
		return resolveDirectoryName(ctx)

	case "path":
		return metaOrAbsent(ctx, ":URI")

	case "list_index":
		return resolveListIndex(ctx)
	case "list_total":
		return resolveListTotal(ctx)
	case "queue_index":
		return resolveQueueIndex(ctx)
	case "queue_indexes":
		return resolveQueueIndexes(ctx)
	case "queue_total":
		return resolveQueueTotal(ctx)

	case "_deadbeef_version":
		return EngineVersion, fieldFound

	default:
		return metaOrAbsent(ctx, name)
	}
}

// EngineVersion is reported by the %_deadbeef_version% field, kept for
// scripts written against the original host's field name.
var EngineVersion = "1.0"

// resolveTitle falls back to the URI's basename (extension stripped) when
// the track carries no "title" tag, so an untitled file still renders
// something recognizable instead of an empty string.
func resolveTitle(ctx *Context) (string, fieldState) {
	if v, ok := ctx.findMeta("title"); ok && v != "" {
		return v, fieldFound
	}
	uri, ok := ctx.findMeta(":URI")
	if !ok {
		return "", fieldAbsent
	}
	_, base, _ := splitURI(uri)
	if base == "" {
		return "", fieldAbsent
	}
	return base, fieldFound
}

func metaOrAbsent(ctx *Context, key string) (string, fieldState) {
	if v, ok := ctx.findMeta(key); ok {
		return v, fieldFound
	}
	return "", fieldAbsent
}

func formatNaturalSize(bs int64) string {
	const kb, mb, gb = 1024, 1024 * 1024, 1024 * 1024 * 1024
	switch {
	case bs >= gb:
		return fmt.Sprintf("%.3f GB", float64(bs)/float64(gb))
	case bs >= mb:
		return fmt.Sprintf("%.3f MB", float64(bs)/float64(mb))
	case bs >= kb:
		return fmt.Sprintf("%.3f KB", float64(bs)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bs)
	}
}

func channelsString(ctx *Context) string {
	v, ok := ctx.findMeta(":CHANNELS")
	if !ok {
		return "stereo"
	}
	switch strings.TrimSpace(v) {
	case "1":
		return "mono"
	case "2":
		return "stereo"
	default:
		return v
	}
}

func resolvePlaybackTime(ctx *Context, name string) (string, fieldState) {
	if !ctx.isPlayingTrack() || ctx.Stream == nil {
		return "", fieldAbsent
	}
	remaining := name == "playback_time_remaining" || name == "playback_time_remaining_seconds"
	seconds := name == "playback_time_seconds" || name == "playback_time_remaining_seconds"

	t := ctx.Stream.PlayPosition()
	if remaining {
		t = ctx.Stream.ItemDuration(ctx.Track) - t
	}
	if t < 0 {
		return "", fieldAbsent
	}
	ctx.bumpUpdate(time.Second)
	if seconds {
		return fmt.Sprintf("%0.2f", t), fieldComputed
	}
	return formatHMS(t), fieldComputed
}

func resolveLength(ctx *Context, name string) (string, fieldState) {
	if !ctx.hasTrack() || ctx.Stream == nil {
		return "", fieldAbsent
	}
	t := ctx.Stream.ItemDuration(ctx.Track)
	if t < 0 {
		return "", fieldAbsent
	}
	if name == "length" {
		return formatHMS(math.Round(t)), fieldComputed
	}
	return formatHMSms(t), fieldComputed
}

func resolveLengthSeconds(ctx *Context, name string) (string, fieldState) {
	if !ctx.hasTrack() || ctx.Stream == nil {
		return "", fieldAbsent
	}
	t := ctx.Stream.ItemDuration(ctx.Track)
	if t < 0 {
		return "", fieldAbsent
	}
	if name == "length_seconds" {
		return fmt.Sprintf("%d", int(math.Round(t))), fieldComputed
	}
	return fmt.Sprintf("%0.3f", t), fieldComputed
}

func formatHMS(t float64) string {
	hr := int(t) / 3600
	mn := (int(t) - hr*3600) / 60
	sc := int(t) - hr*3600 - mn*60
	if hr > 0 {
		return fmt.Sprintf("%2d:%02d:%02d", hr, mn, sc)
	}
	return fmt.Sprintf("%2d:%02d", mn, sc)
}

func formatHMSms(t float64) string {
	hr := int(t) / 3600
	mn := (int(t) - hr*3600) / 60
	sc := int(t) - hr*3600 - mn*60
	ms := int(math.Round((t - math.Floor(t)) * 1000))
	if hr > 0 {
		return fmt.Sprintf("%2d:%02d:%02d.%03d", hr, mn, sc, ms)
	}
	return fmt.Sprintf("%2d:%02d.%03d", mn, sc, ms)
}

func resolvePlayState(ctx *Context, name string) (string, fieldState) {
	if ctx.Stream == nil {
		return "", fieldAbsent
	}
	playing, ok := ctx.Stream.PlayingTrack()
	if !ok {
		return "", fieldAbsent
	}
	state := ctx.Stream.OutputState()
	if name == "isplaying" && state == OutputPlaying && playing != nil {
		return "1", fieldComputed
	}
	if name == "ispaused" && state == OutputPaused && playing != nil {
		return "1", fieldComputed
	}
	return "", fieldAbsent
}

// splitURI returns (dir, base, ext) for a ":URI" value, all without
// separators, matching strrchr-based splitting on '/' and '.'.
func splitURI(uri string) (dir, base, ext string) {
	slash := strings.LastIndexByte(uri, '/')
	name := uri
	if slash >= 0 {
		dir = uri[:slash]
		name = uri[slash+1:]
	}
	dot := strings.LastIndexByte(name, '.')
	if dot >= 0 {
		return dir, name[:dot], name[dot:]
	}
	return dir, name, ""
}

func resolveFilename(ctx *Context) (string, fieldState) {
	v, ok := ctx.findMeta(":URI")
	if !ok {
		return "", fieldAbsent
	}
	_, base, _ := splitURI(v)
	if base == "" {
		return "", fieldAbsent
	}
	return base, fieldComputed
}

func resolveFilenameExt(ctx *Context) (string, fieldState) {
	v, ok := ctx.findMeta(":URI")
	if !ok {
		return "", fieldAbsent
	}
	slash := strings.LastIndexByte(v, '/')
	if slash < 0 {
		return "", fieldAbsent
	}
	return v[slash+1:], fieldComputed
}

func resolveDirectoryName(ctx *Context) (string, fieldState) {
	v, ok := ctx.findMeta(":URI")
	if !ok {
		return "", fieldAbsent
	}
	dir, _, _ := splitURI(v)
	if dir == "" {
		return "", fieldAbsent
	}
	slash := strings.LastIndexByte(dir, '/')
	return dir[slash+1:], fieldComputed
}

func resolveListIndex(ctx *Context) (string, fieldState) {
	if !ctx.hasTrack() {
		return "", fieldAbsent
	}
	total := 0
	if ctx.Playlists != nil {
		total = ctx.Playlists.ItemCount(ctx.Playlist, ctx.Iter)
	}
	digits := 1
	for t := total; t >= 10; t /= 10 {
		digits++
	}

	idx := 0
	if ctx.Flags&HasIndex != 0 {
		idx = ctx.Idx + 1
	} else if ctx.Playlists != nil {
		i, ok := ctx.Playlists.ItemIndex(ctx.Playlist, ctx.Track, ctx.Iter)
		if !ok {
			return "", fieldAbsent
		}
		idx = i + 1
	} else {
		return "", fieldAbsent
	}
	return fmt.Sprintf("%0*d", digits, idx), fieldComputed
}

func resolveListTotal(ctx *Context) (string, fieldState) {
	if ctx.Playlists == nil {
		return "", fieldAbsent
	}
	total := ctx.Playlists.ItemCount(ctx.Playlist, ctx.Iter)
	if total < 0 {
		return "", fieldAbsent
	}
	return fmt.Sprintf("%d", total), fieldComputed
}

func resolveQueueIndex(ctx *Context) (string, fieldState) {
	if !ctx.hasTrack() || ctx.Queue == nil {
		return "", fieldAbsent
	}
	pos, queued := ctx.Queue.Test(ctx.Track)
	if !queued || pos < 1 {
		return "", fieldAbsent
	}
	return fmt.Sprintf("%d", pos), fieldComputed
}

func resolveQueueIndexes(ctx *Context) (string, fieldState) {
	if !ctx.hasTrack() || ctx.Queue == nil {
		return "", fieldAbsent
	}
	positions := ctx.Queue.Positions(ctx.Track)
	if len(positions) == 0 {
		return "", fieldAbsent
	}
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ","), fieldComputed
}

func resolveQueueTotal(ctx *Context) (string, fieldState) {
	if ctx.Queue == nil {
		return "", fieldAbsent
	}
	count := ctx.Queue.Count()
	if count < 0 {
		return "", fieldAbsent
	}
	return fmt.Sprintf("%d", count), fieldComputed
}
