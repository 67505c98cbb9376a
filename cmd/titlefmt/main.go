// Command titlefmt compiles and evaluates a title-formatting script
// against a track built from -meta key=value pairs on the command line.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/kts-audio/titlefmt/tf"
)

var (
	script = flag.String("script", "%artist% - %title%", "title-formatting script to evaluate")
	meta   = flag.String("meta", "", "comma-separated key=value metadata pairs, e.g. artist=Kraftwerk,title=Autobahn")
	trace  = flag.Bool("trace", false, "enable diagnostic trace logging to stderr")
)

// memTrack is an in-memory MetaSource backing the CLI's single track.
type memTrack map[string]string

func (m memTrack) FindMeta(track tf.TrackRef, key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func parseMeta(s string) memTrack {
	m := make(memTrack)
	if s == "" {
		return m
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		m[kv[0]] = kv[1]
	}
	return m
}

func main() {
	flag.Parse()

	if *trace {
		tf.SetTrace(os.Stderr)
	}

	bc, err := tf.Compile(*script)
	if err != nil {
		fmt.Fprintf(os.Stderr, "titlefmt: compile: %v\n", err)
		os.Exit(1)
	}

	track := parseMeta(*meta)
	ctx := &tf.Context{
		Track: "cli-track",
		Meta:  track,
	}

	out := make([]byte, 4096)
	n, err := tf.Evaluate(ctx, bc, out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "titlefmt: evaluate: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out[:n]))
}
