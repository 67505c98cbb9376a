package tf

import (
	"io"
	"log"
	"sync"

	"github.com/google/uuid"
)

// traceLogger is nil until SetTrace is called - tracing is off by default,
// matching the teacher's own debug-mode gate.
var (
	traceMu     sync.RWMutex
	traceLogger *log.Logger
)

// SetTrace turns on diagnostic logging of top-level Evaluate calls,
// writing one line to w, tagged with a correlation id, for each call that
// walks a script's bytecode (short-circuit column calls and calls with an
// empty out buffer write none). Passing a nil w turns tracing back off.
func SetTrace(w io.Writer) {
	traceMu.Lock()
	defer traceMu.Unlock()
	if w == nil {
		traceLogger = nil
		return
	}
	traceLogger = log.New(w, "titlefmt: ", log.LstdFlags)
}

func traceEval(n int, err error) {
	traceMu.RLock()
	l := traceLogger
	traceMu.RUnlock()
	if l == nil {
		return
	}
	id := uuid.New()
	if err != nil {
		l.Printf("eval %s failed: %v", id, err)
		return
	}
	l.Printf("eval %s wrote %d bytes", id, n)
}
