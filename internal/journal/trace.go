package journal

import (
	"os"
	"sync/atomic"
)

// frameTrace gates per-frame events, which arrive at stream rate.
var frameTrace atomic.Bool

func init() {
	frameTrace.Store(os.Getenv("SMARTSCANNER_TRACE") != "")
}

// FrameTrace reports whether SMARTSCANNER_TRACE is set.
func FrameTrace() bool {
	return frameTrace.Load()
}

func setFrameTrace(v bool) {
	frameTrace.Store(v)
}
