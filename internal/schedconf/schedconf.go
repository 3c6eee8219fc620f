// Package schedconf centralizes the scheduler's environment-variable flags
// (spec.md §6) and its debug-log formatting. The teacher reads ad hoc
// os.Getenv values inline in cmd/sentra/main.go; this package gives the
// scheduler's flag table one place to live, mirroring tinygrad's
// ContextVar/getenv pattern.
package schedconf

import (
	"fmt"
	"os"
	"strconv"
)

// Flags is an immutable snapshot of the recognized debug/environment
// options, read once per process (or per test) rather than re-parsed on
// every access.
type Flags struct {
	Debug               int
	FuseArange           bool
	FuseConvBW            bool
	DontRealizeExpand     bool
	CaptureProcessReplay  bool
	Viz                   bool
}

func getenvInt(name string) int {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return 0
	}
	return v
}

func getenvBool(name string) bool {
	return getenvInt(name) != 0
}

// FromEnv reads the current process environment into a Flags snapshot.
func FromEnv() Flags {
	return Flags{
		Debug:                getenvInt("DEBUG"),
		FuseArange:           getenvBool("FUSE_ARANGE"),
		FuseConvBW:           getenvBool("FUSE_CONV_BW"),
		DontRealizeExpand:    getenvBool("DONT_REALIZE_EXPAND"),
		CaptureProcessReplay: getenvBool("CAPTURE_PROCESS_REPLAY"),
		Viz:                  getenvBool("VIZ"),
	}
}

// Logger prints DEBUG-gated diagnostics. The zero value is usable (all
// debug levels off).
type Logger struct {
	Flags Flags
	out   *os.File
}

func NewLogger(f Flags) *Logger { return &Logger{Flags: f, out: os.Stderr} }

func (l *Logger) enabled(level int) bool { return l != nil && l.Flags.Debug >= level }

// ScheduleSize logs the >=1 "scheduled N kernels" line, humanizing the
// total buffer footprint the way tinygrad's DEBUG>=1 path prints kernel
// counts -- this repo additionally reports byte size via go-humanize since
// that context (total scheduled bytes) isn't in the original's one-liner
// but is a natural companion metric for a Go CLI's stderr output.
func (l *Logger) ScheduleSize(kernels int, totalBytes int64) {
	if !l.enabled(1) {
		return
	}
	fmt.Fprintf(l.out, "scheduled %d kernels, %s buffers\n", kernels, humanizeBytes(totalBytes))
}

// ImageDemotion logs a >=2 "forcing image dtype down to base" line.
func (l *Logger) ImageDemotion(dtype string, shape []int, base string) {
	if !l.enabled(2) {
		return
	}
	fmt.Fprintf(l.out, "forcing image %s with shape %v to %s\n", dtype, shape, base)
}

// Dump pretty-prints v (a UOp subtree, ScheduleItem, etc.) at DEBUG>=2,
// using kr/pretty for readable structural output instead of the default
// %+v formatter.
func (l *Logger) Dump(label string, v any) {
	if !l.enabled(2) {
		return
	}
	fmt.Fprintf(l.out, "%s:\n", label)
	prettyPrint(l.out, v)
}
