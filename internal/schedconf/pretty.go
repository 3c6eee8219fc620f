package schedconf

import (
	"io"

	"github.com/dustin/go-humanize"
	"github.com/kr/pretty"
)

func humanizeBytes(n int64) string {
	return humanize.Bytes(uint64(n))
}

func prettyPrint(w io.Writer, v any) {
	pretty.Fprintf(w, "%# v\n", v)
}
