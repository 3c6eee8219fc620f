package schedule

import (
	"tensorsched/internal/metadata"
	"tensorsched/internal/rewrite"
	"tensorsched/internal/schedconf"
	"tensorsched/internal/uop"
)

// Options configures one Create call.
type Options struct {
	// Device is the buffer device new realized buffers are allocated on.
	// Defaults to "CPU".
	Device string
	Flags  schedconf.Flags
	// Metadata is parallel to sink.Src: Metadata[i] is attached to the
	// ScheduleItem produced from sink.Src[i], if present.
	Metadata []metadata.Metadata

	// OnSnapshot, if set, is called with a pretty-printed dump of the
	// graph at each major pass boundary (VIZ flag, spec.md §6). Create
	// never constructs a vizserver.Server itself -- that would make this
	// single-threaded, synchronous package (spec.md §5) reach for a
	// concurrent HTTP listener; the caller wires Capture through instead.
	OnSnapshot func(stage, dump string)
	// OnKernel, if set, is called once per lowered ScheduleItem with its
	// cache key and AST dump (CAPTURE_PROCESS_REPLAY flag, spec.md §6).
	// The caller wires this to a replay.Cache's Put method.
	OnKernel func(key string, varVals map[string]int, astDump string)
}

// Result is Create's output: the ordered kernel list, the symbolic
// variable bindings unbound from ShapeTrackers during lowering, and the
// node substitution map callers should fold back into their own
// tensor-level bookkeeping (spec.md's became_map).
type Result struct {
	Schedule []ScheduleItem
	VarVals  map[string]int
	Becomes  map[*uop.UOp]*uop.UOp
}

// Create runs the full scheduling pipeline (spec.md §4, components B-J)
// over sink, a SINK of the program's final STORE/ASSIGN ops, producing an
// ordered list of kernels ready to execute.
func Create(sink *uop.UOp, opts Options) (*Result, error) {
	if err := ValidateTensorIR(sink); err != nil {
		return nil, err
	}
	if err := ValidateAssignCycles(sink); err != nil {
		return nil, err
	}

	device := opts.Device
	if device == "" {
		device = "CPU"
	}

	if opts.Flags.Viz && opts.OnSnapshot != nil {
		opts.OnSnapshot("pre-rewrite", sink.String())
	}

	ctx := NewContext(opts.Flags)
	BuildContext(ctx, sink)
	GroupRealizes(ctx, sink)

	rewrittenSink, interStores := AddBuffers(ctx, sink, device)
	numOutputs := len(rewrittenSink.Src)

	combinedSrc := make([]*uop.UOp, 0, numOutputs+len(interStores))
	combinedSrc = append(combinedSrc, rewrittenSink.Src...)
	combinedSrc = append(combinedSrc, interStores...)
	combined := uop.NewSink(combinedSrc...)

	folded := rewrite.GraphRewrite(combined, FoldRules(ctx), ctx)
	merged, keptIntermediates := MergeBuffers(folded, numOutputs)

	if opts.Flags.Viz && opts.OnSnapshot != nil {
		opts.OnSnapshot("post-fold", folded.String())
	}

	roots := make([]*uop.UOp, 0, numOutputs+len(keptIntermediates))
	roots = append(roots, merged.Src[:numOutputs]...)
	roots = append(roots, keptIntermediates...)

	items := make([]ScheduleItem, 0, len(roots))
	for i, r := range roots {
		// A STORE/ASSIGN whose value has folded all the way down to a
		// CONST (or a symbolic BIND) needs no kernel at all -- the value
		// is already known, so the target is recorded in becomes_map
		// instead of emitting an empty-work kernel (spec.md §4.D "Sink
		// drops const/bind ... children that contribute nothing",
		// exercised by the const-fold-of-reduce end-to-end scenario).
		if target, value, ok := foldedConstTarget(r); ok {
			ctx.Becomes[target] = value
			continue
		}
		item := lowerKernel(ctx, r)
		if i < len(opts.Metadata) {
			item.Metadata = metadata.Dedup(append(item.Metadata, opts.Metadata[i]))
		}
		if opts.Flags.CaptureProcessReplay && opts.OnKernel != nil {
			opts.OnKernel(item.AST.Key(), ctx.VarVals, item.AST.String())
		}
		items = append(items, item)
	}

	ordered, err := AssembleSchedule(items)
	if err != nil {
		return nil, err
	}
	ctx.Logger.ScheduleSize(len(ordered), totalBufferBytes(ordered))
	if opts.Flags.Viz && opts.OnSnapshot != nil {
		opts.OnSnapshot("kernel-groups", dumpSchedule(ordered))
	}

	return &Result{Schedule: ordered, VarVals: ctx.VarVals, Becomes: ctx.Becomes}, nil
}

func dumpSchedule(items []ScheduleItem) string {
	var sb []byte
	for i, it := range items {
		sb = append(sb, []byte(it.AST.String())...)
		if i < len(items)-1 {
			sb = append(sb, '\n')
		}
	}
	return string(sb)
}

// foldedConstTarget reports whether root is a STORE whose value is
// already a fully-folded CONST (or BIND), in which case no kernel needs
// to run for it.
func foldedConstTarget(root *uop.UOp) (target, value *uop.UOp, ok bool) {
	if root.Op != uop.Store || len(root.Src) != 3 {
		return nil, nil, false
	}
	v := root.Src[2]
	if v.Op != uop.Const && v.Op != uop.Bind {
		return nil, nil, false
	}
	return root.Src[0], v, true
}

func totalBufferBytes(items []ScheduleItem) int64 {
	var n int64
	for _, it := range items {
		for _, b := range it.Bufs {
			if arg, ok := b.Arg.(uop.BufferArg); ok {
				n += int64(arg.Size) * int64(b.DType.ItemSize)
			}
		}
	}
	return n
}
