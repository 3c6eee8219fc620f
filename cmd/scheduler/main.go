// cmd/scheduler/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"

	"golang.org/x/exp/maps"

	"tensorsched/internal/metadata"
	"tensorsched/internal/replay"
	"tensorsched/internal/schedconf"
	"tensorsched/internal/schedule"
	"tensorsched/internal/shapetracker"
	"tensorsched/internal/uop"
	"tensorsched/internal/vizserver"
)

const version = "0.1.0"

func main() {
	var (
		debug         = flag.Int("debug", 0, "debug verbosity (0-2), overrides $DEBUG")
		viz           = flag.Bool("viz", false, "run the VIZ websocket server and stream rewrite snapshots")
		vizAddr       = flag.String("viz-addr", ":7775", "address the VIZ server listens on")
		captureReplay = flag.Bool("capture-replay", false, "persist each kernel's (key, var_vals, ast) to a sqlite cache")
		replayPath    = flag.String("replay-db", "process_replay.sqlite3", "sqlite path for -capture-replay")
		showVersion   = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("scheduler", version)
		return
	}

	flags := schedconf.FromEnv()
	if *debug > 0 {
		flags.Debug = *debug
	}
	flags.Viz = flags.Viz || *viz
	flags.CaptureProcessReplay = flags.CaptureProcessReplay || *captureReplay

	opts := schedule.Options{Flags: flags, Metadata: []metadata.Metadata{{Name: "demo"}}}

	var vs *vizserver.Server
	if flags.Viz {
		vs = vizserver.New(*vizAddr)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		go func() {
			if err := vs.Serve(ctx); err != nil {
				log.Printf("viz server: %v", err)
			}
		}()
		opts.OnSnapshot = func(stage, dump string) { vs.Capture(vizserver.Snapshot{Stage: stage, Dump: dump}) }
		fmt.Fprintf(os.Stderr, "VIZ server listening on %s/ws\n", *vizAddr)
	}

	var cache *replay.Cache
	if flags.CaptureProcessReplay {
		var err error
		cache, err = replay.Open(*replayPath)
		if err != nil {
			log.Fatalf("opening replay cache: %v", err)
		}
		defer cache.Close()
		opts.OnKernel = cache.Put
	}

	sink := buildSampleSink()
	result, err := schedule.Create(sink, opts)
	if err != nil {
		log.Fatalf("schedule: %v", err)
	}

	fmt.Printf("scheduled %d kernel(s)\n", len(result.Schedule))
	for i, item := range result.Schedule {
		fmt.Printf("kernel %d: inputs=%d outputs=%v\n", i, len(item.Inputs()), item.OutputIdxs())
	}
	if len(result.VarVals) > 0 {
		keys := maps.Keys(result.VarVals)
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("var_vals[%s] = %d\n", k, result.VarVals[k])
		}
	}
}

// buildSampleSink constructs Store(B_out, Sum(Mul(Load(B_a), Load(B_b)),
// axis=1)) over two realized 4x4 input buffers -- spec.md §8 scenario 3
// ("fused elementwise+reduce"), used as a manual/VIZ inspection harness.
func buildSampleSink() *uop.UOp {
	shape := []int{4, 4}
	st := shapetracker.FromShape(shape)

	a := uop.NewBuffer("CPU", 16, uop.Float32).View(st)
	b := uop.NewBuffer("CPU", 16, uop.Float32).View(st)

	loadA := uop.NewLoad(a.Src[0], uop.ToUOp(st))
	loadB := uop.NewLoad(b.Src[0], uop.ToUOp(st))
	product := loadA.Alu(uop.Mul, loadB)
	reduced := product.Reduce(uop.Add, []int{1})

	out := uop.NewBuffer("CPU", 4, uop.Float32)
	outSt := shapetracker.FromShape([]int{4})
	store := uop.NewStore(out, uop.ToUOp(outSt), reduced)
	return uop.NewSink(store)
}
