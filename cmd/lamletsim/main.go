package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/lamlet"
)

func main() {
	paramsPath := flag.String("params", "", "geometry YAML file (built-in default geometry if empty)")
	kernelPath := flag.String("kernel", "", "kernel YAML file of vector operations to run")
	logPath := flag.String("log", "lamletsim.json.log", "JSON log file")
	maxCycles := flag.Uint64("max-cycles", 100000, "simulation cycle budget")
	trace := flag.Bool("trace", false, "log per-message trace events")
	flag.Parse()

	f, err := os.Create(*logPath)
	if err != nil {
		panic(err)
	}
	atexit.Register(func() { f.Close() })

	level := slog.LevelInfo
	if *trace {
		level = lamlet.LevelTrace
	}
	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	if err := run(*paramsPath, *kernelPath, *maxCycles, *trace); err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func run(paramsPath, kernelPath string, maxCycles uint64, trace bool) error {
	params := lamlet.DefaultParams()
	if paramsPath != "" {
		var err error
		params, err = lamlet.LoadParamsFile(paramsPath)
		if err != nil {
			return err
		}
	}

	builder := lamlet.NewBuilder().
		WithParams(params).
		WithMaxCycles(maxCycles)
	if trace {
		builder = builder.WithMonitor(&lamlet.LogHooks{})
	}
	device, err := builder.Build("Lamlet")
	if err != nil {
		return err
	}

	// One VPU page at the bottom of the map so a kernel has somewhere to
	// land by default; kernels that need more call for a params file and
	// a harness of their own.
	err = device.AllocateMemory(addr.GlobalAddress{}, params.PageBytes,
		addr.VPU, addr.Ordering{WordOrder: addr.Standard})
	if err != nil {
		return err
	}

	var ops []lamlet.KernelOp
	if kernelPath != "" {
		ops, err = lamlet.LoadKernelFile(kernelPath)
		if err != nil {
			return err
		}
	}

	engine := sim.NewSerialEngine()
	comp := lamlet.CompBuilder{}.
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithDevice(device).
		Build("Lamlet.Comp")
	comp.EnqueueKernel(ops)

	engine.Schedule(sim.MakeTickEvent(comp.TickingComponent, 0))
	if err := engine.Run(); err != nil {
		return err
	}
	if err := comp.Err(); err != nil {
		return err
	}

	slog.Info("simulation complete",
		"cycles", device.Clock().Cycle(), "ops", len(comp.Results()))
	for i, r := range comp.Results() {
		if r.Success {
			slog.Info("op complete", "op", i)
			continue
		}
		slog.Info("op faulted", "op", i, "element", *r.FaultElement)
	}
	return nil
}
