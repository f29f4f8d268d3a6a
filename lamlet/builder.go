package lamlet

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/clock"
	"github.com/sarchlab/lamlet/jamlet"
	"github.com/sarchlab/lamlet/kamlet"
	"github.com/sarchlab/lamlet/memlet"
	"github.com/sarchlab/lamlet/monitor"
	"github.com/sarchlab/lamlet/scalarmem"
	syncnet "github.com/sarchlab/lamlet/sync"
)

// Builder builds Devices.
type Builder struct {
	params    addr.Params
	maxCycles uint64
	hooks     monitor.Hooks
	logger    *slog.Logger
}

// NewBuilder returns a builder with no geometry set; WithParams is
// required before Build.
func NewBuilder() Builder {
	return Builder{maxCycles: 100000}
}

// WithParams sets the lamlet geometry.
func (b Builder) WithParams(p addr.Params) Builder {
	b.params = p
	return b
}

// WithMaxCycles sets the clock's cycle budget.
func (b Builder) WithMaxCycles(n uint64) Builder {
	b.maxCycles = n
	return b
}

// WithMonitor sets the observability hooks threaded through every
// kamlet and jamlet.
func (b Builder) WithMonitor(hooks monitor.Hooks) Builder {
	b.hooks = hooks
	return b
}

// WithLogger sets the structured logger; slog.Default() otherwise.
func (b Builder) WithLogger(l *slog.Logger) Builder {
	b.logger = l
	return b
}

// Build wires the whole device: the jamlet grid, one kamlet per tile,
// the two boundary memlets, and the shared TLB/scalar-memory/sync
// network, and registers the device's cycle and update phases on a
// fresh clock.
func (b Builder) Build(name string) (*Device, error) {
	p := b.params
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("lamlet: %w", err)
	}

	d := &Device{
		name:    name,
		p:       p,
		clk:     clock.New(b.maxCycles),
		tlb:     addr.NewTLB(p),
		syncNet: syncnet.New(p.KCols, p.KRows),
		scalar:  scalarmem.New(),
		hooks:   b.hooks,
		log:     b.logger,
	}
	if d.hooks == nil {
		d.hooks = monitor.NopHooks{}
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	d.syncNet.WithMonitor(d.hooks)

	w, h := d.gridWidth(), d.gridHeight()
	d.jamlets = make([][]*jamlet.Jamlet, h)
	for y := 0; y < h; y++ {
		d.jamlets[y] = make([]*jamlet.Jamlet, w)
	}

	rows := make([]int, h)
	for y := range rows {
		rows[y] = y
	}
	d.memWest = memlet.New(p, -1, rows, p.RouterInputBufferLength)
	d.memEast = memlet.New(p, w, rows, p.RouterInputBufferLength)

	for kIndex := 0; kIndex < p.KInL(); kIndex++ {
		kx, _ := p.KIndexToCoords(kIndex)

		js := make([]*jamlet.Jamlet, p.JInK())
		for jInK := 0; jInK < p.JInK(); jInK++ {
			x, y := p.KamletJInKToJCoords(kIndex, jInK)
			j := jamlet.New(p, kIndex, jInK, x, y)
			js[jInK] = j
			d.jamlets[y][x] = j
		}

		// Kamlets in the west half of the grid use the west memlet,
		// east half the east one; KCols is even so the split is exact.
		memX := -1
		if kx >= p.KCols/2 {
			memX = w
		}
		_, firstRow := p.KamletJInKToJCoords(kIndex, 0)

		k := kamlet.New(p, kIndex, js, d.tlb, d.syncNet, d.scalar, memX, firstRow)
		k.WithMonitor(d.hooks)
		d.kamlets = append(d.kamlets, k)
	}

	d.clk.OnCycle(d.step)
	d.clk.OnUpdate(d.update)
	d.clk.OnTimeout(func(cycle uint64) {
		d.log.Error("simulation exceeded cycle budget", "device", d.name, "cycle", cycle)
	})

	return d, nil
}

// DefaultParams returns a small two-kamlet geometry suitable for tests
// and the CLI harness's default run: one jamlet per kamlet, 8-byte
// words, 4 KiB pages.
func DefaultParams() addr.Params {
	return addr.Params{
		KCols: 2, KRows: 1,
		JCols: 1, JRows: 1,

		WordBytes:  8,
		VlineBytes: 16,
		MaxVLBytes: 256,

		PageBytes:         4096,
		CacheLineBytes:    64,
		JamletSRAMBytes:   1024,
		KamletMemoryBytes: 65536,

		NChannels:                2,
		RouterInputBufferLength:  4,
		RouterOutputBufferLength: 4,
		ReceiveBufferDepth:       4,

		NResponseIdents: 64,
		MaxResponseTags: 64,
		NVRegs:          32,
	}
}
