package lamlet_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/lamlet"
)

var _ = Describe("Builder", func() {
	It("rejects geometry that violates the parameter invariants", func() {
		p := lamlet.DefaultParams()
		p.KCols = 3 // memlets split left/right; must be even
		_, err := lamlet.NewBuilder().WithParams(p).Build("Bad")
		Expect(err).To(HaveOccurred())
	})

	It("builds a device whose grid matches the geometry", func() {
		d, err := lamlet.NewBuilder().
			WithParams(lamlet.DefaultParams()).
			Build("Device")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Params().KInL()).To(Equal(2))
		Expect(d.JamletAt(0, 0)).NotTo(BeNil())
		Expect(d.JamletAt(1, 0)).NotTo(BeNil())
		Expect(d.Busy()).To(BeFalse())
	})
})

var _ = Describe("LoadParamsFile", func() {
	It("round-trips a geometry file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "params.yaml")
		Expect(os.WriteFile(path, []byte(`
k_cols: 2
k_rows: 1
j_cols: 1
j_rows: 1
word_bytes: 8
vline_bytes: 16
maxvl_bytes: 256
page_bytes: 4096
cache_line_bytes: 64
jamlet_sram_bytes: 1024
kamlet_memory_bytes: 65536
n_channels: 2
router_input_buffer_length: 4
router_output_buffer_length: 4
receive_buffer_depth: 4
n_response_idents: 64
max_response_tags: 64
n_vregs: 32
`), 0o644)).To(Succeed())

		p, err := lamlet.LoadParamsFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(lamlet.DefaultParams()))
	})

	It("rejects a file whose geometry fails validation", func() {
		path := filepath.Join(GinkgoT().TempDir(), "params.yaml")
		Expect(os.WriteFile(path, []byte("k_cols: 1\nk_rows: 1\n"), 0o644)).To(Succeed())
		_, err := lamlet.LoadParamsFile(path)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Kernel files", func() {
	It("loads and runs a declarative kernel", func() {
		path := filepath.Join(GinkgoT().TempDir(), "kernel.yaml")
		Expect(os.WriteFile(path, []byte(`
ops:
  - op: vload
    reg: 4
    base: 0
    vl: 8
    ew: 32
  - op: vstore
    reg: 4
    base: 8192
    vl: 8
    ew: 32
`), 0o644)).To(Succeed())

		ops, err := lamlet.LoadKernelFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(ops).To(HaveLen(2))

		d, err := lamlet.NewBuilder().
			WithParams(lamlet.DefaultParams()).
			WithMaxCycles(500000).
			Build("KernelDevice")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.AllocateMemory(addr.GlobalAddress{}, 4*4096, addr.VPU,
			addr.Ordering{WordOrder: addr.Standard})).To(Succeed())

		src := make([]byte, 32)
		for i := range src {
			src[i] = byte(i + 1)
		}
		d.WriteGlobal(addr.GlobalAddress{}, src)

		for _, op := range ops {
			res, err := d.RunKernelOp(op)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Success).To(BeTrue())
		}
		Expect(d.ReadGlobal(addr.GlobalAddress{BitAddr: 8192 * 8}, 32)).To(Equal(src))
	})

	It("rejects unknown ops and non-positive shapes", func() {
		path := filepath.Join(GinkgoT().TempDir(), "kernel.yaml")
		Expect(os.WriteFile(path, []byte("ops:\n  - op: vload\n    vl: 0\n    ew: 32\n"), 0o644)).To(Succeed())
		_, err := lamlet.LoadKernelFile(path)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Comp", func() {
	It("runs a queued kernel to completion from an engine", func() {
		d, err := lamlet.NewBuilder().
			WithParams(lamlet.DefaultParams()).
			WithMaxCycles(500000).
			Build("EngineDevice")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.AllocateMemory(addr.GlobalAddress{}, 4*4096, addr.VPU,
			addr.Ordering{WordOrder: addr.Standard})).To(Succeed())

		src := make([]byte, 32)
		for i := range src {
			src[i] = byte(0x60 + i)
		}
		d.WriteGlobal(addr.GlobalAddress{}, src)

		engine := sim.NewSerialEngine()
		comp := lamlet.CompBuilder{}.
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithDevice(d).
			Build("EngineDevice.Comp")
		comp.EnqueueKernel([]lamlet.KernelOp{
			{Op: "vload", Reg: 4, Base: 0, VL: 8, EW: 32},
			{Op: "vstore", Reg: 4, Base: 8192, VL: 8, EW: 32},
		})

		engine.Schedule(sim.MakeTickEvent(comp.TickingComponent, 0))
		Expect(engine.Run()).To(Succeed())
		Expect(comp.Err()).NotTo(HaveOccurred())
		Expect(comp.Results()).To(HaveLen(2))
		Expect(comp.Results()[0].Success).To(BeTrue())
		Expect(comp.Results()[1].Success).To(BeTrue())
		Expect(d.ReadGlobal(addr.GlobalAddress{BitAddr: 8192 * 8}, 32)).To(Equal(src))
	})

	It("accepts kernel operations delivered through its host port", func() {
		d, err := lamlet.NewBuilder().
			WithParams(lamlet.DefaultParams()).
			WithMaxCycles(500000).
			Build("PortDevice")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.AllocateMemory(addr.GlobalAddress{}, 4*4096, addr.VPU,
			addr.Ordering{WordOrder: addr.Standard})).To(Succeed())

		src := make([]byte, 16)
		for i := range src {
			src[i] = byte(0x70 + i)
		}
		d.WriteGlobal(addr.GlobalAddress{}, src)

		engine := sim.NewSerialEngine()
		comp := lamlet.CompBuilder{}.
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithDevice(d).
			Build("PortDevice.Comp")

		msg := &lamlet.KernelMsg{Ops: []lamlet.KernelOp{
			{Op: "vload", Reg: 4, Base: 0, VL: 4, EW: 32},
			{Op: "vstore", Reg: 4, Base: 4096, VL: 4, EW: 32},
		}}
		Expect(comp.HostPort().Deliver(msg)).To(BeNil())

		engine.Schedule(sim.MakeTickEvent(comp.TickingComponent, 0))
		Expect(engine.Run()).To(Succeed())
		Expect(comp.Err()).NotTo(HaveOccurred())
		Expect(comp.Results()).To(HaveLen(2))
		Expect(d.ReadGlobal(addr.GlobalAddress{BitAddr: 4096 * 8}, 16)).To(Equal(src))
	})
})
