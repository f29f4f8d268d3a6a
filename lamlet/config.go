package lamlet

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/lamlet/addr"
	"github.com/sarchlab/lamlet/transaction/gatherscatter"
	"github.com/sarchlab/lamlet/witem"
)

// paramsYAML is the on-disk shape of a geometry file.
type paramsYAML struct {
	KCols int `yaml:"k_cols"`
	KRows int `yaml:"k_rows"`
	JCols int `yaml:"j_cols"`
	JRows int `yaml:"j_rows"`

	WordBytes  int `yaml:"word_bytes"`
	VlineBytes int `yaml:"vline_bytes"`
	MaxVLBytes int `yaml:"maxvl_bytes"`

	PageBytes         int `yaml:"page_bytes"`
	CacheLineBytes    int `yaml:"cache_line_bytes"`
	JamletSRAMBytes   int `yaml:"jamlet_sram_bytes"`
	KamletMemoryBytes int `yaml:"kamlet_memory_bytes"`

	NChannels                int `yaml:"n_channels"`
	RouterInputBufferLength  int `yaml:"router_input_buffer_length"`
	RouterOutputBufferLength int `yaml:"router_output_buffer_length"`
	ReceiveBufferDepth       int `yaml:"receive_buffer_depth"`

	NResponseIdents int `yaml:"n_response_idents"`
	MaxResponseTags int `yaml:"max_response_tags"`
	NVRegs          int `yaml:"n_vregs"`
}

// LoadParamsFile reads a geometry YAML file into a validated Params.
func LoadParamsFile(path string) (addr.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return addr.Params{}, fmt.Errorf("lamlet: read params file: %w", err)
	}
	var y paramsYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return addr.Params{}, fmt.Errorf("lamlet: parse params file: %w", err)
	}
	p := addr.Params{
		KCols: y.KCols, KRows: y.KRows, JCols: y.JCols, JRows: y.JRows,
		WordBytes: y.WordBytes, VlineBytes: y.VlineBytes, MaxVLBytes: y.MaxVLBytes,
		PageBytes: y.PageBytes, CacheLineBytes: y.CacheLineBytes,
		JamletSRAMBytes: y.JamletSRAMBytes, KamletMemoryBytes: y.KamletMemoryBytes,
		NChannels:                y.NChannels,
		RouterInputBufferLength:  y.RouterInputBufferLength,
		RouterOutputBufferLength: y.RouterOutputBufferLength,
		ReceiveBufferDepth:       y.ReceiveBufferDepth,
		NResponseIdents:          y.NResponseIdents,
		MaxResponseTags:          y.MaxResponseTags,
		NVRegs:                   y.NVRegs,
	}
	if err := p.Validate(); err != nil {
		return addr.Params{}, err
	}
	return p, nil
}

// KernelOp is one declarative vector operation of a kernel file, the
// harness-level analog of a TrackedKInstr record.
type KernelOp struct {
	Op       string `yaml:"op"` // vload | vstore | vload_strided | vstore_strided | vload_indexed | vstore_indexed | vreg_gather
	Reg      int    `yaml:"reg"`
	IndexReg int    `yaml:"index_reg"`
	SrcReg   int    `yaml:"src_reg"` // vreg_gather only
	MaskReg  *int   `yaml:"mask_reg"` // absent = unmasked
	Base     uint64 `yaml:"base"`     // byte address in the global map
	Stride   int64  `yaml:"stride"`
	VL       int    `yaml:"vl"`
	VLMax    int    `yaml:"vlmax"`
	EW       int    `yaml:"ew"`
}

type kernelYAML struct {
	Ops []KernelOp `yaml:"ops"`
}

// LoadKernelFile reads a kernel YAML file into its operation list.
func LoadKernelFile(path string) ([]KernelOp, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lamlet: read kernel file: %w", err)
	}
	var y kernelYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("lamlet: parse kernel file: %w", err)
	}
	for i, op := range y.Ops {
		if op.VL <= 0 || op.EW <= 0 {
			return nil, fmt.Errorf("lamlet: kernel op %d: vl and ew must be positive", i)
		}
	}
	return y.Ops, nil
}

func (op KernelOp) maskReg() int {
	if op.MaskReg == nil {
		return Unmasked
	}
	return *op.MaskReg
}

// kernelOpRegSets derives the read/write register sets op needs under
// the same rules the synchronous API applies; ok is false for ops the
// declarative queue cannot dispatch without per-element sequencing
// (the ordered indexed family).
func (d *Device) kernelOpRegSets(op KernelOp) (read, write []int, ok bool) {
	data := d.regGroup(op.Reg, op.VL)
	mask := op.maskReg()

	switch op.Op {
	case "vload", "vload_strided", "vload_indexed":
		write = data
	case "vstore", "vstore_strided", "vstore_indexed":
		read = appendRegGroups(read, data)
	case "vreg_gather":
		write = data
		read = appendRegGroups(read, d.regGroup(op.SrcReg, op.VLMax))
	default:
		return nil, nil, false
	}
	if op.Op == "vload_indexed" || op.Op == "vstore_indexed" || op.Op == "vreg_gather" {
		read = appendRegGroups(read, d.regGroup(op.IndexReg, op.VL))
	}
	if mask != Unmasked {
		read = appendRegGroups(read, d.regGroup(mask, op.VL))
	}
	return read, write, true
}

// dispatchKernelOp creates op's waiting items without blocking; callers
// (Comp) own hazard acquisition and completion polling.
func (d *Device) dispatchKernelOp(op KernelOp) ([]witem.Item, error) {
	base := addr.GlobalAddress{BitAddr: op.Base * 8}
	switch op.Op {
	case "vload":
		return d.dispatchGatherScatter(false, op.Reg, gatherscatter.Strided, base, int64(op.EW/8), 0, op.maskReg(), op.VL, op.EW), nil
	case "vstore":
		return d.dispatchGatherScatter(true, op.Reg, gatherscatter.Strided, base, int64(op.EW/8), 0, op.maskReg(), op.VL, op.EW), nil
	case "vload_strided":
		return d.dispatchGatherScatter(false, op.Reg, gatherscatter.Strided, base, op.Stride, 0, op.maskReg(), op.VL, op.EW), nil
	case "vstore_strided":
		return d.dispatchGatherScatter(true, op.Reg, gatherscatter.Strided, base, op.Stride, 0, op.maskReg(), op.VL, op.EW), nil
	case "vload_indexed":
		return d.dispatchGatherScatter(false, op.Reg, gatherscatter.Indexed, base, 0, op.IndexReg, op.maskReg(), op.VL, op.EW), nil
	case "vstore_indexed":
		return d.dispatchGatherScatter(true, op.Reg, gatherscatter.Indexed, base, 0, op.IndexReg, op.maskReg(), op.VL, op.EW), nil
	case "vreg_gather":
		return d.dispatchRegGather(op.Reg, op.IndexReg, op.SrcReg, op.VL, op.VLMax, op.EW), nil
	default:
		return nil, fmt.Errorf("lamlet: kernel op %q is not dispatchable from a kernel file", op.Op)
	}
}

// RunKernelOp executes one declarative operation against the device.
func (d *Device) RunKernelOp(op KernelOp) (Result, error) {
	base := addr.GlobalAddress{BitAddr: op.Base * 8}
	switch op.Op {
	case "vload":
		return d.VLoad(op.Reg, base, op.VL, op.EW, op.maskReg())
	case "vstore":
		return d.VStore(op.Reg, base, op.VL, op.EW, op.maskReg())
	case "vload_strided":
		return d.VLoadStrided(op.Reg, base, op.Stride, op.VL, op.EW, op.maskReg())
	case "vstore_strided":
		return d.VStoreStrided(op.Reg, base, op.Stride, op.VL, op.EW, op.maskReg())
	case "vload_indexed":
		return d.VLoadIndexed(op.Reg, op.IndexReg, base, op.VL, op.EW, op.maskReg())
	case "vstore_indexed":
		return d.VStoreIndexed(op.Reg, op.IndexReg, base, op.VL, op.EW, op.maskReg())
	case "vload_indexed_ordered":
		return d.VLoadIndexedOrdered(op.Reg, op.IndexReg, base, op.VL, op.EW, op.maskReg())
	case "vstore_indexed_ordered":
		return d.VStoreIndexedOrdered(op.Reg, op.IndexReg, base, op.VL, op.EW, op.maskReg())
	case "vreg_gather":
		return d.VRegGather(op.Reg, op.IndexReg, op.SrcReg, op.VL, op.VLMax, op.EW)
	default:
		return Result{}, fmt.Errorf("lamlet: unknown kernel op %q", op.Op)
	}
}
