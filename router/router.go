// Package router implements the lamlet mesh's five-port, virtual-channel
// packet-switched router: dimension-order routing for single-destination
// sends and tree-replicated routing for broadcasts, with the admit /
// forward / retire priority-rotation algorithm from
// original_source/python/zamlet/router.py.
//
// Each packet here is a self-contained message.Header (carrying its own
// payload inline) rather than the reference model's header-plus-trailing-
// words stream; a router connection therefore always spans exactly one
// cycle's transfer per hop instead of header.Length cycles. This is a
// deliberate simplification recorded in DESIGN.md: nothing in spec.md's
// invariants depends on multi-cycle packet transfer, and collapsing it
// keeps Queue's single generic buffer semantics (package queue) the sole
// buffering primitive in the simulator.
package router

import (
	"github.com/sarchlab/lamlet/message"
	"github.com/sarchlab/lamlet/queue"
)

// directions lists every logical port in the fixed priority-rotation
// order the reference router starts from.
var directions = []message.Direction{
	message.North, message.South, message.East, message.West, message.Host,
}

// connection tracks one admitted input-to-output(s) reservation.
type connection struct {
	dests      map[message.Direction]bool
	unconsumed map[message.Direction]bool
	header     message.Header
}

// Router is one (x, y) tile's router for a single virtual channel.
type Router struct {
	x, y    int
	channel int

	input  map[message.Direction]*queue.Queue[message.Header]
	output map[message.Direction]*queue.Queue[message.Header]

	inputConn  map[message.Direction]*connection
	outputConn map[message.Direction]message.Direction // output -> input
	outputHdr  map[message.Direction]message.Header

	priority []message.Direction
}

// New creates a router for tile (x, y) on the given virtual channel.
func New(x, y, channel, inputBufferLength, outputBufferLength int) *Router {
	r := &Router{
		x: x, y: y, channel: channel,
		input:      make(map[message.Direction]*queue.Queue[message.Header]),
		output:     make(map[message.Direction]*queue.Queue[message.Header]),
		inputConn:  make(map[message.Direction]*connection),
		outputConn: make(map[message.Direction]message.Direction),
		outputHdr:  make(map[message.Direction]message.Header),
	}
	for _, d := range directions {
		r.input[d] = queue.New[message.Header](inputBufferLength)
		r.output[d] = queue.New[message.Header](outputBufferLength)
	}
	r.priority = append([]message.Direction(nil), directions...)
	return r
}

// HasInputRoom reports whether this router can accept another word on the
// given input direction this cycle.
func (r *Router) HasInputRoom(d message.Direction) bool {
	return r.input[d].CanAppend()
}

// Receive admits a header into the router on the given input direction.
// Callers (neighbor routers / jamlet send loops) must check
// HasInputRoom first.
func (r *Router) Receive(d message.Direction, h message.Header) {
	r.input[d].Append(h)
}

// OutputQueue exposes the per-direction output buffer so the owning
// jamlet/neighbor router can drain it.
func (r *Router) OutputQueue(d message.Direction) *queue.Queue[message.Header] {
	return r.output[d]
}

// Update advances every buffer to the next cycle (queue.Queue's
// append-once-per-cycle gate resets).
func (r *Router) Update() {
	for _, q := range r.input {
		q.Update()
	}
	for _, q := range r.output {
		q.Update()
	}
}

// outputDirections computes, for an incoming header at this router, the
// set of (possibly rewritten) headers and the output ports they must
// reach. Mirrors router.py's get_output_directions exactly, including
// the target_x retargeting on broadcast forks.
func (r *Router) outputDirections(h message.Header) []struct {
	header message.Header
	dir    message.Direction
} {
	base := *h.Base()
	retargeted := cloneWithTargetX(h, r.x)

	tx, ty := base.TargetX, base.TargetY

	type pair = struct {
		header message.Header
		dir    message.Direction
	}

	if base.SendType == message.Single {
		switch {
		case tx > r.x:
			return []pair{{h, message.East}}
		case tx < r.x:
			return []pair{{h, message.West}}
		case ty > r.y:
			return []pair{{h, message.South}}
		case ty < r.y:
			return []pair{{h, message.North}}
		default:
			return []pair{{h, message.Host}}
		}
	}

	// Broadcast.
	switch {
	case tx > r.x:
		switch {
		case ty > r.y:
			return []pair{{h, message.Host}, {h, message.East}, {retargeted, message.South}}
		case ty < r.y:
			return []pair{{h, message.Host}, {h, message.East}, {retargeted, message.North}}
		default:
			return []pair{{h, message.Host}, {h, message.East}}
		}
	case tx < r.x:
		switch {
		case ty > r.y:
			return []pair{{h, message.Host}, {h, message.West}, {retargeted, message.South}}
		case ty < r.y:
			return []pair{{h, message.Host}, {h, message.West}, {retargeted, message.North}}
		default:
			return []pair{{h, message.Host}, {h, message.West}}
		}
	case ty > r.y:
		return []pair{{h, message.Host}, {h, message.South}}
	case ty < r.y:
		return []pair{{h, message.Host}, {h, message.North}}
	default:
		return []pair{{h, message.Host}}
	}
}

// cloneWithTargetX clones h with Base().TargetX rewritten, using each
// concrete Header subtype's own Clone so the payload copy semantics of
// message.Header are preserved.
func cloneWithTargetX(h message.Header, x int) message.Header {
	clone := h.Clone().(message.Header)
	clone.Base().TargetX = x
	return clone
}

// Step runs one cycle of the admit/forward/retire algorithm.
func (r *Router) Step() {
	r.admit()
	r.forward()
	r.retire()
}

// admit tries to start a new connection for each input direction not
// already connected, in priority order. A direction that attempts
// admission this cycle (connected or not, or with nothing to send) is
// demoted to lowest priority, except one that tried and was blocked by a
// busy output: it keeps its place so it is retried first next cycle.
// Mirrors router.py's Router.run admit phase exactly.
func (r *Router) admit() {
	var demoted []message.Direction
	var stay []message.Direction

	for _, inDir := range r.priority {
		buf := r.input[inDir]
		_, already := r.inputConn[inDir]

		if already || buf.Empty() {
			demoted = append(demoted, inDir)
			continue
		}

		head, _ := buf.Head()
		pairs := r.outputDirections(head)

		outDirs := make(map[message.Direction]bool, len(pairs))
		for _, p := range pairs {
			outDirs[p.dir] = true
		}

		free := true
		for d := range outDirs {
			if _, taken := r.outputConn[d]; taken {
				free = false
				break
			}
		}

		if !free {
			stay = append(stay, inDir)
			continue
		}

		for _, p := range pairs {
			r.outputConn[p.dir] = inDir
			r.outputHdr[p.dir] = p.header
		}
		r.inputConn[inDir] = &connection{
			dests:      outDirs,
			unconsumed: cloneDirSet(outDirs),
			header:     head,
		}
		demoted = append(demoted, inDir)
	}

	r.priority = append(stay, demoted...)
}

func cloneDirSet(s map[message.Direction]bool) map[message.Direction]bool {
	out := make(map[message.Direction]bool, len(s))
	for d := range s {
		out[d] = true
	}
	return out
}

func (r *Router) forward() {
	for _, outDir := range directions {
		inDir, hasConn := r.outputConn[outDir]
		if !hasConn {
			continue
		}
		outBuf := r.output[outDir]
		if !outBuf.CanAppend() {
			continue
		}
		conn := r.inputConn[inDir]
		if conn == nil || !conn.unconsumed[outDir] {
			continue
		}

		word := conn.header
		if hdr, first := r.outputHdr[outDir]; first {
			word = hdr
			delete(r.outputHdr, outDir)
		}
		outBuf.Append(word)
		delete(conn.unconsumed, outDir)
	}
}

func (r *Router) retire() {
	for outDir, inDir := range r.outputConn {
		conn := r.inputConn[inDir]
		if conn != nil && !conn.unconsumed[outDir] {
			delete(r.outputConn, outDir)
		}
	}

	for inDir, conn := range r.inputConn {
		if len(conn.unconsumed) == 0 {
			r.input[inDir].PopLeft()
			delete(r.inputConn, inDir)
		}
	}
}
