package router_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamlet/message"
	"github.com/sarchlab/lamlet/router"
)

func singleHeader(tx, ty int) message.Header {
	return message.NewBuilder(message.ReadMemWordReq).
		WithSendType(message.Single).
		WithTarget(tx, ty).
		WithLength(1).
		BuildReadMemWord()
}

func broadcastHeader(tx, ty int) message.Header {
	return message.NewBuilder(message.Instructions).
		WithSendType(message.Broadcast).
		WithTarget(tx, ty).
		WithLength(1).
		BuildIdent()
}

var _ = Describe("Router", func() {
	It("delivers a single-destination packet already at its target to Host", func() {
		r := router.New(2, 3, 1, 4, 4)
		r.Receive(message.North, singleHeader(2, 3))

		r.Step()

		Expect(r.OutputQueue(message.Host).Empty()).To(BeFalse())
		head, ok := r.OutputQueue(message.Host).Head()
		Expect(ok).To(BeTrue())
		Expect(head.Base().TargetX).To(Equal(2))
	})

	It("routes east-then-south for a single-destination packet, X first", func() {
		r := router.New(0, 0, 1, 4, 4)
		r.Receive(message.West, singleHeader(3, 5))

		r.Step()

		Expect(r.OutputQueue(message.East).Empty()).To(BeFalse())
		Expect(r.OutputQueue(message.South).Empty()).To(BeTrue())
		Expect(r.OutputQueue(message.Host).Empty()).To(BeTrue())
	})

	It("routes north when x is satisfied and target is north of here", func() {
		r := router.New(3, 5, 1, 4, 4)
		r.Receive(message.South, singleHeader(3, 2))

		r.Step()

		Expect(r.OutputQueue(message.North).Empty()).To(BeFalse())
	})

	It("forks a broadcast to host, the matching X direction and N/S with target_x retargeted to this column", func() {
		r := router.New(0, 0, 1, 4, 4)
		r.Receive(message.West, broadcastHeader(2, 2))

		r.Step()

		Expect(r.OutputQueue(message.Host).Empty()).To(BeFalse())
		Expect(r.OutputQueue(message.East).Empty()).To(BeFalse())
		Expect(r.OutputQueue(message.South).Empty()).To(BeFalse())

		east, _ := r.OutputQueue(message.East).Head()
		Expect(east.Base().TargetX).To(Equal(2))

		south, _ := r.OutputQueue(message.South).Head()
		Expect(south.Base().TargetX).To(Equal(0))
	})

	It("retargets target_x to self when a broadcast already at its column forks N and S", func() {
		r := router.New(2, 0, 1, 4, 4)
		r.Receive(message.West, broadcastHeader(2, 2))

		r.Step()

		Expect(r.OutputQueue(message.Host).Empty()).To(BeFalse())
		Expect(r.OutputQueue(message.South).Empty()).To(BeFalse())

		south, _ := r.OutputQueue(message.South).Head()
		Expect(south.Base().TargetX).To(Equal(2))
	})

	It("reports no input room once the input buffer is full", func() {
		r := router.New(0, 0, 1, 1, 4)
		Expect(r.HasInputRoom(message.North)).To(BeTrue())
		r.Receive(message.North, singleHeader(5, 5))
		Expect(r.HasInputRoom(message.North)).To(BeFalse())
	})

	It("moves a packet hop by hop when chained to a neighbor router", func() {
		left := router.New(0, 0, 1, 4, 4)
		right := router.New(1, 0, 1, 4, 4)

		left.Receive(message.West, singleHeader(1, 0))
		left.Step()
		left.Update()

		Expect(left.OutputQueue(message.East).Empty()).To(BeFalse())
		head, _ := left.OutputQueue(message.East).PopLeft()

		right.Receive(message.West, head)
		right.Step()

		Expect(right.OutputQueue(message.Host).Empty()).To(BeFalse())
	})
})
