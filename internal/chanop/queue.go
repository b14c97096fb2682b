package chanop

import (
	"fmt"
	"sync"
	"time"
)

const (
	// maxQueuedSteps aborts runaway command bursts; on overflow the whole
	// queue is dropped, not trimmed.
	maxQueuedSteps = 20

	// opConfirmTimeout bounds how long a suspended queue waits for the
	// privilege grant to show up.
	opConfirmTimeout = time.Minute
)

type stepKind int

const (
	stepNormal stepKind = iota
	stepAwaitOp
	stepTrackChannel
)

// step is one queued protocol action. wait is the accumulated delay offset
// the transport applies when the step finally sends.
type step struct {
	kind    stepKind
	server  string
	channel string
	nick    string
	command string
	wait    int
}

// CommandQueue is an ordered, resumable sequence of outgoing commands.
// Execution runs step by step until an AwaitOp step suspends it; a matching
// privilege-grant event resumes it, a timeout aborts it. Steps accumulate
// delay offsets so bursts are spaced out by the transport.
//
// The queue is not safe for concurrent use; the owning Service serializes
// access, and locker is taken only by the timeout callback, which arrives
// from the clock.
type CommandQueue struct {
	transport Transport
	bus       *Bus
	clock     Clock
	locker    sync.Locker
	onTrack   func(server, channel string)
	report    func(err error)

	steps   []step
	wait    int
	confirm *Subscription
	timeout Timer
}

// NewCommandQueue wires a queue to its collaborators. onTrack runs when a
// MarkChannelTracked step executes; report receives overflow and timeout
// conditions.
func NewCommandQueue(t Transport, b *Bus, c Clock, locker sync.Locker,
	onTrack func(server, channel string), report func(error)) *CommandQueue {
	return &CommandQueue{
		transport: t,
		bus:       b,
		clock:     c,
		locker:    locker,
		onTrack:   onTrack,
		report:    report,
	}
}

// Push appends a normal command step with the default one-unit spacing.
func (q *CommandQueue) Push(server, command string) {
	q.push(step{kind: stepNormal, server: server, command: command}, 1)
}

// PushWait appends a normal command step with explicit spacing.
func (q *CommandQueue) PushWait(server, command string, wait int) {
	q.push(step{kind: stepNormal, server: server, command: command}, wait)
}

// PushAwaitOp appends a step that sends command and then suspends the queue
// until nick is granted op on channel, or until the confirmation times out.
func (q *CommandQueue) PushAwaitOp(server, channel, nick, command string) {
	q.push(step{
		kind:    stepAwaitOp,
		server:  server,
		channel: channel,
		nick:    nick,
		command: command,
	}, 1)
}

// PushTrack appends a step that marks the channel tracked. It has no
// network effect and no spacing of its own.
func (q *CommandQueue) PushTrack(server, channel string) {
	q.push(step{kind: stepTrackChannel, server: server, channel: channel}, 0)
}

func (q *CommandQueue) push(st step, wait int) {
	st.wait = q.wait
	q.wait += wait
	q.steps = append(q.steps, st)
	if len(q.steps) > maxQueuedSteps {
		q.report(fmt.Errorf("limit of %d queued commands reached, aborting", maxQueuedSteps))
		q.Clear()
	}
}

// Pending reports whether steps remain, suspended ones included.
func (q *CommandQueue) Pending() bool { return len(q.steps) > 0 }

// Clear drops every remaining step and resets the delay offset. A suspended
// queue also tears down its confirmation subscription and timeout.
func (q *CommandQueue) Clear() {
	q.steps = nil
	q.wait = 0
	q.unsuspend()
}

// Run executes steps in order until the queue empties or a step suspends
// it. Resumption happens through the confirmation event handler. Calling
// Run on a suspended queue does nothing.
func (q *CommandQueue) Run() {
	if q.confirm != nil {
		return
	}
	for len(q.steps) > 0 {
		st := q.steps[0]
		q.steps = q.steps[1:]
		if !q.exec(st) {
			return
		}
	}
	q.wait = 0
}

// exec runs one step; false means the queue suspended.
func (q *CommandQueue) exec(st step) bool {
	switch st.kind {
	case stepTrackChannel:
		q.onTrack(st.server, st.channel)
		return true
	case stepNormal:
		q.transport.Send(st.server, st.command, st.wait)
		return true
	case stepAwaitOp:
		q.transport.Send(st.server, st.command, st.wait)
		q.suspend(st)
		return false
	}
	return true
}

func (q *CommandQueue) suspend(st step) {
	sub := q.bus.Subscribe(EventMode, func(ev Event) {
		if !sameName(ev.Server, st.server) || !sameName(ev.Channel, st.channel) {
			return
		}
		if !modeGrantsOp(ev, st.nick) {
			return
		}
		q.unsuspend()
		q.Run()
	})
	q.confirm = &sub
	q.timeout = q.clock.AfterFunc(opConfirmTimeout, func() {
		q.locker.Lock()
		defer q.locker.Unlock()
		if q.confirm == nil {
			// resumed or cleared before the lock was ours
			return
		}
		q.bus.Unsubscribe(*q.confirm)
		q.confirm = nil
		q.timeout = nil
		q.report(fmt.Errorf("could not get op in %s, purging command queue", st.channel))
		q.Clear()
	})
}

func (q *CommandQueue) unsuspend() {
	if q.confirm != nil {
		q.bus.Unsubscribe(*q.confirm)
		q.confirm = nil
	}
	if q.timeout != nil {
		q.timeout.Stop()
		q.timeout = nil
	}
}

func sameName(a, b string) bool { return Casefold(a) == Casefold(b) }

// modeGrantsOp reports whether a mode change event gives +o to nick.
func modeGrantsOp(ev Event, nick string) bool {
	adding := false
	argIdx := 0
	for i := 0; i < len(ev.Modes); i++ {
		switch c := ev.Modes[i]; c {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'o', 'v', 'h', 'b', 'q', 'e', 'I', 'k':
			// modes that consume an argument on change
			if argIdx >= len(ev.Args) {
				return false
			}
			arg := ev.Args[argIdx]
			argIdx++
			if c == 'o' && adding && sameName(arg, nick) {
				return true
			}
		}
	}
	return false
}
