package chanop

import (
	"time"
)

// Test doubles shared by the package tests: a simulated clock, a recording
// transport, an in-memory channel state and a flat config.

type fakeTimer struct {
	when    time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves simulated time forward, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.when.After(target) {
				continue
			}
			if next == nil || t.when.Before(next.when) {
				next = t
			}
		}
		if next == nil {
			break
		}
		c.now = next.when
		next.fired = true
		next.f()
	}
	c.now = target
}

// active counts timers that are armed but have not fired.
func (c *fakeClock) active() int {
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type sentCommand struct {
	server  string
	command string
	delay   int
}

type fakeTransport struct {
	sent []sentCommand
}

func (t *fakeTransport) Send(server, command string, delay int) {
	t.sent = append(t.sent, sentCommand{server: server, command: command, delay: delay})
}

func (t *fakeTransport) commands() []string {
	out := make([]string, len(t.sent))
	for i, s := range t.sent {
		out[i] = s.command
	}
	return out
}

type fakeState struct {
	self     string
	channels map[string][]Member // keyed by casefolded channel name
}

func (s *fakeState) SelfNick(server string) string { return s.self }

func (s *fakeState) Members(server, channel string) ([]Member, bool) {
	members, ok := s.channels[Casefold(channel)]
	return members, ok
}

func (s *fakeState) find(channel, nick string) (Member, bool) {
	for _, m := range s.channels[Casefold(channel)] {
		if Casefold(m.Nick) == Casefold(nick) {
			return m, true
		}
	}
	return Member{}, false
}

func (s *fakeState) HasOp(server, channel, nick string) (bool, bool) {
	if _, ok := s.channels[Casefold(channel)]; !ok {
		return false, false
	}
	m, ok := s.find(channel, nick)
	if !ok {
		return false, false
	}
	return m.Op, true
}

func (s *fakeState) HasVoice(server, channel, nick string) (bool, bool) {
	if _, ok := s.channels[Casefold(channel)]; !ok {
		return false, false
	}
	m, ok := s.find(channel, nick)
	if !ok {
		return false, false
	}
	return m.Voice, true
}

func (s *fakeState) setOp(channel, nick string, op bool) {
	members := s.channels[Casefold(channel)]
	for i := range members {
		if Casefold(members[i].Nick) == Casefold(nick) {
			members[i].Op = op
		}
	}
}

// fakeConfig resolves options with the same fallback chain as the real
// config: "option@server@channel", then "option@server", then "option".
type fakeConfig map[string]string

func (c fakeConfig) Get(option, server, channel string) string {
	if v, ok := c[option+"@"+server+"@"+channel]; ok {
		return v
	}
	if v, ok := c[option+"@"+server]; ok {
		return v
	}
	return c[option]
}
