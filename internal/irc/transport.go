package irc

import (
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"golang.org/x/time/rate"
)

// transport implements chanop.Transport on top of the IRC connection. The
// core's delay units become transport-side timers, and a token bucket keeps
// bursts under the server's flood limits regardless of queue spacing.
type transport struct {
	conn    *ircevent.Connection
	limiter *rate.Limiter
}

func newTransport(conn *ircevent.Connection) *transport {
	// one command per second sustained, small burst allowance
	return &transport{conn: conn, limiter: rate.NewLimiter(rate.Limit(1), 4)}
}

// Send implements chanop.Transport. The server argument is carried for the
// core's benefit; this client speaks to a single network.
func (t *transport) Send(_, command string, delay int) {
	res := t.limiter.Reserve()
	wait := res.Delay() + time.Duration(delay)*time.Second
	if wait <= 0 {
		t.conn.SendRaw(command)
		return
	}
	time.AfterFunc(wait, func() {
		t.conn.SendRaw(command)
	})
}
