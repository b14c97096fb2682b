package chanop

// The core never touches the network or the process environment directly;
// the host hands it these capabilities.

// Transport issues raw protocol commands. delay is in outgoing-queue time
// units (seconds); the transport performs the delay itself so the core
// never sleeps.
type Transport interface {
	Send(server, command string, delay int)
}

// Member is one channel member as reported by the live state source.
type Member struct {
	Nick     string
	Hostmask string
	Op       bool
	Voice    bool
}

// ChannelState answers live queries about current channel membership and
// privilege flags. All answers reflect the present, not the caches.
type ChannelState interface {
	// SelfNick returns our own current nick on the given server.
	SelfNick(server string) string
	// Members returns the full member snapshot. ok is false when we are
	// not on the channel.
	Members(server, channel string) (members []Member, ok bool)
	// HasOp reports whether nick holds channel-operator status. ok is
	// false when the channel or nick is unknown.
	HasOp(server, channel, nick string) (op bool, ok bool)
	// HasVoice reports whether nick holds voice.
	HasVoice(server, channel, nick string) (voice bool, ok bool)
}

// Config resolves a string-valued setting through the fallback chain
// channel -> server -> global. An empty string means unset.
type Config interface {
	Get(option, server, channel string) string
}
