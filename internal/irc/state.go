package irc

import (
	"strings"
	"sync"

	"github.com/nuclearw/chanop/internal/chanop"
)

type memberInfo struct {
	nick     string
	hostmask string
	op       bool
	voice    bool
}

// channelState tracks live channel membership and privilege flags from
// JOIN/PART/QUIT/NICK/MODE traffic plus WHO and NAMES replies. It backs the
// core's ChannelState queries. One instance covers the single network this
// client is connected to.
type channelState struct {
	mu       sync.Mutex
	self     string
	channels map[string]map[string]*memberInfo
}

func newChannelState() *channelState {
	return &channelState{channels: make(map[string]map[string]*memberInfo)}
}

func fold(s string) string { return strings.ToLower(s) }

// SelfNick implements chanop.ChannelState.
func (st *channelState) SelfNick(string) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.self
}

// Members implements chanop.ChannelState.
func (st *channelState) Members(_, channel string) ([]chanop.Member, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	members, ok := st.channels[fold(channel)]
	if !ok {
		return nil, false
	}
	out := make([]chanop.Member, 0, len(members))
	for _, m := range members {
		out = append(out, chanop.Member{
			Nick:     m.nick,
			Hostmask: m.hostmask,
			Op:       m.op,
			Voice:    m.voice,
		})
	}
	return out, true
}

// HasOp implements chanop.ChannelState.
func (st *channelState) HasOp(_, channel, nick string) (bool, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.member(channel, nick)
	if !ok {
		return false, false
	}
	return m.op, true
}

// HasVoice implements chanop.ChannelState.
func (st *channelState) HasVoice(_, channel, nick string) (bool, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.member(channel, nick)
	if !ok {
		return false, false
	}
	return m.voice, true
}

func (st *channelState) member(channel, nick string) (*memberInfo, bool) {
	members, ok := st.channels[fold(channel)]
	if !ok {
		return nil, false
	}
	m, ok := members[fold(nick)]
	return m, ok
}

func (st *channelState) setSelf(nick string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.self = nick
}

func (st *channelState) joined(channel, nick, hostmask string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	key := fold(channel)
	if fold(nick) == fold(st.self) {
		st.channels[key] = make(map[string]*memberInfo)
	}
	members, ok := st.channels[key]
	if !ok {
		return
	}
	members[fold(nick)] = &memberInfo{nick: nick, hostmask: hostmask}
}

func (st *channelState) parted(channel, nick string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	key := fold(channel)
	if fold(nick) == fold(st.self) {
		delete(st.channels, key)
		return
	}
	if members, ok := st.channels[key]; ok {
		delete(members, fold(nick))
	}
}

func (st *channelState) quit(nick string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, members := range st.channels {
		delete(members, fold(nick))
	}
}

func (st *channelState) renamed(oldNick, newNick string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if fold(oldNick) == fold(st.self) {
		st.self = newNick
	}
	for _, members := range st.channels {
		if m, ok := members[fold(oldNick)]; ok {
			delete(members, fold(oldNick))
			m.nick = newNick
			if i := strings.IndexByte(m.hostmask, '!'); i >= 0 {
				m.hostmask = newNick + m.hostmask[i:]
			}
			members[fold(newNick)] = m
		}
	}
}

// whoReply records hostmask and flags from a WHO reply line.
func (st *channelState) whoReply(channel, nick, user, host, flags string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	members, ok := st.channels[fold(channel)]
	if !ok {
		return
	}
	m, ok := members[fold(nick)]
	if !ok {
		m = &memberInfo{nick: nick}
		members[fold(nick)] = m
	}
	m.hostmask = nick + "!" + user + "@" + host
	m.op = strings.Contains(flags, "@")
	m.voice = strings.Contains(flags, "+")
}

// namesReply records prefixed nicks from a NAMES reply line.
func (st *channelState) namesReply(channel string, names []string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	members, ok := st.channels[fold(channel)]
	if !ok {
		return
	}
	for _, name := range names {
		var op, voice bool
		for len(name) > 0 {
			if name[0] == '@' {
				op = true
			} else if name[0] == '+' {
				voice = true
			} else if name[0] != '%' && name[0] != '&' && name[0] != '~' {
				break
			}
			name = name[1:]
		}
		if name == "" {
			continue
		}
		m, ok := members[fold(name)]
		if !ok {
			m = &memberInfo{nick: name}
			members[fold(name)] = m
		}
		m.op = op
		m.voice = voice
	}
}

// modeChanged applies +o/-o/+v/-v flag updates.
func (st *channelState) modeChanged(channel, modes string, args []string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	members, ok := st.channels[fold(channel)]
	if !ok {
		return
	}
	adding := false
	for i := 0; i < len(modes); i++ {
		switch c := modes[i]; c {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'o', 'v', 'h', 'b', 'q', 'e', 'I', 'k':
			if len(args) == 0 {
				continue
			}
			arg := args[0]
			args = args[1:]
			if m, ok := members[fold(arg)]; ok {
				switch c {
				case 'o':
					m.op = adding
				case 'v':
					m.voice = adding
				}
			}
		}
	}
}
