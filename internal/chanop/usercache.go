package chanop

import "time"

// userGracePeriod is how long a departed nick stays bannable before purge.
const userGracePeriod = time.Hour

type userEntry struct {
	nick     string // original casing, for display
	hostmask string
}

// UserList maps the nicks of one channel to their hostmasks. Lookups are
// case-insensitive. Departed nicks are only marked for removal; they stay
// visible for a grace period so bans can still be built against users who
// just left.
type UserList struct {
	users   map[string]userEntry
	pending map[string]time.Time
}

// NewUserList returns an empty user list.
func NewUserList() *UserList {
	return &UserList{
		users:   make(map[string]userEntry),
		pending: make(map[string]time.Time),
	}
}

// Set inserts or updates a nick. A re-arriving nick loses its
// pending-removal mark.
func (l *UserList) Set(nick, hostmask string) {
	key := Casefold(nick)
	l.users[key] = userEntry{nick: nick, hostmask: hostmask}
	delete(l.pending, key)
}

// Hostmask looks up a nick's hostmask.
func (l *UserList) Hostmask(nick string) (string, bool) {
	e, ok := l.users[Casefold(nick)]
	return e.hostmask, ok
}

// Has reports whether the nick is known (including pending removal).
func (l *UserList) Has(nick string) bool {
	_, ok := l.users[Casefold(nick)]
	return ok
}

// Remove marks a nick for deferred deletion at the given time.
func (l *UserList) Remove(nick string, now time.Time) {
	key := Casefold(nick)
	if _, ok := l.users[key]; ok {
		l.pending[key] = now
	}
}

// Len counts known nicks, pending removals included.
func (l *UserList) Len() int { return len(l.users) }

// Nicks returns the display-cased nicks of the list.
func (l *UserList) Nicks() []string {
	out := make([]string, 0, len(l.users))
	for _, e := range l.users {
		out = append(out, e.nick)
	}
	return out
}

// Hostmasks returns every known hostmask.
func (l *UserList) Hostmasks() []string {
	out := make([]string, 0, len(l.users))
	for _, e := range l.users {
		out = append(out, e.hostmask)
	}
	return out
}

func (l *UserList) purge(now time.Time) {
	for key, when := range l.pending {
		if now.Sub(when) > userGracePeriod {
			delete(l.pending, key)
			delete(l.users, key)
		}
	}
}

// UserCache holds one UserList per (server, channel), built lazily from the
// live membership source and kept current by the event handlers.
type UserCache struct {
	state ChannelState
	lists map[Key]*UserList
}

// NewUserCache returns an empty cache backed by the given live source.
func NewUserCache(state ChannelState) *UserCache {
	return &UserCache{state: state, lists: make(map[Key]*UserList)}
}

// Snapshot rebuilds the list for a channel from the live membership source,
// replacing any cached entry. If we are not on the channel the result is an
// empty, uncached list.
func (c *UserCache) Snapshot(server, channel string) *UserList {
	members, ok := c.state.Members(server, channel)
	list := NewUserList()
	if !ok {
		return list
	}
	for _, m := range members {
		list.Set(m.Nick, m.Hostmask)
	}
	c.lists[NewKey(server, channel)] = list
	return list
}

// Get returns the cached list for a channel, populating it on first use.
func (c *UserCache) Get(server, channel string) *UserList {
	if list, ok := c.lists[NewKey(server, channel)]; ok {
		return list
	}
	return c.Snapshot(server, channel)
}

// Invalidate drops the cached list for a channel so the next use rebuilds it.
func (c *UserCache) Invalidate(server, channel string) {
	delete(c.lists, NewKey(server, channel))
}

// Lookup returns the cached list without populating it.
func (c *UserCache) Lookup(server, channel string) (*UserList, bool) {
	list, ok := c.lists[NewKey(server, channel)]
	return list, ok
}

// HostFromNick resolves a nick to its hostmask, searching the given channel
// first and then every other channel on the server.
func (c *UserCache) HostFromNick(nick, server, channel string) string {
	if channel != "" {
		if hm, ok := c.Get(server, channel).Hostmask(nick); ok {
			return hm
		}
	}
	serverKey := Casefold(server)
	for key, list := range c.lists {
		if key.Server != serverKey {
			continue
		}
		if hm, ok := list.Hostmask(nick); ok {
			return hm
		}
	}
	return ""
}

// KeysWithNick returns the keys of every channel on server where nick is
// present.
func (c *UserCache) KeysWithNick(server, nick string) []Key {
	serverKey := Casefold(server)
	var out []Key
	for key, list := range c.lists {
		if key.Server == serverKey && list.Has(nick) {
			out = append(out, key)
		}
	}
	return out
}

// purge expires grace-period entries and drops lists for channels that are
// no longer tracked.
func (c *UserCache) purge(tracked func(Key) bool, now time.Time) {
	for key, list := range c.lists {
		if !tracked(key) {
			delete(c.lists, key)
			continue
		}
		list.purge(now)
	}
}
