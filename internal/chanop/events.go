package chanop

import (
	"strconv"
	"strings"
)

// Event reconciliation: these handlers are the only place asynchronous
// membership and mode events mutate the caches.

func (s *Service) handleJoin(ev Event) {
	if sameName(ev.Nick, s.state.SelfNick(ev.Server)) {
		// At our own join the live tracker knows only us; the member
		// list arrives via WHO afterwards. Drop any stale list and let
		// the next use (or the end-of-WHO reply) snapshot fresh state.
		s.users.Invalidate(ev.Server, ev.Channel)
		return
	}
	if list, ok := s.users.Lookup(ev.Server, ev.Channel); ok {
		list.Set(ev.Nick, ev.Hostmask)
	}
}

func (s *Service) handlePart(ev Event) {
	if list, ok := s.users.Lookup(ev.Server, ev.Channel); ok {
		list.Remove(ev.Nick, s.clock.Now())
	}
}

func (s *Service) handleQuit(ev Event) {
	now := s.clock.Now()
	for _, key := range s.users.KeysWithNick(ev.Server, ev.Nick) {
		if list, ok := s.users.Lookup(key.Server, key.Channel); ok {
			list.Remove(ev.Nick, now)
		}
	}
}

func (s *Service) handleNick(ev Event) {
	old := ParseHostmask(ev.Hostmask)
	newHostmask := Hostmask{Nick: ev.NewNick, User: old.User, Host: old.Host}.String()
	now := s.clock.Now()
	for _, key := range s.users.KeysWithNick(ev.Server, ev.Nick) {
		if list, ok := s.users.Lookup(key.Server, key.Channel); ok {
			list.Remove(ev.Nick, now)
			list.Set(ev.NewNick, newHostmask)
		}
	}
}

// modeChange is one (action, mode, argument) triple split out of a raw mode
// string.
type modeChange struct {
	add  bool
	mode byte
	arg  string
}

// parseModeChanges splits "+b-o+v mask nick nick" style changes into
// triples, keeping only the server's list modes. Arguments of o and v are
// consumed and dropped.
func parseModeChanges(modes string, args []string, listModes string) []modeChange {
	adding := false
	var out []modeChange
	for i := 0; i < len(modes); i++ {
		switch c := modes[i]; {
		case c == '+':
			adding = true
		case c == '-':
			adding = false
		case strings.IndexByte(listModes, c) >= 0:
			if len(args) == 0 {
				return out
			}
			out = append(out, modeChange{add: adding, mode: c, arg: args[0]})
			args = args[1:]
		case c == 'o' || c == 'v':
			if len(args) > 0 {
				args = args[1:]
			}
		}
	}
	return out
}

// handleMode keeps the mask caches consistent with mode changes made by
// anyone on the channel.
func (s *Service) handleMode(ev Event) {
	if len(ev.Args) == 0 {
		// mode change without arguments, nothing mask-related
		return
	}
	stripped := strings.Map(func(r rune) rune {
		if r == '+' || r == '-' {
			return -1
		}
		return r
	}, ev.Modes)
	uninteresting := s.setting("uninteresting_modes", ev.Server, ev.Channel)
	if allModesIn(stripped, uninteresting) {
		return
	}
	key := NewKey(ev.Server, ev.Channel)
	_, inBans := s.bans.List(ev.Server, ev.Channel)
	_, inQuiets := s.quiets.List(ev.Server, ev.Channel)
	if !inBans && !inQuiets && !s.tracked[key] {
		return
	}
	var affected []string
	for _, ch := range parseModeChanges(ev.Modes, ev.Args, s.supportedModes(ev.Server)) {
		cache := s.cacheFor(ch.mode)
		if !ch.add {
			cache.Remove(ev.Server, ev.Channel, ch.arg)
			continue
		}
		matched := MatchHostmasks(ch.arg, s.users.Get(ev.Server, ev.Channel).Hostmasks())
		affected = append(affected, matched...)
		cache.Add(ev.Server, ev.Channel, ch.arg, MaskRecord{
			Operator:  ev.Hostmask,
			Date:      s.clock.Now(),
			Hostmasks: matched,
		})
	}
	if len(affected) > 0 && s.settingBool("display_affected", ev.Server, ev.Channel) {
		s.notify(ev.Server, ev.Channel, formatAffected(affected))
	}
}

func allModesIn(modes, set string) bool {
	for i := 0; i < len(modes); i++ {
		if strings.IndexByte(set, modes[i]) < 0 {
			return false
		}
	}
	return true
}

// formatAffected renders the members a new mask matched, eight at most.
func formatAffected(hostmasks []string) string {
	const maxShown = 8
	seen := make(map[string]bool)
	var uniq []string
	for _, hm := range hostmasks {
		if !seen[Casefold(hm)] {
			seen[Casefold(hm)] = true
			uniq = append(uniq, hm)
		}
	}
	shown := uniq
	suffix := ""
	if len(shown) > maxShown {
		shown = shown[:maxShown]
		suffix = " ..."
	}
	return "affects (" + strconv.Itoa(len(uniq)) + "): " + strings.Join(shown, " ") + suffix
}

// handleISupport records the server's list modes (CHANMODES type A) and the
// per-command mode limit (MODES).
func (s *Service) handleISupport(ev Event) {
	server := Casefold(ev.Server)
	if v, ok := ev.Tokens["CHANMODES"]; ok {
		if groups := strings.Split(v, ","); len(groups) > 0 {
			s.listModes[server] = groups[0]
		}
	}
	if v, ok := ev.Tokens["MODES"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.maxModes[server] = n
		}
	}
}
