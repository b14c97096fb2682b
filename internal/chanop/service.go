package chanop

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// releaseRecheck is how long a firing release timer waits before looking
// again when the command queue still has pending work.
const releaseRecheck = 5 * time.Second

var (
	// ErrNoOpCommand means no privilege-request command is configured for
	// the channel; nothing is queued in that case.
	ErrNoOpCommand = errors.New("no op command configured")

	// ErrNotOnChannel means the live state source does not know the
	// channel, usually because we have not joined it.
	ErrNotOnChannel = errors.New("not on a channel")
)

// defaultSettings mirrors the option defaults of the original helper.
// op_command has no default on purpose: requesting privilege is
// network-specific and must be configured.
var defaultSettings = map[string]string{
	"deop_command":        "MODE $channel -o $nick",
	"autodeop":            "on",
	"autodeop_delay":      "180",
	"default_banmask":     "host",
	"kick_reason":         "kthxbye!",
	"enable_remove":       "off",
	"display_affected":    "off",
	"uninteresting_modes": "ovjl",
}

// Service owns the operator-helper state for one process: both mask caches,
// the user cache, the command queue, the fetch FIFO, the tracked-channel
// set and the privilege release timers. All mutation is serialized on its
// mutex; event and timer callbacks take it before touching anything.
type Service struct {
	mu        sync.Mutex
	cfg       Config
	transport Transport
	state     ChannelState
	clock     Clock
	bus       *Bus

	users  *UserCache
	bans   *MaskCache
	quiets *MaskCache
	queue  *CommandQueue

	fetchQueue []fetchKey
	fetchSubs  []Subscription

	tracked       map[Key]bool
	releaseTimers map[Key]Timer

	// per-server capability advertisement
	listModes map[string]string
	maxModes  map[string]int

	// Notify delivers user-facing status lines; nil falls back to the log.
	Notify func(server, channel, text string)
}

// NewService wires a Service to its host-provided collaborators.
func NewService(cfg Config, transport Transport, state ChannelState, clock Clock) *Service {
	s := &Service{
		cfg:           cfg,
		transport:     transport,
		state:         state,
		clock:         clock,
		bus:           NewBus(),
		tracked:       make(map[Key]bool),
		releaseTimers: make(map[Key]Timer),
		listModes:     make(map[string]string),
		maxModes:      make(map[string]int),
	}
	s.users = NewUserCache(state)
	s.bans = NewMaskCache('b')
	s.quiets = NewMaskCache('q')
	s.queue = NewCommandQueue(transport, s.bus, clock, &s.mu, s.track, s.reportQueue)

	s.bus.Subscribe(EventJoin, s.handleJoin)
	s.bus.Subscribe(EventPart, s.handlePart)
	s.bus.Subscribe(EventQuit, s.handleQuit)
	s.bus.Subscribe(EventNick, s.handleNick)
	s.bus.Subscribe(EventMode, s.handleMode)
	s.bus.Subscribe(EventISupport, s.handleISupport)
	return s
}

// Dispatch feeds one decoded protocol event into the core. This is the only
// entry point for asynchronous events.
func (s *Service) Dispatch(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bus.Publish(ev)
}

// Track adds a channel to the tracked set.
func (s *Service) Track(server, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track(server, channel)
}

// IsTracked reports whether the channel is in the tracked set.
func (s *Service) IsTracked(server, channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracked[NewKey(server, channel)]
}

func (s *Service) track(server, channel string) {
	s.tracked[NewKey(server, channel)] = true
}

func (s *Service) reportQueue(err error) {
	log.Printf("chanop: %v", err)
}

func (s *Service) notify(server, channel, text string) {
	if s.Notify != nil {
		s.Notify(server, channel, text)
		return
	}
	log.Printf("chanop: [%s.%s] %s", server, channel, text)
}

// setting resolves an option through config (channel -> server -> global)
// and then the built-in defaults.
func (s *Service) setting(option, server, channel string) string {
	if v := s.cfg.Get(option, server, channel); v != "" {
		return v
	}
	return defaultSettings[option]
}

func (s *Service) settingBool(option, server, channel string) bool {
	v := s.setting(option, server, channel)
	switch v {
	case "on", "true", "yes":
		return true
	case "off", "false", "no":
		return false
	}
	def := defaultSettings[option]
	log.Printf("chanop: invalid value %q for option %s, using default %q", v, option, def)
	return def == "on"
}

func (s *Service) settingInt(option, server, channel string) int {
	v := s.setting(option, server, channel)
	n, err := strconv.Atoi(v)
	if err != nil {
		def := defaultSettings[option]
		log.Printf("chanop: invalid value %q for option %s, using default %q", v, option, def)
		n, _ = strconv.Atoi(def)
	}
	return n
}

func (s *Service) settingStrategy(server, channel string) MaskStrategy {
	v := s.setting("default_banmask", server, channel)
	st, ok := ParseMaskStrategy(v)
	if !ok {
		log.Printf("chanop: invalid value %q for option default_banmask, using default %q",
			v, defaultSettings["default_banmask"])
		st, _ = ParseMaskStrategy(defaultSettings["default_banmask"])
	}
	return st
}

func expandVars(tmpl, server, channel, nick string) string {
	return strings.NewReplacer(
		"$server", server,
		"$channel", channel,
		"$nick", nick,
	).Replace(tmpl)
}

// acquireOp queues the privilege request when we do not currently hold op,
// plus the step that marks the channel tracked. It reports whether op was
// already held.
func (s *Service) acquireOp(server, channel string) (bool, error) {
	self := s.state.SelfNick(server)
	held, ok := s.state.HasOp(server, channel, self)
	if !ok {
		return false, ErrNotOnChannel
	}
	if !held {
		tmpl := s.setting("op_command", server, channel)
		if tmpl == "" {
			return false, ErrNoOpCommand
		}
		s.queue.PushAwaitOp(server, channel, self, expandVars(tmpl, server, channel, self))
	}
	s.queue.PushTrack(server, channel)
	return held, nil
}

// withOp runs fn with operator privilege arranged: fn queues the actual
// commands, then the queue runs (suspending on the grant when needed).
// If op was held before we did anything and no auto-release is pending, the
// privilege is considered manually held and is never dropped on the
// operator's behalf.
func (s *Service) withOp(server, channel string, fn func() error) error {
	held, err := s.acquireOp(server, channel)
	if err != nil {
		return err
	}
	key := NewKey(server, channel)
	manual := held && s.releaseTimers[key] == nil
	if err := fn(); err != nil {
		s.queue.Clear()
		return err
	}
	s.queue.Run()
	if !manual && s.settingBool("autodeop", server, channel) {
		if delay := s.settingInt("autodeop_delay", server, channel); delay > 0 {
			s.scheduleRelease(server, channel, time.Duration(delay)*time.Second)
		} else {
			s.releaseNow(server, channel)
		}
	}
	return nil
}

// scheduleRelease arms the auto-deop timer for a channel, replacing any
// pending one so repeated activity extends the hold instead of stacking
// timers.
func (s *Service) scheduleRelease(server, channel string, d time.Duration) {
	key := NewKey(server, channel)
	if t := s.releaseTimers[key]; t != nil {
		t.Stop()
	}
	s.releaseTimers[key] = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.releaseFired(server, channel)
	})
}

func (s *Service) releaseFired(server, channel string) {
	key := NewKey(server, channel)
	if s.releaseTimers[key] == nil {
		return
	}
	if s.queue.Pending() {
		// commands still in flight, don't drop op mid-sequence
		s.releaseTimers[key] = s.clock.AfterFunc(releaseRecheck, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.releaseFired(server, channel)
		})
		return
	}
	delete(s.releaseTimers, key)
	s.dropOp(server, channel)
	s.queue.Run()
}

// releaseNow queues the release command behind whatever is already queued.
// The queue is only ever suspended on a pending grant, so a zero-delay
// release still lands after the privilege arrives.
func (s *Service) releaseNow(server, channel string) {
	self := s.state.SelfNick(server)
	tmpl := s.setting("deop_command", server, channel)
	s.queue.Push(server, expandVars(tmpl, server, channel, self))
	s.queue.Run()
}

// dropOp queues the release command if we currently hold op.
func (s *Service) dropOp(server, channel string) {
	self := s.state.SelfNick(server)
	if held, ok := s.state.HasOp(server, channel, self); !ok || !held {
		return
	}
	tmpl := s.setting("deop_command", server, channel)
	s.queue.Push(server, expandVars(tmpl, server, channel, self))
}

// Op requests operator privilege and keeps it: when already opped with an
// auto-release pending, the release is cancelled instead.
func (s *Service) Op(server, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, err := s.acquireOp(server, channel)
	if err != nil {
		return err
	}
	key := NewKey(server, channel)
	if held {
		if t := s.releaseTimers[key]; t != nil {
			t.Stop()
			delete(s.releaseTimers, key)
		}
	}
	s.queue.Run()
	return nil
}

// Deop drops operator privilege immediately.
func (s *Service) Deop(server, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := NewKey(server, channel)
	if t := s.releaseTimers[key]; t != nil {
		t.Stop()
		delete(s.releaseTimers, key)
	}
	s.dropOp(server, channel)
	s.queue.Run()
	return nil
}

// Kick removes one or more nicks from the channel.
func (s *Service) Kick(server, channel string, nicks []string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(nicks) == 0 {
		return errors.New("found nothing to kick")
	}
	return s.withOp(server, channel, func() error {
		if reason == "" {
			reason = s.setting("kick_reason", server, channel)
		}
		for _, nick := range nicks {
			s.pushKick(server, channel, nick, reason)
		}
		return nil
	})
}

func (s *Service) pushKick(server, channel, nick, reason string) {
	if s.settingBool("enable_remove", server, channel) {
		s.queue.Push(server, fmt.Sprintf("REMOVE %s %s :%s", channel, nick, reason))
		return
	}
	s.queue.Push(server, fmt.Sprintf("KICK %s %s :%s", channel, nick, reason))
}

// Ban sets ban masks for the given targets (nicks, hostmasks or raw masks).
// A zero strategy uses the configured default.
func (s *Service) Ban(server, channel string, targets []string, st MaskStrategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMasks(server, channel, targets, st, s.bans, "ban")
}

// Mute sets quiet masks; on servers without mode q it falls back to bans.
func (s *Service) Mute(server, channel string, targets []string, st MaskStrategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMasks(server, channel, targets, st, s.quiets, "mute")
}

func (s *Service) setMasks(server, channel string, targets []string, st MaskStrategy,
	cache *MaskCache, verb string) error {
	return s.withOp(server, channel, func() error {
		if st == 0 {
			st = s.settingStrategy(server, channel)
		}
		masks := s.resolveBanMasks(server, channel, targets, st)
		if len(masks) == 0 {
			return fmt.Errorf("found nothing to %s", verb)
		}
		s.pushMasks(server, channel, '+', cache.Mode(), masks)
		return nil
	})
}

// resolveBanMasks turns targets into concrete masks: known nicks become
// generated masks (devoicing them first so the mute or ban bites), complete
// hostmasks and anything unresolvable pass through as-is. Duplicates are
// dropped.
func (s *Service) resolveBanMasks(server, channel string, targets []string, st MaskStrategy) []string {
	users := s.users.Get(server, channel)
	seen := make(map[string]bool)
	var out []string
	for _, target := range targets {
		mask := target
		if !IsHostmask(target) {
			if hm, ok := users.Hostmask(target); ok {
				mask = BuildBanMask(ParseHostmask(hm), st)
				if voiced, _ := s.state.HasVoice(server, channel, target); voiced {
					s.queue.Push(server, fmt.Sprintf("MODE %s -v %s", channel, target))
				}
			}
		}
		if !seen[Casefold(mask)] {
			seen[Casefold(mask)] = true
			out = append(out, mask)
		}
	}
	return out
}

// pushMasks queues the mode changes for a set of masks, chunked to the
// server's advertised per-command mode limit.
func (s *Service) pushMasks(server, channel string, action byte, mode byte, masks []string) {
	if mode != 'b' && !s.modeSupported(server, mode) {
		log.Printf("chanop: %s does not support channel mode %c, using regular ban", server, mode)
		mode = 'b'
	}
	max := s.maxModes[Casefold(server)]
	if max <= 0 {
		max = 1
	}
	for i := 0; i < len(masks); i += max {
		chunk := masks[i:min(i+max, len(masks))]
		cmd := fmt.Sprintf("MODE %s %c%s %s", channel, action,
			strings.Repeat(string(mode), len(chunk)), strings.Join(chunk, " "))
		s.queue.Push(server, cmd)
	}
}

// Unban removes bans matching the given nicks, hostmasks or patterns.
func (s *Service) Unban(server, channel string, targets []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeMasks(server, channel, targets, s.bans, "unban")
}

// Unmute removes quiets matching the given nicks, hostmasks or patterns.
func (s *Service) Unmute(server, channel string, targets []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeMasks(server, channel, targets, s.quiets, "unmute")
}

func (s *Service) removeMasks(server, channel string, targets []string,
	cache *MaskCache, verb string) error {
	return s.withOp(server, channel, func() error {
		var masks []string
		for _, target := range targets {
			found := s.searchMasks(cache, target, server, channel)
			if len(found) == 0 {
				// no cached mask, take the argument at face value
				found = []string{target}
			}
			masks = append(masks, found...)
		}
		if len(masks) == 0 {
			return fmt.Errorf("found nothing to %s", verb)
		}
		s.pushMasks(server, channel, '-', cache.Mode(), masks)
		return nil
	})
}

// searchMasks resolves a query against the cache: nicks go through the user
// cache, hostmasks match directly, anything else is a wildcard pattern.
func (s *Service) searchMasks(cache *MaskCache, query, server, channel string) []string {
	switch {
	case IsHostmask(query):
		return cache.SearchByHostmask(query, server, channel)
	case IsNick(query):
		hm := s.users.HostFromNick(query, server, channel)
		return cache.SearchByHostmask(hm, server, channel)
	default:
		return cache.SearchByPattern(query, server, channel)
	}
}

// BanKick bans and then kicks each nick, composing the ban and kick
// operations on the shared helpers.
func (s *Service) BanKick(server, channel string, nicks []string, reason string, st MaskStrategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withOp(server, channel, func() error {
		if st == 0 {
			st = s.settingStrategy(server, channel)
		}
		if reason == "" {
			reason = s.setting("kick_reason", server, channel)
		}
		users := s.users.Get(server, channel)
		queued := false
		for _, nick := range nicks {
			hm, ok := users.Hostmask(nick)
			if !ok {
				continue
			}
			s.pushMasks(server, channel, '+', 'b', []string{BuildBanMask(ParseHostmask(hm), st)})
			s.pushKick(server, channel, nick, reason)
			queued = true
		}
		if !queued {
			return errors.New("found nothing to bankick")
		}
		return nil
	})
}

// Topic changes the channel topic.
func (s *Service) Topic(server, channel, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withOp(server, channel, func() error {
		s.queue.Push(server, fmt.Sprintf("TOPIC %s :%s", channel, topic))
		return nil
	})
}

// SetMode applies an arbitrary mode change to the channel.
func (s *Service) SetMode(server, channel, modes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withOp(server, channel, func() error {
		s.queue.Push(server, fmt.Sprintf("MODE %s %s", channel, modes))
		return nil
	})
}

// Voice grants voice to the given nicks.
func (s *Service) Voice(server, channel string, nicks []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withOp(server, channel, func() error {
		for _, nick := range nicks {
			s.queue.Push(server, fmt.Sprintf("MODE %s +v %s", channel, nick))
		}
		return nil
	})
}

// Devoice removes voice from the given nicks.
func (s *Service) Devoice(server, channel string, nicks []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withOp(server, channel, func() error {
		for _, nick := range nicks {
			s.queue.Push(server, fmt.Sprintf("MODE %s -v %s", channel, nick))
		}
		return nil
	})
}

// Sync refreshes the user cache snapshot and fetches every supported mask
// list for the channel.
func (s *Service) Sync(server, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users.Snapshot(server, channel)
	for _, mode := range []byte(s.supportedModes(server)) {
		s.fetchMasks(server, channel, mode)
	}
}

// SnapshotUsers rebuilds the channel's user cache from the live membership
// source. Hosts call it once the server's WHO reply is complete.
func (s *Service) SnapshotUsers(server, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users.Snapshot(server, channel)
}

// Masks returns the cached records for a channel's list mode, oldest first.
func (s *Service) Masks(server, channel string, mode byte) []*MaskRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if list, ok := s.cacheFor(mode).List(server, channel); ok {
		return list.Records()
	}
	return nil
}

// KnownNick reports whether nick is currently in the channel's user cache.
func (s *Service) KnownNick(server, channel, nick string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users.Get(server, channel).Has(nick)
}

// HostmaskFor resolves a nick through the user cache.
func (s *Service) HostmaskFor(server, channel, nick string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users.HostFromNick(nick, server, channel)
}

// StoredMask is one mask cache record flattened for persistence.
type StoredMask struct {
	Mode     byte
	Server   string
	Channel  string
	Mask     string
	Operator string
	Date     time.Time
}

// DumpMasks flattens both mask caches into a stable, sorted record list so
// the host can persist them across restarts.
func (s *Service) DumpMasks() []StoredMask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StoredMask
	for _, cache := range []*MaskCache{s.bans, s.quiets} {
		for key, list := range cache.lists {
			for _, rec := range list.Records() {
				out = append(out, StoredMask{
					Mode:     cache.mode,
					Server:   key.Server,
					Channel:  key.Channel,
					Mask:     rec.Mask,
					Operator: rec.Operator,
					Date:     rec.Date,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Mode != b.Mode {
			return a.Mode < b.Mode
		}
		if a.Server != b.Server {
			return a.Server < b.Server
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Mask < b.Mask
	})
	return out
}

// RestoreMasks seeds the mask caches from persisted records. Lists for
// channels that never become tracked are dropped by the next collection.
func (s *Service) RestoreMasks(entries []StoredMask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.cacheFor(e.Mode).Add(e.Server, e.Channel, e.Mask, MaskRecord{
			Operator: e.Operator,
			Date:     e.Date,
		})
	}
}

func (s *Service) cacheFor(mode byte) *MaskCache {
	if mode == 'q' {
		return s.quiets
	}
	return s.bans
}

// supportedModes returns the server's advertised type A (list) modes.
func (s *Service) supportedModes(server string) string {
	if modes, ok := s.listModes[Casefold(server)]; ok && modes != "" {
		return modes
	}
	return "b"
}

func (s *Service) modeSupported(server string, mode byte) bool {
	return strings.IndexByte(s.supportedModes(server), mode) >= 0
}
