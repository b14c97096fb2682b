package chanop

import "log"

// Collect prunes stale cache state: expired masks, users past their
// departure grace period, and whole lists for channels that fell out of the
// tracked set. The host drives it periodically.
func (s *Service) Collect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	tracked := func(key Key) bool { return s.tracked[key] }
	s.bans.purge(tracked, now)
	s.quiets.purge(tracked, now)
	s.users.purge(tracked, now)
	log.Printf("chanop: collector: %d ban lists, %d quiet lists, %d user lists cached",
		len(s.bans.lists), len(s.quiets.lists), len(s.users.lists))
}
