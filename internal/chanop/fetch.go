package chanop

import (
	"fmt"
	"log"
	"time"
)

// fetchFreshness suppresses refetching a list that completed recently.
const fetchFreshness = 60 * time.Second

// fetchKey identifies one in-flight bulk-fetch exchange. The display-cased
// channel is kept for the outgoing command.
type fetchKey struct {
	key     Key
	mode    byte
	channel string
}

// fetchMasks starts a bulk fetch of a channel's mask list unless the mode is
// unsupported, a recent fetch already completed, or the same fetch is
// already queued. Concurrent fetches share one pair of list subscriptions;
// the outgoing request is delayed in proportion to the queue depth so
// stacked fetches do not collide.
func (s *Service) fetchMasks(server, channel string, mode byte) {
	if !s.modeSupported(server, mode) {
		return
	}
	if list, ok := s.cacheFor(mode).List(server, channel); ok {
		if s.clock.Now().Sub(list.FetchTime) < fetchFreshness {
			return
		}
	}
	fk := fetchKey{key: NewKey(server, channel), mode: mode, channel: channel}
	for _, q := range s.fetchQueue {
		if q.key == fk.key && q.mode == fk.mode {
			return
		}
	}
	s.fetchQueue = append(s.fetchQueue, fk)
	if len(s.fetchSubs) == 0 {
		s.fetchSubs = []Subscription{
			s.bus.Subscribe(EventListEntry, s.handleListEntry),
			s.bus.Subscribe(EventListEnd, s.handleListEnd),
		}
	}
	s.transport.Send(server, fmt.Sprintf("MODE %s +%c", channel, mode), len(s.fetchQueue))
	s.notify(server, channel, fmt.Sprintf("fetching %s masks (+%c channel mode)", channel, mode))
}

// handleListEntry files a bulk-list reply under the fetch FIFO's head. A
// reply for a different channel is logged but still filed against the head;
// replies carry no request tag, so the head is all we have to go on.
func (s *Service) handleListEntry(ev Event) {
	if len(s.fetchQueue) == 0 {
		return
	}
	head := s.fetchQueue[0]
	if NewKey(ev.Server, ev.Channel) != head.key {
		log.Printf("chanop: got mask from unexpected channel: expected %s.%s, got %s.%s",
			head.key.Server, head.key.Channel, ev.Server, ev.Channel)
	}
	date := ev.Date
	if date.IsZero() {
		date = s.clock.Now()
	}
	s.cacheFor(head.mode).Add(head.key.Server, head.key.Channel, ev.Mask, MaskRecord{
		Operator: ev.Operator,
		Date:     date,
	})
}

// handleListEnd completes the head fetch: stamps the list's fetch time,
// pops the FIFO and drops the shared subscriptions once nothing is in
// flight anymore.
func (s *Service) handleListEnd(ev Event) {
	if len(s.fetchQueue) == 0 {
		return
	}
	head := s.fetchQueue[0]
	s.fetchQueue = s.fetchQueue[1:]
	cache := s.cacheFor(head.mode)
	list := cache.ensure(head.key)
	list.FetchTime = s.clock.Now()
	if list.Len() > 0 {
		s.notify(head.key.Server, head.channel,
			fmt.Sprintf("got %s +%c masks (%d masks)", head.channel, head.mode, list.Len()))
	}
	if len(s.fetchQueue) == 0 {
		for _, sub := range s.fetchSubs {
			s.bus.Unsubscribe(sub)
		}
		s.fetchSubs = nil
	}
}
