package chanop

import (
	"sort"
	"time"
)

// MaskRecord is one cached access-control entry (ban or quiet).
type MaskRecord struct {
	Mask      string
	Hostmasks []string  // members the mask matched when it was set
	Operator  string    // hostmask of whoever set it
	Date      time.Time // when it was set
	Expires   time.Time // zero means never
}

// merge overwrites only the fields the update actually carries; repeated
// sets of the same mask accumulate information instead of losing it.
func (r *MaskRecord) merge(update MaskRecord) {
	if len(update.Hostmasks) > 0 {
		r.Hostmasks = update.Hostmasks
	}
	if update.Operator != "" {
		r.Operator = update.Operator
	}
	if !update.Date.IsZero() {
		r.Date = update.Date
	}
	if !update.Expires.IsZero() {
		r.Expires = update.Expires
	}
}

// MaskList holds the known masks of one channel for one list mode, keyed
// case-insensitively. FetchTime is the last successful bulk fetch.
type MaskList struct {
	records   map[string]*MaskRecord
	FetchTime time.Time
}

// NewMaskList returns an empty mask list.
func NewMaskList() *MaskList {
	return &MaskList{records: make(map[string]*MaskRecord)}
}

// Set upserts a mask, merging non-empty fields into an existing record.
func (l *MaskList) Set(mask string, update MaskRecord) {
	key := Casefold(mask)
	if rec, ok := l.records[key]; ok {
		rec.merge(update)
		return
	}
	rec := &MaskRecord{Mask: mask}
	rec.merge(update)
	l.records[key] = rec
}

// Get looks a mask up under any casing.
func (l *MaskList) Get(mask string) (*MaskRecord, bool) {
	rec, ok := l.records[Casefold(mask)]
	return rec, ok
}

// Delete removes a mask under any casing.
func (l *MaskList) Delete(mask string) {
	delete(l.records, Casefold(mask))
}

// Len counts cached masks.
func (l *MaskList) Len() int { return len(l.records) }

// Records returns the cached records ordered by set time.
func (l *MaskList) Records() []*MaskRecord {
	out := make([]*MaskRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// SearchByHostmask returns the masks matching a concrete hostmask.
func (l *MaskList) SearchByHostmask(hostmask string) []string {
	var out []string
	for _, rec := range l.records {
		if len(MatchHostmasks(rec.Mask, []string{hostmask})) > 0 {
			out = append(out, rec.Mask)
		}
	}
	return out
}

// SearchByPattern returns the masks matching a wildcard pattern.
func (l *MaskList) SearchByPattern(pattern string) []string {
	var out []string
	for _, rec := range l.records {
		if MatchPattern(pattern, rec.Mask) {
			out = append(out, rec.Mask)
		}
	}
	return out
}

func (l *MaskList) purge(now time.Time) {
	for key, rec := range l.records {
		if !rec.Expires.IsZero() && now.After(rec.Expires) {
			delete(l.records, key)
		}
	}
}

// MaskCache keeps the mask lists of every tracked channel for one list
// mode ('b' for bans, 'q' for quiets).
type MaskCache struct {
	mode  byte
	lists map[Key]*MaskList
}

// NewMaskCache returns an empty cache for the given list mode.
func NewMaskCache(mode byte) *MaskCache {
	return &MaskCache{mode: mode, lists: make(map[Key]*MaskList)}
}

// Mode returns the list mode character this cache covers.
func (c *MaskCache) Mode() byte { return c.mode }

// List returns the mask list for a channel, if any.
func (c *MaskCache) List(server, channel string) (*MaskList, bool) {
	list, ok := c.lists[NewKey(server, channel)]
	return list, ok
}

func (c *MaskCache) ensure(key Key) *MaskList {
	list, ok := c.lists[key]
	if !ok {
		list = NewMaskList()
		c.lists[key] = list
	}
	return list
}

// Add upserts a mask into the channel's list, creating the list on demand.
func (c *MaskCache) Add(server, channel, mask string, update MaskRecord) {
	c.ensure(NewKey(server, channel)).Set(mask, update)
}

// Remove deletes a single mask, or the whole list when mask is empty.
func (c *MaskCache) Remove(server, channel, mask string) {
	key := NewKey(server, channel)
	if mask == "" {
		delete(c.lists, key)
		return
	}
	if list, ok := c.lists[key]; ok {
		list.Delete(mask)
	}
}

// SearchByHostmask returns the channel's masks matching a hostmask.
func (c *MaskCache) SearchByHostmask(hostmask, server, channel string) []string {
	if hostmask == "" {
		return nil
	}
	if list, ok := c.List(server, channel); ok {
		return list.SearchByHostmask(hostmask)
	}
	return nil
}

// SearchByPattern returns the channel's masks matching a wildcard pattern.
func (c *MaskCache) SearchByPattern(pattern, server, channel string) []string {
	if pattern == "" {
		return nil
	}
	if list, ok := c.List(server, channel); ok {
		return list.SearchByPattern(pattern)
	}
	return nil
}

// purge expires dated masks and drops lists for untracked channels.
func (c *MaskCache) purge(tracked func(Key) bool, now time.Time) {
	for key, list := range c.lists {
		if !tracked(key) {
			delete(c.lists, key)
			continue
		}
		list.purge(now)
	}
}
