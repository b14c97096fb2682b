package chanop

import (
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ergochat/irc-go/ircmsg"
)

// Casefold normalizes a nick, channel or server name for use as a map key.
// IRC identifiers are case-insensitive, so all cache lookups go through this.
func Casefold(s string) string {
	return strings.ToLower(s)
}

// Key identifies one channel on one network. Both parts are casefolded so
// that (server, channel) pairs compare equal regardless of input casing.
type Key struct {
	Server  string
	Channel string
}

// NewKey builds a casefolded cache key.
func NewKey(server, channel string) Key {
	return Key{Server: Casefold(server), Channel: Casefold(channel)}
}

// Hostmask is a decomposed nick!user@host identity.
type Hostmask struct {
	Nick string
	User string
	Host string
}

// IsZero reports whether the hostmask could not be parsed.
func (h Hostmask) IsZero() bool {
	return h.Nick == "" && h.User == "" && h.Host == ""
}

// String reassembles the canonical nick!user@host form.
func (h Hostmask) String() string {
	nuh := ircmsg.NUH{Name: h.Nick, User: h.User, Host: h.Host}
	return nuh.Canonical()
}

// ParseHostmask splits a nick!user@host string. Malformed input (missing
// '!' or '@') yields the zero Hostmask rather than an error; callers treat
// that as "no match".
func ParseHostmask(s string) Hostmask {
	nuh, err := ircmsg.ParseNUH(s)
	if err != nil || nuh.User == "" || nuh.Host == "" {
		return Hostmask{}
	}
	return Hostmask{Nick: nuh.Name, User: nuh.User, Host: nuh.Host}
}

// IsHostmask reports whether s looks like a complete nick!user@host string.
func IsHostmask(s string) bool {
	return !ParseHostmask(s).IsZero()
}

var nickRe = regexp.MustCompile("^[A-Za-z\\[\\]\\\\`_^{|}][-0-9A-Za-z\\[\\]\\\\`_^{|}]*$")

// IsNick reports whether s is a plausible IRC nickname.
func IsNick(s string) bool {
	return nickRe.MatchString(s)
}

// TrimUser strips ident-service decorations ("~", "i=", "n=") from the user
// part of a hostmask.
func TrimUser(user string) string {
	switch {
	case strings.HasPrefix(user, "~"):
		return user[1:]
	case strings.HasPrefix(user, "i="), strings.HasPrefix(user, "n="):
		return user[2:]
	}
	return user
}

var (
	patternMu    sync.Mutex
	patternCache = make(map[string]*regexp.Regexp)
)

// compilePattern turns a '*'/'?' wildcard mask into an anchored,
// case-insensitive regexp. Compiled patterns are cached forever, keyed by the
// literal pattern string; the mask vocabulary is operator-driven and small.
func compilePattern(pattern string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[pattern]; ok {
		return re
	}
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, c := range pattern {
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	re := regexp.MustCompile(b.String())
	patternCache[pattern] = re
	return re
}

// MatchPattern reports whether s matches the wildcard pattern.
func MatchPattern(pattern, s string) bool {
	return compilePattern(pattern).MatchString(s)
}

// MatchAll returns the subset of candidates matching the wildcard pattern.
func MatchAll(pattern string, candidates []string) []string {
	re := compilePattern(pattern)
	var out []string
	for _, s := range candidates {
		if re.MatchString(s) {
			out = append(out, s)
		}
	}
	return out
}

// MatchHostmasks is MatchAll restricted to patterns that are themselves
// shaped like a hostmask; other patterns never match.
func MatchHostmasks(pattern string, candidates []string) []string {
	if !IsHostmask(pattern) {
		return nil
	}
	return MatchAll(pattern, candidates)
}

// MaskStrategy selects which parts of a hostmask a generated ban mask
// should pin down. Strategies combine, except Exact and Webchat which
// stand alone.
type MaskStrategy uint

const (
	MaskByNick MaskStrategy = 1 << iota
	MaskByUser
	MaskByHost
	MaskExact
	MaskWebchat
)

// ParseMaskStrategy resolves a comma-separated keyword list ("host,user")
// into a MaskStrategy. Unknown keywords invalidate the whole value.
func ParseMaskStrategy(value string) (MaskStrategy, bool) {
	var st MaskStrategy
	for _, word := range strings.Split(strings.ToLower(value), ",") {
		switch strings.TrimSpace(word) {
		case "nick":
			st |= MaskByNick
		case "user":
			st |= MaskByUser
		case "host":
			st |= MaskByHost
		case "exact":
			st |= MaskExact
		case "webchat":
			st |= MaskWebchat
		default:
			return 0, false
		}
	}
	return st, st != 0
}

// BuildBanMask generates a ban mask for a hostmask under the given strategy.
//
// The webchat strategy handles web-IRC gateways that expose the client's IP
// only as a hex-encoded username: when the host part is not a real hostname
// and the user part decodes to an IPv4 address not already present in the
// host, the mask targets the username instead of the host.
func BuildBanMask(h Hostmask, st MaskStrategy) string {
	if st&MaskExact != 0 {
		return h.String()
	}
	if st&MaskWebchat != 0 {
		decoded := hexToIPv4(TrimUser(h.User))
		if !isHostname(h.Host) && isIPv4(decoded) && !strings.Contains(h.Host, decoded) {
			return "*!" + h.User + "@*"
		}
		return "*!*@" + h.Host
	}
	nick, user, host := "*", "*", "*"
	if st&MaskByNick != 0 {
		nick = h.Nick
	}
	if st&MaskByUser != 0 {
		user = h.User
	}
	if st&MaskByHost != 0 {
		host = h.Host
	}
	return nick + "!" + user + "@" + host
}

// hexToIPv4 decodes "7f000001" to "127.0.0.1"; returns "" if s is not an
// 8-digit hex string.
func hexToIPv4(s string) string {
	if len(s) != 8 {
		return ""
	}
	var parts [4]string
	for i := 0; i < 4; i++ {
		n, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return ""
		}
		parts[i] = strconv.FormatUint(n, 10)
	}
	return strings.Join(parts[:], ".")
}

func isIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}

var hostLabelRe = regexp.MustCompile(`(?i)^[a-z0-9-]+$`)

func isHostname(s string) bool {
	if s == "" || len(s) > 255 {
		return false
	}
	s = strings.TrimSuffix(s, ".")
	for _, label := range strings.Split(s, ".") {
		if label == "" || len(label) > 63 ||
			strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") ||
			!hostLabelRe.MatchString(label) {
			return false
		}
	}
	return true
}
