package chanop

import "testing"

func TestNewKeyCasefolds(t *testing.T) {
	if NewKey("DALnet", "#Chess") != NewKey("dalnet", "#chess") {
		t.Error("keys with different casing should compare equal")
	}
	if NewKey("dalnet", "#chess") == NewKey("dalnet", "#go") {
		t.Error("different channels should not compare equal")
	}
}

func TestParseHostmask(t *testing.T) {
	hm := ParseHostmask("nick!~user@host.example.com")
	if hm.Nick != "nick" || hm.User != "~user" || hm.Host != "host.example.com" {
		t.Errorf("Unexpected parse result: %+v", hm)
	}
	if hm.String() != "nick!~user@host.example.com" {
		t.Errorf("Round trip failed: %s", hm.String())
	}

	// Anything short of nick!user@host is not a hostmask
	for _, s := range []string{"", "nick", "nick!user", "nick@host", "!@"} {
		if !ParseHostmask(s).IsZero() {
			t.Errorf("Expected zero hostmask for %q", s)
		}
		if IsHostmask(s) {
			t.Errorf("IsHostmask(%q) should be false", s)
		}
	}
	if !IsHostmask("*!*@evil.example.com") {
		t.Error("wildcard masks still have the hostmask shape")
	}
}

func TestIsNick(t *testing.T) {
	for _, s := range []string{"alice", "[away]", "`bob", "ni-ck42", "{x}"} {
		if !IsNick(s) {
			t.Errorf("IsNick(%q) should be true", s)
		}
	}
	for _, s := range []string{"", "1abc", "-dash", "*!*@x", "with space"} {
		if IsNick(s) {
			t.Errorf("IsNick(%q) should be false", s)
		}
	}
}

func TestTrimUser(t *testing.T) {
	cases := map[string]string{
		"~troll": "troll",
		"i=abcd": "abcd",
		"n=abcd": "abcd",
		"plain":  "plain",
	}
	for in, want := range cases {
		if got := TrimUser(in); got != want {
			t.Errorf("TrimUser(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchPattern(t *testing.T) {
	if !MatchPattern("*!*@evil.example.com", "Bully!troll@EVIL.example.com") {
		t.Error("matching should be case-insensitive")
	}
	if !MatchPattern("b?lly!*@*", "bully!troll@evil.example.com") {
		t.Error("? should match a single character")
	}
	if MatchPattern("*.example.com", "foo-example-com") {
		t.Error("literal dots must not act as wildcards")
	}
	if MatchPattern("*!*@evil.example.com", "bully!troll@evil.example.org") {
		t.Error("pattern should be anchored")
	}
}

func TestMatchHostmasks(t *testing.T) {
	candidates := []string{
		"bully!troll@evil.example.com",
		"alice!alice@wonder.example.org",
	}
	got := MatchHostmasks("*!*@evil.example.com", candidates)
	if len(got) != 1 || got[0] != candidates[0] {
		t.Errorf("Expected only the evil hostmask, got %v", got)
	}
	if MatchHostmasks("*evil*", candidates) != nil {
		t.Error("patterns without hostmask shape should match nothing")
	}
}

func TestParseMaskStrategy(t *testing.T) {
	st, ok := ParseMaskStrategy("host")
	if !ok || st != MaskByHost {
		t.Errorf("Expected MaskByHost, got %v (ok=%v)", st, ok)
	}
	st, ok = ParseMaskStrategy("nick, user")
	if !ok || st != MaskByNick|MaskByUser {
		t.Errorf("Expected nick|user, got %v (ok=%v)", st, ok)
	}
	for _, bad := range []string{"", "bogus", "host,bogus"} {
		if _, ok := ParseMaskStrategy(bad); ok {
			t.Errorf("ParseMaskStrategy(%q) should fail", bad)
		}
	}
}

func TestBuildBanMask(t *testing.T) {
	hm := ParseHostmask("nick!~user@host.example.com")
	cases := []struct {
		st   MaskStrategy
		want string
	}{
		{MaskByHost, "*!*@host.example.com"},
		{MaskByUser, "*!~user@*"},
		{MaskByNick | MaskByUser, "nick!~user@*"},
		{MaskByNick | MaskByUser | MaskByHost, "nick!~user@host.example.com"},
		{MaskExact, "nick!~user@host.example.com"},
	}
	for _, c := range cases {
		if got := BuildBanMask(hm, c.st); got != c.want {
			t.Errorf("BuildBanMask(%v) = %q, want %q", c.st, got, c.want)
		}
	}
}

func TestBuildBanMaskWebchat(t *testing.T) {
	// Gateway exposes the client IP only as a hex username; ban that.
	gw := ParseHostmask("nick!cf18f23c@gateway/web/irc.example")
	if got := BuildBanMask(gw, MaskWebchat); got != "*!cf18f23c@*" {
		t.Errorf("Expected username mask for webchat user, got %q", got)
	}
	// A real hostname gets the usual host ban.
	dsl := ParseHostmask("nick!~user@dsl.example.com")
	if got := BuildBanMask(dsl, MaskWebchat); got != "*!*@dsl.example.com" {
		t.Errorf("Expected host mask for non-webchat user, got %q", got)
	}
}

func TestHexToIPv4(t *testing.T) {
	if got := hexToIPv4("7f000001"); got != "127.0.0.1" {
		t.Errorf("Expected 127.0.0.1, got %q", got)
	}
	for _, bad := range []string{"", "7f00", "7f0000010", "zz000001"} {
		if got := hexToIPv4(bad); got != "" {
			t.Errorf("hexToIPv4(%q) = %q, want empty", bad, got)
		}
	}
}
