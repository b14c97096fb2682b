package irc

import (
	"testing"
	"time"

	"github.com/nuclearw/chanop/internal/chanop"
)

func TestParseMaskArgs(t *testing.T) {
	targets, strategy, err := parseMaskArgs([]string{"-h", "-u", "bully", "Alice"})
	if err != nil {
		t.Fatalf("parseMaskArgs failed: %v", err)
	}
	if strategy != chanop.MaskByHost|chanop.MaskByUser {
		t.Errorf("Unexpected strategy: %v", strategy)
	}
	if len(targets) != 2 || targets[0] != "bully" || targets[1] != "Alice" {
		t.Errorf("Unexpected targets: %v", targets)
	}

	// No flags means zero strategy (the service applies its default)
	_, strategy, err = parseMaskArgs([]string{"bully"})
	if err != nil || strategy != 0 {
		t.Errorf("Expected zero strategy, got %v (err=%v)", strategy, err)
	}

	if _, _, err := parseMaskArgs([]string{"--bogus", "bully"}); err == nil {
		t.Error("unknown option should be rejected")
	}

	// A mask that merely starts with a dash is not an option
	targets, _, err = parseMaskArgs([]string{"-x!*@*"})
	if err != nil || len(targets) != 1 {
		t.Errorf("dash-prefixed mask mishandled: %v (err=%v)", targets, err)
	}
}

func TestIsChannel(t *testing.T) {
	for _, s := range []string{"#chess", "&local"} {
		if !isChannel(s) {
			t.Errorf("isChannel(%q) should be true", s)
		}
	}
	for _, s := range []string{"chess", "nick", ""} {
		if isChannel(s) {
			t.Errorf("isChannel(%q) should be false", s)
		}
	}
}

func TestTimeElapsed(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{26 * time.Hour, "1d 2h"},
		{0, "0s"},
		{400 * 24 * time.Hour, "1y 35d"},
	}
	for _, c := range cases {
		if got := timeElapsed(c.d); got != c.want {
			t.Errorf("timeElapsed(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}
