package irc

import "testing"

func newTestChannelState() *channelState {
	st := newChannelState()
	st.setSelf("helper")
	st.joined("#test", "helper", "helper!bot@bots.example.org")
	st.joined("#test", "bully", "bully!troll@evil.example.com")
	return st
}

func TestStateJoinPart(t *testing.T) {
	st := newTestChannelState()

	members, ok := st.Members("net", "#TEST")
	if !ok || len(members) != 2 {
		t.Fatalf("Expected 2 members, ok=%v got %d", ok, len(members))
	}

	st.parted("#test", "bully")
	if members, _ := st.Members("net", "#test"); len(members) != 1 {
		t.Errorf("Expected 1 member after part, got %d", len(members))
	}

	// Our own part forgets the channel entirely
	st.parted("#test", "HELPER")
	if _, ok := st.Members("net", "#test"); ok {
		t.Error("channel should be gone after we part")
	}
}

func TestStateWhoReplySetsFlags(t *testing.T) {
	st := newTestChannelState()
	st.whoReply("#test", "bully", "troll", "evil.example.com", "H@+")

	if op, ok := st.HasOp("net", "#test", "BULLY"); !ok || !op {
		t.Errorf("Expected op flag from WHO reply, ok=%v op=%v", ok, op)
	}
	if voice, _ := st.HasVoice("net", "#test", "bully"); !voice {
		t.Error("Expected voice flag from WHO reply")
	}
}

func TestStateNamesReply(t *testing.T) {
	st := newTestChannelState()
	st.namesReply("#test", []string{"@helper", "+Alice", "Carol"})

	if op, _ := st.HasOp("net", "#test", "helper"); !op {
		t.Error("@ prefix should set the op flag")
	}
	if voice, _ := st.HasVoice("net", "#test", "alice"); !voice {
		t.Error("+ prefix should set the voice flag")
	}
	if op, ok := st.HasOp("net", "#test", "carol"); !ok || op {
		t.Errorf("bare nick should be known without privileges, ok=%v op=%v", ok, op)
	}
}

func TestStateModeChanged(t *testing.T) {
	st := newTestChannelState()

	// The ban argument must not be mistaken for the +o target
	st.modeChanged("#test", "+bo", []string{"*!*@spam.example.net", "bully"})
	if op, _ := st.HasOp("net", "#test", "bully"); !op {
		t.Error("+o should set the op flag")
	}
	st.modeChanged("#test", "-o+v", []string{"bully", "bully"})
	if op, _ := st.HasOp("net", "#test", "bully"); op {
		t.Error("-o should clear the op flag")
	}
	if voice, _ := st.HasVoice("net", "#test", "bully"); !voice {
		t.Error("+v should set the voice flag")
	}
}

func TestStateRenamed(t *testing.T) {
	st := newTestChannelState()
	st.renamed("bully", "angel")

	if _, ok := st.HasOp("net", "#test", "bully"); ok {
		t.Error("old nick should be gone after rename")
	}
	members, _ := st.Members("net", "#test")
	found := false
	for _, m := range members {
		if m.Nick == "angel" {
			found = true
			if m.Hostmask != "angel!troll@evil.example.com" {
				t.Errorf("hostmask should follow the rename: %q", m.Hostmask)
			}
		}
	}
	if !found {
		t.Error("new nick missing after rename")
	}

	// Renaming ourselves updates the self nick
	st.renamed("helper", "helper2")
	if st.SelfNick("net") != "helper2" {
		t.Errorf("self nick not updated: %q", st.SelfNick("net"))
	}
}

func TestStateQuit(t *testing.T) {
	st := newTestChannelState()
	st.joined("#lounge", "helper", "helper!bot@bots.example.org")
	st.joined("#lounge", "bully", "bully!troll@evil.example.com")

	st.quit("bully")
	if _, ok := st.HasOp("net", "#test", "bully"); ok {
		t.Error("quit nick should be gone from #test")
	}
	if _, ok := st.HasOp("net", "#lounge", "bully"); ok {
		t.Error("quit nick should be gone from #lounge")
	}
}
