package irc

import (
	"crypto/tls"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/nuclearw/chanop/internal/chanop"
	"github.com/nuclearw/chanop/internal/config"
	"github.com/nuclearw/chanop/internal/storage"
)

// Version information (set at build time or here)
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// collectInterval drives the cache garbage collector.
const collectInterval = 30 * time.Minute

// Client represents the IRC bot client: it owns the connection, the live
// channel state tracker and the chanop service, and translates raw IRC
// traffic into the decoded events the service consumes.
type Client struct {
	conn  *ircevent.Connection
	cfg   *config.Config
	state *channelState
	svc   *chanop.Service

	stopGC chan struct{}
}

// NewClient creates a new IRC client.
func NewClient(cfg *config.Config) (*Client, error) {
	conn := &ircevent.Connection{
		Server:      fmt.Sprintf("%s:%d", cfg.Server, cfg.Port),
		Nick:        cfg.Nick,
		User:        cfg.Username,
		RealName:    cfg.IRCName,
		Password:    cfg.ServerPass,
		QuitMessage: "Shutting down",
		Debug:       false,
		UseTLS:      cfg.UseTLS,
		TLSConfig:   &tls.Config{InsecureSkipVerify: true},
	}

	c := &Client{
		conn:   conn,
		cfg:    cfg,
		state:  newChannelState(),
		stopGC: make(chan struct{}),
	}
	c.state.setSelf(cfg.Nick)
	c.svc = chanop.NewService(cfg, newTransport(conn), c.state, chanop.SystemClock())

	masks, err := storage.LoadMasks(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load mask database: %w", err)
	}
	c.svc.RestoreMasks(masks)
	if len(masks) > 0 {
		log.Printf("Restored %d masks from %s", len(masks), cfg.DataDir)
	}

	c.registerHandlers()
	return c, nil
}

func (c *Client) saveMasks() {
	if err := storage.SaveMasks(c.cfg.DataDir, c.svc.DumpMasks()); err != nil {
		log.Printf("Failed to save mask database: %v", err)
	}
}

func (c *Client) registerHandlers() {
	// Connected (end of MOTD)
	c.conn.AddCallback("376", c.onConnect)
	c.conn.AddCallback("422", c.onConnect) // MOTD missing is also "connected"

	// Admin command channel
	c.conn.AddCallback("PRIVMSG", c.onPrivMsg)

	// Membership and mode traffic
	c.conn.AddCallback("JOIN", c.onJoin)
	c.conn.AddCallback("PART", c.onPart)
	c.conn.AddCallback("QUIT", c.onQuit)
	c.conn.AddCallback("NICK", c.onNick)
	c.conn.AddCallback("MODE", c.onMode)

	// Server capability advertisement
	c.conn.AddCallback("005", c.onISupport) // RPL_ISUPPORT

	// WHO replies feed the live member snapshots
	c.conn.AddCallback("352", c.onWhoReply) // RPL_WHOREPLY
	c.conn.AddCallback("315", c.onWhoEnd)   // RPL_ENDOFWHO

	// NAMES replies carry privilege prefixes
	c.conn.AddCallback("353", c.onNames) // RPL_NAMREPLY

	// Mask list replies
	c.conn.AddCallback("367", c.onBanListEntry) // RPL_BANLIST
	c.conn.AddCallback("368", c.onBanListEnd)   // RPL_ENDOFBANLIST
	c.conn.AddCallback("728", c.onQuietEntry)   // RPL_QUIETLIST
	c.conn.AddCallback("729", c.onQuietEnd)     // RPL_ENDOFQUIETLIST
}

// Connect initiates the IRC connection.
func (c *Client) Connect() error {
	return c.conn.Connect()
}

// Loop runs the IRC event loop (blocking) and the periodic cache collector.
func (c *Client) Loop() {
	go c.collectLoop()
	c.conn.Loop()
}

func (c *Client) collectLoop() {
	ticker := time.NewTicker(collectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.svc.Collect()
			c.saveMasks()
		case <-c.stopGC:
			return
		}
	}
}

// Quit disconnects from IRC after saving the mask database.
func (c *Client) Quit(message string) {
	close(c.stopGC)
	c.saveMasks()
	c.conn.Quit()
}

func (c *Client) network() string { return c.cfg.Network }

func (c *Client) onConnect(e ircmsg.Message) {
	log.Println("Connected to IRC server")
	c.state.setSelf(c.conn.CurrentNick())

	if c.cfg.NickPass != "" {
		c.conn.Privmsg("NickServ", fmt.Sprintf("IDENTIFY %s %s", c.cfg.Nick, c.cfg.NickPass))
	}

	for _, channel := range c.cfg.Channels {
		c.svc.Track(c.network(), channel)
		c.conn.Send("JOIN", channel)
	}

	log.Println("Bot initialization complete")
}

func (c *Client) onPrivMsg(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}
	target := e.Params[0]
	message := e.Params[1]
	if !strings.EqualFold(target, c.conn.CurrentNick()) {
		return
	}
	nuh, err := e.NUH()
	if err != nil {
		return
	}
	hostmask := nuh.Canonical()
	if !c.isAdmin(hostmask) {
		return
	}
	c.handleCommand(e.Nick(), hostmask, message)
}

func (c *Client) isAdmin(hostmask string) bool {
	for _, pattern := range c.cfg.Admins {
		if chanop.MatchPattern(pattern, hostmask) {
			return true
		}
	}
	return false
}

func (c *Client) onJoin(e ircmsg.Message) {
	if len(e.Params) < 1 {
		return
	}
	channel := e.Params[0]
	nuh, err := e.NUH()
	if err != nil {
		return
	}
	hostmask := nuh.Canonical()
	c.state.joined(channel, e.Nick(), hostmask)
	if strings.EqualFold(e.Nick(), c.conn.CurrentNick()) {
		// hostmasks and flags arrive via WHO
		c.conn.Send("WHO", channel)
	}
	c.svc.Dispatch(chanop.Event{
		Kind:     chanop.EventJoin,
		Server:   c.network(),
		Channel:  channel,
		Nick:     e.Nick(),
		Hostmask: hostmask,
	})
}

func (c *Client) onPart(e ircmsg.Message) {
	if len(e.Params) < 1 {
		return
	}
	channel := e.Params[0]
	c.state.parted(channel, e.Nick())
	c.svc.Dispatch(chanop.Event{
		Kind:    chanop.EventPart,
		Server:  c.network(),
		Channel: channel,
		Nick:    e.Nick(),
	})
}

func (c *Client) onQuit(e ircmsg.Message) {
	c.state.quit(e.Nick())
	c.svc.Dispatch(chanop.Event{
		Kind:   chanop.EventQuit,
		Server: c.network(),
		Nick:   e.Nick(),
	})
}

func (c *Client) onNick(e ircmsg.Message) {
	if len(e.Params) < 1 {
		return
	}
	newNick := e.Params[0]
	nuh, err := e.NUH()
	if err != nil {
		return
	}
	c.state.renamed(e.Nick(), newNick)
	c.svc.Dispatch(chanop.Event{
		Kind:     chanop.EventNick,
		Server:   c.network(),
		Nick:     e.Nick(),
		NewNick:  newNick,
		Hostmask: nuh.Canonical(),
	})
}

func (c *Client) onMode(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}
	target := e.Params[0]
	if !strings.HasPrefix(target, "#") && !strings.HasPrefix(target, "&") {
		return // user mode, not a channel
	}
	modes := e.Params[1]
	args := e.Params[2:]
	c.state.modeChanged(target, modes, args)

	var hostmask string
	if nuh, err := e.NUH(); err == nil {
		hostmask = nuh.Canonical()
	}
	c.svc.Dispatch(chanop.Event{
		Kind:     chanop.EventMode,
		Server:   c.network(),
		Channel:  target,
		Nick:     e.Nick(),
		Hostmask: hostmask,
		Modes:    modes,
		Args:     args,
	})
}

func (c *Client) onISupport(e ircmsg.Message) {
	// 005 <me> KEY=VALUE ... :are supported by this server
	if len(e.Params) < 3 {
		return
	}
	tokens := make(map[string]string)
	for _, param := range e.Params[1 : len(e.Params)-1] {
		key, value, _ := strings.Cut(param, "=")
		tokens[key] = value
	}
	c.svc.Dispatch(chanop.Event{
		Kind:   chanop.EventISupport,
		Server: c.network(),
		Tokens: tokens,
	})
}

func (c *Client) onWhoReply(e ircmsg.Message) {
	// 352 <me> <chan> <user> <host> <server> <nick> <flags> :<hops> <real>
	if len(e.Params) < 7 {
		return
	}
	c.state.whoReply(e.Params[1], e.Params[5], e.Params[2], e.Params[3], e.Params[6])
}

func (c *Client) onWhoEnd(e ircmsg.Message) {
	// 315 <me> <mask> :End of WHO list
	if len(e.Params) < 2 {
		return
	}
	if mask := e.Params[1]; isChannel(mask) {
		c.svc.SnapshotUsers(c.network(), mask)
	}
}

func (c *Client) onNames(e ircmsg.Message) {
	// 353 <me> <symbol> <chan> :@nick1 +nick2 nick3
	if len(e.Params) < 4 {
		return
	}
	c.state.namesReply(e.Params[2], strings.Fields(e.Params[3]))
}

func (c *Client) onBanListEntry(e ircmsg.Message) {
	// 367 <me> <chan> <mask> [<setter> <timestamp>]
	if len(e.Params) < 3 {
		return
	}
	c.dispatchListEntry(e.Params[1], e.Params[2], e.Params[3:])
}

func (c *Client) onBanListEnd(e ircmsg.Message) {
	// 368 <me> <chan> :End of channel ban list
	if len(e.Params) < 2 {
		return
	}
	c.svc.Dispatch(chanop.Event{
		Kind:    chanop.EventListEnd,
		Server:  c.network(),
		Channel: e.Params[1],
	})
}

func (c *Client) onQuietEntry(e ircmsg.Message) {
	// 728 <me> <chan> q <mask> [<setter> <timestamp>]
	if len(e.Params) < 4 {
		return
	}
	c.dispatchListEntry(e.Params[1], e.Params[3], e.Params[4:])
}

func (c *Client) onQuietEnd(e ircmsg.Message) {
	// 729 <me> <chan> q :End of channel quiet list
	if len(e.Params) < 2 {
		return
	}
	c.svc.Dispatch(chanop.Event{
		Kind:    chanop.EventListEnd,
		Server:  c.network(),
		Channel: e.Params[1],
	})
}

func (c *Client) dispatchListEntry(channel, mask string, rest []string) {
	ev := chanop.Event{
		Kind:    chanop.EventListEntry,
		Server:  c.network(),
		Channel: channel,
		Mask:    mask,
	}
	if len(rest) > 0 {
		ev.Operator = rest[0]
	}
	if len(rest) > 1 {
		if ts, err := strconv.ParseInt(rest[1], 10, 64); err == nil {
			ev.Date = time.Unix(ts, 0)
		}
	}
	c.svc.Dispatch(ev)
}
