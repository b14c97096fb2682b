package irc

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nuclearw/chanop/internal/chanop"
)

// handleCommand processes a command from a verified admin
func (c *Client) handleCommand(nick, hostmask, message string) {
	message = strings.TrimSpace(message)
	fields := strings.Fields(message)
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	log.Printf("Command from %s: %s", hostmask, message)

	switch cmd {
	case "!help":
		c.cmdHelp(nick)
	case "!version":
		c.cmdVersion(nick)
	case "!op":
		c.withChannel(nick, fields, 0, func(channel string, args []string) error {
			return c.svc.Op(c.network(), channel)
		})
	case "!deop":
		c.withChannel(nick, fields, 0, func(channel string, args []string) error {
			return c.svc.Deop(c.network(), channel)
		})
	case "!kick":
		c.withChannel(nick, fields, 1, func(channel string, args []string) error {
			nicks, reason := c.splitNicksAndReason(channel, args)
			return c.svc.Kick(c.network(), channel, nicks, reason)
		})
	case "!ban":
		c.withChannel(nick, fields, 1, func(channel string, args []string) error {
			targets, strategy, err := parseMaskArgs(args)
			if err != nil {
				return err
			}
			return c.svc.Ban(c.network(), channel, targets, strategy)
		})
	case "!unban":
		c.withChannel(nick, fields, 1, func(channel string, args []string) error {
			return c.svc.Unban(c.network(), channel, args)
		})
	case "!mute":
		c.withChannel(nick, fields, 1, func(channel string, args []string) error {
			targets, strategy, err := parseMaskArgs(args)
			if err != nil {
				return err
			}
			return c.svc.Mute(c.network(), channel, targets, strategy)
		})
	case "!unmute":
		c.withChannel(nick, fields, 1, func(channel string, args []string) error {
			return c.svc.Unmute(c.network(), channel, args)
		})
	case "!bankick":
		c.withChannel(nick, fields, 1, func(channel string, args []string) error {
			args, strategy, err := parseMaskArgs(args)
			if err != nil {
				return err
			}
			nicks, reason := c.splitNicksAndReason(channel, args)
			return c.svc.BanKick(c.network(), channel, nicks, reason, strategy)
		})
	case "!topic":
		c.withChannel(nick, fields, 1, func(channel string, args []string) error {
			return c.svc.Topic(c.network(), channel, strings.Join(args, " "))
		})
	case "!mode":
		c.withChannel(nick, fields, 1, func(channel string, args []string) error {
			return c.svc.SetMode(c.network(), channel, strings.Join(args, " "))
		})
	case "!voice":
		c.withChannel(nick, fields, 1, func(channel string, args []string) error {
			return c.svc.Voice(c.network(), channel, args)
		})
	case "!devoice":
		c.withChannel(nick, fields, 1, func(channel string, args []string) error {
			return c.svc.Devoice(c.network(), channel, args)
		})
	case "!list":
		c.cmdList(nick, fields)
	case "!sync":
		c.withChannel(nick, fields, 0, func(channel string, args []string) error {
			c.svc.Sync(c.network(), channel)
			return nil
		})
	}
}

// withChannel validates the "#channel" argument every moderation command
// starts with, runs the handler and reports its error back to the admin.
func (c *Client) withChannel(nick string, fields []string, minArgs int,
	fn func(channel string, args []string) error) {
	if len(fields) < 2+minArgs || !isChannel(fields[1]) {
		c.conn.Privmsg(nick, fmt.Sprintf("Usage: %s <#channel> ...", fields[0]))
		return
	}
	if err := fn(fields[1], fields[2:]); err != nil {
		c.conn.Privmsg(nick, fmt.Sprintf("Sorry, %v", err))
	}
}

func isChannel(s string) bool {
	return strings.HasPrefix(s, "#") || strings.HasPrefix(s, "&")
}

// splitNicksAndReason takes leading arguments that are nicks present in the
// channel; the rest is the reason. A ":" separator forces the split, for
// reasons that start with a nickname.
func (c *Client) splitNicksAndReason(channel string, args []string) ([]string, string) {
	var nicks []string
	for len(args) > 0 {
		arg := args[0]
		if strings.HasPrefix(arg, ":") || !c.svc.KnownNick(c.network(), channel, arg) {
			break
		}
		nicks = append(nicks, arg)
		args = args[1:]
	}
	reason := strings.TrimPrefix(strings.Join(args, " "), ":")
	return nicks, strings.TrimSpace(reason)
}

// parseMaskArgs strips ban-mask strategy flags out of the argument list.
func parseMaskArgs(args []string) ([]string, chanop.MaskStrategy, error) {
	var strategy chanop.MaskStrategy
	var rest []string
	for _, arg := range args {
		switch arg {
		case "-h", "--host":
			strategy |= chanop.MaskByHost
		case "-u", "--user":
			strategy |= chanop.MaskByUser
		case "-n", "--nick":
			strategy |= chanop.MaskByNick
		case "-e", "--exact":
			strategy = chanop.MaskExact
		case "-w", "--webchat":
			strategy = chanop.MaskWebchat
		default:
			if strings.HasPrefix(arg, "-") && !chanop.IsHostmask(arg) {
				return nil, 0, fmt.Errorf("unknown option %s", arg)
			}
			rest = append(rest, arg)
		}
	}
	return rest, strategy, nil
}

func (c *Client) cmdList(nick string, fields []string) {
	if len(fields) < 3 || !isChannel(fields[1]) {
		c.conn.Privmsg(nick, "Usage: !list <#channel> bans|mutes")
		return
	}
	channel := fields[1]
	var mode byte
	switch strings.ToLower(fields[2]) {
	case "bans":
		mode = 'b'
	case "mutes":
		mode = 'q'
	default:
		c.conn.Privmsg(nick, "Usage: !list <#channel> bans|mutes")
		return
	}
	records := c.svc.Masks(c.network(), channel, mode)
	if len(records) == 0 {
		c.conn.Privmsg(nick, fmt.Sprintf("No known %s for %s", fields[2], channel))
		return
	}
	c.conn.Privmsg(nick, fmt.Sprintf("[%s %s]", c.network(), channel))
	for _, rec := range records {
		setter := chanop.ParseHostmask(rec.Operator).Nick
		if setter == "" {
			setter = rec.Operator
		}
		if setter == "" {
			setter = c.network()
		}
		c.conn.Privmsg(nick, fmt.Sprintf("%s set by %s %s ago",
			rec.Mask, setter, timeElapsed(time.Since(rec.Date))))
	}
	c.conn.Privmsg(nick, fmt.Sprintf("Total: %d", len(records)))
}

func (c *Client) cmdHelp(nick string) {
	c.conn.Privmsg(nick, "Available commands:")
	c.conn.Privmsg(nick, "!op <#channel> - request op and keep it")
	c.conn.Privmsg(nick, "!deop <#channel> - drop op")
	c.conn.Privmsg(nick, "!kick <#channel> <nick> [<nick> ..] [:] [reason]")
	c.conn.Privmsg(nick, "!ban <#channel> <nick|mask> .. [--host --user --nick | --exact | --webchat]")
	c.conn.Privmsg(nick, "!unban <#channel> <nick|mask|pattern> ..")
	c.conn.Privmsg(nick, "!mute / !unmute - same as ban/unban with channel mode q")
	c.conn.Privmsg(nick, "!bankick <#channel> <nick> [<nick> ..] [:] [reason] [mask options]")
	c.conn.Privmsg(nick, "!topic <#channel> <text>")
	c.conn.Privmsg(nick, "!mode <#channel> <modes>")
	c.conn.Privmsg(nick, "!voice / !devoice <#channel> <nick> ..")
	c.conn.Privmsg(nick, "!list <#channel> bans|mutes - show cached masks")
	c.conn.Privmsg(nick, "!sync <#channel> - refresh user and mask caches")
	c.conn.Privmsg(nick, "!version - bot version information")
}

func (c *Client) cmdVersion(nick string) {
	c.conn.Privmsg(nick, fmt.Sprintf("chanop %s (built %s, commit %s)", Version, BuildDate, GitCommit))
}

// timeElapsed renders a duration the way operators read ban ages: the two
// most significant units.
func timeElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Seconds())
	units := []struct {
		size   int64
		suffix string
	}{
		{31536000, "y"},
		{86400, "d"},
		{3600, "h"},
		{60, "m"},
		{1, "s"},
	}
	var parts []string
	for _, u := range units {
		if len(parts) == 2 {
			break
		}
		if n := secs / u.size; n > 0 || (u.suffix == "s" && len(parts) == 0) {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			secs %= u.size
		}
	}
	return strings.Join(parts, " ")
}
