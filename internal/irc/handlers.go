package irc

// This file contains documentation of the IRC event handlers.
// The actual handler implementations are split across:
// - client.go: connection lifecycle, event decoding, list replies
// - commands.go: admin command implementations
// - state.go: live membership/privilege tracking

/*
Handler Summary:

Connection Events:
- 376/422 (onConnect): End of MOTD / MOTD missing - bot is connected
  - Identifies to NickServ
  - Marks configured channels tracked and joins them

Private Messages:
- PRIVMSG (onPrivMsg): Handles private messages from users
  - Checks the sender's hostmask against the configured admin patterns
  - Routes authorized messages to the command handler

Membership and Modes:
- JOIN/PART/QUIT/NICK: update the live member tracker, then dispatch the
  decoded event into the chanop service (user cache reconciliation)
- MODE (onMode): updates privilege flags in the live tracker, then
  dispatches to the service, which keeps the mask caches consistent and
  resumes any command queue suspended on an op grant

Capability Advertisement:
- 005 (onISupport): RPL_ISUPPORT - decoded into a token map
  - CHANMODES supplies the list modes the mask caches may fetch
  - MODES supplies the per-command mode change limit for chunked bans

Member Snapshots:
- 352 (onWhoReply): RPL_WHOREPLY - hostmasks and @/+ flags after a join
- 353 (onNames): RPL_NAMREPLY - privilege prefixes

Mask List Replies:
- 367 (onBanListEntry): RPL_BANLIST - one ban mask with setter/timestamp
- 368 (onBanListEnd): RPL_ENDOFBANLIST - completes the head fetch
- 728/729: quiet list equivalents for networks with channel mode q
*/
