package gateway

import (
	"context"
	"slices"
	"strings"

	"github.com/lrstanley/girc"
)

// capServerTime is the only capability the gateway offers.
const capServerTime = "server-time"

// registration collects PASS, NICK and USER before a session exists.
type registration struct {
	pass string
	nick string
	user string
	// capPending holds registration open between CAP LS and CAP END.
	capPending bool
}

func (r registration) complete() bool {
	return r.nick != "" && r.user != "" && !r.capPending
}

// handleRegistration processes a line from an unregistered client.
func (c *Client) handleRegistration(ctx context.Context, e *girc.Event) bool {
	switch e.Command {
	case girc.PASS:
		if len(e.Params) == 0 {
			c.numeric(girc.ERR_NEEDMOREPARAMS, girc.PASS, "Not enough parameters")
			return false
		}
		c.reg.pass = e.Params[0]
	case girc.NICK:
		if len(e.Params) == 0 || e.Params[0] == "" {
			c.numeric(girc.ERR_NONICKNAMEGIVEN, "No nickname given")
			return false
		}
		if !girc.IsValidNick(e.Params[0]) {
			c.numeric(girc.ERR_ERRONEUSNICKNAME, e.Params[0], "Erroneous nickname")
			return false
		}
		c.reg.nick = e.Params[0]
	case girc.USER:
		if len(e.Params) == 0 || e.Params[0] == "" {
			c.numeric(girc.ERR_NEEDMOREPARAMS, girc.USER, "Not enough parameters")
			return false
		}
		c.reg.user = e.Params[0]
	default:
		c.numeric(girc.ERR_NOTREGISTERED, "You have not registered")
		return false
	}
	return c.maybeRegister(ctx)
}

// maybeRegister starts the session once registration is complete. A
// client without PASS is refused, since the core needs a password.
func (c *Client) maybeRegister(ctx context.Context) bool {
	if c.session != nil || !c.reg.complete() {
		return false
	}
	if c.reg.pass == "" {
		c.numeric(girc.ERR_PASSWDMISMATCH, "Password required: send PASS with your Quassel password")
		c.quit("Password required")
		return true
	}
	c.startSession(ctx)
	return false
}

// handleCap implements the subset of IRCv3 capability negotiation needed
// to offer server-time.
func (c *Client) handleCap(ctx context.Context, e *girc.Event) bool {
	if len(e.Params) == 0 {
		c.numeric(girc.ERR_NEEDMOREPARAMS, girc.CAP, "Not enough parameters")
		return false
	}

	switch sub := strings.ToUpper(e.Params[0]); sub {
	case girc.CAP_LS:
		if c.session == nil {
			c.reg.capPending = true
		}
		c.reply(girc.CAP, c.target(), girc.CAP_LS, capServerTime)
	case "LIST":
		c.mu.Lock()
		enabled := c.serverTime
		c.mu.Unlock()
		list := ""
		if enabled {
			list = capServerTime
		}
		c.reply(girc.CAP, c.target(), "LIST", list)
	case girc.CAP_REQ:
		if c.session == nil {
			c.reg.capPending = true
		}
		var req string
		if len(e.Params) > 1 {
			req = e.Params[len(e.Params)-1]
		}
		caps := strings.Fields(req)
		if len(caps) == 0 || slices.ContainsFunc(caps, func(s string) bool {
			return strings.TrimPrefix(s, "-") != capServerTime
		}) {
			c.reply(girc.CAP, c.target(), girc.CAP_NAK, req)
			return false
		}
		c.mu.Lock()
		for _, s := range caps {
			c.serverTime = !strings.HasPrefix(s, "-")
		}
		c.mu.Unlock()
		c.reply(girc.CAP, c.target(), girc.CAP_ACK, req)
	case girc.CAP_END:
		c.reg.capPending = false
		return c.maybeRegister(ctx)
	default:
		c.numeric("410", sub, "Invalid CAP command")
	}
	return false
}
