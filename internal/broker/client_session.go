package broker

import "github.com/bossjones/gearman-server/internal/protocol"

// ClientSession is the per-connection attachment for a client: the set
// of jobs it wants foreground progress/result frames for, and the
// options it has negotiated via OPTION_REQ (currently only
// "exceptions", gating WORK_EXCEPTION delivery).
type ClientSession struct {
	ID       string
	ClientID string

	jobs    map[string]*Job // foreground jobs, by handle
	options map[string]struct{}

	// Send delivers a frame to this client's connection. Set by the
	// session layer; the broker core never touches a socket directly.
	Send func(cmd protocol.Command, args ...[]byte) error
}

// NewClientSession constructs an empty client session bound to id.
func NewClientSession(id string, send func(cmd protocol.Command, args ...[]byte) error) *ClientSession {
	return &ClientSession{
		ID:      id,
		jobs:    make(map[string]*Job),
		options: make(map[string]struct{}),
		Send:    send,
	}
}

// RequestOption negotiates an option (e.g. "exceptions").
func (c *ClientSession) RequestOption(name string) {
	c.options[name] = struct{}{}
}

// HasOption reports whether name was negotiated.
func (c *ClientSession) HasOption(name string) bool {
	_, ok := c.options[name]
	return ok
}

// Jobs returns the handles this client is registered as a foreground
// listener for.
func (c *ClientSession) Jobs() []string {
	out := make([]string, 0, len(c.jobs))
	for h := range c.jobs {
		out = append(out, h)
	}
	return out
}

// forgetJob drops handle from this client's foreground set, the
// reverse direction of attachClientLocked's c.jobs[job.Handle] = job.
func (c *ClientSession) forgetJob(handle string) {
	delete(c.jobs, handle)
}
