package coordinator

import (
	"context"

	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/domain/basket"
)

type result struct {
	snapshot *basket.Snapshot
	err      error
}

type envelope struct {
	ctx   context.Context
	cmd   Command
	reply chan result
}

// mailbox serializes all commands for one basket through a single goroutine.
// The cached snapshot and version are owned exclusively by that goroutine;
// no lock guards them.
type mailbox struct {
	id string
	ch chan envelope

	state   *basket.Snapshot
	version int64
	loaded  bool
}

func (c *Coordinator) mailboxFor(id string) (*mailbox, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errs.New("coordinator", errs.CodeUnavailable, errs.WithMessage("coordinator closed"))
	}
	mb, ok := c.mailboxes[id]
	if !ok {
		mb = &mailbox{id: id, ch: make(chan envelope, c.cfg.MailboxBuffer)}
		c.mailboxes[id] = mb
		c.wg.Add(1)
		go c.runMailbox(mb)
		if c.mailboxGauge != nil {
			c.mailboxGauge.Add(c.ctx, 1)
		}
	}
	return mb, nil
}

func (c *Coordinator) runMailbox(mb *mailbox) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case env := <-mb.ch:
			snap, err := c.process(env.ctx, mb, env.cmd)
			env.reply <- result{snapshot: snap, err: err}
		}
	}
}
