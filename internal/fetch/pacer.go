// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"time"
)

// Pacer spaces requests to the secondary source. The pipeline waits on
// it between records, never after the last one.
type Pacer struct {
	delay time.Duration
	sleep func(context.Context, time.Duration) error
}

// NewPacer returns a Pacer that waits delay between records.
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{delay: delay, sleep: sleepCtx}
}

// SetFloor raises the delay to at least d, as when robots.txt asks for a
// longer crawl delay than configured.
func (p *Pacer) SetFloor(d time.Duration) {
	if d > p.delay {
		p.delay = d
	}
}

// Delay is the current inter-record delay.
func (p *Pacer) Delay() time.Duration { return p.delay }

// Wait blocks for the delay or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.delay <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, p.delay)
}
