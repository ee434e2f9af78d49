package server

import (
	"context"
	"time"
)

const nudgeTimeout = 30 * time.Second

// scheduleNudge arms a best-effort timer that enforces the deadline when no
// request arrives to do it. Replacing or clearing a deadline stops the old timer.
func (p *PhaseController) scheduleNudge(gameID uint, deadline *time.Time) {
	p.timersMu.Lock()
	defer p.timersMu.Unlock()
	p.stopNudgeLocked(gameID)
	if deadline == nil || p.closed {
		return
	}
	delay := deadline.Sub(p.clock.Now())
	if delay < 0 {
		delay = 0
	}
	p.nudges.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer p.nudges.Done()
		p.timersMu.Lock()
		if p.timers[gameID] == timer {
			delete(p.timers, gameID)
		}
		closed := p.closed
		p.timersMu.Unlock()
		if !closed {
			p.nudge(gameID)
		}
	})
	p.timers[gameID] = timer
}

func (p *PhaseController) stopNudgeLocked(gameID uint) {
	existing, ok := p.timers[gameID]
	if !ok {
		return
	}
	delete(p.timers, gameID)
	if existing.Stop() {
		p.nudges.Done()
	}
}

func (p *PhaseController) nudge(gameID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), nudgeTimeout)
	defer cancel()
	claim, err := p.CheckAndEnforceDeadline(ctx, gameID)
	if err != nil {
		p.logger.Error("deadline nudge failed", "game_id", gameID, "error", err)
		return
	}
	if claim == Claimed {
		p.logger.Debug("deadline enforced by timer", "game_id", gameID)
	}
}

func (p *PhaseController) pendingNudges() int {
	p.timersMu.Lock()
	defer p.timersMu.Unlock()
	return len(p.timers)
}
