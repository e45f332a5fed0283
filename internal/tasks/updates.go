package tasks

import (
	"fmt"
	"sync"
)

// Phase identifies the step of a transfer a ProgressUpdate refers to.
type Phase string

const (
	PhaseResolve  Phase = "resolve"
	PhaseFetch    Phase = "fetch"
	PhaseMatch    Phase = "match"
	PhaseBuild    Phase = "build"
	PhaseFinalize Phase = "finalize"
)

// ProgressUpdate is an event emitted while a transfer runs. Current and
// Total are only meaningful during the match and build phases.
type ProgressUpdate struct {
	Phase   Phase
	Message string
	Current int
	Total   int
}

func resolveUpdate(message string) ProgressUpdate {
	return ProgressUpdate{Phase: PhaseResolve, Message: message}
}

func fetchUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseFetch,
		Message: fmt.Sprintf("fetched %d tracks from source playlist", count),
		Total:   count,
	}
}

func matchUpdate(current, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseMatch,
		Message: fmt.Sprintf("matched %d/%d tracks", current, total),
		Current: current,
		Total:   total,
	}
}

func buildUpdate(current, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseBuild,
		Message: fmt.Sprintf("appended %d/%d tracks", current, total),
		Current: current,
		Total:   total,
	}
}

func finalizeUpdate(message string) ProgressUpdate {
	return ProgressUpdate{Phase: PhaseFinalize, Message: message}
}

// sendProgress delivers an update without blocking. Slow or absent
// consumers never stall the transfer.
func sendProgress(ch chan<- ProgressUpdate, update ProgressUpdate) {
	if ch == nil {
		return
	}

	select {
	case ch <- update:
	default:
	}
}

// progressGate serializes delivery to the caller's channel so the engine can
// revoke it before TransferPlaylist returns. Workers abandoned past the drain
// window may still finish afterward; their updates are dropped instead of
// racing a channel the caller may have closed.
type progressGate struct {
	mu     sync.Mutex
	ch     chan<- ProgressUpdate
	closed bool
}

func newProgressGate(ch chan<- ProgressUpdate) *progressGate {
	return &progressGate{ch: ch}
}

func (g *progressGate) send(update ProgressUpdate) {
	if g == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	sendProgress(g.ch, update)
}

// revoke waits out any in-flight send; once it returns, no goroutine touches
// the channel again.
func (g *progressGate) revoke() {
	if g == nil {
		return
	}

	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
