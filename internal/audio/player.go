package audio

import (
	"context"
	"sync"
	"time"
)

// State ist der Wiedergabezustand des Players
type State string

const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
)

// Sink ist das Ausgabegerät. Play blockiert, bis der Puffer abgespielt oder ctx beendet ist.
type Sink interface {
	Play(ctx context.Context, buf *Buffer) error
}

// ClockSink simuliert ein Ausgabegerät, das den Puffer in Echtzeit abspielt.
// Der Server liefert die Audiodaten als WAV an den Browser und verfolgt die Wiedergabe hierüber.
type ClockSink struct{}

func (ClockSink) Play(ctx context.Context, buf *Buffer) error {
	timer := time.NewTimer(buf.Duration())
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type source struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Player verwaltet höchstens eine aktive Wiedergabequelle
type Player struct {
	sink Sink

	opMu sync.Mutex // serialisiert Play und Stop

	mu       sync.Mutex
	current  *source
	state    State
	onChange func(State)
}

// NewPlayer erstellt einen Player für das angegebene Ausgabegerät
func NewPlayer(sink Sink) *Player {
	if sink == nil {
		sink = ClockSink{}
	}
	return &Player{sink: sink, state: StateStopped}
}

// OnStateChange registriert einen Callback für Zustandswechsel
func (p *Player) OnStateChange(fn func(State)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// State liefert den aktuellen Wiedergabezustand
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Play stoppt eine laufende Wiedergabe und startet buf
func (p *Player) Play(buf *Buffer) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	src := &source{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	p.current = src
	p.setState(StatePlaying)
	p.mu.Unlock()

	go p.run(ctx, src, buf)
}

func (p *Player) run(ctx context.Context, src *source, buf *Buffer) {
	defer close(src.done)
	defer src.cancel()

	_ = p.sink.Play(ctx, buf)

	p.mu.Lock()
	if p.current == src {
		p.current = nil
		p.setState(StateStopped)
	}
	p.mu.Unlock()
}

// Stop beendet die laufende Wiedergabe und wartet auf die Freigabe der Quelle
func (p *Player) Stop() {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	p.mu.Lock()
	src := p.current
	p.current = nil
	p.mu.Unlock()

	if src == nil {
		return
	}
	src.cancel()
	<-src.done

	p.mu.Lock()
	p.setState(StateStopped)
	p.mu.Unlock()
}

// setState erwartet gehaltenes p.mu
func (p *Player) setState(s State) {
	if p.state == s {
		return
	}
	p.state = s
	if p.onChange != nil {
		p.onChange(s)
	}
}
