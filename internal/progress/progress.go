// Package progress draws a cosmetic activity bar while the signer waits on the server.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// DefaultInterval is the redraw rate of the bar
const DefaultInterval = 100 * time.Millisecond

const (
	barWidth     = 24
	fallbackCols = 80
)

// Ticker delivers redraw ticks
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// PseudoProgress animates a bouncing bar after a preamble. It has no notion of
// completion percentage. Nothing is drawn unless the writer is a terminal.
type PseudoProgress struct {
	preamble  string
	out       io.Writer
	tty       bool
	width     int
	interval  time.Duration
	newTicker TickerFactory

	mu      sync.Mutex
	ticker  Ticker
	done    chan struct{}
	stopped chan struct{}
	frame   int
}

// Option configures a PseudoProgress
type Option func(*PseudoProgress)

// WithWriter draws to w. tty says whether w is an interactive terminal.
func WithWriter(w io.Writer, tty bool) Option {
	return func(p *PseudoProgress) {
		p.out = w
		p.tty = tty
	}
}

// WithTickerFactory replaces time.NewTicker
func WithTickerFactory(f TickerFactory) Option {
	return func(p *PseudoProgress) { p.newTicker = f }
}

// WithInterval sets the redraw rate
func WithInterval(d time.Duration) Option {
	return func(p *PseudoProgress) { p.interval = d }
}

// New creates an indicator that draws to stdout when stdout is a terminal
func New(preamble string, opts ...Option) *PseudoProgress {
	fd := int(os.Stdout.Fd()) //nolint:gosec // file descriptors fit in int
	p := &PseudoProgress{
		preamble:  preamble,
		out:       os.Stdout,
		tty:       term.IsTerminal(fd),
		width:     terminalWidth(fd),
		interval:  DefaultInterval,
		newTicker: NewRealTicker,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func terminalWidth(fd int) int {
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return fallbackCols
	}
	return width
}

// Animate starts redrawing. Calling it while already animating does nothing.
func (p *PseudoProgress) Animate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ticker != nil || !p.tty {
		return
	}
	p.ticker = p.newTicker(p.interval)
	p.done = make(chan struct{})
	p.stopped = make(chan struct{})
	p.frame = 0
	p.draw()

	go p.loop(p.ticker, p.done, p.stopped)
}

func (p *PseudoProgress) loop(ticker Ticker, done, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case <-done:
			return
		case <-ticker.C():
			p.mu.Lock()
			p.frame++
			p.draw()
			p.mu.Unlock()
		}
	}
}

// Finish stops the animation and clears the line. It is safe to call more than once.
func (p *PseudoProgress) Finish() {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return
	}
	p.ticker.Stop()
	p.ticker = nil
	close(p.done)
	stopped := p.stopped
	p.mu.Unlock()

	<-stopped

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", p.lineWidth()))
}

// Frame renders the bar for frame n: a three-cell block bouncing between the brackets
func Frame(n int) string {
	span := barWidth - 3
	pos := n % (2 * span)
	if pos > span {
		pos = 2*span - pos
	}
	return "[" + strings.Repeat(" ", pos) + "===" + strings.Repeat(" ", span-pos) + "]"
}

// caller holds p.mu
func (p *PseudoProgress) draw() {
	line := p.preamble + Frame(p.frame)
	if max := p.lineWidth(); len(line) > max {
		line = line[:max]
	}
	_, _ = fmt.Fprintf(p.out, "\r%s", line)
}

func (p *PseudoProgress) lineWidth() int {
	w := p.width
	if w <= 0 {
		w = fallbackCols
	}
	// leave the last column free so the cursor does not wrap
	return w - 1
}
