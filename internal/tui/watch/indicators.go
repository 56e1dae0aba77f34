package watch

import (
	"strings"
	"time"
)

// Ticker flips on every clock tick so a frozen screen is obvious.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"⟲", "⟳"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Activity lights five dots on each event and fades them over ten seconds.
type Activity struct {
	dots      int
	lastEvent time.Time
}

func (a *Activity) OnEvent(at time.Time) {
	a.dots = 5
	a.lastEvent = at
}

// Decay dims one dot for every two seconds of silence.
func (a *Activity) Decay(now time.Time) {
	if a.dots == 0 {
		return
	}
	a.dots = max(0, 5-int(now.Sub(a.lastEvent)/(2*time.Second)))
}

func (a Activity) Render(theme Theme) string {
	var b strings.Builder
	for i := range 5 {
		if i < a.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func (a Activity) LastEvent() time.Time {
	return a.lastEvent
}
