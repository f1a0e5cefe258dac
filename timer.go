package redis

import "time"

// timerTick is the event an individual period's ticker goroutine
// sends into the loop goroutine's fan-in channel.
type timerTick struct {
	period  uint64
	elapsed time.Duration
}

// timerWheel starts and stops the per-period ticker goroutines backing
// virtual timer subscriptions. Every period's ticks land on the same
// channel, read exclusively by the loop goroutine; timerWheel itself
// holds no registry or record state.
type timerWheel struct {
	ticks chan timerTick
}

func newTimerWheel() *timerWheel {
	return &timerWheel{ticks: make(chan timerTick, 64)}
}

// start launches a goroutine ticking once every period milliseconds
// and returns a stop function. The first tick fires after one period
// has elapsed, matching a plain time.Ticker (the source's "initial
// delay 0" is approximated here: the record is marked SUBSCRIBED
// immediately on Insert, so no ack is needed before the first real
// tick arrives).
func (w *timerWheel) start(period uint64) (stop func()) {
	d := time.Duration(period) * time.Millisecond
	if d <= 0 {
		d = time.Millisecond
	}
	t := time.NewTicker(d)
	done := make(chan struct{})
	started := time.Now()

	go func() {
		for {
			select {
			case now := <-t.C:
				select {
				case w.ticks <- timerTick{period: period, elapsed: now.Sub(started)}:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		t.Stop()
		close(done)
	}
}
