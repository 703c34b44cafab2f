package pulse

import (
	"context"
	"time"
)

// Run drives the engine's Tick at its configured DDA frequency until ctx
// is cancelled. This stands in for the real periodic hardware interrupt;
// callers that drive Tick directly from an actual timer ISR don't need
// this loop at all.
func (e *Engine) Run(ctx context.Context) {
	period := time.Duration(float64(time.Second) / e.constants.FrequencyDDA)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}
