package station

import (
	"context"
	"time"

	"qcstation/internal/engine"
)

// Input is one unit of operator work applied to the engine on the Run
// goroutine.
type Input func(*engine.Engine)

// Run applies inputs to the logged-in engine and checks for idleness on
// every tick. It returns nil when inputs is closed and ctx.Err() when ctx is
// cancelled. The engine is only touched from this goroutine.
func (s *Station) Run(ctx context.Context, inputs <-chan Input) error {
	eng := s.engine
	if eng == nil {
		return ErrNotLoggedIn
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-inputs:
			if !ok {
				return nil
			}
			if in != nil {
				in(eng)
			}
		case <-ticker.C:
			eng.Tick()
		}
	}
}
