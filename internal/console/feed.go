package console

import (
	"bufio"
	"context"
	"io"

	"qcstation/internal/engine"
	"qcstation/internal/station"
)

// Feed reads lines from r on its own goroutine and turns each into a
// station.Input bound to c. The channel closes at end of input, after a
// quit command, or when ctx is done. Parse errors are reported through the
// same channel so output stays ordered.
func Feed(ctx context.Context, r io.Reader, c *Console) <-chan station.Input {
	out := make(chan station.Input)
	go func() {
		defer close(out)
		send := func(in station.Input) bool {
			select {
			case out <- in:
				return true
			case <-ctx.Done():
				return false
			}
		}
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			cmd, ok, err := Parse(scanner.Text())
			if err != nil {
				if !send(func(*engine.Engine) { c.Error(err) }) {
					return
				}
				continue
			}
			if !ok {
				continue
			}
			if cmd.Name == NameQuit {
				return
			}
			if !send(func(eng *engine.Engine) { c.Apply(eng, cmd) }) {
				return
			}
		}
	}()
	return out
}
