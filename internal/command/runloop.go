package command

import (
	"context"
	"io"

	"tradecore/internal/engine"
)

// RunLoop reads one command per line from r until EOF or ctx is done,
// applying each to eng through a Dispatcher. A line that fails to parse
// emits an error event and is otherwise skipped; RunLoop itself only
// returns an error for a read failure other than io.EOF or context
// cancellation.
func RunLoop(ctx context.Context, r io.Reader, eng *engine.Engine) error {
	reader := NewReader(r)
	dispatcher := NewDispatcher(eng)
	em := eng.Emitter()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, lineNo, sanitizeErr, ok := reader.Next()
		if !ok {
			return reader.scanner.Err()
		}
		if sanitizeErr != nil {
			em.EmitError(sanitizeErr.Error())
			continue
		}

		cmd, err := Parse(lineNo, line)
		if err != nil {
			em.EmitError(err.Error())
			continue
		}

		dispatcher.Apply(ctx, cmd)
	}
}
