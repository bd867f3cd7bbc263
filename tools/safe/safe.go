package safe

import (
	"ReadCamp/logger"

	"go.uber.org/zap"
)

// Go starts a named goroutine that recovers from panic,
// so a single bad callback doesn't take the process down.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic recovered",
					zap.String("name", name), zap.Any("panic", r))
			}
		}()
		f()
	}()
}
