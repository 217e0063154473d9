package safe

import (
	"ChatRelay/logger"
)

// SafeGo starts a goroutine that recovers from panic,
// so background work can never take down the process.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
