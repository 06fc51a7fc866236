package tools

import (
	"context"
	"log"
)

// TaskFunc defines a function executed asynchronously.
type TaskFunc func(ctx context.Context) error

// Dispatch runs the provided task in a separate goroutine, fire-and-forget.
// Failures are logged under the task name, never surfaced to the caller.
func Dispatch(ctx context.Context, name string, fn TaskFunc) {
	go func() {
		if err := fn(ctx); err != nil {
			log.Printf("[%s] background task failed: %v", name, err)
		}
	}()
}
