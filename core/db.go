package core

import "context"

// Transactor runs fn atomically: if fn returns an error, every write made through ctx is undone.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
