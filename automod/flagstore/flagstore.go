// Per-key sets of string flags. The engine uses these as a lightweight audit trail on users: which ban tiers were applied, and whether a ban attempt failed.
package flagstore

import (
	"context"
)

type FlagStore interface {
	Get(ctx context.Context, key string) ([]string, error)
	Add(ctx context.Context, key string, flags []string) error
	Remove(ctx context.Context, key string, flags []string) error
}
