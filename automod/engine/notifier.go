package engine

import (
	"context"

	"github.com/modshield/modshield/automod/modapi"
)

// Interface for a type that can handle sending notifications
type Notifier interface {
	SendBan(ctx context.Context, username string, res *BanResult) error
	SendRemoval(ctx context.Context, item *modapi.Content, out *Outcome) error
}
