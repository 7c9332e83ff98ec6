// Auto-moderation rules engine for a single subreddit.
//
// This package (`github.com/modshield/modshield/automod`) runs batches of rules against new posts and comments, post edits, and moderator actions. Rules enqueue effects (warn the author, remove the content, post a notice, restore a filtered item), which the engine then persists: warnings go into a per-user ledger with a 90 day window, enough active warnings escalate to temporary and then permanent bans, and throttles keep the bot from notifying or auto-approving too often.
//
// All persistent memory lives in a key/value record store (see the recordstore package), so several daemon instances can share one redis, postgres, or bolt backend. See `cmd/modshield` for a daemon built on this package.
package automod
