package setstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/modshield/modshield/automod/recordstore"
)

// Name of the blacklisted-terms set, which is also its record key.
const BlacklistSet = "blacklist"

// Used until a moderator configures a blacklist.
var DefaultBlacklist = []string{"test1", "test2"}

// Sets kept as a JSON list of strings under a record-store key named after the set. Sets that were never written fall back to Defaults; a stored value that doesn't parse is logged and also falls back.
type RecordSetStore struct {
	Store    recordstore.RecordStore
	Defaults map[string][]string
	Logger   *slog.Logger
}

var _ SetStore = (*RecordSetStore)(nil)

func NewRecordSetStore(store recordstore.RecordStore, logger *slog.Logger) *RecordSetStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordSetStore{
		Store: store,
		Defaults: map[string][]string{
			BlacklistSet: DefaultBlacklist,
		},
		Logger: logger,
	}
}

func (s *RecordSetStore) Members(ctx context.Context, name string) ([]string, error) {
	raw, err := s.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return slices.Clone(s.Defaults[name]), nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		s.Logger.Warn("ignoring malformed stored set", "set", name, "err", err)
		return slices.Clone(s.Defaults[name]), nil
	}
	return vals, nil
}

func (s *RecordSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	vals, err := s.Members(ctx, name)
	if err != nil {
		return false, err
	}
	return slices.Contains(vals, val), nil
}

// Overwrites the stored set. Duplicates and empty strings are dropped; order is otherwise preserved.
func (s *RecordSetStore) SetMembers(ctx context.Context, name string, vals []string) error {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, name, string(b), 0)
}
