package guild

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"guildgate/cmd/internal/discordid"
)

// InMemoryStore is a dev/test fallback used when no database is configured.
// A single mutex serializes every call, so WithGuildLock is trivially exclusive.
type InMemoryStore struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	whitelist map[discordid.ID]WhitelistEntry
	blacklist map[discordid.ID]BlacklistEntry
	notes     map[discordid.ID][]NoteEntry
	audit     map[discordid.ID][]AuditEntry
}

// NewInMemoryStore constructs an empty in-memory Store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: &memData{
		whitelist: make(map[discordid.ID]WhitelistEntry),
		blacklist: make(map[discordid.ID]BlacklistEntry),
		notes:     make(map[discordid.ID][]NoteEntry),
		audit:     make(map[discordid.ID][]AuditEntry),
	}}
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

// WithGuildLock runs fn under the store mutex and restores the previous state
// when fn fails.
func (s *InMemoryStore) WithGuildLock(ctx context.Context, _ discordid.ID, fn func(q Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(s.data); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *InMemoryStore) GetWhitelist(ctx context.Context, guildID discordid.ID) (WhitelistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetWhitelist(ctx, guildID)
}

func (s *InMemoryStore) UpsertWhitelist(ctx context.Context, in WhitelistEntry) (WhitelistEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpsertWhitelist(ctx, in)
}

func (s *InMemoryStore) DeleteWhitelist(ctx context.Context, guildID discordid.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeleteWhitelist(ctx, guildID)
}

func (s *InMemoryStore) MarkInvited(ctx context.Context, guildID discordid.ID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.MarkInvited(ctx, guildID, now)
}

func (s *InMemoryStore) GetBlacklist(ctx context.Context, guildID discordid.ID) (BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetBlacklist(ctx, guildID)
}

func (s *InMemoryStore) InsertBlacklist(ctx context.Context, in BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertBlacklist(ctx, in)
}

func (s *InMemoryStore) DeleteBlacklist(ctx context.Context, guildID discordid.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeleteBlacklist(ctx, guildID)
}

func (s *InMemoryStore) DeleteExpiredBlacklist(ctx context.Context, now time.Time) ([]BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeleteExpiredBlacklist(ctx, now)
}

func (s *InMemoryStore) InsertNote(ctx context.Context, in NoteEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertNote(ctx, in)
}

func (s *InMemoryStore) ListNotes(ctx context.Context, guildID discordid.ID) ([]NoteEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListNotes(ctx, guildID)
}

func (s *InMemoryStore) DeleteNotes(ctx context.Context, guildID discordid.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeleteNotes(ctx, guildID)
}

func (s *InMemoryStore) InsertAudit(ctx context.Context, in AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertAudit(ctx, in)
}

func (s *InMemoryStore) ListAudit(ctx context.Context, guildID discordid.ID, limit int) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListAudit(ctx, guildID, limit)
}

// ---- unlocked data operations ----

func (d *memData) clone() *memData {
	return &memData{
		whitelist: maps.Clone(d.whitelist),
		blacklist: maps.Clone(d.blacklist),
		notes:     maps.Clone(d.notes),
		audit:     maps.Clone(d.audit),
	}
}

func (d *memData) GetWhitelist(ctx context.Context, guildID discordid.ID) (WhitelistEntry, error) {
	if err := ctx.Err(); err != nil {
		return WhitelistEntry{}, err
	}
	e, ok := d.whitelist[guildID]
	if !ok {
		return WhitelistEntry{}, ErrNotFound
	}
	return e, nil
}

func (d *memData) UpsertWhitelist(ctx context.Context, in WhitelistEntry) (WhitelistEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return WhitelistEntry{}, false, err
	}
	if in.GuildID.IsZero() || in.UserID.IsZero() {
		return WhitelistEntry{}, false, ErrInvalidInput
	}
	prev, exists := d.whitelist[in.GuildID]
	out := WhitelistEntry{
		GuildID:   in.GuildID,
		UserID:    in.UserID,
		Invited:   false,
		CreatedAt: in.CreatedAt,
		UpdatedAt: in.CreatedAt,
	}
	if exists {
		out.CreatedAt = prev.CreatedAt
	}
	d.whitelist[in.GuildID] = out
	return out, !exists, nil
}

func (d *memData) DeleteWhitelist(ctx context.Context, guildID discordid.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := d.whitelist[guildID]
	delete(d.whitelist, guildID)
	return ok, nil
}

func (d *memData) MarkInvited(ctx context.Context, guildID discordid.ID, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e, ok := d.whitelist[guildID]
	if !ok || e.Invited {
		return false, nil
	}
	e.Invited = true
	e.UpdatedAt = now
	d.whitelist[guildID] = e
	return true, nil
}

func (d *memData) GetBlacklist(ctx context.Context, guildID discordid.ID) (BlacklistEntry, error) {
	if err := ctx.Err(); err != nil {
		return BlacklistEntry{}, err
	}
	e, ok := d.blacklist[guildID]
	if !ok {
		return BlacklistEntry{}, ErrNotFound
	}
	return e, nil
}

func (d *memData) InsertBlacklist(ctx context.Context, in BlacklistEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if in.GuildID.IsZero() || in.UserID.IsZero() {
		return ErrInvalidInput
	}
	if _, ok := d.blacklist[in.GuildID]; ok {
		return ErrAlreadyBlacklisted
	}
	d.blacklist[in.GuildID] = in
	return nil
}

func (d *memData) DeleteBlacklist(ctx context.Context, guildID discordid.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := d.blacklist[guildID]
	delete(d.blacklist, guildID)
	return ok, nil
}

func (d *memData) DeleteExpiredBlacklist(ctx context.Context, now time.Time) ([]BlacklistEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []BlacklistEntry
	for id, e := range d.blacklist {
		if e.Expired(now) {
			out = append(out, e)
			delete(d.blacklist, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out, nil
}

func (d *memData) InsertNote(ctx context.Context, in NoteEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if in.ID == "" || in.GuildID.IsZero() {
		return ErrInvalidInput
	}
	d.notes[in.GuildID] = append(d.notes[in.GuildID], in)
	return nil
}

func (d *memData) ListNotes(ctx context.Context, guildID discordid.ID) ([]NoteEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := d.notes[guildID]
	out := make([]NoteEntry, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (d *memData) DeleteNotes(ctx context.Context, guildID discordid.ID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := int64(len(d.notes[guildID]))
	delete(d.notes, guildID)
	return n, nil
}

func (d *memData) InsertAudit(ctx context.Context, in AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if in.ID == "" || in.GuildID.IsZero() || in.Action == "" {
		return ErrInvalidInput
	}
	d.audit[in.GuildID] = append(d.audit[in.GuildID], in)
	return nil
}

func (d *memData) ListAudit(ctx context.Context, guildID discordid.ID, limit int) ([]AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := d.audit[guildID]
	out := make([]AuditEntry, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, src[i])
	}
	return out, nil
}
