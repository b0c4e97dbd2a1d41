package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "github.com/Vampouille/georchestra/pkg/logx"
)

const compactEvery = 1000

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.tokens.snapshot.json (periodic snapshot)
//   - <prefix>.tokens.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot every compactEvery writes and
// on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	tokens       map[string]UserToken // by uid

	writes int
}

type journalRecord struct {
	Op        string `json:"op"` // "put" | "del"
	UID       string `json:"uid"`
	Token     string `json:"token,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"` // unix milli
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".tokens.snapshot.json"
	journalPath := prefix + ".tokens.journal.jsonl"

	tokens := map[string]UserToken{}
	if err := loadSnapshot(snapPath, tokens); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("token snapshot unreadable, starting from journal", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replayJournal(journalPath, tokens); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("token journal replay failed", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("tokens", len(tokens)))
	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		tokens:       tokens,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) PutToken(ctx context.Context, t UserToken) error {
	_ = ctx
	t.UID = strings.TrimSpace(t.UID)
	if t.UID == "" {
		return errors.New("uid required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	// same precision as the journal
	t.CreatedAt = time.UnixMilli(t.CreatedAt.UnixMilli())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: "put", UID: t.UID, Token: t.Token, CreatedAt: t.CreatedAt.UnixMilli()}); err != nil {
		return err
	}
	s.tokens[t.UID] = t
	return nil
}

func (s *fileStore) FindByToken(ctx context.Context, token string) (UserToken, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.Token == token {
			return t, nil
		}
	}
	return UserToken{}, ErrNotFound
}

func (s *fileStore) FindByUID(ctx context.Context, uid string) (UserToken, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[uid]
	if !ok {
		return UserToken{}, ErrNotFound
	}
	return t, nil
}

func (s *fileStore) FindCreatedBefore(ctx context.Context, before time.Time) ([]UserToken, error) {
	_ = ctx
	cut := before.UnixMilli()

	s.mu.Lock()
	var out []UserToken
	for _, t := range s.tokens {
		if t.CreatedAt.UnixMilli() < cut {
			out = append(out, t)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UID < out[j].UID
	})
	return out, nil
}

func (s *fileStore) DeleteToken(ctx context.Context, uid string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[uid]; !ok {
		return nil
	}
	if err := s.appendLocked(journalRecord{Op: "del", UID: uid}); err != nil {
		return err
	}
	delete(s.tokens, uid)
	return nil
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("token journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	list := make([]UserToken, 0, len(s.tokens))
	for _, t := range s.tokens {
		list = append(list, t)
	}
	if err := json.NewEncoder(f).Encode(list); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]UserToken) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var list []UserToken
	if err := json.NewDecoder(f).Decode(&list); err != nil {
		return err
	}
	for _, t := range list {
		out[t.UID] = t
	}
	return nil
}

func replayJournal(path string, out map[string]UserToken) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.UID == "" {
			continue
		}
		switch r.Op {
		case "put":
			out[r.UID] = UserToken{UID: r.UID, Token: r.Token, CreatedAt: time.UnixMilli(r.CreatedAt)}
		case "del":
			delete(out, r.UID)
		}
	}
	return sc.Err()
}
