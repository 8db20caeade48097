package mailsource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/extraction"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/logger"
)

const (
	readDir     = "read"
	rejectedDir = "rejected"
)

// Spool is a directory of *.json messages. Reading a message moves it into
// read/; a file that does not decode is moved into rejected/ so it is not
// retried forever. Unread messages stay where they are, but a file is handed
// out once per Spool until it is released, so messages that stay unread
// never hold back the ones behind them.
type Spool struct {
	dir string

	mu      sync.Mutex
	paths   map[string]string // external id -> path
	claimed map[string]string // path -> external id
}

// NewSpool creates a spool over dir.
func NewSpool(dir string) *Spool {
	return &Spool{dir: dir, paths: make(map[string]string), claimed: make(map[string]string)}
}

// spoolMessage accepts the received_at forms mail exporters commonly write.
type spoolMessage struct {
	domain.InboundEmail
	ReceivedAt string `json:"received_at"`
}

var receivedLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC1123,
	"2006-01-02 15:04:05",
}

// Fetch implements Source.
func (s *Spool) Fetch(ctx context.Context, limit int) ([]domain.InboundEmail, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read spool: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	s.forgetMissing(names)

	var out []domain.InboundEmail
	for _, name := range names {
		if limit > 0 && len(out) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		path := filepath.Join(s.dir, name)
		if s.isClaimed(path) {
			continue
		}
		email, err := s.load(path)
		if err != nil {
			logger.Warn("rejecting spool message", "file", name, "error", err)
			if mvErr := s.move(path, rejectedDir); mvErr != nil {
				logger.Error("failed to move rejected message", "file", name, "error", mvErr)
			}
			continue
		}
		s.mu.Lock()
		s.paths[email.ExternalID()] = path
		s.claimed[path] = email.ExternalID()
		s.mu.Unlock()
		out = append(out, email)
	}
	return out, nil
}

func (s *Spool) isClaimed(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claimed[path]
	return ok
}

// forgetMissing drops claims on files that left the directory.
func (s *Spool) forgetMissing(names []string) {
	present := make(map[string]struct{}, len(names))
	for _, name := range names {
		present[filepath.Join(s.dir, name)] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, id := range s.claimed {
		if _, ok := present[path]; !ok {
			delete(s.claimed, path)
			if s.paths[id] == path {
				delete(s.paths, id)
			}
		}
	}
}

func (s *Spool) load(path string) (domain.InboundEmail, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.InboundEmail{}, err
	}
	var msg spoolMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.InboundEmail{}, fmt.Errorf("decode: %w", err)
	}
	email := msg.InboundEmail
	if email.ExternalID() == "" {
		email.UID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	email.ReceivedAt = parseReceived(msg.ReceivedAt)
	if email.ReceivedAt.IsZero() {
		if info, err := os.Stat(path); err == nil {
			email.ReceivedAt = info.ModTime()
		}
	}
	for i := range email.Attachments {
		a := &email.Attachments[i]
		a.MIMEType = extraction.NormalizeMIME(a.Data, a.MIMEType, a.Filename)
	}
	return email, nil
}

func parseReceived(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	// "Tue, 3 Mar 2026 10:00:00 -0500 (EST)"
	if open := strings.LastIndex(v, " ("); open != -1 && strings.HasSuffix(v, ")") {
		v = strings.TrimSpace(v[:open])
	}
	for _, layout := range receivedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	logger.Debug("unparseable received_at", "value", v)
	return time.Time{}
}

// MarkRead implements Source.
func (s *Spool) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	path, ok := s.paths[id]
	if ok {
		delete(s.paths, id)
		delete(s.claimed, path)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	return s.move(path, readDir)
}

// Release implements Source. The file stays in place and is fetched again.
func (s *Spool) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.paths[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	delete(s.paths, id)
	delete(s.claimed, path)
	return nil
}

// Ping implements Source.
func (s *Spool) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("spool dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("spool dir: %s is not a directory", s.dir)
	}
	return nil
}

func (s *Spool) move(path, sub string) error {
	dst := filepath.Join(s.dir, sub)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dst, filepath.Base(path)))
}

// Write drops a message into the spool, named so that it sorts after the
// messages already there. It is used by the ingest command.
func (s *Spool) Write(email domain.InboundEmail) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(email, "", "  ")
	if err != nil {
		return "", err
	}
	id := email.ExternalID()
	if id == "" {
		id = "message"
	}
	name := fmt.Sprintf("%d_%s.json", time.Now().UnixNano(), sanitize(id))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, id)
}
