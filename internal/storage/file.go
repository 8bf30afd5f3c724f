package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "woonbot/pkg/logx"
)

// fileStore keeps everything in one directory:
//   - applications.jsonl (append-only, replayed on open)
//   - runs.jsonl         (append-only)
//   - prefs.json         (rewritten atomically)
type fileStore struct {
	log logx.Logger
	dir string

	mu       sync.Mutex
	appsFile *os.File
	runsFile *os.File
	apps     []Application
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	appsPath := filepath.Join(dir, "applications.jsonl")
	apps, err := replayApplications(appsPath, log)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	af, err := os.OpenFile(appsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	rf, err := os.OpenFile(filepath.Join(dir, "runs.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}
	return &fileStore{log: log, dir: dir, appsFile: af, runsFile: rf, apps: apps}, nil
}

func replayApplications(path string, log logx.Logger) ([]Application, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Application
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var a Application
		if err := json.Unmarshal(sc.Bytes(), &a); err != nil {
			// A torn last line after a crash is expected.
			log.Debug("skipping bad application record", logx.Err(err))
			continue
		}
		out = append(out, a)
	}
	return out, sc.Err()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.appsFile != nil {
		errs = append(errs, s.appsFile.Close())
		s.appsFile = nil
	}
	if s.runsFile != nil {
		errs = append(errs, s.runsFile.Close())
		s.runsFile = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) RecordApplication(_ context.Context, a Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appsFile == nil {
		return ErrDisabled
	}
	if err := json.NewEncoder(s.appsFile).Encode(a); err != nil {
		return err
	}
	s.apps = append(s.apps, a)
	return nil
}

func (s *fileStore) HasApplied(_ context.Context, listingID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.apps {
		if a.ListingID == listingID && a.OK && !a.DryRun {
			return true, nil
		}
	}
	return false, nil
}

func (s *fileStore) RecentApplications(_ context.Context, limit int) ([]Application, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Application, 0, min(limit, len(s.apps)))
	for i := len(s.apps) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.apps[i])
	}
	return out, nil
}

func (s *fileStore) AppendRun(_ context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return ErrDisabled
	}
	return json.NewEncoder(s.runsFile).Encode(r)
}

func (s *fileStore) SavePrefs(_ context.Context, p Prefs) error {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dir, "prefs.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fileStore) LoadPrefs(_ context.Context) (Prefs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(filepath.Join(s.dir, "prefs.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return Prefs{}, nil
	}
	if err != nil {
		return Prefs{}, err
	}
	var p Prefs
	if err := json.Unmarshal(b, &p); err != nil {
		return Prefs{}, err
	}
	return p, nil
}
