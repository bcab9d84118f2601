// Package cache keeps the log lines of finished pipelines on disk so that
// reopening them does not hit the server again.
package cache

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rusty-ci/rusty-tui/internal/model"
)

const (
	logsFile  = "logs.jsonl"
	metaFile  = "meta.json"
	dirPrefix = "pipeline-"
)

type LogCache struct {
	dir     string
	maxSize int64         // max total cache size in bytes
	ttl     time.Duration // cache entry TTL
}

// Meta describes a cached pipeline.
type Meta struct {
	PipelineID string               `json:"pipeline_id"`
	Number     int                  `json:"number"`
	JobID      string               `json:"job_id"`
	Branch     string               `json:"branch"`
	Status     model.PipelineStatus `json:"status"`
	Lines      int                  `json:"lines"`
	StoredAt   time.Time            `json:"stored_at"`
}

// Entry is a cached pipeline with computed fields.
type Entry struct {
	Meta
	LastAccessed time.Time
	Size         int64
	Path         string
}

func NewLogCache(dir string, maxSizeMB int, ttl time.Duration) (*LogCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log cache dir: %w", err)
	}
	return &LogCache{
		dir:     dir,
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		ttl:     ttl,
	}, nil
}

func (lc *LogCache) Dir() string { return lc.dir }

// pipelineDir maps a pipeline id to its entry directory. Ids are opaque, so
// path separators are neutralized.
func (lc *LogCache) pipelineDir(id string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
	return filepath.Join(lc.dir, dirPrefix+safe)
}

// Has reports whether a fresh entry exists for the pipeline.
func (lc *LogCache) Has(pipelineID string) bool {
	dir := lc.pipelineDir(pipelineID)
	if _, err := os.Stat(filepath.Join(dir, logsFile)); err != nil {
		return false
	}
	return time.Since(dirLastAccessed(dir)) < lc.ttl
}

// Store writes the raw log lines of a finished pipeline. Pipelines that can
// still produce output are rejected.
func (lc *LogCache) Store(p model.Pipeline, lines []string) error {
	if !p.Status.Finished() {
		return fmt.Errorf("pipeline %s is %s, only finished pipelines are cached", p.ID, p.Status)
	}
	dir := lc.pipelineDir(p.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create pipeline log dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, logsFile+".*")
	if err != nil {
		return fmt.Errorf("create temp log file: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		// Lines are JSON documents; newlines inside them are escaped.
		w.WriteString(strings.ReplaceAll(line, "\n", " "))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write logs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, logsFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit logs: %w", err)
	}

	return lc.WriteMeta(Meta{
		PipelineID: p.ID,
		Number:     p.Number,
		JobID:      p.JobID,
		Branch:     p.Branch,
		Status:     p.Status,
		Lines:      len(lines),
		StoredAt:   time.Now(),
	})
}

// Load returns the cached lines of a pipeline in their original order.
func (lc *LogCache) Load(pipelineID string) ([]string, error) {
	f, err := os.Open(filepath.Join(lc.pipelineDir(pipelineID), logsFile))
	if err != nil {
		return nil, fmt.Errorf("open cached logs: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cached logs: %w", err)
	}
	now := time.Now()
	_ = os.Chtimes(filepath.Join(lc.pipelineDir(pipelineID), metaFile), now, now)
	return lines, nil
}

// Evict removes expired entries, then the least recently used ones until
// the cache fits its size cap.
func (lc *LogCache) Evict() error {
	entries, err := lc.ListEntries()
	if err != nil {
		return err
	}

	var total int64
	now := time.Now()
	remaining := entries[:0]
	for _, e := range entries {
		if now.Sub(e.LastAccessed) > lc.ttl {
			os.RemoveAll(e.Path)
			continue
		}
		total += e.Size
		remaining = append(remaining, e)
	}
	entries = remaining

	if total > lc.maxSize {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].LastAccessed.Before(entries[j].LastAccessed)
		})
		for _, e := range entries {
			if total <= lc.maxSize {
				break
			}
			os.RemoveAll(e.Path)
			total -= e.Size
		}
	}
	return nil
}

// WriteMeta writes meta.json in the entry's directory.
func (lc *LogCache) WriteMeta(meta Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(lc.pipelineDir(meta.PipelineID), metaFile), data, 0o644)
}

// ReadMeta reads meta.json from a cache entry.
func (lc *LogCache) ReadMeta(pipelineID string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(lc.pipelineDir(pipelineID), metaFile))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ListEntries scans the cache directory and returns all entries.
func (lc *LogCache) ListEntries() ([]Entry, error) {
	dirs, err := os.ReadDir(lc.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var result []Entry
	for _, d := range dirs {
		if !d.IsDir() || !strings.HasPrefix(d.Name(), dirPrefix) {
			continue
		}
		path := filepath.Join(lc.dir, d.Name())
		entry := Entry{Path: path}

		data, err := os.ReadFile(filepath.Join(path, metaFile))
		if err == nil {
			_ = json.Unmarshal(data, &entry.Meta)
		}
		if entry.PipelineID == "" {
			entry.PipelineID = strings.TrimPrefix(d.Name(), dirPrefix)
		}
		entry.Size = dirSize(path)
		entry.LastAccessed = dirLastAccessed(path)
		result = append(result, entry)
	}
	return result, nil
}

// DeleteEntry removes a single cache entry.
func (lc *LogCache) DeleteEntry(pipelineID string) error {
	return os.RemoveAll(lc.pipelineDir(pipelineID))
}

// DeleteAll removes all cache entries.
func (lc *LogCache) DeleteAll() error {
	dirs, err := os.ReadDir(lc.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, d := range dirs {
		if d.IsDir() && strings.HasPrefix(d.Name(), dirPrefix) {
			os.RemoveAll(filepath.Join(lc.dir, d.Name()))
		}
	}
	return nil
}

// TotalSize returns total cache size in bytes.
func (lc *LogCache) TotalSize() (int64, error) {
	if _, err := os.Stat(lc.dir); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return dirSize(lc.dir), nil
}

func dirSize(path string) int64 {
	var size int64
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}

func dirLastAccessed(path string) time.Time {
	var latest time.Time
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	return latest
}
