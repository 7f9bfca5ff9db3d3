// Package ledger persists run history and production statistics as JSON
// files in the data directory. Every completed run is recorded exactly
// once, success or failure, so failed runs stay auditable. Missing or
// corrupt files are tolerated and treated as fresh state.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MaxHistory caps the batch history at the most recent entries.
const MaxHistory = 50

const (
	historyFile    = "batch_history.json"
	statisticsFile = "statistics.json"

	dayFormat = "2006-01-02"
)

// Batch is one recorded run.
type Batch struct {
	Timestamp time.Time `json:"timestamp"`
	Serials   []string  `json:"serials"`
	Count     int       `json:"count"`
	Product   string    `json:"product"`
	Success   bool      `json:"success"`
}

// DayStats aggregates one calendar day's production.
type DayStats struct {
	Serials int `json:"serials"`
	Batches int `json:"batches"`
	Success int `json:"success"`
	Errors  int `json:"errors"`
}

// Statistics is the cumulative statistics document.
type Statistics struct {
	Daily        map[string]DayStats `json:"daily"`
	Products     map[string]int      `json:"products"`
	TotalSerials int                 `json:"total_serials"`
	TotalBatches int                 `json:"total_batches"`
	SuccessCount int                 `json:"success_count"`
	ErrorCount   int                 `json:"error_count"`
}

func emptyStatistics() Statistics {
	return Statistics{
		Daily:    make(map[string]DayStats),
		Products: make(map[string]int),
	}
}

// Ledger is a file-backed run ledger. Safe for concurrent use; writes are
// atomic via a temporary file so a crash cannot leave a half-written
// document behind.
type Ledger struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// New creates a ledger rooted at dir, creating the directory if needed.
func New(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("ledger: init directory %s: %w", dir, err)
	}
	return &Ledger{dir: dir, now: time.Now}, nil
}

// Record appends a history entry and updates statistics for one completed
// run. Called exactly once per run, whatever the outcome. The two documents
// are written independently: a failed history write does not skip the
// statistics update, and Record reports the first write error.
func (l *Ledger) Record(serials []string, product string, success bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	history := l.loadHistory()
	entry := Batch{
		Timestamp: now,
		Serials:   serials,
		Count:     len(serials),
		Product:   product,
		Success:   success,
	}
	history = append([]Batch{entry}, history...)
	if len(history) > MaxHistory {
		history = history[:MaxHistory]
	}
	historyErr := l.writeJSON(historyFile, history)

	stats := l.loadStatistics()
	day := now.Format(dayFormat)
	bucket := stats.Daily[day]
	bucket.Serials += len(serials)
	bucket.Batches++
	if success {
		bucket.Success++
	} else {
		bucket.Errors++
	}
	stats.Daily[day] = bucket

	stats.Products[product] += len(serials)
	stats.TotalSerials += len(serials)
	stats.TotalBatches++
	if success {
		stats.SuccessCount++
	} else {
		stats.ErrorCount++
	}
	statsErr := l.writeJSON(statisticsFile, stats)

	if historyErr != nil {
		return historyErr
	}
	return statsErr
}

// History returns the most recent entries, newest first. limit <= 0 returns
// everything retained.
func (l *Ledger) History(limit int) []Batch {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.loadHistory()
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history
}

// Stats returns the full statistics document.
func (l *Ledger) Stats() Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadStatistics()
}

// Today returns the current day's bucket, zero-valued when nothing has run
// today.
func (l *Ledger) Today() DayStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadStatistics().Daily[l.now().Format(dayFormat)]
}

func (l *Ledger) loadHistory() []Batch {
	var history []Batch
	if err := l.readJSON(historyFile, &history); err != nil {
		return []Batch{}
	}
	if history == nil {
		history = []Batch{}
	}
	return history
}

func (l *Ledger) loadStatistics() Statistics {
	stats := emptyStatistics()
	if err := l.readJSON(statisticsFile, &stats); err != nil {
		return emptyStatistics()
	}
	if stats.Daily == nil {
		stats.Daily = make(map[string]DayStats)
	}
	if stats.Products == nil {
		stats.Products = make(map[string]int)
	}
	return stats
}

func (l *Ledger) readJSON(name string, v interface{}) error {
	b, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		// Missing or unreadable file: callers fall back to fresh state.
		return err
	}
	return json.Unmarshal(b, v)
}

func (l *Ledger) writeJSON(name string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: marshal %s: %w", name, err)
	}

	path := filepath.Join(l.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0600); err != nil {
		return fmt.Errorf("ledger: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("ledger: atomic rename %s: %w", path, err)
	}
	return nil
}
