// Package ledger keeps the durable attendance record: an append-only CSV
// with at most one row per identity per calendar day. The dedup guard is
// held in memory, seeded from disk at open, and only advanced after the
// durable append succeeded.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

// StatusPresent is the status written for recognition-driven records.
const StatusPresent = "Present"

// DateFormat is the ledger's calendar-day key format.
const DateFormat = "2006-01-02"

// ErrDurableWrite wraps any failure to append a record to disk. The
// in-memory guard is not advanced on this error, so the caller may retry.
var ErrDurableWrite = errors.New("durable attendance write failed")

var csvHeader = []string{"Date", "Time", "Name", "Confidence", "Status"}

// Record is one attendance event. Confidence is nil on legacy rows that
// predate the field.
type Record struct {
	Date       string   `json:"date"`
	Time       string   `json:"time"`
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence"`
	Status     string   `json:"status"`
}

// Stats are aggregate ledger figures.
type Stats struct {
	TotalRecords int      `json:"total_records"`
	DistinctDays int      `json:"distinct_days"`
	TodayCount   int      `json:"today_count"`
	TodayNames   []string `json:"today_names"`
}

// Filter narrows Records output. Zero values mean unbounded.
type Filter struct {
	From string // inclusive, DateFormat
	To   string // inclusive, DateFormat
}

// Ledger manages the attendance CSV and its dedup guard.
type Ledger struct {
	mu   sync.Mutex
	path string
	seen map[string]map[string]struct{} // date -> names recorded that day
}

// Open creates the ledger file with its header if missing and seeds the
// dedup guard from every existing row.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path, seen: make(map[string]map[string]struct{})}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := l.writeHeader(); err != nil {
			return nil, err
		}
		return l, nil
	}

	records, err := l.readAll()
	if err != nil {
		return nil, fmt.Errorf("seeding attendance guard: %w", err)
	}
	for _, r := range records {
		l.markSeenLocked(r.Date, r.Name)
	}
	return l, nil
}

func (l *Ledger) writeHeader() error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating ledger file: %w", err)
	}
	w := csv.NewWriter(f)
	_ = w.Write(csvHeader)
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("writing ledger header: %w", err)
	}
	return f.Close()
}

// RecordIfNew appends an attendance record unless one already exists for
// (name, date of t). Returns true only when a new record was durably
// written. The append is synced to disk before the guard is updated, so
// a mid-write failure cannot leave memory ahead of durable state.
func (l *Ledger) RecordIfNew(name string, confidence float64, t time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	date := t.Format(DateFormat)

	// Defensive: if this date was never warmed (e.g., the process started
	// before midnight), re-check durable state before deciding.
	if _, ok := l.seen[date]; !ok {
		if err := l.warmDateLocked(date); err != nil {
			return false, err
		}
	}
	if _, dup := l.seen[date][name]; dup {
		return false, nil
	}

	row := []string{
		date,
		t.Format("15:04:05"),
		name,
		strconv.FormatFloat(confidence, 'f', 3, 64),
		StatusPresent,
	}
	if err := l.appendRow(row); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDurableWrite, err)
	}

	l.markSeenLocked(date, name)
	return true, nil
}

// appendRow durably appends one CSV row.
func (l *Ledger) appendRow(row []string) error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// warmDateLocked loads the guard set for one date from disk. The guard
// is only installed after a successful scan, so a read failure leaves
// the date cold and the next attempt re-checks durable state.
func (l *Ledger) warmDateLocked(date string) error {
	records, err := l.readAll()
	if err != nil {
		return fmt.Errorf("re-checking durable state for %s: %w", date, err)
	}
	names := make(map[string]struct{})
	for _, r := range records {
		if r.Date == date {
			names[r.Name] = struct{}{}
		}
	}
	l.seen[date] = names
	return nil
}

func (l *Ledger) markSeenLocked(date, name string) {
	if _, ok := l.seen[date]; !ok {
		l.seen[date] = make(map[string]struct{})
	}
	l.seen[date][name] = struct{}{}
}

// Records returns all attendance records matching the filter, in file
// (chronological append) order.
func (l *Ledger) Records(filter Filter) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if filter.From == "" && filter.To == "" {
		return records, nil
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if filter.From != "" && r.Date < filter.From {
			continue
		}
		if filter.To != "" && r.Date > filter.To {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// PresentOn returns the distinct names with a record on the given date,
// sorted.
func (l *Ledger) PresentOn(date string) ([]string, error) {
	records, err := l.Records(Filter{From: date, To: date})
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[r.Name] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// StatsAt computes aggregate figures treating now as "today".
func (l *Ledger) StatsAt(now time.Time) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return Stats{}, err
	}

	today := now.Format(DateFormat)
	days := make(map[string]struct{})
	todayNames := make(map[string]struct{})
	for _, r := range records {
		days[r.Date] = struct{}{}
		if r.Date == today {
			todayNames[r.Name] = struct{}{}
		}
	}

	st := Stats{
		TotalRecords: len(records),
		DistinctDays: len(days),
		TodayCount:   len(todayNames),
		TodayNames:   make([]string, 0, len(todayNames)),
	}
	for n := range todayNames {
		st.TodayNames = append(st.TodayNames, n)
	}
	sort.Strings(st.TodayNames)
	return st, nil
}

// Stats computes aggregate figures for the current day.
func (l *Ledger) Stats() (Stats, error) {
	return l.StatsAt(time.Now())
}

// readAll parses every row of the ledger file. Rows missing the
// confidence column (legacy layout) parse with a nil Confidence; rows
// with fewer than three fields are skipped as unreadable.
func (l *Ledger) readAll() ([]Record, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // legacy rows have fewer columns

	var records []Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ledger: %w", err)
		}
		if len(row) < 3 || isHeaderRow(row) {
			continue
		}

		rec := Record{Date: row[0], Time: row[1], Name: row[2], Status: StatusPresent}
		if len(row) >= 4 && row[3] != "" {
			if c, err := strconv.ParseFloat(row[3], 64); err == nil {
				rec.Confidence = &c
			}
		}
		if len(row) >= 5 && row[4] != "" {
			rec.Status = row[4]
		}
		records = append(records, rec)
	}
	return records, nil
}

// isHeaderRow reports whether a row is a (possibly legacy, shorter)
// column header, e.g. repeated mid-file after a naive concatenation.
func isHeaderRow(row []string) bool {
	for i, col := range row {
		if i >= len(csvHeader) || col != csvHeader[i] {
			return false
		}
	}
	return true
}
