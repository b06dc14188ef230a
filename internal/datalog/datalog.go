package datalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/san-kum/aeropid/internal/system"
)

// Source provides the snapshot to log.
type Source interface {
	Snapshot() system.Status
}

// Logger appends periodic state snapshots to a CSV file. It is an optional
// collaborator for offline inspection; the in-memory ring remains the only
// live history.
type Logger struct {
	dir      string
	interval int
	src      Source

	mu        sync.Mutex
	file      *os.File
	writer    *csv.Writer
	scheduler *gocron.Scheduler
}

func New(dir string, intervalSec int, src Source) *Logger {
	if intervalSec <= 0 {
		intervalSec = 60
	}
	return &Logger{dir: dir, interval: intervalSec, src: src}
}

// Start opens the log file and schedules the periodic append.
func (l *Logger) Start() error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(l.dir, fmt.Sprintf("aeropid_%d.csv", time.Now().Unix()))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	l.file = f
	l.writer = csv.NewWriter(f)

	if err := l.writer.Write([]string{"timestamp_ms", "angle", "reference", "error", "running"}); err != nil {
		f.Close()
		return err
	}
	l.writer.Flush()

	l.scheduler = gocron.NewScheduler(time.UTC)
	if _, err := l.scheduler.Every(l.interval).Seconds().Do(l.append); err != nil {
		f.Close()
		return err
	}
	l.scheduler.StartAsync()
	return nil
}

func (l *Logger) append() {
	st := l.src.Snapshot()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Write([]string{
		strconv.FormatInt(time.Now().UnixMilli(), 10),
		strconv.FormatFloat(st.CurrentAngle, 'f', 4, 64),
		strconv.FormatFloat(st.ReferenceAngle, 'f', 4, 64),
		strconv.FormatFloat(st.Error, 'f', 4, 64),
		strconv.FormatBool(st.IsRunning),
	})
	l.writer.Flush()
}

// Stop halts the schedule and closes the file.
func (l *Logger) Stop() {
	if l.scheduler != nil {
		l.scheduler.Stop()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil {
		l.writer.Flush()
	}
	if l.file != nil {
		l.file.Close()
	}
}
