package storage

import (
	"fmt"
	"os"
	"sync"
)

// Journal records one line per applied operation
type Journal interface {
	Append(line string) error
}

type NopJournal struct{}

func NewNopJournal() *NopJournal            { return &NopJournal{} }
func (j *NopJournal) Append(_ string) error { return nil }

type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(line string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := fmt.Fprintln(j.f, line); err != nil {
		return fmt.Errorf("failed to append journal: %w", err)
	}
	return nil
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

var _ Journal = (*NopJournal)(nil)
var _ Journal = (*FileJournal)(nil)
