package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Actions recorded in the journal.
const (
	ActionCreate = "account_create"
	ActionImport = "account_import"
	ActionDelete = "account_delete"
	ActionExport = "account_export"
	ActionDenied = "permission_denied"
	ActionSubmit = "position_submit"
)

// Event is one journal line. It never carries key material.
type Event struct {
	Time      time.Time `json:"ts"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id"`
	AccountID string    `json:"account_id,omitempty"`
	Outcome   string    `json:"outcome"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Recorder is a sink for audit events.
type Recorder interface {
	Record(ctx context.Context, events ...Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, ...Event) error { return nil }

// Journal appends events to a JSONL file.
type Journal struct {
	path string
	mu   sync.Mutex
}

func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Record appends events as JSON lines.
func (j *Journal) Record(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open audit journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, event := range events {
		if event.Time.IsZero() {
			event.Time = time.Now().UTC()
		}
		line, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal audit event: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write audit event: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush audit journal: %w", err)
	}
	return file.Sync()
}
