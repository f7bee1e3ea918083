package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/harunnryd/cipher/pkg/orders"
)

// File stores the whole ledger as a JSON array. Every append rewrites the
// file through a temp file and rename while holding the process lock.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile opens a file ledger, creating it as an empty array when missing.
func NewFile(path string) (*File, error) {
	if path == "" {
		path = "orders.json"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(path, []byte("[]\n"), 0o644); err != nil {
			return nil, fmt.Errorf("init ledger: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat ledger: %w", err)
	}
	return &File{path: path}, nil
}

func (f *File) Name() string { return "file" }

// Path returns the ledger file location.
func (f *File) Path() string { return f.path }

func (f *File) Append(ctx context.Context, order orders.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	list, err := f.read()
	if err != nil {
		return err
	}
	list = append(list, order)
	body, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	return f.writeAtomic(append(body, '\n'))
}

func (f *File) All(ctx context.Context) ([]orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *File) Last(ctx context.Context) (orders.Order, bool, error) {
	list, err := f.All(ctx)
	if err != nil {
		return orders.Order{}, false, err
	}
	o, ok := lastOf(list)
	return o, ok, nil
}

func (f *File) Close() error { return nil }

func (f *File) read() ([]orders.Order, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var list []orders.Order
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", f.path, err)
	}
	return list, nil
}

func (f *File) writeAtomic(body []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".orders-*.json")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
