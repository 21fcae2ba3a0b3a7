// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/ManuGH/nlbridge/internal/netlogo"
	"github.com/google/renameio/v2"
)

// File layout below the sink directory.
const (
	singlesDir = "singles"
	runsDir    = "runs"
	tableFile  = "table.json"
	actionsLog = "actions.log"
	inlineFile = "inline.txt"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// File writes payloads below a directory. Every document is replaced
// atomically so readers never observe a partial file.
type File struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	runs []string
}

// tableDoc is the combined view written by OpenTable.
type tableDoc struct {
	UpdatedAt time.Time `json:"updated_at"`
	Runs      []string  `json:"runs"`
}

// NewFile creates the directory layout under dir.
func NewFile(dir string) (*File, error) {
	for _, sub := range []string{singlesDir, runsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("sink: create %s: %w", sub, err)
		}
	}
	return &File{dir: dir, now: time.Now}, nil
}

// Dir returns the sink directory.
func (f *File) Dir() string { return f.dir }

func safeName(s string) string {
	n := strings.Trim(unsafeName.ReplaceAllString(s, "_"), "_")
	if n == "" {
		return "unnamed"
	}
	return n
}

// writeJSON writes v to path through a pending file.
func writeJSON(ctx context.Context, path string, v any) error {
	logger := xglog.FromContext(ctx)

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("sink: create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Str(xglog.FieldPath, path).Msg("cleanup pending file")
		}
	}()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("sink: encode %s: %w", filepath.Base(path), err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("sink: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (f *File) ExportData(ctx context.Context, data map[string]any) error {
	name := safeName(fmt.Sprint(data["collection_name"]))
	stamp := f.now().UTC().Format("20060102T150405.000000000")
	return writeJSON(ctx, filepath.Join(f.dir, singlesDir, name+"-"+stamp+".json"), data)
}

func (f *File) ExportRun(ctx context.Context, run netlogo.Run) error {
	name := safeName(run.TimeStamp) + ".json"
	doc := map[string]any{
		"time_stamp":      run.TimeStamp,
		"per_run_labels":  run.PerRunLabels,
		"per_run_values":  run.PerRunValues,
		"per_tick_labels": run.PerTickLabels,
		"per_tick_values": run.PerTickValues,
	}
	if err := writeJSON(ctx, filepath.Join(f.dir, runsDir, name), doc); err != nil {
		return err
	}
	f.mu.Lock()
	f.runs = append(f.runs, name)
	f.mu.Unlock()
	return nil
}

// OpenTable rewrites table.json listing every run file on disk.
func (f *File) OpenTable(ctx context.Context) error {
	entries, err := os.ReadDir(filepath.Join(f.dir, runsDir))
	if err != nil {
		return fmt.Errorf("sink: list runs: %w", err)
	}
	doc := tableDoc{UpdatedAt: f.now().UTC()}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			doc.Runs = append(doc.Runs, e.Name())
		}
	}
	sort.Strings(doc.Runs)
	return writeJSON(ctx, filepath.Join(f.dir, tableFile), doc)
}

// LogAction appends line to actions.log.
func (f *File) LogAction(_ context.Context, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fh, err := os.OpenFile(filepath.Join(f.dir, actionsLog), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("sink: open action log: %w", err)
	}
	if _, err := fmt.Fprintln(fh, line); err != nil {
		_ = fh.Close()
		return fmt.Errorf("sink: append action: %w", err)
	}
	return fh.Close()
}

// ShowText replaces inline.txt with text.
func (f *File) ShowText(_ context.Context, text string) error {
	if err := renameio.WriteFile(filepath.Join(f.dir, inlineFile), []byte(text), 0o640); err != nil {
		return fmt.Errorf("sink: write inline text: %w", err)
	}
	return nil
}
