package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"hydralite/internal/fileutil"
	"hydralite/internal/logging"
)

// Load reads the set of already-ingested filenames. A missing or empty file
// yields an empty set with no error.
func Load(path string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return set, nil
		}
		return set, fmt.Errorf("read ledger: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return set, nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return make(map[string]struct{}), fmt.Errorf("parse ledger: %w", err)
	}
	for _, name := range names {
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set, nil
}

// Save overwrites the ledger with the sorted contents of set.
func Save(path string, set map[string]struct{}) error {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := fileutil.WriteJSONAtomic(path, names); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// Ledger is the in-memory view of the dedup ledger shared by watcher workers.
type Ledger struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	names map[string]struct{}
}

// Open loads the ledger at path. Load failures are logged and treated as an
// empty ledger.
func Open(path string, logger *slog.Logger) *Ledger {
	logger = logging.NewComponentLogger(logger, "ledger")
	names, err := Load(path)
	if err != nil {
		logging.WarnWithContext(logger, "dedup ledger unreadable; starting empty", "ledger_load_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix or delete the ledger file"),
			logging.String(logging.FieldImpact, "previously ingested files still in the drop directory may be processed again"),
		)
	}
	logger.Debug("dedup ledger loaded", logging.Int("entry_count", len(names)), logging.String("path", path))
	return &Ledger{path: path, logger: logger, names: names}
}

// Contains reports whether name was already ingested successfully.
func (l *Ledger) Contains(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.names[name]
	return ok
}

// Add records name and persists the ledger. The in-memory entry is kept even
// if persisting fails; the error is logged and returned.
func (l *Ledger) Add(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("ledger: empty name")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names[name] = struct{}{}
	if err := Save(l.path, l.names); err != nil {
		logging.WarnWithContext(l.logger, "dedup ledger not persisted", "ledger_save_failed",
			logging.String("path", l.path),
			logging.String("file", name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions in the data directory"),
			logging.String(logging.FieldImpact, "the file may be reprocessed after a restart"),
		)
		return err
	}
	return nil
}

// Len returns the number of recorded names.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.names)
}
