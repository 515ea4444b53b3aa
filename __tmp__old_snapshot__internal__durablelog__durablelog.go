// Package durablelog defines the optional DurableLog collaborator. When
// configured, the coordinator appends a record for each enlist, crash,
// table creation and recovered tablet before replying; a failed append is
// logged and the reply still goes out. DOWN transitions and table drops
// are not recorded.
package durablelog

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log"
	"strings"

	"github.com/cockroachdb/pebble"
)

// EntryId is the opaque handle a DurableLog hands back for a record,
// stored on ServerEntry.PersistedEntryId.
type EntryId uint64

// Op names which of the three record families a Record belongs to.
type Op string

const (
	OpServerList     Op = "server_list"
	OpTabletMap      Op = "tablet_map"
	OpTableDirectory Op = "table_directory"
)

// Record is one persisted mutation, carrying the coordinator version it
// was produced under so replay can reconstruct state in commit order.
type Record struct {
	Op      Op
	Version uint64
	Entry   []byte
}

// Log is the DurableLog collaborator.
type Log interface {
	Append(rec Record) (EntryId, error)
	Invalidate(id EntryId) error
	Close() error
}

// NoopLog is used when no DurableLog is configured; every mutation
// succeeds without being persisted anywhere.
type NoopLog struct{}

func (NoopLog) Append(Record) (EntryId, error) { return 0, nil }
func (NoopLog) Invalidate(EntryId) error        { return nil }
func (NoopLog) Close() error                    { return nil }

// PebbleLog persists Records in a Pebble instance, one key per EntryId.
type PebbleLog struct {
	db      *pebble.DB
	nextSeq uint64
}

// Open retries on a locked basePath by trying basePath_1, basePath_2, ...
// rather than failing outright, since a coordinator restart racing its own
// not-yet-released previous process is the common case this guards against.
func Open(basePath string) (*PebbleLog, error) {
	const maxRetries = 5
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		path := basePath
		if i > 0 {
			path = fmt.Sprintf("%s_%d", basePath, i)
		}
		db, err := pebble.Open(path, &pebble.Options{})
		if err == nil {
			log.Printf("durablelog: using pebble store at %s", path)
			return &PebbleLog{db: db}, nil
		}
		lastErr = err
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "lock") || strings.Contains(msg, "resource temporarily unavailable") {
			log.Printf("durablelog: %s is locked, trying next path", path)
			continue
		}
		return nil, fmt.Errorf("durablelog: open %s: %w", path, err)
	}
	return nil, fmt.Errorf("durablelog: all fallback paths locked or failed: %w", lastErr)
}

func (l *PebbleLog) Append(rec Record) (EntryId, error) {
	l.nextSeq++
	id := EntryId(l.nextSeq)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return 0, fmt.Errorf("durablelog: encode record: %w", err)
	}
	key := entryKey(id)
	if err := l.db.Set(key, buf.Bytes(), pebble.Sync); err != nil {
		return 0, fmt.Errorf("durablelog: write record: %w", err)
	}
	return id, nil
}

func (l *PebbleLog) Invalidate(id EntryId) error {
	if err := l.db.Delete(entryKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("durablelog: invalidate %d: %w", id, err)
	}
	return nil
}

func (l *PebbleLog) Close() error {
	return l.db.Close()
}

func entryKey(id EntryId) []byte {
	return []byte(fmt.Sprintf("coordinator:log:%020d", uint64(id)))
}


