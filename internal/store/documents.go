// Package store persists the auction state: the period and bidder JSON
// documents, the archive of closed periods, and the SQLite charge ledger.
//
// Each run reads a full document, applies one transition, and writes the
// full document back. The invoking scheduler serializes mutating runs, so
// writes are last-writer-wins with no in-process locking; atomic
// rename-into-place keeps a crashed run from leaving a torn file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bidme/bidme/internal/auction"
	"github.com/bidme/bidme/internal/registry"
	"github.com/bidme/bidme/internal/schema"
)

// Document file names under the data directory. These names are part of the
// operational contract with the orchestrator workflows.
const (
	PeriodFile  = "current-period.json"
	BiddersFile = "bidders.json"
	ArchiveDir  = "archive"
	LedgerFile  = "charges.db"
)

// biddersDoc is the on-disk container for bidder records.
type biddersDoc struct {
	Bidders map[string]*registry.BidderRecord `json:"bidders"`
}

// LoadPeriod reads and validates current-period.json. A missing file returns
// (nil, nil): no period has ever been opened.
func LoadPeriod(dir string) (*auction.PeriodData, error) {
	data, err := os.ReadFile(filepath.Join(dir, PeriodFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", PeriodFile, err)
	}

	if err := schema.ValidatePeriod(data); err != nil {
		return nil, fmt.Errorf("%s: %w", PeriodFile, err)
	}

	var period auction.PeriodData
	if err := json.Unmarshal(data, &period); err != nil {
		return nil, fmt.Errorf("decode %s: %w", PeriodFile, err)
	}
	return &period, nil
}

// SavePeriod writes current-period.json atomically.
func SavePeriod(period *auction.PeriodData, dir string) error {
	data, err := marshalDocument(period)
	if err != nil {
		return fmt.Errorf("encode %s: %w", PeriodFile, err)
	}
	return writeFileAtomic(filepath.Join(dir, PeriodFile), data)
}

// LoadBidders reads and validates bidders.json into a registry. A missing
// file returns an empty registry.
func LoadBidders(dir string) (*registry.Registry, error) {
	data, err := os.ReadFile(filepath.Join(dir, BiddersFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return registry.New(), nil
		}
		return nil, fmt.Errorf("read %s: %w", BiddersFile, err)
	}

	if err := schema.ValidateBidders(data); err != nil {
		return nil, fmt.Errorf("%s: %w", BiddersFile, err)
	}

	var doc biddersDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", BiddersFile, err)
	}
	if doc.Bidders == nil {
		doc.Bidders = map[string]*registry.BidderRecord{}
	}
	return registry.FromRecords(doc.Bidders), nil
}

// SaveBidders writes bidders.json atomically.
func SaveBidders(reg *registry.Registry, dir string) error {
	data, err := marshalDocument(biddersDoc{Bidders: reg.Records()})
	if err != nil {
		return fmt.Errorf("encode %s: %w", BiddersFile, err)
	}
	return writeFileAtomic(filepath.Join(dir, BiddersFile), data)
}

// ArchivePeriod copies a closed period into the archive directory as
// archive/<period_id>.json. Archiving an already-archived period rewrites
// the same file, which is harmless.
func ArchivePeriod(period *auction.PeriodData, dir string) error {
	if period.Status != auction.StatusClosed {
		return fmt.Errorf("refusing to archive period %s with status %s", period.PeriodID, period.Status)
	}

	archiveDir := filepath.Join(dir, ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	data, err := marshalDocument(period)
	if err != nil {
		return fmt.Errorf("encode archive for %s: %w", period.PeriodID, err)
	}
	return writeFileAtomic(filepath.Join(archiveDir, period.PeriodID+".json"), data)
}

// LoadArchivedPeriod reads one archived period by ID.
func LoadArchivedPeriod(periodID, dir string) (*auction.PeriodData, error) {
	path := filepath.Join(dir, ArchiveDir, periodID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", periodID, err)
	}
	if err := schema.ValidatePeriod(data); err != nil {
		return nil, fmt.Errorf("archive %s: %w", periodID, err)
	}
	var period auction.PeriodData
	if err := json.Unmarshal(data, &period); err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", periodID, err)
	}
	return &period, nil
}

// marshalDocument produces the two-space-indented JSON used for every
// persisted document, with a trailing newline for clean diffs.
func marshalDocument(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// never leaves a torn document.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
