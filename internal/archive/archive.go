// Package archive moves backup generations in and out of the store as
// zstd-compressed files: one JSON header line followed by the JSON body.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/talgya/farmstead/internal/gameerr"
	"github.com/talgya/farmstead/internal/persistence"
)

// FormatVersion is the archive layout written by this package.
const FormatVersion = 1

// Header identifies an archive without decoding its body.
type Header struct {
	ID         string    `json:"id"`
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	BackupID   int64     `json:"backup_id"`
	Season     string    `json:"season"`
	Day        int       `json:"day"`
}

// Document is one backup generation.
type Document struct {
	Header   Header                     `json:"header"`
	Backup   persistence.SaveBackup     `json:"backup"`
	Player   *persistence.PlayerCore    `json:"player,omitempty"`
	Farmland []persistence.FarmlandTile `json:"farmland"`
	Crops    []persistence.Crop         `json:"crops"`
	Items    []persistence.BackpackItem `json:"items,omitempty"`
	Tasks    []persistence.PlayerTask   `json:"tasks,omitempty"`
	Vars     []persistence.DialogueVar  `json:"vars,omitempty"`
}

// Build reads backup id into a Document.
func Build(ctx context.Context, db *persistence.DB, id int64) (*Document, error) {
	b, err := db.Backup(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, gameerr.New(gameerr.BackupNotFound, "backup %d not found", id)
	}

	arch := db.Archive(id)
	doc := &Document{
		Header: Header{
			ID:         uuid.New().String(),
			Version:    FormatVersion,
			ExportedAt: time.Now().UTC(),
			BackupID:   id,
			Season:     b.CurrentSeason,
			Day:        b.CurrentDay,
		},
		Backup: *b,
	}
	if doc.Player, err = arch.Player(ctx); err != nil {
		return nil, err
	}
	if doc.Farmland, err = arch.Farmland(ctx); err != nil {
		return nil, err
	}
	if doc.Crops, err = arch.Crops(ctx); err != nil {
		return nil, err
	}
	if doc.Items, err = arch.Backpack(ctx); err != nil {
		return nil, err
	}
	if doc.Tasks, err = arch.Tasks(ctx); err != nil {
		return nil, err
	}
	if doc.Vars, err = arch.Vars(ctx); err != nil {
		return nil, err
	}
	return doc, nil
}

// Write encodes doc to w.
func Write(w io.Writer, doc *Document) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)

	hb, err := json.Marshal(doc.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(doc); err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

// Read decodes an archive written by Write.
func Read(r io.Reader) (*Document, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	if _, err := readHeader(br); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.NewDecoder(br).Decode(&doc); err != nil {
		return nil, gameerr.Wrap(gameerr.Invalid, "decode archive", err)
	}
	return &doc, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(r io.Reader) (Header, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Header{}, err
	}
	defer dec.Close()
	return readHeader(bufio.NewReader(dec))
}

func readHeader(br *bufio.Reader) (Header, error) {
	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, gameerr.Wrap(gameerr.Invalid, "read archive header", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, gameerr.Wrap(gameerr.Invalid, "decode archive header", err)
	}
	if h.Version != FormatVersion {
		return h, gameerr.New(gameerr.Invalid, "archive version %d, want %d", h.Version, FormatVersion)
	}
	if _, err := uuid.Parse(h.ID); err != nil {
		return h, gameerr.Wrap(gameerr.Invalid, "archive id", err)
	}
	return h, nil
}

// Export writes backup id to path and returns its header.
func Export(ctx context.Context, db *persistence.DB, id int64, path string) (Header, error) {
	doc, err := Build(ctx, db, id)
	if err != nil {
		return Header{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Header{}, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	if err := Write(f, doc); err != nil {
		return Header{}, err
	}
	slog.Info("backup exported", "backup_id", id, "archive_id", doc.Header.ID, "path", path)
	return doc.Header, f.Close()
}

// ImportReport counts what an import wrote.
type ImportReport struct {
	BackupID     int64  `json:"backup_id"`
	ArchiveID    string `json:"archive_id"`
	Tiles        int    `json:"tiles"`
	Crops        int    `json:"crops"`
	DroppedCrops int    `json:"dropped_crops"`
}

// Import stores doc as a new backup generation. Farmland ids are reassigned
// and crops follow their tile; a crop whose tile is not in the archive is
// dropped. The live world is not touched.
func Import(ctx context.Context, db *persistence.DB, doc *Document) (*ImportReport, error) {
	rep := &ImportReport{ArchiveID: doc.Header.ID}
	err := db.InTx(ctx, func(tx *persistence.Tx) error {
		b := doc.Backup
		b.ID = 0
		b.IsValid = true
		if b.Note == "" {
			b.Note = "imported " + doc.Header.ID
		}
		w, err := tx.CreateBackup(ctx, &b)
		if err != nil {
			return err
		}
		rep.BackupID = b.ID

		if doc.Player != nil {
			p := *doc.Player
			if err := w.PutPlayer(ctx, &p); err != nil {
				return err
			}
		}

		ids := make(map[int64]int64, len(doc.Farmland))
		for _, t := range doc.Farmland {
			old := t.ID
			if err := w.PutFarmland(ctx, &t); err != nil {
				return err
			}
			ids[old] = t.ID
			rep.Tiles++
		}
		for _, c := range doc.Crops {
			fid, ok := ids[c.FarmlandID]
			if !ok {
				slog.Warn("archived crop has no tile", "crop_id", c.ID, "farmland_id", c.FarmlandID,
					"code", gameerr.ReferentialGap)
				rep.DroppedCrops++
				continue
			}
			c.FarmlandID = fid
			if err := w.PutCrop(ctx, &c); err != nil {
				return err
			}
			rep.Crops++
		}
		for _, it := range doc.Items {
			if err := w.PutItem(ctx, &it); err != nil {
				return err
			}
		}
		for _, t := range doc.Tasks {
			if err := w.PutTask(ctx, &t); err != nil {
				return err
			}
		}
		for _, v := range doc.Vars {
			if err := w.PutVar(ctx, &v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("archive imported", "archive_id", rep.ArchiveID, "backup_id", rep.BackupID,
		"tiles", rep.Tiles, "crops", rep.Crops, "dropped_crops", rep.DroppedCrops)
	return rep, nil
}

// ImportFile reads and imports the archive at path.
func ImportFile(ctx context.Context, db *persistence.DB, path string) (*ImportReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := Read(f)
	if err != nil {
		return nil, err
	}
	return Import(ctx, db, doc)
}
