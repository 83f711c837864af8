package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/db"
	"github.com/hpungsan/ccpro/internal/errors"
)

// CatalogSchemaVersion is written to the header of every catalog export.
const CatalogSchemaVersion = "1.0"

// CatalogHeader identifies a catalog export file.
type CatalogHeader struct {
	CCProExport   bool   `toml:"ccpro_export"`
	SchemaVersion string `toml:"schema_version"`
	ExportedAt    int64  `toml:"exported_at"`
}

// PromotionRecord is one promotion in a catalog file.
type PromotionRecord struct {
	ID          string            `toml:"id"`
	Title       string            `toml:"title"`
	Description string            `toml:"description"`
	Type        string            `toml:"type"`
	ImageURL    string            `toml:"image_url,omitempty"`
	Price       decimal.Decimal   `toml:"price"`
	CreatedBy   string            `toml:"created_by,omitempty"`
	CreatedAt   int64             `toml:"created_at"`
	Plans       []catalog.Plan    `toml:"plans"`
	Benefits    []catalog.Benefit `toml:"benefits"`
}

// CatalogFile is the TOML document written by ExportCatalog.
type CatalogFile struct {
	Export     CatalogHeader     `toml:"export"`
	Promotions []PromotionRecord `toml:"promotions"`
}

// ExportCatalogInput contains parameters for the ExportCatalog operation.
type ExportCatalogInput struct {
	Path string // optional, default: ~/.ccpro/exports/catalog-<timestamp>.toml
}

// ExportCatalogOutput contains the result of the ExportCatalog operation.
type ExportCatalogOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on any collision, import nothing
	ImportModeReplace ImportMode = "replace" // overwrite the colliding promotion
	ImportModeSkip    ImportMode = "skip"    // keep the existing promotion
)

// ImportCatalogInput contains parameters for the ImportCatalog operation.
type ImportCatalogInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportCatalogOutput contains the result of the ImportCatalog operation.
type ImportCatalogOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one record that was not imported.
type ImportError struct {
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExportCatalog writes every promotion to a TOML file, oldest first.
// The file is written to a temp name and renamed into place, so an existing
// file is preserved if the export fails.
func ExportCatalog(ctx context.Context, database *sql.DB, cfg *config.Config, actor Actor, input ExportCatalogInput) (*ExportCatalogOutput, error) {
	if err := requireSignedIn(actor); err != nil {
		return nil, err
	}
	nowTime := time.Now()
	exportedAt := nowTime.Unix()

	exportPath := input.Path
	if exportPath == "" {
		dir, err := DefaultExportsDir()
		if err != nil {
			return nil, err
		}
		exportPath = filepath.Join(dir, "catalog-"+nowTime.Format("2006-01-02T150405")+CatalogExt)
	}
	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}

	page, err := db.Find(ctx, database, db.Query{Collection: catalog.CollectionPromotions, SortBy: db.SortCreatedAt})
	if err != nil {
		return nil, err
	}
	records := make([]PromotionRecord, 0, len(page.Docs))
	for _, d := range page.Docs {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("export")
		}
		p, err := promotionFromDocument(d)
		if err != nil {
			return nil, err
		}
		records = append(records, promotionRecord(p))
	}

	file := CatalogFile{
		Export: CatalogHeader{
			CCProExport:   true,
			SchemaVersion: CatalogSchemaVersion,
			ExportedAt:    exportedAt,
		},
		Promotions: records,
	}
	if err := writeCatalogFile(exportPath, file); err != nil {
		return nil, err
	}

	return &ExportCatalogOutput{
		Path:       exportPath,
		Count:      len(records),
		ExportedAt: exportedAt,
	}, nil
}

func writeCatalogFile(exportPath string, cf CatalogFile) error {
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	enc := toml.NewEncoder(file)
	enc.SetIndentTables(true)
	if err := enc.Encode(cf); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to encode catalog: %w", err))
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename follows a symlinked destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// Windows refuses to rename over an existing file; fail instead of a
	// non-atomic delete and rename.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}

// ImportCatalog loads promotions from a TOML catalog file. Admin only.
// Records keep their ids. A record collides with an existing promotion that
// has the same id or the same normalized title.
func ImportCatalog(ctx context.Context, database *sql.DB, cfg *config.Config, actor Actor, input ImportCatalogInput) (*ImportCatalogOutput, error) {
	if err := requireAdmin(ctx, database, cfg, actor); err != nil {
		return nil, err
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeSkip {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, skip")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	cf, err := readCatalogFile(input.Path)
	if err != nil {
		return nil, err
	}

	out := &ImportCatalogOutput{Errors: []ImportError{}}
	var writes []catalog.Promotion
	seenTitles := make(map[string]int)

	for i, rec := range cf.Promotions {
		p := rec.toPromotion()
		if p.CreatedBy == "" {
			p.CreatedBy = actor.UserID
		}
		if err := validatePromotion(p); err != nil {
			out.Errors = append(out.Errors, importError(i, p, err))
			continue
		}
		titleNorm := catalog.Normalize(p.Title)
		if prev, dup := seenTitles[titleNorm]; dup {
			out.Errors = append(out.Errors, ImportError{
				Index: i, ID: p.ID, Title: p.Title, Code: string(errors.ErrNameAlreadyExists),
				Message: fmt.Sprintf("title repeats record %d", prev),
			})
			continue
		}
		seenTitles[titleNorm] = i

		targetID, err := collisionTarget(ctx, database, p)
		if err != nil {
			return nil, err
		}
		if targetID != "" {
			switch input.Mode {
			case ImportModeSkip:
				out.Skipped++
				continue
			case ImportModeError:
				out.Errors = append(out.Errors, ImportError{
					Index: i, ID: p.ID, Title: p.Title, Code: "COLLISION",
					Message: fmt.Sprintf("promotion %s already exists", targetID),
				})
				continue
			}
			p.ID = targetID
		}
		writes = append(writes, p)
	}

	if input.Mode == ImportModeError && len(out.Errors) > 0 {
		out.Skipped = 0
		return out, nil
	}

	for _, p := range writes {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("import")
		}
		doc, err := promotionDocument(p)
		if err != nil {
			return nil, err
		}
		if doc.ID == "" {
			doc.ID = db.NewID()
		}
		if err := db.Put(ctx, database, doc); err != nil {
			return nil, err
		}
		out.Imported++
	}
	return out, nil
}

func readCatalogFile(path string) (*CatalogFile, error) {
	f, err := openFileNoFollowRead(path)
	if err != nil {
		if errors.Is(err, errors.ErrFileNotFound) || errors.Is(err, errors.ErrInvalidRequest) {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer f.Close()

	var cf CatalogFile
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cf); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid catalog file: %v", err))
	}
	if !cf.Export.CCProExport {
		return nil, errors.NewInvalidRequest("not a ccpro catalog export (missing [export] ccpro_export = true)")
	}
	return &cf, nil
}

// collisionTarget returns the id of the existing promotion p would collide
// with, or "" when there is none.
func collisionTarget(ctx context.Context, database *sql.DB, p catalog.Promotion) (string, error) {
	if p.ID != "" {
		_, err := db.GetByID(ctx, database, catalog.CollectionPromotions, p.ID)
		if err == nil {
			return p.ID, nil
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return "", err
		}
	}
	page, err := db.Find(ctx, database, db.Query{Collection: catalog.CollectionPromotions, SortBy: db.SortTitle})
	if err != nil {
		return "", err
	}
	want := catalog.Normalize(p.Title)
	for _, d := range page.Docs {
		if d.TitleNorm == want {
			return d.ID, nil
		}
	}
	return "", nil
}

func importError(i int, p catalog.Promotion, err error) ImportError {
	ccErr := errors.As(err)
	return ImportError{Index: i, ID: p.ID, Title: p.Title, Code: string(ccErr.Code), Message: ccErr.Message}
}

func promotionRecord(p catalog.Promotion) PromotionRecord {
	return PromotionRecord{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Type:        string(p.Type),
		ImageURL:    p.ImageURL,
		Price:       p.Price,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
		Plans:       p.Plans,
		Benefits:    p.Benefits,
	}
}

func (r PromotionRecord) toPromotion() catalog.Promotion {
	t := catalog.ItemType(strings.ToLower(strings.TrimSpace(r.Type)))
	if t == "" {
		t = catalog.TypePlan
	}
	return catalog.Promotion{
		ID:          strings.TrimSpace(r.ID),
		Title:       strings.TrimSpace(r.Title),
		Description: strings.TrimSpace(r.Description),
		Type:        t,
		ImageURL:    strings.TrimSpace(r.ImageURL),
		Price:       r.Price,
		Plans:       r.Plans,
		Benefits:    r.Benefits,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
	}
}
