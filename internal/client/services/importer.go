package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/blake2b"

	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
	"github.com/dmitrijs2005/clipkeeper/internal/client/store"
	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/logging"
)

const legacySource = "clipto"

// LegacySnapshot is the JSON export of the legacy clipboard manager. Clips
// are decoded one by one so a bad record does not spoil the rest.
type LegacySnapshot struct {
	Source  string            `json:"source"`
	Version string            `json:"version"`
	Clips   []json.RawMessage `json:"clips"`
	Tags    json.RawMessage   `json:"tags"`
}

// recognized reports whether the snapshot carries the legacy signature: a
// source naming clipto, or both the clips and tags sections.
func (s *LegacySnapshot) recognized() bool {
	return strings.Contains(s.Source, legacySource) || (s.Clips != nil && s.Tags != nil)
}

type LegacyClip struct {
	Text       string     `json:"text" validate:"required"`
	Title      string     `json:"title,omitempty"`
	Tags       []string   `json:"tags,omitempty" validate:"dive,required"`
	Fav        bool       `json:"fav,omitempty"`
	CreateDate LegacyTime `json:"createDate,omitempty"`
	ModifyDate LegacyTime `json:"modifyDate,omitempty"`
}

// LegacyTime accepts the date shapes found in legacy exports: ISO-8601
// strings and unix milliseconds. Anything else decodes to the zero time,
// which the store replaces with the import time.
type LegacyTime struct {
	time.Time
}

var legacyLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.000", "2006-01-02T15:04:05", "2006-01-02"}

func (t *LegacyTime) UnmarshalJSON(b []byte) error {
	t.Time = time.Time{}
	if string(b) == "null" {
		return nil
	}

	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return nil
	}
	for _, layout := range legacyLayouts {
		if parsed, err := time.Parse(layout, str); err == nil {
			t.Time = parsed.UTC().Truncate(time.Millisecond)
			return nil
		}
	}
	return nil
}

// ImportResult summarizes an import run.
type ImportResult struct {
	ClipsImported int
	ClipsSkipped  int
	TagsCreated   int
	TagsReused    int
	Errors        []error
	// SourceDigest is the hex blake2b-256 digest of the snapshot bytes.
	SourceDigest string
}

// Importer merges legacy snapshots into the store. Tags are matched by
// exact name against the current TAG filters, so importing the same
// snapshot twice never duplicates a tag.
type Importer struct {
	store    *store.Store
	logger   logging.Logger
	validate *validator.Validate
}

func NewImporter(st *store.Store, l logging.Logger) *Importer {
	return &Importer{
		store:    st,
		logger:   l.With("module", "import"),
		validate: validator.New(),
	}
}

// Import reads a snapshot from r and inserts its clips as pending entities.
// Records that fail validation or whose tags cannot be resolved are
// skipped and reported in the result; tags created for a skipped clip stay
// in the store. The error is non-nil only when the snapshot itself is
// unreadable or ctx is done.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	sum := blake2b.Sum256(raw)
	res := &ImportResult{SourceDigest: hex.EncodeToString(sum[:])}

	var snap LegacySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedImport, err)
	}
	if !snap.recognized() {
		return nil, fmt.Errorf("%w: unknown source %q", common.ErrMalformedImport, snap.Source)
	}

	for i, rec := range snap.Clips {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := im.importRecord(ctx, rec, res); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.ClipsSkipped++
			res.Errors = append(res.Errors, fmt.Errorf("clip %d: %w", i, err))
			im.logger.Warn(ctx, "skipping clip", "index", i, "error", err)
			continue
		}
		res.ClipsImported++
	}

	im.logger.Info(ctx, "import finished",
		"digest", res.SourceDigest, "imported", res.ClipsImported, "skipped", res.ClipsSkipped,
		"tagsCreated", res.TagsCreated, "tagsReused", res.TagsReused)
	return res, nil
}

func (im *Importer) importRecord(ctx context.Context, rec json.RawMessage, res *ImportResult) error {
	var c LegacyClip
	if err := json.Unmarshal(rec, &c); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedImport, err)
	}
	if err := im.validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedImport, err)
	}

	var tagIDs []string
	seen := make(map[string]bool, len(c.Tags))
	for _, name := range c.Tags {
		if seen[name] {
			continue
		}
		seen[name] = true

		id, err := im.resolveTag(ctx, name, res)
		if err != nil {
			return fmt.Errorf("%w: tag %q: %v", common.ErrMalformedImport, name, err)
		}
		tagIDs = append(tagIDs, id)
	}

	clip := &models.Clip{Text: c.Text, Title: c.Title, TagIDs: tagIDs, Fav: c.Fav}
	clip.CreateDate = c.CreateDate.Time
	clip.ModifyDate = c.ModifyDate.Time
	if _, err := im.store.Put(ctx, clip, 0, store.KeepDates()); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedImport, err)
	}
	return nil
}

func (im *Importer) resolveTag(ctx context.Context, name string, res *ImportResult) (string, error) {
	tag, err := im.store.FindTagByName(ctx, name)
	if err == nil {
		res.TagsReused++
		return tag.ID, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return "", err
	}

	e, err := im.store.Put(ctx, &models.Filter{Type: models.FilterTag, Name: name}, 0)
	if err != nil {
		return "", err
	}
	res.TagsCreated++
	return e.GetMeta().ID, nil
}
