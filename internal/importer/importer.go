package importer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skaldlabs/skald-sub002/internal/engine"
	"github.com/skaldlabs/skald-sub002/internal/storage"
	"github.com/skaldlabs/skald-sub002/pkg/types"
)

// SourceMarkdown is the memo source recorded for imported files without a
// frontmatter source.
const SourceMarkdown = "markdown-import"

// Result summarizes an import run.
type Result struct {
	FilesFound   int           `json:"files_found"`
	MemosCreated int           `json:"memos_created"`
	Queued       int           `json:"queued"`
	FilesSkipped int           `json:"files_skipped"`
	FilesFailed  int           `json:"files_failed"`
	Errors       []string      `json:"errors,omitempty"`
	Duration     time.Duration `json:"duration_ms"`
}

// Importer creates plaintext memos from Markdown files.
type Importer struct {
	writer    storage.MemoWriter
	publisher engine.MemoPublisher
	logger    zerolog.Logger
}

// New creates an importer. publisher may be nil, in which case memos are
// created but left for the recoverer to queue.
func New(writer storage.MemoWriter, publisher engine.MemoPublisher, logger zerolog.Logger) *Importer {
	return &Importer{writer: writer, publisher: publisher, logger: logger}
}

// ImportDir walks dirPath and creates one memo per non-empty Markdown file in
// the given project. Per-file failures are collected in the result; only an
// unreadable root or a cancelled context fail the run.
func (imp *Importer) ImportDir(ctx context.Context, projectUUID, organizationUUID, dirPath string) (*Result, error) {
	start := time.Now()

	info, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %q: %w", dirPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", dirPath)
	}

	files, err := collectMarkdownFiles(dirPath)
	if err != nil {
		return nil, err
	}

	result := &Result{FilesFound: len(files)}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rel, _ := filepath.Rel(dirPath, path)
		logger := imp.logger.With().Str("file", rel).Logger()

		data, err := os.ReadFile(path)
		if err != nil {
			imp.fail(result, logger, rel, err)
			continue
		}

		pf, err := ParseMarkdownFile(data, rel)
		if err != nil {
			imp.fail(result, logger, rel, err)
			continue
		}
		if pf.Content == "" {
			result.FilesSkipped++
			continue
		}

		memo := &types.Memo{
			ProjectUUID:       projectUUID,
			OrganizationUUID:  organizationUUID,
			Title:             pf.Title,
			Source:            pf.Source,
			ClientReferenceID: pf.RelativePath,
			Metadata:          pf.Metadata,
			Type:              types.MemoTypePlaintext,
		}
		if memo.Source == "" {
			memo.Source = SourceMarkdown
		}
		if err := imp.writer.CreateMemo(ctx, memo, pf.Content); err != nil {
			imp.fail(result, logger, rel, err)
			continue
		}
		result.MemosCreated++

		if imp.publisher == nil {
			continue
		}
		if err := imp.publisher.Publish(ctx, memo.UUID); err != nil {
			logger.Warn().Err(err).Str("memo_uuid", memo.UUID).Msg("memo created but not queued")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: queue: %v", rel, err))
			continue
		}
		result.Queued++
	}

	result.Duration = time.Since(start)
	imp.logger.Info().
		Int("found", result.FilesFound).
		Int("created", result.MemosCreated).
		Int("queued", result.Queued).
		Int("failed", result.FilesFailed).
		Dur("elapsed", result.Duration).
		Msg("markdown import complete")
	return result, nil
}

func (imp *Importer) fail(result *Result, logger zerolog.Logger, rel string, err error) {
	logger.Warn().Err(err).Msg("failed to import file")
	result.FilesFailed++
	result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
}

// collectMarkdownFiles returns all .md and .markdown files under dirPath,
// skipping hidden directories such as .git or .obsidian.
func collectMarkdownFiles(dirPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dirPath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".md" || ext == ".markdown" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %q: %w", dirPath, err)
	}
	return files, nil
}
