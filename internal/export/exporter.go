package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

// Content types of the exported artifacts.
const (
	ContentTypeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeBibTeX   = "application/x-bibtex"
	ContentTypeMarkdown = "text/markdown; charset=utf-8"
)

// ErrMirror marks a failed write to a secondary store.
var ErrMirror = errors.New("mirror write failed")

// Names controls the artifact file names. Empty names disable the artifact,
// except Workbook which is always written.
type Names struct {
	Workbook string `mapstructure:"workbook"`
	BibTeX   string `mapstructure:"bibtex"`
	Report   string `mapstructure:"report"`
}

// DefaultNames returns the conventional artifact names.
func DefaultNames() Names {
	return Names{
		Workbook: "citation_data.xlsx",
		BibTeX:   "citations.bibtex",
		Report:   "report.md",
	}
}

// Exporter implements crawler.Exporter on top of blob stores. The first store
// is primary: its URIs are reported and its failures are fatal. Mirror
// failures are returned joined but do not drop artifacts.
type Exporter struct {
	stores []crawler.BlobStore
	hasher crawler.Hasher
	clock  crawler.Clock
	names  Names
	prefix string
	info   RunInfo
	logger *zap.Logger
}

// Options configures an Exporter.
type Options struct {
	Names  Names
	Prefix string // object path prefix, usually the run ID for cloud mirrors
	Run    RunInfo
}

// NewExporter builds an Exporter writing to stores in order.
func NewExporter(opts Options, hasher crawler.Hasher, clock crawler.Clock, logger *zap.Logger, stores ...crawler.BlobStore) (*Exporter, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("at least one blob store is required")
	}
	if hasher == nil || clock == nil {
		return nil, fmt.Errorf("hasher and clock are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	names := opts.Names
	if names.Workbook == "" {
		names.Workbook = DefaultNames().Workbook
	}
	return &Exporter{
		stores: stores,
		hasher: hasher,
		clock:  clock,
		names:  names,
		prefix: opts.Prefix,
		info:   opts.Run,
		logger: logger.Named("export"),
	}, nil
}

type rendered struct {
	name        string
	contentType string
	data        []byte
}

// Export renders every artifact and writes it to all stores.
func (e *Exporter) Export(ctx context.Context, records []crawler.EnrichedRecord) ([]crawler.Artifact, error) {
	workbook, err := ResultsWorkbook(records)
	if err != nil {
		return nil, err
	}
	outputs := []rendered{{e.names.Workbook, ContentTypeXLSX, workbook}}
	if e.names.BibTeX != "" {
		outputs = append(outputs, rendered{e.names.BibTeX, ContentTypeBibTeX, BibTeX(records)})
	}
	if e.names.Report != "" {
		info := e.info
		info.FinishedAt = e.clock.Now()
		report, err := Report(info, records)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, rendered{e.names.Report, ContentTypeMarkdown, report})
	}

	artifacts := make([]crawler.Artifact, 0, len(outputs))
	var mirrorErrs []error
	for _, out := range outputs {
		artifact, mirrors, err := e.write(ctx, out)
		if err != nil {
			return artifacts, err
		}
		mirrorErrs = append(mirrorErrs, mirrors...)
		artifacts = append(artifacts, artifact)
		e.logger.Info("artifact written",
			zap.String("name", artifact.Name),
			zap.String("uri", artifact.URI),
			zap.Int("bytes", artifact.Bytes),
			zap.String("sha256", artifact.SHA256),
		)
	}
	return artifacts, errors.Join(mirrorErrs...)
}

func (e *Exporter) write(ctx context.Context, out rendered) (crawler.Artifact, []error, error) {
	digest, err := e.hasher.Hash(out.data)
	if err != nil {
		return crawler.Artifact{}, nil, fmt.Errorf("hash %s: %w", out.name, err)
	}
	artifact := crawler.Artifact{
		Name:        out.name,
		ContentType: out.contentType,
		SHA256:      digest,
		Bytes:       len(out.data),
	}

	var mirrorErrs []error
	for i, store := range e.stores {
		name := out.name
		if i > 0 && e.prefix != "" {
			name = path.Join(e.prefix, out.name)
		}
		uri, err := store.PutObject(ctx, name, out.contentType, bytes.NewReader(out.data))
		if err != nil {
			if i == 0 {
				return artifact, nil, fmt.Errorf("write %s: %w", out.name, err)
			}
			mirrorErrs = append(mirrorErrs, fmt.Errorf("%w: %s: %w", ErrMirror, name, err))
			continue
		}
		if i == 0 {
			artifact.URI = uri
		}
	}
	return artifact, mirrorErrs, nil
}
