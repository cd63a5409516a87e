package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tinytelemetry/canopy/internal/model"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Format is a template export encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// ParseFormat maps a flag value or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "yaml", "yml", "":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	case "toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", model.ErrInvalid, s)
}

// document is the on-disk shape shared by every export format.
type document struct {
	Templates []model.Template `json:"templates" yaml:"templates" toml:"templates"`
}

// ImportOptions controls Import.
type ImportOptions struct {
	// SkipExisting leaves templates whose name is already stored untouched.
	SkipExisting bool
}

// ImportResult reports what Import did.
type ImportResult struct {
	Created []int64  `json:"created"`
	Skipped []string `json:"skipped"`
}

// Export writes every stored template to w.
func (r *Repository) Export(ctx context.Context, w io.Writer, format Format) error {
	rows, err := r.List(ctx)
	if err != nil {
		return err
	}
	return encode(w, format, document{Templates: rows})
}

func encode(w io.Writer, format Format, doc document) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatTOML:
		return toml.NewEncoder(w).Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: unknown export format %q", model.ErrInvalid, format)
}

func decode(rd io.Reader, format Format) (document, error) {
	var doc document
	data, err := io.ReadAll(rd)
	if err != nil {
		return doc, err
	}
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatTOML:
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		return doc, fmt.Errorf("%w: unknown export format %q", model.ErrInvalid, format)
	}
	if err != nil {
		return doc, fmt.Errorf("%w: decode %s: %w", model.ErrInvalid, format, err)
	}
	return doc, nil
}

// Import creates every template in rd. Ids and timestamps in the input are
// ignored. Import stops at the first invalid template; templates created
// before it are kept and reported.
func (r *Repository) Import(ctx context.Context, rd io.Reader, format Format, opts ImportOptions) (ImportResult, error) {
	var res ImportResult
	doc, err := decode(rd, format)
	if err != nil {
		return res, err
	}

	for i, t := range doc.Templates {
		if opts.SkipExisting {
			_, err := r.FindByName(ctx, t.Name)
			if err == nil {
				res.Skipped = append(res.Skipped, t.Name)
				continue
			}
			if !errors.Is(err, model.ErrNotFound) {
				return res, err
			}
		}
		id, err := r.Create(ctx, t)
		if err != nil {
			return res, fmt.Errorf("import template %d (%s): %w", i, t.Name, err)
		}
		res.Created = append(res.Created, id)
	}
	r.logger.Info("templates imported",
		zap.Int("created", len(res.Created)),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}
