package app

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"

	"portfoliohub/pkg/domain"
)

// errUnreadable marks content that retrying cannot fix.
var errUnreadable = errors.New("unreadable content")

// probeResult holds the type specific metadata found in an asset file.
type probeResult struct {
	Width     *int
	Height    *int
	PageCount *int
	Format    string
}

// probe inspects data according to the asset type. Types without a probe,
// and raster formats with no registered decoder, yield only the format.
func probe(assetType domain.AssetType, fileName, mimeType string, data []byte) (probeResult, error) {
	ext := strings.ToLower(path.Ext(fileName))
	switch assetType {
	case domain.AssetImage, domain.AssetDrawing:
		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		if errors.Is(err, image.ErrFormat) {
			return probeResult{Format: strings.TrimPrefix(ext, ".")}, nil
		}
		if err != nil {
			return probeResult{}, fmt.Errorf("decode image header: %w: %v", errUnreadable, err)
		}
		return probeResult{Width: &cfg.Width, Height: &cfg.Height, Format: format}, nil
	case domain.AssetDocument:
		if ext != ".pdf" && mimeType != "application/pdf" {
			return probeResult{Format: strings.TrimPrefix(ext, ".")}, nil
		}
		pages, err := pdfPageCount(data)
		if err != nil {
			return probeResult{}, err
		}
		return probeResult{PageCount: &pages, Format: "pdf"}, nil
	default:
		return probeResult{Format: strings.TrimPrefix(ext, ".")}, nil
	}
}

// pdfPageCount parses the document structure; the reader panics on some
// malformed files, which is reported as unreadable.
func pdfPageCount(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %w: %v", errUnreadable, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w: %v", errUnreadable, err)
	}
	return reader.NumPage(), nil
}
