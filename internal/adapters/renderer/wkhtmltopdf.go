// Package renderer converts HTML documents to PDF using wkhtmltopdf.
package renderer

import (
	"context"
	"fmt"
	"strings"

	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/htpdf/htpdf/config"
	"github.com/htpdf/htpdf/internal/core"
	"github.com/htpdf/htpdf/internal/domain/model"
)

const pageMarginMM = 10

// WkhtmltopdfRenderer renders HTML via the wkhtmltopdf binary. A fresh
// generator is built per render, so one renderer is safe for concurrent use.
type WkhtmltopdfRenderer struct {
	dpi uint
}

var _ core.Renderer = (*WkhtmltopdfRenderer)(nil)

// New constructs a renderer from configuration. A non-empty BinaryPath
// overrides PATH lookup of the wkhtmltopdf binary.
func New(cfg config.RendererConfig) *WkhtmltopdfRenderer {
	if cfg.BinaryPath != "" {
		wkhtmltopdf.SetPath(cfg.BinaryPath)
	}
	return &WkhtmltopdfRenderer{dpi: cfg.DPI}
}

// Render converts the HTML document into PDF bytes. The context bounds the
// external process; cancellation kills the conversion.
func (r *WkhtmltopdfRenderer) Render(ctx context.Context, req core.RenderRequest) ([]byte, error) {
	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("create pdf generator: %w", err)
	}

	pdfg.Orientation.Set(orientationOption(req.Orientation))
	pdfg.PageSize.Set(pageSizeOption(req.PaperSize))
	pdfg.MarginTop.Set(pageMarginMM)
	pdfg.MarginBottom.Set(pageMarginMM)
	pdfg.MarginLeft.Set(pageMarginMM)
	pdfg.MarginRight.Set(pageMarginMM)
	if r.dpi > 0 {
		pdfg.Dpi.Set(r.dpi)
	}
	pdfg.Title.Set("PDF")

	page := wkhtmltopdf.NewPageReader(strings.NewReader(req.HTML))
	page.Encoding.Set("utf-8")
	pdfg.AddPage(page)

	if err := pdfg.CreateContext(ctx); err != nil {
		return nil, fmt.Errorf("convert html to pdf: %w", err)
	}

	return pdfg.Bytes(), nil
}

func orientationOption(o model.Orientation) string {
	if o == model.OrientationLandscape {
		return wkhtmltopdf.OrientationLandscape
	}
	return wkhtmltopdf.OrientationPortrait
}

func pageSizeOption(p model.PaperSize) string {
	switch p {
	case model.PaperSizeA3:
		return wkhtmltopdf.PageSizeA3
	case model.PaperSizeLetter:
		return wkhtmltopdf.PageSizeLetter
	case model.PaperSizeLegal:
		return wkhtmltopdf.PageSizeLegal
	default:
		return wkhtmltopdf.PageSizeA4
	}
}
