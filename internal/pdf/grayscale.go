package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/tsawler/tabula/reader"
	"golang.org/x/image/draw"
)

// DefaultZoom is the raster scale applied by Grayscaler.
const DefaultZoom = 2.0

// PageImager returns one raster per page of a PDF, in page order.
type PageImager interface {
	PageImages(ctx context.Context, path string) ([]image.Image, error)
}

// TabulaImager pulls the largest embedded image of every page with tabula.
// Scanned documents carry exactly one full-page image per page.
type TabulaImager struct{}

// PageImages decodes the page rasters of path.
func (TabulaImager) PageImages(ctx context.Context, path string) ([]image.Image, error) {
	r, err := reader.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	defer r.Close()

	count, err := r.PageCount()
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}

	out := make([]image.Image, count)
	for i := range count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := r.GetPage(i)
		if err != nil {
			return nil, &ReadError{Path: path, Err: fmt.Errorf("page %d: %w", i+1, err)}
		}
		imgs, err := r.ExtractPageImages(page)
		if err != nil {
			return nil, &ReadError{Path: path, Err: fmt.Errorf("page %d images: %w", i+1, err)}
		}
		if len(imgs) == 0 {
			return nil, fmt.Errorf("page %d of %s: %w", i+1, path, ErrNoRaster)
		}
		largest := imgs[0]
		for _, im := range imgs[1:] {
			if im.Width*im.Height > largest.Width*largest.Height {
				largest = im
			}
		}
		data, err := largest.ToPNG()
		if err != nil {
			return nil, fmt.Errorf("page %d of %s: encode raster: %w", i+1, path, err)
		}
		decoded, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("page %d of %s: decode raster: %w", i+1, path, err)
		}
		out[i] = decoded
	}
	return out, nil
}

// Grayscaler rebuilds a PDF from 8-bit gray rasters of its pages, keeping
// each page's original dimensions. The result is only meant to be fed to OCR.
type Grayscaler struct {
	Imager PageImager
	Zoom   float64
}

// NewGrayscaler returns a Grayscaler using tabula rasters at DefaultZoom.
func NewGrayscaler() *Grayscaler {
	return &Grayscaler{Imager: TabulaImager{}, Zoom: DefaultZoom}
}

// ToGray scales src by zoom into a new gray image.
func ToGray(src image.Image, zoom float64) *image.Gray {
	if zoom <= 0 {
		zoom = 1
	}
	b := src.Bounds()
	w := int(float64(b.Dx()) * zoom)
	h := int(float64(b.Dy()) * zoom)
	dst := image.NewGray(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Preprocess writes the grayscale copy of src to dst.
func (g *Grayscaler) Preprocess(ctx context.Context, src, dst string) error {
	dims, err := api.PageDimsFile(src)
	if err != nil {
		return &ReadError{Path: src, Err: err}
	}
	images, err := g.Imager.PageImages(ctx, src)
	if err != nil {
		return err
	}
	if len(images) != len(dims) {
		return fmt.Errorf("grayscale %s: %d rasters for %d pages", src, len(images), len(dims))
	}

	work, err := os.MkdirTemp("", "scanrouter-gray-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(work)

	conf := relaxedConfig()
	pagePDFs := make([]string, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return err
		}
		pngPath := filepath.Join(work, fmt.Sprintf("%06d.png", i+1))
		if err := writePNG(pngPath, ToGray(img, g.Zoom)); err != nil {
			return err
		}
		pagePDFs[i] = filepath.Join(work, fmt.Sprintf("%06d.pdf", i+1))
		if err := api.ImportImagesFile([]string{pngPath}, pagePDFs[i], pageImport(dims[i]), conf); err != nil {
			return fmt.Errorf("grayscale page %d: %w", i+1, err)
		}
	}

	if err := api.MergeCreateFile(pagePDFs, dst, false, conf); err != nil {
		return fmt.Errorf("assemble grayscale pdf: %w", err)
	}
	return nil
}

// pageImport fits one raster into a page of size dim. types.Full would size
// the page from the raster's pixels instead.
func pageImport(dim types.Dim) *pdfcpu.Import {
	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = &types.Dim{Width: dim.Width, Height: dim.Height}
	imp.UserDim = true
	imp.Pos = types.Center
	imp.Scale = 1.0
	imp.ScaleAbs = false
	return imp
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
