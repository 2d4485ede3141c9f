package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Loader resolves a resource source string to a decoded image.
type Loader interface {
	Load(ctx context.Context, src string) (image.Image, error)
}

type LoaderFunc func(ctx context.Context, src string) (image.Image, error)

func (f LoaderFunc) Load(ctx context.Context, src string) (image.Image, error) {
	return f(ctx, src)
}

// Files serves images, PDF pages and font files from a directory. A PDF
// page is addressed as "doc.pdf#N" with N counted from zero.
type Files struct {
	Root string
	DPI  int
}

func NewFiles(root string) *Files {
	return &Files{Root: root, DPI: 150}
}

func (f *Files) path(src string) string {
	if filepath.IsAbs(src) || f.Root == "" {
		return src
	}
	return filepath.Join(f.Root, src)
}

// SplitPage separates a "#N" page suffix from src. Sources without a
// suffix address page 0.
func SplitPage(src string) (string, int, error) {
	i := strings.LastIndexByte(src, '#')
	if i < 0 {
		return src, 0, nil
	}
	page, err := strconv.Atoi(src[i+1:])
	if err != nil || page < 0 {
		return "", 0, fmt.Errorf("invalid page in %q", src)
	}
	return src[:i], page, nil
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func (f *Files) Load(ctx context.Context, src string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, page, err := SplitPage(src)
	if err != nil {
		return nil, err
	}
	if isPDF(name) {
		return renderPDFPage(f.path(name), page, f.DPI)
	}

	file, err := os.Open(f.path(name))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", src, err)
	}
	return img, nil
}

// Dimensions returns the natural size of src without decoding pixels.
func (f *Files) Dimensions(src string) (float64, float64, error) {
	name, page, err := SplitPage(src)
	if err != nil {
		return 0, 0, err
	}
	if isPDF(name) {
		return pdfPageSize(f.path(name), page)
	}

	file, err := os.Open(f.path(name))
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("decode config %s: %w", src, err)
	}
	return float64(cfg.Width), float64(cfg.Height), nil
}

// Fetch returns the raw bytes of a font file.
func (f *Files) Fetch(ctx context.Context, src string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(f.path(src))
}
