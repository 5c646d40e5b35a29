// Package visualization renders samples for headless previews: the frame in
// grayscale with the segmentation overlay blended on top in layer colors.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"peaklabeler/internal/models"
	"peaklabeler/pkg/layers"
)

// Frames are displayed from their mean up to mean + levelSpan standard
// deviations, which keeps the sparse Bragg peaks visible over background.
const levelSpan = 8

// The overlay is drawn at alpha 100 on a 0-128 level window.
const overlayAlpha = 100.0 / 128.0

// hiddenColor marks a layer that is never drawn.
const hiddenColor = "#FFFFFF"

// Viewer renders samples with a fixed label registry.
type Viewer struct {
	// palette maps each drawn label to its color
	palette map[models.Label]color.RGBA

	// order is the back-to-front paint order
	order []models.Label
}

// NewViewer creates a viewer for the layer model lm. Layers colored white
// are not drawn.
func NewViewer(lm *layers.Model) (*Viewer, error) {
	v := &Viewer{palette: make(map[models.Label]color.RGBA)}
	for _, id := range lm.Order {
		l := lm.Layers[id]
		if strings.EqualFold(l.Color, hiddenColor) {
			continue
		}
		rgb, err := layers.ParseHexColor(l.Color)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", id, err)
		}
		v.palette[id] = color.RGBA{R: rgb.R, G: rgb.G, B: rgb.B, A: 255}
		v.order = append(v.order, id)
	}
	return v, nil
}

// Levels returns the display window of a frame: the mean of its finite
// pixels and the mean plus eight population standard deviations.
func Levels(img *mat.Dense) (lo, hi float64) {
	raw := img.RawMatrix()
	finite := make([]float64, 0, raw.Rows*raw.Cols)
	for r := 0; r < raw.Rows; r++ {
		for _, v := range raw.Data[r*raw.Stride : r*raw.Stride+raw.Cols] {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				finite = append(finite, v)
			}
		}
	}
	if len(finite) == 0 {
		return 0, 1
	}
	mean, std := stat.PopMeanStdDev(finite, nil)
	return mean, mean + levelSpan*std
}

// Render draws the sample's frame in grayscale and blends the overlay on
// top. Image x runs along plane columns and image y along plane rows.
func (v *Viewer) Render(s *models.Sample) *image.RGBA {
	rows, cols := s.Image.Dims()
	out := image.NewRGBA(image.Rect(0, 0, cols, rows))

	lo, hi := Levels(s.Image)
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	for x := 0; x < rows; x++ {
		for y := 0; y < cols; y++ {
			val := s.Image.At(x, y)
			var g uint8
			if !math.IsNaN(val) {
				g = uint8(math.Round(255 * math.Max(0, math.Min(1, (val-lo)/span))))
			}
			out.SetRGBA(y, x, color.RGBA{R: g, G: g, B: g, A: 255})
		}
	}

	// Later layers in the paint order cover earlier ones; each pixel carries
	// one label so the order only decides which palette entry applies.
	for _, id := range v.order {
		c := v.palette[id]
		for x := 0; x < rows; x++ {
			for y := 0; y < cols; y++ {
				if s.Overlay.At(x, y) != id {
					continue
				}
				out.SetRGBA(y, x, blend(out.RGBAAt(y, x), c))
			}
		}
	}
	return out
}

func blend(base, over color.RGBA) color.RGBA {
	mix := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a)*(1-overlayAlpha) + float64(b)*overlayAlpha))
	}
	return color.RGBA{R: mix(base.R, over.R), G: mix(base.G, over.G), B: mix(base.B, over.B), A: 255}
}

// SavePNG saves a rendered sample as a PNG image
func (v *Viewer) SavePNG(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveJPEG saves a rendered sample as a JPEG image
func (v *Viewer) SaveJPEG(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// Save renders s and writes it to filename, choosing the encoder from the
// extension (.jpg/.jpeg or .png).
func (v *Viewer) Save(s *models.Sample, filename string) error {
	img := v.Render(s)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return v.SaveJPEG(img, filename)
	case ".png":
		return v.SavePNG(img, filename)
	default:
		return fmt.Errorf("unsupported image format: %s (must be .png or .jpg)", filename)
	}
}

// SaveSequence renders the samples produced by next into outputDir as
// sample_NNNNN.png, stopping after count samples.
func (v *Viewer) SaveSequence(count int, next func(i int) (*models.Sample, error), outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		s, err := next(i)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("sample_%05d.png", i))
		if err := v.SavePNG(v.Render(s), filename); err != nil {
			return err
		}
	}

	return nil
}
