package inference

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// LoadImage decodes an image file and applies its EXIF orientation.
func LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	if format == "jpeg" || format == "tiff" {
		img = Orient(img, orientation(data))
	}

	return img, nil
}

func orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}

	v, err := tag.Int(0)
	if err != nil {
		return 1
	}

	return v
}

// Orient returns img transformed so that EXIF orientation 1 applies.
func Orient(img image.Image, orientation int) image.Image {
	if orientation < 2 || orientation > 8 {
		return img
	}

	src := toRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	// Orientations 5 to 8 swap the axes
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2: // Flip horizontal
				dx, dy = w-1-x, y
			case 3: // Rotate 180
				dx, dy = w-1-x, h-1-y
			case 4: // Flip vertical
				dx, dy = x, h-1-y
			case 5: // Transpose
				dx, dy = y, x
			case 6: // Rotate 90 clockwise
				dx, dy = h-1-y, x
			case 7: // Transverse
				dx, dy = h-1-y, w-1-x
			case 8: // Rotate 90 counter-clockwise
				dx, dy = y, w-1-x
			}
			dst.SetRGBA(dx, dy, src.RGBAAt(x, y))
		}
	}

	return dst
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// Resize scales img to size x size ignoring the aspect ratio, with nearest
// neighbour sampling like the Keras image loader.
func Resize(img image.Image, size int) *image.RGBA {
	return toRGBA(resize.Resize(uint(size), uint(size), img, resize.NearestNeighbor))
}

// Layout is the tensor memory order a model expects.
type Layout string

const (
	NHWC Layout = "nhwc"
	NCHW Layout = "nchw"
)

// Tensor fills dst with the RGB values of img as float32 in 0..255.
// MobileNetV3 rescales inside the model, so no normalization happens here.
func Tensor(img *image.RGBA, layout Layout, dst []float32) error {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if len(dst) != 3*w*h {
		return fmt.Errorf("tensor holds %d values, image needs %d", len(dst), 3*w*h)
	}

	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.RGBAAt(x, y)
			pixel := y*w + x
			switch layout {
			case NCHW:
				dst[pixel] = float32(c.R)
				dst[plane+pixel] = float32(c.G)
				dst[2*plane+pixel] = float32(c.B)
			default:
				dst[3*pixel] = float32(c.R)
				dst[3*pixel+1] = float32(c.G)
				dst[3*pixel+2] = float32(c.B)
			}
		}
	}

	return nil
}
