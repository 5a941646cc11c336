package camera

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ToImage converts y to a 4:2:0 YCbCr image. Interleaved chroma planes are read using their pixel
// stride.
func (y *YUVImage) ToImage() (*image.YCbCr, error) {
	if y == nil || y.Width <= 0 || y.Height <= 0 {
		return nil, errors.New("empty yuv image")
	}
	if len(y.Planes) != y.Layout.PlaneCount() {
		return nil, errors.Errorf("expected %d planes, got %d", y.Layout.PlaneCount(), len(y.Planes))
	}
	out := image.NewYCbCr(image.Rect(0, 0, y.Width, y.Height), image.YCbCrSubsampleRatio420)

	luma := y.Planes[0]
	lumaStride := luma.PixelStride
	if lumaStride == 0 {
		lumaStride = 1
	}
	for row := 0; row < y.Height; row++ {
		for col := 0; col < y.Width; col++ {
			idx := row*luma.RowStride + col*lumaStride
			if idx >= len(luma.Data) {
				return nil, errors.Errorf("y plane too small for %dx%d", y.Width, y.Height)
			}
			out.Y[out.YOffset(col, row)] = luma.Data[idx]
		}
	}

	cb, cr := y.Planes[1], y.Planes[1]
	crOffset := 1
	if y.Layout == LayoutPlanar {
		cr = y.Planes[2]
		crOffset = 0
	}
	chromaW, chromaH := (y.Width+1)/2, (y.Height+1)/2
	for row := 0; row < chromaH; row++ {
		for col := 0; col < chromaW; col++ {
			cbStride, crStride := cb.PixelStride, cr.PixelStride
			if cbStride == 0 {
				cbStride = 1
			}
			if crStride == 0 {
				crStride = 1
			}
			cbIdx := row*cb.RowStride + col*cbStride
			crIdx := row*cr.RowStride + col*crStride + crOffset
			if cbIdx >= len(cb.Data) || crIdx >= len(cr.Data) {
				return nil, errors.Errorf("chroma planes too small for %dx%d", y.Width, y.Height)
			}
			i := out.COffset(col*2, row*2)
			out.Cb[i] = cb.Data[cbIdx]
			out.Cr[i] = cr.Data[crIdx]
		}
	}
	return out, nil
}

// Upright rotates img clockwise by the given number of degrees. Multiples of 90 are exact.
func Upright(img image.Image, clockwiseDegrees int) image.Image {
	switch ((clockwiseDegrees % 360) + 360) % 360 {
	case 0:
		return img
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return imaging.Rotate(img, -float64(clockwiseDegrees), color.Black)
	}
}

// FrameImage returns the frame's image as an upright image.Image regardless of pixel format.
func FrameImage(f *Frame) (image.Image, error) {
	if !f.HasImage() {
		return nil, ErrNoFrameAvailable
	}
	if f.Image != nil {
		return f.Image, nil
	}
	img, err := f.YUV.ToImage()
	if err != nil {
		return nil, err
	}
	return Upright(img, f.YUV.Rotation), nil
}
