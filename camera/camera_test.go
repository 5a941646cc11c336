package camera

import (
	"image"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestResolveDeviceIntrinsic(t *testing.T) {
	dev := DeviceIntrinsic{
		FocalLength:    r2.Point{X: 1500, Y: 1500},
		PrincipalPoint: r2.Point{X: 960, Y: 540},
		Resolution:     image.Pt(1920, 1080),
	}

	portrait := ResolveDeviceIntrinsic(dev, true)
	test.That(t, portrait.AlmostEqual(Intrinsic{Fx: 500, Fy: 500, Cx: 180, Cy: 320}, 1e-9), test.ShouldBeTrue)

	landscape := ResolveDeviceIntrinsic(dev, false)
	test.That(t, landscape.AlmostEqual(Intrinsic{Fx: 500, Fy: 500, Cx: 320, Cy: 180}, 1e-9), test.ShouldBeTrue)

	// a sensor that is already portrait scales by its height.
	dev = DeviceIntrinsic{
		FocalLength:    r2.Point{X: 1000, Y: 1000},
		PrincipalPoint: r2.Point{X: 540, Y: 960},
		Resolution:     image.Pt(1080, 1920),
	}
	test.That(t, MajorAxisScale(dev.PrincipalPoint, dev.Resolution), test.ShouldAlmostEqual, 1./3)
	test.That(t, ResolveDeviceIntrinsic(dev, true).Cy, test.ShouldAlmostEqual, 320.)
	test.That(t, ResolveDeviceIntrinsic(dev, false).Cy, test.ShouldAlmostEqual, 180.)

	test.That(t, MajorAxisScale(r2.Point{X: 2, Y: 1}, image.Point{}), test.ShouldEqual, 0.)
}

func TestIntrinsicHelpers(t *testing.T) {
	test.That(t, Intrinsic{}.IsZero(), test.ShouldBeTrue)
	test.That(t, Intrinsic{Fx: 1, Fy: 1, Cx: 1}.IsZero(), test.ShouldBeTrue)
	test.That(t, DefaultDeviceIntrinsic.IsZero(), test.ShouldBeFalse)
	test.That(t, Intrinsic{Fx: 1, Fy: 2, Cx: 3, Cy: 4}.ParamString(), test.ShouldEqual, "1.000000,2.000000,3.000000,4.000000")

	scaled := ScaleForPreview(DefaultEditorIntrinsic, 320)
	test.That(t, scaled.Fx, test.ShouldAlmostEqual, DefaultEditorIntrinsic.Fx/2)

	test.That(t, QuerySize(1920, 1080), test.ShouldResemble, image.Pt(640, 360))
	test.That(t, QuerySize(1080, 1920), test.ShouldResemble, image.Pt(360, 640))
	test.That(t, QuerySize(0, 10), test.ShouldResemble, image.Point{})
}

func TestNormalizeDisplayMatrix(t *testing.T) {
	raw := mgl64.Ident4()
	raw.Set(0, 0, 0)
	raw.Set(1, 0, -2)
	raw.Set(0, 1, 3)
	raw.Set(1, 1, 0)
	raw.Set(2, 0, 0.6)
	raw.Set(2, 1, 1.4)

	out := NormalizeDisplayMatrix(raw, PlatformIOS)
	test.That(t, out.At(0, 0), test.ShouldEqual, 0.)
	test.That(t, out.At(0, 1), test.ShouldEqual, 1.)
	test.That(t, out.At(1, 0), test.ShouldEqual, -1.)
	test.That(t, out.At(1, 1), test.ShouldEqual, 0.)
	test.That(t, out.At(2, 0), test.ShouldEqual, 1.)
	test.That(t, out.At(2, 1), test.ShouldEqual, 1.)

	// the android layout is the transpose of the ios one.
	raw = mgl64.Ident4()
	raw.Set(0, 0, 0)
	raw.Set(0, 1, -2)
	raw.Set(1, 0, 3)
	raw.Set(1, 1, 0)
	raw.Set(0, 2, 0.6)
	raw.Set(1, 2, 1.4)
	test.That(t, NormalizeDisplayMatrix(raw, PlatformAndroid).ApproxEqualThreshold(out, 1e-12), test.ShouldBeTrue)
}

func TestFrameRelease(t *testing.T) {
	calls := 0
	f := NewFrame(func() { calls++ })
	f.Image = image.NewRGBA(image.Rect(0, 0, 2, 2))
	test.That(t, f.HasImage(), test.ShouldBeTrue)
	test.That(t, f.PixelFormat(), test.ShouldEqual, FormatRGBA)
	f.Release()
	f.Release()
	test.That(t, calls, test.ShouldEqual, 1)

	var nilFrame *Frame
	test.That(t, nilFrame.HasImage(), test.ShouldBeFalse)
	nilFrame.Release()

	yuv := NewFrame(nil)
	yuv.YUV = &YUVImage{Width: 4, Height: 4}
	test.That(t, yuv.PixelFormat(), test.ShouldEqual, FormatYUV420)
	test.That(t, LayoutBiPlanar.PlaneCount(), test.ShouldEqual, 2)
}
