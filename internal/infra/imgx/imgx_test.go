package imgx

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompositeOverlay_ScalesOverlayToBase(t *testing.T) {
	base := fill(40, 20, color.NRGBA{255, 0, 0, 255})

	// 覆盖层尺寸是主图的一半：左半边不透明蓝，右半边全透明。
	ov := fill(20, 10, color.NRGBA{0, 0, 0, 0})
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			ov.SetNRGBA(x, y, color.NRGBA{0, 0, 255, 255})
		}
	}

	out, err := CompositeOverlay(encodePNG(t, base), encodePNG(t, ov), ".png")
	require.NoError(t, err)
	got, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, got.Bounds().Dx(), "尺寸应与主图一致")
	assert.Equal(t, 20, got.Bounds().Dy(), "尺寸应与主图一致")

	left := color.NRGBAModel.Convert(got.At(5, 10)).(color.NRGBA)
	assert.GreaterOrEqual(t, left.B, uint8(200), "左侧应为覆盖层蓝色：%v", left)
	assert.LessOrEqual(t, left.R, uint8(50), "左侧应为覆盖层蓝色：%v", left)
	right := color.NRGBAModel.Convert(got.At(35, 10)).(color.NRGBA)
	assert.GreaterOrEqual(t, right.R, uint8(200), "右侧应保留主图红色：%v", right)
	assert.LessOrEqual(t, right.B, uint8(50), "右侧应保留主图红色：%v", right)
}

func TestCompositeOverlay_FlattensOnWhiteForJPEG(t *testing.T) {
	base := fill(16, 16, color.NRGBA{0, 0, 0, 0})
	ov := fill(16, 16, color.NRGBA{0, 0, 0, 0})

	out, err := CompositeOverlay(encodePNG(t, base), encodePNG(t, ov), ".jpg")
	require.NoError(t, err)
	got, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err, "结果应为 JPEG")

	c := color.RGBAModel.Convert(got.At(8, 8)).(color.RGBA)
	for _, v := range []uint8{c.R, c.G, c.B} {
		assert.GreaterOrEqual(t, v, uint8(240), "透明区域应被白底填充：%v", c)
	}
}

func TestCompositeOverlay_BadInput(t *testing.T) {
	_, err := CompositeOverlay(nil, []byte("x"), ".jpg")
	assert.Error(t, err, "空主图应返回错误")

	base := encodePNG(t, fill(4, 4, color.NRGBA{1, 2, 3, 255}))
	_, err = CompositeOverlay(base, []byte("not an image"), ".jpg")
	assert.Error(t, err, "无法解码的覆盖层应返回错误")
	_, err = CompositeOverlay(base, base, ".webp")
	assert.Error(t, err, "webp 编码应返回错误")
}
