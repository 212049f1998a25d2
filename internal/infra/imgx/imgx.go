package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // 注册 WebP 解码器（只解码）
)

const jpegQuality = 95

// Decode 解码 JPEG/PNG/GIF/BMP/WebP。
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", errors.New("图片为空")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", errors.New("图片尺寸无效")
	}
	return img, format, nil
}

// HasAlpha 判断输出扩展名是否能保存透明通道。
func HasAlpha(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".bmp":
		return false
	default:
		return true
	}
}

// CompositeOverlay 把 overlay 叠加到 base 上，并按 ext 编码输出。
//
// 规则：
// - overlay 统一转成 NRGBA；尺寸与 base 不同则缩放到 base 尺寸
// - 输出格式不支持透明时，先铺白底再叠加
func CompositeOverlay(base, overlay []byte, ext string) ([]byte, error) {
	bimg, _, err := Decode(base)
	if err != nil {
		return nil, fmt.Errorf("解码主图失败：%w", err)
	}
	oimg, _, err := Decode(overlay)
	if err != nil {
		return nil, fmt.Errorf("解码覆盖层失败：%w", err)
	}

	bb := bimg.Bounds()
	rect := image.Rect(0, 0, bb.Dx(), bb.Dy())
	canvas := image.NewNRGBA(rect)
	if !HasAlpha(ext) {
		draw.Draw(canvas, rect, image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	draw.Draw(canvas, rect, bimg, bb.Min, draw.Over)

	ov := toNRGBA(oimg)
	if ov.Bounds().Dx() != rect.Dx() || ov.Bounds().Dy() != rect.Dy() {
		scaled := image.NewNRGBA(rect)
		draw.CatmullRom.Scale(scaled, rect, ov, ov.Bounds(), draw.Src, nil)
		ov = scaled
	}
	draw.Draw(canvas, rect, ov, image.Point{}, draw.Over)

	return Encode(canvas, ext)
}

// Encode 按扩展名编码；WebP 只支持解码。
func Encode(img image.Image, ext string) ([]byte, error) {
	var out bytes.Buffer
	var err error
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&out, img, &jpeg.Options{Quality: jpegQuality})
	case ".png":
		err = png.Encode(&out, img)
	case ".gif":
		err = gif.Encode(&out, img, nil)
	case ".bmp":
		err = bmp.Encode(&out, img)
	default:
		return nil, fmt.Errorf("不支持编码为 %q", ext)
	}
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	n := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(n, n.Bounds(), img, b.Min, draw.Src)
	return n
}
