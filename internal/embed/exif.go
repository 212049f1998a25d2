package embed

import (
	"bytes"
	"fmt"
	"path/filepath"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"

	"github.com/John-Robertt/memmig/internal/infra/fsx"
)

const exifTimeLayout = "2006:01:02 15:04:05"

// writeEXIF 把时间与坐标合并进 JPEG 已有的 EXIF（没有或损坏时从空白开始），原子写回。
func writeEXIF(path string, m meta) (err error) {
	// go-exif 在部分畸形输入上会 panic。
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w：%v", ErrExif, r)
		}
	}()

	mc, err := jpegstructure.NewJpegMediaParser().ParseFile(path)
	if err != nil {
		return fmt.Errorf("%w：解析 JPEG 失败：%v", ErrExif, err)
	}
	sl, ok := mc.(*jpegstructure.SegmentList)
	if !ok {
		return fmt.Errorf("%w：无法读取 JPEG 段结构", ErrExif)
	}

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		rootIb, err = emptyRootBuilder()
		if err != nil {
			return fmt.Errorf("%w：%v", ErrExif, err)
		}
	}

	if err := setTags(rootIb, m); err != nil {
		return fmt.Errorf("%w：%v", ErrExif, err)
	}
	if err := sl.SetExif(rootIb); err != nil {
		return fmt.Errorf("%w：%v", ErrExif, err)
	}

	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return fmt.Errorf("%w：%v", ErrExif, err)
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), buf.Bytes())
}

func emptyRootBuilder() (*exif.IfdBuilder, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, err
	}
	ti := exif.NewTagIndex()
	return exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), nil
}

func setTags(rootIb *exif.IfdBuilder, m meta) error {
	ts := m.Time.Format(exifTimeLayout)

	ifd0, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD0")
	if err != nil {
		return err
	}
	if err := ifd0.SetStandardWithName("DateTime", ts); err != nil {
		return err
	}

	exifIb, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/Exif")
	if err != nil {
		return err
	}
	for _, name := range []string{"DateTimeOriginal", "DateTimeDigitized"} {
		if err := exifIb.SetStandardWithName(name, ts); err != nil {
			return err
		}
	}

	if m.Loc == nil {
		return nil
	}
	gps, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/GPSInfo")
	if err != nil {
		return err
	}
	tags := []struct {
		name  string
		value any
	}{
		{"GPSLatitudeRef", latRef(m.Loc.Lat)},
		{"GPSLatitude", ToDMS(m.Loc.Lat).Rationals()},
		{"GPSLongitudeRef", lonRef(m.Loc.Lon)},
		{"GPSLongitude", ToDMS(m.Loc.Lon).Rationals()},
	}
	for _, t := range tags {
		if err := gps.SetStandardWithName(t.name, t.value); err != nil {
			return fmt.Errorf("写入 %s 失败：%w", t.name, err)
		}
	}
	return nil
}
