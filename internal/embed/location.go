package embed

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

var locationRe = regexp.MustCompile(`Latitude, Longitude:\s*([-\d.]+),\s*([-\d.]+)`)

// Location 是十进制度数表示的坐标。
type Location struct {
	Lat float64
	Lon float64
}

// ParseLocation 解析 "Latitude, Longitude: <lat>, <lon>"；不匹配或数字无效时返回 false。
func ParseLocation(s string) (Location, bool) {
	if strings.TrimSpace(s) == "" {
		return Location{}, false
	}
	m := locationRe.FindStringSubmatch(s)
	if m == nil {
		return Location{}, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Location{}, false
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Location{}, false
	}
	return Location{Lat: lat, Lon: lon}, true
}

// String 返回 "lat,lon"，用于视频容器的 location 字段。
func (l Location) String() string {
	return strconv.FormatFloat(l.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(l.Lon, 'f', -1, 64)
}

// DMS 是度/分/秒表示；秒保留两位小数，以 1/100 为单位存储。
type DMS struct {
	Degrees   uint32
	Minutes   uint32
	Hundredth uint32 // 秒 * 100，截断取整
}

// ToDMS 把十进制度数的绝对值转换为度分秒。
func ToDMS(v float64) DMS {
	a := math.Abs(v)
	deg := math.Floor(a)
	minF := (a - deg) * 60
	min := math.Floor(minF)
	sec := (minF - min) * 60
	return DMS{
		Degrees:   uint32(deg),
		Minutes:   uint32(min),
		Hundredth: uint32(sec * 100),
	}
}

// Rationals 返回 EXIF GPS 坐标需要的三元组 (d/1, m/1, s*100/100)。
func (d DMS) Rationals() []exifcommon.Rational {
	return []exifcommon.Rational{
		{Numerator: d.Degrees, Denominator: 1},
		{Numerator: d.Minutes, Denominator: 1},
		{Numerator: d.Hundredth, Denominator: 100},
	}
}

func latRef(lat float64) string {
	if lat >= 0 {
		return "N"
	}
	return "S"
}

func lonRef(lon float64) string {
	if lon >= 0 {
		return "E"
	}
	return "W"
}
