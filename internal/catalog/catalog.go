package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/memmig/internal/domain"
)

const (
	FormatJSON = "json"
	FormatHTML = "html"
)

// Catalog 是解析后的导出目录。
//
// Records 与 Invalid 共享同一套 Index（目录中的位置，从 1 开始），合起来覆盖全部条目。
type Catalog struct {
	Path    string
	Format  string
	Records []domain.MediaRecord
	Invalid []Invalid
}

// Invalid 是无法使用的条目（缺日期/缺链接/日期格式错误）。
type Invalid struct {
	Index  int
	Date   string
	Kind   string
	Reason string
}

// Len 返回条目总数（有效 + 无效）。
func (c *Catalog) Len() int { return len(c.Records) + len(c.Invalid) }

// Error 表示目录文件本身不可用（读不到、格式不对）。
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("目录文件不可用：%s：%v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Load 读取 path；.json 按 JSON 解析，.html/.htm 按 HTML 解析，其它扩展名按内容判断。
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	format := detectFormat(path, b)
	var c *Catalog
	switch format {
	case FormatJSON:
		c, err = ParseJSON(b)
	default:
		c, err = ParseHTML(b)
	}
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	c.Path = path
	c.Format = format
	return c, nil
}

func detectFormat(path string, b []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".html", ".htm":
		return FormatHTML
	}
	if t := bytes.TrimLeft(b, " \t\r\n\ufeff"); len(t) > 0 && t[0] == '{' {
		return FormatJSON
	}
	return FormatHTML
}

type rawRecord struct {
	Date     string
	Primary  string
	Fallback string
	Kind     string
	Location string
}

// add 把原始字段转换为记录（或无效条目）；index 从 1 开始。
func (c *Catalog) add(index int, raw rawRecord) {
	inv := Invalid{Index: index, Date: strings.TrimSpace(raw.Date), Kind: strings.TrimSpace(raw.Kind)}
	if inv.Date == "" {
		inv.Reason = "缺少 Date"
		c.Invalid = append(c.Invalid, inv)
		return
	}
	if strings.TrimSpace(raw.Primary) == "" {
		inv.Reason = "缺少下载链接"
		c.Invalid = append(c.Invalid, inv)
		return
	}
	ts, err := domain.ParseTimestamp(raw.Date)
	if err != nil {
		inv.Reason = err.Error()
		c.Invalid = append(c.Invalid, inv)
		return
	}
	c.Records = append(c.Records, domain.MediaRecord{
		Index:       index,
		Timestamp:   ts,
		PrimaryURL:  strings.TrimSpace(raw.Primary),
		FallbackURL: strings.TrimSpace(raw.Fallback),
		Kind:        domain.ParseKind(raw.Kind),
		Location:    strings.TrimSpace(raw.Location),
	})
}

var errEmpty = errors.New("目录为空")
