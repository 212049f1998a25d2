package catalog

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 下载按钮形如：<a href="#" onclick="downloadMemories('https://…', this, true);">。
var onclickURLRe = regexp.MustCompile(`downloadMemories\('([^']+)'`)

// ParseHTML 解析 memories_history.html。
//
// 每个数据行至少有 4 个 <td>：日期、类型、位置、下载按钮；表头（<th>）与不足 4 列的行被忽略。
// HTML 版本没有备用链接。
func ParseHTML(b []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, errEmpty
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	c := &Catalog{Format: FormatHTML}
	index := 0
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		tds := row.Find("td")
		if tds.Length() < 4 {
			return
		}
		index++
		c.add(index, rawRecord{
			Date:     cellText(tds.Eq(0)),
			Kind:     cellText(tds.Eq(1)),
			Location: cellText(tds.Eq(2)),
			Primary:  downloadURL(tds.Eq(3)),
		})
	})
	if index == 0 {
		return nil, errEmpty
	}
	return c, nil
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func downloadURL(cell *goquery.Selection) string {
	a := cell.Find("a").First()
	if onclick, ok := a.Attr("onclick"); ok {
		if m := onclickURLRe.FindStringSubmatch(onclick); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	if href, ok := a.Attr("href"); ok {
		href = strings.TrimSpace(href)
		if href != "" && href != "#" && !strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return href
		}
	}
	return ""
}
