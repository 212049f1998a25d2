package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry 是输出目录里的一个媒体文件（只有 stat 信息，不读内容）。
type Entry struct {
	Name string
	Stem string
	Ext  string // 小写，含 '.'
	Size int64
}

// Index 是输出目录的只读快照，供命名分配与去重共用。
//
// 规则：
// - 只收录输出目录顶层的普通文件
// - 隐藏文件（'.' 开头，含 .unpack-* 暂存目录、.memmig/ 报告目录）不收录
// - *.tmp 不收录（ffmpeg/EXIF 写入中途崩溃留下的半成品）
//
// Index 不是并发安全的；编排器按记录串行使用，每条记录开始前 Refresh 一次。
type Index struct {
	dir     string
	entries []Entry
	byName  map[string]int
}

// ReadIndex 读取 dir 的现状。dir 不存在时返回空索引且不报错。
func ReadIndex(dir string) (*Index, error) {
	ix := &Index{dir: filepath.Clean(dir)}
	if err := ix.Refresh(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Refresh 重新读取目录。
func (ix *Index) Refresh() error {
	des, err := os.ReadDir(ix.dir)
	if err != nil {
		if os.IsNotExist(err) {
			ix.entries = nil
			ix.byName = map[string]int{}
			return nil
		}
		return err
	}

	entries := make([]Entry, 0, len(des))
	for _, d := range des {
		name := d.Name()
		if strings.HasPrefix(name, ".") || strings.EqualFold(filepath.Ext(name), ".tmp") {
			continue
		}
		if !d.Type().IsRegular() {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// 读目录与 stat 之间文件被删：按不存在处理。
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		ext := filepath.Ext(name)
		entries = append(entries, Entry{
			Name: name,
			Stem: strings.TrimSuffix(name, ext),
			Ext:  strings.ToLower(ext),
			Size: info.Size(),
		})
	}

	// os.ReadDir 已按文件名排序；这里再显式排一次，让顺序不依赖实现细节。
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	byName := make(map[string]int, len(entries))
	for i, e := range entries {
		byName[e.Name] = i
	}
	ix.entries = entries
	ix.byName = byName
	return nil
}

func (ix *Index) Dir() string { return ix.dir }

// Path 返回 name 在输出目录下的完整路径（不要求文件存在）。
func (ix *Index) Path(name string) string { return filepath.Join(ix.dir, name) }

func (ix *Index) Has(name string) bool {
	_, ok := ix.byName[name]
	return ok
}

// WithPrefix 返回 Stem 以 prefix 开头的条目，按文件名升序。
func (ix *Index) WithPrefix(prefix string) []Entry {
	var out []Entry
	for _, e := range ix.entries {
		if strings.HasPrefix(e.Stem, prefix) {
			out = append(out, e)
		}
	}
	return out
}

// Len 返回收录的文件数。
func (ix *Index) Len() int { return len(ix.entries) }
