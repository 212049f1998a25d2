package dedup

import (
	"os"
	"path/filepath"

	"github.com/John-Robertt/memmig/internal/scan"
)

// Index 是去重需要的目录视图（scan.Index 实现它）。
type Index interface {
	Dir() string
	WithPrefix(prefix string) []scan.Entry
}

// FindDuplicate 在输出目录里查找与 path 内容等价的已有文件。
//
// 等价判定：文件名以 stem 开头且字节数完全相同，排除 path 自身。
// 多个命中时取文件名字典序最小的一个（WithPrefix 已按文件名排序）。
func FindDuplicate(ix Index, path, stem string) (string, bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", false, err
	}
	self := filepath.Base(path)
	for _, e := range ix.WithPrefix(stem) {
		if e.Name == self {
			continue
		}
		if e.Size == fi.Size() {
			return filepath.Join(ix.Dir(), e.Name), true, nil
		}
	}
	return "", false, nil
}
