package naming

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/John-Robertt/memmig/internal/domain"
)

// Digest 返回 url 的 MD5 十六进制前 8 位。
func Digest(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:8]
}

// BaseName 生成不带冲突后缀的文件名：<YYYY-MM-DD_HH-MM-SS>_<digest><ext>。
func BaseName(ts time.Time, url, ext string) string {
	return baseStem(ts, url) + ext
}

func baseStem(ts time.Time, url string) string {
	return ts.UTC().Format(domain.StemLayout) + "_" + Digest(url)
}

// Disk 是 Assigner 看到的输出目录（scan.Index 实现它）。
type Disk interface {
	Has(name string) bool
}

// Assigner 为记录分配输出文件名，并记住本次运行已占用的名字。
//
// 候选顺序：base、base_1、base_2……
// - 本次运行已预留的候选直接跳过
// - 第一个未预留且已在磁盘上的候选视为“上次运行的产物”，返回 existing=true
// - 否则返回第一个空闲候选
//
// 返回的名字立即预留；同一 (url, 时间) 在同一运行里再次出现会得到带后缀的新名字。
type Assigner struct {
	disk     Disk
	reserved map[string]struct{}
}

func NewAssigner(disk Disk) *Assigner {
	return &Assigner{disk: disk, reserved: map[string]struct{}{}}
}

func (a *Assigner) Assign(ts time.Time, url, ext string) (name string, existing bool) {
	stem := baseStem(ts, url)
	for n := 0; ; n++ {
		cand := stem + ext
		if n > 0 {
			cand = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		if a.IsReserved(cand) {
			continue
		}
		a.reserved[cand] = struct{}{}
		return cand, a.disk != nil && a.disk.Has(cand)
	}
}

// Reserve 把 name 标记为本次运行已占用（去重重定向后使用）。
func (a *Assigner) Reserve(name string) { a.reserved[name] = struct{}{} }

func (a *Assigner) IsReserved(name string) bool {
	_, ok := a.reserved[name]
	return ok
}
