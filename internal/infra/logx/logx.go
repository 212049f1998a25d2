package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type Level int

const (
	VERBOSE Level = iota
	DEBUG
	INFO
	SUCCESS
	WARNING
	ERROR
)

func (l Level) String() string {
	return []string{"V", "D", "I", "✓", "!", "!!"}[l]
}

func (l Level) Color() *color.Color {
	return []*color.Color{
		color.New(color.FgWhite, color.Italic),     // Verbose
		color.New(color.FgWhite, color.Italic),     // Debug
		color.New(color.FgWhite),                   // Info
		color.New(color.FgHiGreen),                 // Success
		color.New(color.FgYellow, color.Underline), // Warning
		color.New(color.FgHiRed, color.Bold),       // Error
	}[l]
}

// Logger 是带名字的日志入口；各包用 `var log = logx.Get("fetch")` 持有。
type Logger interface {
	Emit(Level, string, ...any)
}

type named struct{ name string }

func (n *named) Emit(level Level, format string, args ...any) {
	mgr.emit(level, n.name, format, args...)
}

// Get 返回名为 name 的 Logger。
func Get(name string) Logger { return &named{name: name} }

type manager struct {
	mu     sync.Mutex
	min    Level
	out    io.Writer
	offset int
}

var mgr = &manager{min: INFO, out: os.Stderr}

// SetVerbose 打开后输出 DEBUG 级别（--verbose）。
func SetVerbose(v bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if v {
		mgr.min = DEBUG
	} else {
		mgr.min = INFO
	}
}

// SetOutput 替换输出目标（默认 stderr；测试时可换成 buffer）。
func SetOutput(w io.Writer) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if w == nil {
		w = io.Discard
	}
	mgr.out = w
}

func (m *manager) emit(level Level, name, format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if level < m.min {
		return
	}

	// 名字按最长者对齐，便于扫读。
	if len(name) > m.offset {
		m.offset = len(name)
	}
	padding := strings.Repeat(" ", m.offset-len(name))
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	level.Color().Fprintf(m.out, "[%s] %s(%s) %s", name, padding, level, msg)
}
