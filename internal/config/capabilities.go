package config

import "os/exec"

// 通过可替换的函数指针，让测试不依赖本机是否装了 ffmpeg。
var lookPath = exec.LookPath

// Capabilities 是启动时探测到的外部能力；缺失只会让对应操作失败，不会中断运行。
type Capabilities struct {
	FFmpeg     bool
	FFmpegPath string // 解析后的可执行文件路径；FFmpeg=false 时为空
}

// DetectCapabilities 在 PATH（或给定路径）中查找 ffmpeg。
func DetectCapabilities(ffmpeg string) Capabilities {
	p, err := lookPath(ffmpeg)
	if err != nil {
		return Capabilities{}
	}
	return Capabilities{FFmpeg: true, FFmpegPath: p}
}
