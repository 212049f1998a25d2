package logx

import (
	"bytes"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestEmit_RespectsLevelAndPadsNames(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)
	defer func() {
		SetOutput(os.Stderr)
		SetVerbose(false)
	}()

	Get("fetch").Emit(DEBUG, "不应输出")
	assert.Empty(t, buf.String())

	Get("fetch").Emit(WARNING, "重试 %d/%d", 1, 3)
	assert.Contains(t, buf.String(), "[fetch]")
	assert.Contains(t, buf.String(), "(!) 重试 1/3\n")

	buf.Reset()
	SetVerbose(true)
	Get("run").Emit(DEBUG, "可见")
	assert.Contains(t, buf.String(), "(D) 可见")
}
