package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel(" error "))
	// 未知级别回退到 INFO
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestRunLoggerWritesRunScopedFile(t *testing.T) {
	dir := t.TempDir()
	runID := "20250101_120000_abcd1234"

	log, err := NewRunLogger(&Config{Level: DEBUG, LogDir: dir}, runID)
	require.NoError(t, err)

	log.Info("开始安装 %s", "git")
	log.Success("git 安装成功")
	log.Warn("验证超时")

	logPath := filepath.Join(dir, fmt.Sprintf("wsl-installation-%s.log", runID))
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "[INFO]")
	assert.Contains(t, content, "[SUCCESS]")
	assert.Contains(t, content, "[WARN]")
	assert.Contains(t, content, "开始安装 git")
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	log, err := InitLogger(&Config{
		Level:      WARN,
		EnableFile: true,
		LogDir:     dir,
		LogFile:    "filter.log",
	})
	require.NoError(t, err)

	log.Debug("不应出现")
	log.Info("不应出现")
	// SUCCESS 按 INFO 级别过滤，WARN 级别下同样被过滤
	log.Success("不应出现")
	log.Error("应当出现")

	data, err := os.ReadFile(filepath.Join(dir, "filter.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "不应出现")
	assert.Contains(t, string(data), "应当出现")
}
