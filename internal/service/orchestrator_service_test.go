package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/events"
	"github.com/lucksec/wslbot/internal/logger"
)

// fakeWSLService 记录所有 WSL 调用，调度器输出用预置的事件流代替
type fakeWSLService struct {
	calls  []string
	stdout string
}

func (f *fakeWSLService) ListDistributions(_ context.Context) ([]string, error) {
	f.calls = append(f.calls, "list")
	return []string{"Ubuntu-24.04"}, nil
}

func (f *fakeWSLService) DistributionExists(_ context.Context, _ string) (bool, error) {
	f.calls = append(f.calls, "exists")
	return true, nil
}

func (f *fakeWSLService) Import(_ context.Context, _, _, _ string) error {
	f.calls = append(f.calls, "import")
	return nil
}

func (f *fakeWSLService) Unregister(_ context.Context, _ string) error {
	f.calls = append(f.calls, "unregister")
	return nil
}

func (f *fakeWSLService) Terminate(_ context.Context, _ string) error {
	f.calls = append(f.calls, "terminate")
	return nil
}

func (f *fakeWSLService) StartCommand(_ context.Context, _ string, _ []string,
	_ map[string]string) (*exec.Cmd, io.ReadCloser, error) {
	f.calls = append(f.calls, "start")
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return cmd, io.NopCloser(strings.NewReader(f.stdout)), nil
}

func (f *fakeWSLService) Exec(_ context.Context, _ string, _ string, argv ...string) error {
	f.calls = append(f.calls, "exec "+strings.Join(argv, " "))
	return nil
}

func (f *fakeWSLService) CreateUser(_ context.Context, _ string, _ *domain.WSLUserSpec) error {
	f.calls = append(f.calls, "create-user")
	return nil
}

func (f *fakeWSLService) SetDefaultUser(_ context.Context, _, _ string) error {
	f.calls = append(f.calls, "set-default-user")
	return nil
}

func TestWindowsPathToWSL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`C:\Users\dev\wsl-setup`, "/mnt/c/Users/dev/wsl-setup"},
		{`D:\src`, "/mnt/d/src"},
		{"/home/dev/wsl-setup", "/home/dev/wsl-setup"},
	}
	for _, tt := range tests {
		got, err := windowsPathToWSL(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got)
	}

	_, err := windowsPathToWSL(`\\server\share`)
	assert.Error(t, err, "UNC 路径无法换算")
}

func TestManifestRefInWSL(t *testing.T) {
	s := &orchestratorService{}

	assert.Equal(t, "https://example.com/manifest.yaml",
		s.manifestRefInWSL("https://example.com/manifest.yaml", "/tmp/wslbot-x"))
	assert.Equal(t, "/tmp/wslbot-x/manifest.yaml",
		s.manifestRefInWSL("./config/manifest.yaml", "/tmp/wslbot-x"))
}

func TestValidateOptionsRejectsBeforeAnyWSLCall(t *testing.T) {
	cfg := config.DefaultConfig()
	s := &orchestratorService{config: cfg}

	opts := RunOptions{
		ConfigRef: "testdata/does-not-matter.yaml",
		Sections:  []string{"apt_packages && curl evil.sh"},
	}
	err := s.validateOptions(&opts)
	require.Error(t, err)

	var validationErr *domain.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "sections", validationErr.Field)
}

func TestValidateOptionsRejectsBadUsername(t *testing.T) {
	cfg := config.DefaultConfig()
	s := &orchestratorService{config: cfg}

	opts := RunOptions{
		ConfigRef:   "orchestrator_service_test.go", // 只需要一个存在的本地文件
		AutoInstall: true,
		Username:    "dev; rm -rf /",
	}
	err := s.validateOptions(&opts)
	require.Error(t, err)

	var validationErr *domain.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestExecuteDryRunLeavesDistributionUntouched(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogsDir = t.TempDir()
	cfg.ReportsDir = t.TempDir()
	cfg.SourceDir = t.TempDir()

	var stream bytes.Buffer
	events.NewEmitter(&stream).RunComplete("r1", 0, "试运行完成")

	wsl := &fakeWSLService{stdout: stream.String()}
	s := &orchestratorService{config: cfg, wsl: wsl, log: logger.GetLogger()}

	failed, err := s.Execute(context.Background(), RunOptions{
		ConfigRef: "orchestrator_service_test.go", // 只需要一个存在的本地文件
		DryRun:    true,
	})
	require.NoError(t, err)
	assert.Zero(t, failed)

	// 试运行不拷贝安装树、不清理、也不终止运行中的实例
	assert.Equal(t, []string{"exists", "start"}, wsl.calls)
}

func TestDecodeWSLOutput(t *testing.T) {
	// wsl.exe --list 输出 UTF-16LE 带 BOM
	utf16Output := []byte{0xFF, 0xFE, 'U', 0, 'b', 0, 'u', 0, 'n', 0, 't', 0, 'u', 0, '\r', 0, '\n', 0}
	assert.Equal(t, "Ubuntu\r\n", decodeWSLOutput(utf16Output))

	// 发行版内命令输出普通 UTF-8
	assert.Equal(t, "hello\n", decodeWSLOutput([]byte("hello\n")))

	// 无 BOM 的 UTF-16LE
	noBOM := []byte{'o', 0, 'k', 0}
	assert.Equal(t, "ok", decodeWSLOutput(noBOM))
}
