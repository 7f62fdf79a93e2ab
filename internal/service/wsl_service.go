package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"unicode/utf16"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/logger"
	"github.com/lucksec/wslbot/internal/validation"
)

// WSLService WSL 发行版管理服务接口
// 封装对 wsl.exe 的所有调用
type WSLService interface {
	// ListDistributions 列出已注册的发行版名称
	ListDistributions(ctx context.Context) ([]string, error)

	// DistributionExists 判断发行版是否已注册
	DistributionExists(ctx context.Context, name string) (bool, error)

	// Import 从 rootfs 压缩包导入发行版
	Import(ctx context.Context, name, installDir, rootfsPath string) error

	// Unregister 注销发行版并删除其文件系统
	Unregister(ctx context.Context, name string) error

	// Terminate 终止发行版的运行实例
	Terminate(ctx context.Context, name string) error

	// StartCommand 在发行版内启动命令并返回其输出流
	// 调用方负责读完输出后调用 cmd.Wait 取退出码
	StartCommand(ctx context.Context, distribution string, argv []string, env map[string]string) (*exec.Cmd, io.ReadCloser, error)

	// Exec 在发行版内以 root 执行命令，stdin 非空时写入标准输入
	Exec(ctx context.Context, distribution string, stdin string, argv ...string) error

	// CreateUser 在发行版内创建用户并加入 sudo 组
	CreateUser(ctx context.Context, distribution string, user *domain.WSLUserSpec) error

	// SetDefaultUser 把发行版的默认登录用户写入 /etc/wsl.conf
	SetDefaultUser(ctx context.Context, distribution, username string) error
}

// wslService WSL 发行版管理服务实现
type wslService struct {
	config *config.Config
	log    logger.Logger
}

// NewWSLService 创建 WSL 管理服务实例
func NewWSLService(cfg *config.Config) WSLService {
	return &wslService{
		config: cfg,
		log:    logger.GetLogger(),
	}
}

// decodeWSLOutput 解码 wsl.exe 的输出
// wsl.exe 自身的输出（--list 等）是 UTF-16LE，发行版内命令的输出是 UTF-8
func decodeWSLOutput(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE {
		raw = raw[2:]
	} else if !bytes.Contains(raw, []byte{0x00}) {
		// 没有 NUL 字节说明已经是普通 UTF-8
		return string(raw)
	}

	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, uint16(raw[i])|uint16(raw[i+1])<<8)
	}
	return string(utf16.Decode(units))
}

// ListDistributions 列出已注册的发行版
func (s *wslService) ListDistributions(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "wsl.exe", "--list", "--quiet")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("执行 wsl --list 失败: %w", err)
	}

	var names []string
	for _, line := range strings.Split(decodeWSLOutput(output), "\n") {
		name := strings.TrimSpace(strings.Trim(line, "\r\x00"))
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// DistributionExists 判断发行版是否已注册
func (s *wslService) DistributionExists(ctx context.Context, name string) (bool, error) {
	names, err := s.ListDistributions(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// Import 导入发行版
func (s *wslService) Import(ctx context.Context, name, installDir, rootfsPath string) error {
	s.log.Info("导入发行版 %s (rootfs: %s)", name, rootfsPath)

	cmd := exec.CommandContext(ctx, "wsl.exe", "--import", name, installDir, rootfsPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("导入发行版 %s 失败: %w (%s)", name, err,
			strings.TrimSpace(decodeWSLOutput(output)))
	}

	s.log.Success("发行版 %s 导入完成", name)
	return nil
}

// Unregister 注销发行版
func (s *wslService) Unregister(ctx context.Context, name string) error {
	s.log.Warn("注销发行版 %s，其文件系统将被删除", name)

	cmd := exec.CommandContext(ctx, "wsl.exe", "--unregister", name)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("注销发行版 %s 失败: %w (%s)", name, err,
			strings.TrimSpace(decodeWSLOutput(output)))
	}
	return nil
}

// Terminate 终止发行版实例
func (s *wslService) Terminate(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, "wsl.exe", "--terminate", name)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("终止发行版 %s 失败: %w (%s)", name, err,
			strings.TrimSpace(decodeWSLOutput(output)))
	}
	return nil
}

// StartCommand 在发行版内启动命令
// 环境变量通过 env 键值对传入，经 WSLENV 不可用时用 env(1) 前缀注入
func (s *wslService) StartCommand(ctx context.Context, distribution string,
	argv []string, env map[string]string) (*exec.Cmd, io.ReadCloser, error) {

	wslArgs := []string{"-d", distribution, "--", "env"}
	for key, value := range env {
		wslArgs = append(wslArgs, fmt.Sprintf("%s=%s", key, value))
	}
	wslArgs = append(wslArgs, argv...)

	cmd := exec.CommandContext(ctx, "wsl.exe", wslArgs...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("创建输出管道失败: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("在发行版 %s 内启动命令失败: %w", distribution, err)
	}
	return cmd, stdout, nil
}

// Exec 在发行版内以 root 执行命令
func (s *wslService) Exec(ctx context.Context, distribution string, stdin string, argv ...string) error {
	wslArgs := append([]string{"-d", distribution, "--user", "root", "--"}, argv...)

	cmd := exec.CommandContext(ctx, "wsl.exe", wslArgs...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("在发行版 %s 内执行 %s 失败: %w (%s)", distribution, argv[0], err,
			strings.TrimSpace(decodeWSLOutput(output)))
	}
	return nil
}

// CreateUser 创建用户
// 密码通过 chpasswd 的标准输入传递，绝不出现在命令行参数里
func (s *wslService) CreateUser(ctx context.Context, distribution string, user *domain.WSLUserSpec) error {
	if err := user.Validate(); err != nil {
		return err
	}

	s.log.Info("在发行版 %s 内创建用户 %s", distribution, user.Username)

	if err := s.Exec(ctx, distribution, "",
		"useradd", "-m", "-s", user.LoginShell(), user.Username); err != nil {
		// 用户已存在时继续设置密码和组
		if !strings.Contains(err.Error(), "already exists") {
			return err
		}
		s.log.Warn("用户 %s 已存在，跳过创建", user.Username)
	}

	if user.Password != "" {
		credential := fmt.Sprintf("%s:%s\n", user.Username, user.Password)
		if err := s.Exec(ctx, distribution, credential, "chpasswd"); err != nil {
			return fmt.Errorf("设置用户 %s 密码失败: %w", user.Username, err)
		}
	}

	if err := s.Exec(ctx, distribution, "", "usermod", "-aG", "sudo", user.Username); err != nil {
		return fmt.Errorf("把用户 %s 加入 sudo 组失败: %w", user.Username, err)
	}

	s.log.Success("用户 %s 创建完成", user.Username)
	return nil
}

// SetDefaultUser 设置默认登录用户
func (s *wslService) SetDefaultUser(ctx context.Context, distribution, username string) error {
	if err := validation.ValidateUsername(username); err != nil {
		return err
	}

	conf := fmt.Sprintf("[user]\ndefault=%s\n", username)
	if err := s.Exec(ctx, distribution, conf, "tee", "/etc/wsl.conf"); err != nil {
		return fmt.Errorf("写入 /etc/wsl.conf 失败: %w", err)
	}

	// wsl.conf 在下次启动实例时生效
	if err := s.Terminate(ctx, distribution); err != nil {
		s.log.Warn("终止发行版 %s 失败: %v", distribution, err)
	}
	return nil
}
