package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/logger"
)

// AptService apt 操作服务接口
// 所有调用都以非交互环境执行，安装过程绝不等待终端输入
type AptService interface {
	// Update 执行 apt-get update
	Update(ctx context.Context) error

	// Upgrade 执行 apt-get upgrade
	Upgrade(ctx context.Context) error

	// Install 批量安装软件包
	// 整个段的缺失包合并为一次 apt-get install 调用
	Install(ctx context.Context, packages []string) error

	// IsPackageInstalled 查询软件包是否已安装及其版本
	IsPackageInstalled(ctx context.Context, name string) (bool, string, error)
}

// aptService apt 服务实现
type aptService struct {
	config *config.Config
}

// NewAptService 创建 apt 服务实例
func NewAptService(cfg *config.Config) AptService {
	return &aptService{
		config: cfg,
	}
}

// nonInteractiveEnv 构造非交互式安装环境
// 预置 debconf 前端，保证安装过程不会因配置提问而阻塞
func nonInteractiveEnv() []string {
	env := os.Environ()
	env = append(env,
		"DEBIAN_FRONTEND=noninteractive",
		"DEBCONF_NONINTERACTIVE_SEEN=true",
		"NEEDRESTART_MODE=a",
	)
	return env
}

// Update 执行 apt-get update
func (s *aptService) Update(ctx context.Context) error {
	log := logger.GetLogger()
	log.Info("执行 apt-get update")

	cmd := exec.CommandContext(ctx, "apt-get", "update")
	cmd.Env = nonInteractiveEnv()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		log.Error("apt-get update 失败: %v", err)
		return fmt.Errorf("apt-get update 失败: %w", err)
	}

	return nil
}

// Upgrade 执行 apt-get upgrade
func (s *aptService) Upgrade(ctx context.Context) error {
	log := logger.GetLogger()
	log.Info("执行 apt-get upgrade")

	cmd := exec.CommandContext(ctx, "apt-get", "upgrade", "-y",
		"-o", "Dpkg::Options::=--force-confdef",
		"-o", "Dpkg::Options::=--force-confold")
	cmd.Env = nonInteractiveEnv()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		log.Error("apt-get upgrade 失败: %v", err)
		return fmt.Errorf("apt-get upgrade 失败: %w", err)
	}

	log.Success("apt-get upgrade 完成")
	return nil
}

// Install 批量安装软件包
func (s *aptService) Install(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}

	log := logger.GetLogger()
	log.Info("批量安装 apt 软件包: %s", strings.Join(packages, " "))

	args := []string{"install", "-y",
		"-o", "Dpkg::Options::=--force-confdef",
		"-o", "Dpkg::Options::=--force-confold"}
	args = append(args, packages...)

	cmd := exec.CommandContext(ctx, "apt-get", args...)
	cmd.Env = nonInteractiveEnv()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		log.Error("apt-get install 失败: packages=%v, error=%v", packages, err)
		return &domain.InstallError{
			Package: strings.Join(packages, ","),
			Err:     fmt.Errorf("apt-get install 失败: %w", err),
		}
	}

	log.Success("apt 软件包安装完成: %s", strings.Join(packages, " "))
	return nil
}

// IsPackageInstalled 查询软件包安装状态
func (s *aptService) IsPackageInstalled(ctx context.Context, name string) (bool, string, error) {
	cmd := exec.CommandContext(ctx, "dpkg-query", "-W",
		"-f", "${db:Status-Status} ${Version}", name)
	output, err := cmd.Output()
	if err != nil {
		// dpkg-query 对未安装的包返回非零退出码
		return false, "", nil
	}

	fields := strings.Fields(string(output))
	if len(fields) < 1 || fields[0] != "installed" {
		return false, "", nil
	}

	version := ""
	if len(fields) > 1 {
		version = fields[1]
	}
	return true, version, nil
}
