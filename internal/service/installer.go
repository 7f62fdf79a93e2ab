package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/logger"
	"github.com/lucksec/wslbot/internal/repository"
)

// PackageInstaller 软件包安装能力接口
// 每种安装方式（apt、脚本、pip、nix、PowerShell 模块）实现一个安装器，
// 在调度器启动时按段解析一次，之后不再做能力探测
type PackageInstaller interface {
	// Name 安装器名称（用于日志）
	Name() string

	// IsInstalled 探测软件包是否已安装及其版本
	// 探测本身出错（区别于"未安装"）时返回非 nil error
	IsInstalled(ctx context.Context, spec *domain.PackageSpec) (bool, string, error)

	// Install 执行安装
	Install(ctx context.Context, spec *domain.PackageSpec) error

	// Verify 安装后验证
	// 重新探测命令存在性，并在有 smoke_test 时带超时执行验证命令
	Verify(ctx context.Context, spec *domain.PackageSpec) error
}

// baseInstaller 各安装器共享的探测与验证逻辑
type baseInstaller struct {
	prober        CommandProber
	verifyTimeout time.Duration
}

// IsInstalled 按命令名探测
func (b *baseInstaller) IsInstalled(ctx context.Context, spec *domain.PackageSpec) (bool, string, error) {
	installed, version := b.prober.IsInstalled(ctx, spec.CommandName(), spec.ProbeFlag())
	return installed, version, nil
}

// Verify 安装后验证
func (b *baseInstaller) Verify(ctx context.Context, spec *domain.PackageSpec) error {
	installed, _ := b.prober.IsInstalled(ctx, spec.CommandName(), spec.ProbeFlag())
	if !installed {
		return &domain.VerificationError{
			Package: spec.Name,
			Reason:  fmt.Sprintf("命令 %s 安装后仍不在 PATH 中", spec.CommandName()),
		}
	}

	if spec.SmokeTest == "" {
		return nil
	}

	// 验证命令带超时执行；超时视为验证失败而不是安装失败，
	// 用于容忍启动缓慢的守护进程（如 dockerd）
	verifyCtx, cancel := context.WithTimeout(ctx, b.verifyTimeout)
	defer cancel()

	fields := strings.Fields(spec.SmokeTest)
	cmd := exec.CommandContext(verifyCtx, fields[0], fields[1:]...)
	if err := cmd.Run(); err != nil {
		reason := fmt.Sprintf("验证命令 %q 失败: %v", spec.SmokeTest, err)
		if verifyCtx.Err() == context.DeadlineExceeded {
			reason = fmt.Sprintf("验证命令 %q 超时", spec.SmokeTest)
		}
		return &domain.VerificationError{Package: spec.Name, Reason: reason}
	}

	return nil
}

// execInstall 执行一条安装命令，输出直接透传
func execInstall(ctx context.Context, packageName string, argv []string) error {
	log := logger.GetLogger()
	log.Debug("执行安装命令: %s", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = nonInteractiveEnv()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return &domain.InstallError{
			Package: packageName,
			Err:     fmt.Errorf("%s 失败: %w", argv[0], err),
		}
	}
	return nil
}

// aptInstaller 单包 apt 安装器（prerequisites 段使用）
// apt_packages 段走调度器的批量安装路径，不经过这里
type aptInstaller struct {
	baseInstaller
	apt AptService
}

// NewAptInstaller 创建单包 apt 安装器
func NewAptInstaller(apt AptService, prober CommandProber, cfg *config.Config) PackageInstaller {
	return &aptInstaller{
		baseInstaller: baseInstaller{
			prober:        prober,
			verifyTimeout: time.Duration(cfg.Verify.TimeoutSeconds) * time.Second,
		},
		apt: apt,
	}
}

func (i *aptInstaller) Name() string {
	return "apt"
}

func (i *aptInstaller) Install(ctx context.Context, spec *domain.PackageSpec) error {
	return i.apt.Install(ctx, []string{spec.AptPackageName()})
}

// scriptInstaller 自定义脚本安装器（custom_software/configurations 段）
type scriptInstaller struct {
	baseInstaller
	scripts    repository.ScriptRepository
	runner     ScriptService
	downloader DownloadService
	tempRoot   string
}

// NewScriptInstaller 创建脚本安装器
func NewScriptInstaller(scripts repository.ScriptRepository, runner ScriptService,
	downloader DownloadService, prober CommandProber, cfg *config.Config) PackageInstaller {
	return &scriptInstaller{
		baseInstaller: baseInstaller{
			prober:        prober,
			verifyTimeout: time.Duration(cfg.Verify.TimeoutSeconds) * time.Second,
		},
		scripts:    scripts,
		runner:     runner,
		downloader: downloader,
		tempRoot:   cfg.TempRoot,
	}
}

func (i *scriptInstaller) Name() string {
	return "script"
}

// Install 执行安装脚本
// 条目带 url 时先下载安装包，路径通过 WSLBOT_DOWNLOAD 环境变量交给脚本
func (i *scriptInstaller) Install(ctx context.Context, spec *domain.PackageSpec) error {
	scriptPath, err := i.scripts.Resolve(spec.Script)
	if err != nil {
		return &domain.InstallError{Package: spec.Name, Err: err}
	}

	var env []string
	if spec.URL != "" {
		destPath := filepath.Join(i.tempRoot, "wslbot-downloads", spec.Name)
		if err := i.downloader.DownloadFile(ctx, spec.URL, destPath); err != nil {
			return &domain.InstallError{Package: spec.Name, Err: err}
		}
		env = append(env, "WSLBOT_DOWNLOAD="+destPath)
	}

	return i.runner.RunScript(ctx, spec.Name, scriptPath, env)
}

// pipInstaller Python 软件包安装器
type pipInstaller struct {
	baseInstaller
}

// NewPipInstaller 创建 pip 安装器
func NewPipInstaller(prober CommandProber, cfg *config.Config) PackageInstaller {
	return &pipInstaller{
		baseInstaller: baseInstaller{
			prober:        prober,
			verifyTimeout: time.Duration(cfg.Verify.TimeoutSeconds) * time.Second,
		},
	}
}

func (i *pipInstaller) Name() string {
	return "pip"
}

func (i *pipInstaller) Install(ctx context.Context, spec *domain.PackageSpec) error {
	target := spec.Name
	// 裸版本号作为精确版本安装；约束表达式交给 pip 自己处理
	if spec.Version != "" && !strings.ContainsAny(spec.Version, "<>=~, ") {
		target = fmt.Sprintf("%s==%s", spec.Name, spec.Version)
	} else if spec.Version != "" {
		target = fmt.Sprintf("%s%s", spec.Name, strings.ReplaceAll(spec.Version, " ", ""))
	}
	return execInstall(ctx, spec.Name, []string{"pip3", "install", "--user", target})
}

// nixInstaller Nix 软件包安装器
type nixInstaller struct {
	baseInstaller
}

// NewNixInstaller 创建 nix 安装器
func NewNixInstaller(prober CommandProber, cfg *config.Config) PackageInstaller {
	return &nixInstaller{
		baseInstaller: baseInstaller{
			prober:        prober,
			verifyTimeout: time.Duration(cfg.Verify.TimeoutSeconds) * time.Second,
		},
	}
}

func (i *nixInstaller) Name() string {
	return "nix"
}

func (i *nixInstaller) Install(ctx context.Context, spec *domain.PackageSpec) error {
	attr := spec.Name
	if spec.Package != "" {
		attr = spec.Package
	}
	return execInstall(ctx, spec.Name, []string{"nix-env", "-iA", "nixpkgs." + attr})
}

// pwshInstaller PowerShell 模块安装器
type pwshInstaller struct {
	baseInstaller
}

// NewPwshInstaller 创建 PowerShell 模块安装器
func NewPwshInstaller(prober CommandProber, cfg *config.Config) PackageInstaller {
	return &pwshInstaller{
		baseInstaller: baseInstaller{
			prober:        prober,
			verifyTimeout: time.Duration(cfg.Verify.TimeoutSeconds) * time.Second,
		},
	}
}

func (i *pwshInstaller) Name() string {
	return "pwsh"
}

// IsInstalled PowerShell 模块没有独立命令，探测改为查询模块列表
func (i *pwshInstaller) IsInstalled(ctx context.Context, spec *domain.PackageSpec) (bool, string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, "pwsh", "-NoProfile", "-Command",
		"(Get-Module -ListAvailable -Name $env:WSLBOT_MODULE | Select-Object -First 1).Version.ToString()")
	cmd.Env = append(os.Environ(), "WSLBOT_MODULE="+spec.Name)
	output, err := cmd.Output()
	if err != nil {
		// 模块不存在时查询以非零退出码结束，属于正常的"未安装"
		if _, ok := err.(*exec.ExitError); ok {
			return false, "", nil
		}
		return false, "", fmt.Errorf("查询 PowerShell 模块失败: %w", err)
	}

	version := strings.TrimSpace(string(output))
	if version == "" {
		return false, "", nil
	}
	return true, version, nil
}

func (i *pwshInstaller) Install(ctx context.Context, spec *domain.PackageSpec) error {
	cmd := exec.CommandContext(ctx, "pwsh", "-NoProfile", "-Command",
		"Install-Module -Name $env:WSLBOT_MODULE -Force -Scope CurrentUser")
	cmd.Env = append(os.Environ(), "WSLBOT_MODULE="+spec.Name)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return &domain.InstallError{
			Package: spec.Name,
			Err:     fmt.Errorf("Install-Module 失败: %w", err),
		}
	}
	return nil
}

// Verify 模块安装验证：重新查询模块列表
func (i *pwshInstaller) Verify(ctx context.Context, spec *domain.PackageSpec) error {
	installed, _, err := i.IsInstalled(ctx, spec)
	if err != nil {
		return &domain.VerificationError{Package: spec.Name, Reason: err.Error()}
	}
	if !installed {
		return &domain.VerificationError{
			Package: spec.Name,
			Reason:  "安装后模块仍不可见",
		}
	}
	return nil
}
