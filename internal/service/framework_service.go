package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/logger"
)

// FrameworkOptions 单包处理选项
type FrameworkOptions struct {
	// Force 跳过已安装检测，强制重新安装
	Force bool
	// DryRun 只枚举将要执行的安装，不做任何变更
	DryRun bool
}

// InstallationFramework 单包安装流程框架
// 驱动 Pending→Checking→(Skipped|Installing)→Verifying→终态 的状态机，
// 每个包无论成败都产出一条结果记录
type InstallationFramework interface {
	// ProcessPackage 处理一个软件包并把结果记入运行上下文
	ProcessPackage(ctx context.Context, runCtx *domain.RunContext, section string,
		spec *domain.PackageSpec, installer PackageInstaller, opts FrameworkOptions) domain.InstallationResult
}

// installationFramework 安装流程框架实现
type installationFramework struct {
	prober CommandProber
	log    logger.Logger
}

// NewInstallationFramework 创建安装流程框架
func NewInstallationFramework(prober CommandProber) InstallationFramework {
	return &installationFramework{
		prober: prober,
		log:    logger.GetLogger(),
	}
}

// ProcessPackage 处理一个软件包
func (f *installationFramework) ProcessPackage(ctx context.Context, runCtx *domain.RunContext,
	section string, spec *domain.PackageSpec, installer PackageInstaller, opts FrameworkOptions) domain.InstallationResult {

	started := time.Now()
	progress := domain.NewPackageProgress(spec.Name)

	record := func(outcome domain.Outcome, version, reason string) domain.InstallationResult {
		result := domain.InstallationResult{
			Name:     spec.Name,
			Section:  section,
			Outcome:  outcome,
			Version:  version,
			Reason:   reason,
			Duration: time.Since(started),
		}
		runCtx.Record(result)
		return result
	}

	// 试运行：只报告将要执行的动作，连探测都不做
	if opts.DryRun {
		f.log.Info("试运行: 将安装 %s (%s)", spec.Name, section)
		_ = progress.Advance(domain.StateChecking)
		_ = progress.Advance(domain.StateSkipped)
		return record(domain.OutcomeSkipped, "", "试运行")
	}

	if err := progress.Advance(domain.StateChecking); err != nil {
		return record(domain.OutcomeFailure, "", err.Error())
	}

	installed, version, err := installer.IsInstalled(ctx, spec)
	if err != nil {
		// 探测失败按未安装处理，交给安装路径兜底
		f.log.Warn("探测 %s 失败: %v", spec.Name, err)
		installed = false
	}
	if installed && f.prober.Satisfies(version, spec.Version) && !opts.Force {
		f.log.Info("%s 已安装 (版本 %s)，跳过", spec.Name, version)
		_ = progress.Advance(domain.StateSkipped)
		return record(domain.OutcomeSkipped, version, "已安装")
	}

	if installed && !opts.Force {
		f.log.Info("%s 已安装版本 %s 不满足约束 %s，重新安装", spec.Name, version, spec.Version)
	}

	if err := progress.Advance(domain.StateInstalling); err != nil {
		return record(domain.OutcomeFailure, version, err.Error())
	}

	f.log.Info("开始安装 %s（安装器: %s）", spec.Name, installer.Name())
	if err := installer.Install(ctx, spec); err != nil {
		_ = progress.Advance(domain.StateFailed)
		f.log.Error("安装 %s 失败: %v", spec.Name, err)
		return record(domain.OutcomeFailure, "", err.Error())
	}

	if err := progress.Advance(domain.StateVerifying); err != nil {
		return record(domain.OutcomeFailure, "", err.Error())
	}

	// 验证失败只告警，不改变安装成功的结论
	if err := installer.Verify(ctx, spec); err != nil {
		f.log.Warn("%s 安装后验证未通过: %v", spec.Name, err)
	}

	_, observed, _ := installer.IsInstalled(ctx, spec)
	if observed == "" {
		observed = VersionUnknown
	}

	_ = progress.Advance(domain.StateSucceeded)
	f.log.Success("%s 安装完成 (版本 %s)", spec.Name, observed)
	return record(domain.OutcomeSuccess, observed, fmt.Sprintf("耗时 %s", time.Since(started).Round(time.Millisecond)))
}
