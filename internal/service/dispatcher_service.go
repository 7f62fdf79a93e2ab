package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/events"
	"github.com/lucksec/wslbot/internal/logger"
	"github.com/lucksec/wslbot/internal/repository"
)

// DispatchOptions 一次调度运行的参数
type DispatchOptions struct {
	ConfigRef     string   // 清单路径或 URL，为空时用配置里的默认值
	Sections      []string // 要处理的段，为空表示全部
	Force         bool     // 强制重装已安装的软件包
	DryRun        bool     // 试运行，不做任何变更
	RunAptUpgrade bool     // 安装前先执行 apt-get update && upgrade
	RunID         string   // 运行标识，为空时自动生成
}

// DispatcherService 安装调度服务接口
// 加载并校验清单，按段依次处理软件包，单包失败不中断后续，
// 最后写出报告并返回汇总
type DispatcherService interface {
	// Dispatch 执行一次完整调度
	// 清单加载或校验失败直接返回错误；软件包级失败记入汇总后继续
	Dispatch(ctx context.Context, opts DispatchOptions) (*domain.RunSummary, error)
}

// dispatcherService 安装调度服务实现
type dispatcherService struct {
	config     *config.Config
	manifests  repository.ManifestRepository
	reports    repository.ReportRepository
	framework  InstallationFramework
	apt        AptService
	prober     CommandProber
	installers map[string]PackageInstaller
	emitter    *events.Emitter
	log        logger.Logger
}

// NewDispatcherService 创建安装调度服务
// installers 按段名索引，调度器启动时解析一次
func NewDispatcherService(cfg *config.Config, manifests repository.ManifestRepository,
	reports repository.ReportRepository, framework InstallationFramework,
	apt AptService, prober CommandProber,
	installers map[string]PackageInstaller, emitter *events.Emitter) DispatcherService {
	return &dispatcherService{
		config:     cfg,
		manifests:  manifests,
		reports:    reports,
		framework:  framework,
		apt:        apt,
		prober:     prober,
		installers: installers,
		emitter:    emitter,
		log:        logger.GetLogger(),
	}
}

// Dispatch 执行一次完整调度
func (s *dispatcherService) Dispatch(ctx context.Context, opts DispatchOptions) (*domain.RunSummary, error) {
	for _, name := range opts.Sections {
		if !domain.IsValidSection(name) {
			return nil, &domain.ValidationError{
				Field:  "sections",
				Value:  name,
				Reason: "不是已知的清单段",
			}
		}
	}

	ref := opts.ConfigRef
	if ref == "" {
		ref = s.config.ManifestPath
	}

	manifest, err := s.manifests.Load(ref)
	if err != nil {
		return nil, fmt.Errorf("加载清单失败: %w", err)
	}
	// 校验失败快速中止，不进入任何安装步骤
	if err := s.manifests.Validate(manifest); err != nil {
		return nil, fmt.Errorf("清单校验失败: %w", err)
	}

	selections := manifest.Select(opts.Sections)
	total := domain.TotalPackages(selections)

	runID := opts.RunID
	if runID == "" {
		runID = domain.NewRunID()
	}
	run := domain.NewRun(runID, s.config.LogsDir, s.config.ReportsDir)
	runCtx := domain.NewRunContext(run)

	s.log.Info("开始安装运行 %s: 清单 %s，%d 个段，共 %d 个软件包",
		run.ID, manifest.Metadata.Name, len(selections), total)
	s.emitter.RunStart(run.ID, total)

	if opts.RunAptUpgrade && !opts.DryRun {
		s.systemUpgrade(ctx)
	}

	processed := 0
	for _, selection := range selections {
		s.emitter.SectionStart(selection.Name, fmt.Sprintf("处理段 %s (%d 个条目)", selection.Name, len(selection.Specs)))
		s.log.Info("==== 段 %s ====", selection.Name)

		switch selection.Name {
		case domain.SectionAptPackages:
			processed = s.dispatchAptSection(ctx, runCtx, selection, opts, processed, total)
		default:
			processed = s.dispatchSection(ctx, runCtx, selection, opts, processed, total)
		}
	}

	summary := runCtx.Summary()
	s.logSummary(runCtx, summary)

	if !opts.DryRun {
		reportPath, err := s.reports.Save(run, manifest, runCtx.Results())
		if err != nil {
			s.log.Error("写入报告失败: %v", err)
		} else {
			s.log.Info("报告已写入 %s", reportPath)
		}
	}

	s.emitter.RunComplete(run.ID, summary.Failed, summary.String())
	return &summary, nil
}

// dispatchSection 逐包处理一个段
func (s *dispatcherService) dispatchSection(ctx context.Context, runCtx *domain.RunContext,
	selection domain.SectionSelection, opts DispatchOptions, processed, total int) int {

	installer, ok := s.installers[selection.Name]
	if !ok {
		for i := range selection.Specs {
			spec := &selection.Specs[i]
			runCtx.Record(domain.InstallationResult{
				Name:    spec.Name,
				Section: selection.Name,
				Outcome: domain.OutcomeFailure,
				Reason:  fmt.Sprintf("段 %s 没有可用的安装器", selection.Name),
			})
			processed++
		}
		return processed
	}

	// PowerShell 模块段在宿主没有 pwsh 时整段跳过
	if selection.Name == domain.SectionPowershellModules {
		if available, _ := s.prober.IsInstalled(ctx, "pwsh", "--version"); !available {
			s.log.Warn("未找到 pwsh，跳过 PowerShell 模块段")
			for i := range selection.Specs {
				spec := &selection.Specs[i]
				result := domain.InstallationResult{
					Name:    spec.Name,
					Section: selection.Name,
					Outcome: domain.OutcomeSkipped,
					Reason:  "pwsh 不可用",
				}
				runCtx.Record(result)
				processed++
				s.emitter.PackageResult(selection.Name, result, percent(processed, total))
			}
			return processed
		}
	}

	specs := selection.Specs
	// 脚本类段按 depends_on 做拓扑排序；清单校验已保证无环
	if selection.Name == domain.SectionCustomSoftware || selection.Name == domain.SectionConfigurations {
		if ordered, err := s.manifests.ResolveOrder(selection.Name, specs); err == nil {
			specs = ordered
		}
	}

	frameworkOpts := FrameworkOptions{Force: opts.Force, DryRun: opts.DryRun}
	for i := range specs {
		spec := &specs[i]
		s.emitter.PackageStart(selection.Name, spec.Name, percent(processed, total))
		result := s.framework.ProcessPackage(ctx, runCtx, selection.Name, spec, installer, frameworkOpts)
		processed++
		s.emitter.PackageResult(selection.Name, result, percent(processed, total))
	}
	return processed
}

// dispatchAptSection apt 软件包段的批量安装路径
// 先逐包探测，缺失的合并为一次非交互式 apt-get install，
// 之后逐包回查确认并记录结果
func (s *dispatcherService) dispatchAptSection(ctx context.Context, runCtx *domain.RunContext,
	selection domain.SectionSelection, opts DispatchOptions, processed, total int) int {

	type pending struct {
		spec    *domain.PackageSpec
		started time.Time
	}
	var missing []pending
	var missingNames []string

	for i := range selection.Specs {
		spec := &selection.Specs[i]
		s.emitter.PackageStart(selection.Name, spec.Name, percent(processed, total))

		if opts.DryRun {
			s.log.Info("试运行: 将安装 %s (%s)", spec.Name, selection.Name)
			result := domain.InstallationResult{
				Name:    spec.Name,
				Section: selection.Name,
				Outcome: domain.OutcomeSkipped,
				Reason:  "试运行",
			}
			runCtx.Record(result)
			processed++
			s.emitter.PackageResult(selection.Name, result, percent(processed, total))
			continue
		}

		installed, version, err := s.apt.IsPackageInstalled(ctx, spec.AptPackageName())
		if err != nil {
			s.log.Warn("查询 %s 安装状态失败: %v", spec.AptPackageName(), err)
		}
		if installed && s.prober.Satisfies(version, spec.Version) && !opts.Force {
			s.log.Info("%s 已安装 (版本 %s)，跳过", spec.Name, version)
			result := domain.InstallationResult{
				Name:    spec.Name,
				Section: selection.Name,
				Outcome: domain.OutcomeSkipped,
				Version: version,
				Reason:  "已安装",
			}
			runCtx.Record(result)
			processed++
			s.emitter.PackageResult(selection.Name, result, percent(processed, total))
			continue
		}

		missing = append(missing, pending{spec: spec, started: time.Now()})
		missingNames = append(missingNames, spec.AptPackageName())
	}

	if len(missing) == 0 {
		return processed
	}

	s.log.Info("批量安装 %d 个 apt 软件包: %v", len(missingNames), missingNames)
	installErr := s.apt.Install(ctx, missingNames)

	for _, p := range missing {
		result := domain.InstallationResult{
			Name:     p.spec.Name,
			Section:  selection.Name,
			Duration: time.Since(p.started),
		}
		if installErr != nil {
			result.Outcome = domain.OutcomeFailure
			result.Reason = installErr.Error()
		} else if installed, version, _ := s.apt.IsPackageInstalled(ctx, p.spec.AptPackageName()); installed {
			result.Outcome = domain.OutcomeSuccess
			result.Version = version
			s.log.Success("%s 安装完成 (版本 %s)", p.spec.Name, version)
		} else {
			result.Outcome = domain.OutcomeFailure
			result.Reason = "apt-get install 返回成功但软件包不在 dpkg 数据库中"
		}
		runCtx.Record(result)
		processed++
		s.emitter.PackageResult(selection.Name, result, percent(processed, total))
	}
	return processed
}

// systemUpgrade 安装前的系统更新，失败只告警不中止
func (s *dispatcherService) systemUpgrade(ctx context.Context) {
	s.log.Info("执行 apt-get update")
	if err := s.apt.Update(ctx); err != nil {
		s.log.Warn("apt-get update 失败: %v", err)
		return
	}
	s.log.Info("执行 apt-get upgrade")
	if err := s.apt.Upgrade(ctx); err != nil {
		s.log.Warn("apt-get upgrade 失败: %v", err)
	}
}

// logSummary 输出运行汇总与失败明细
func (s *dispatcherService) logSummary(runCtx *domain.RunContext, summary domain.RunSummary) {
	s.log.Info("%s", summary.String())
	for _, failed := range runCtx.Failed() {
		s.log.Error("失败: %s/%s - %s", failed.Section, failed.Name, failed.Reason)
	}
}

// percent 计算整体进度百分比
func percent(processed, total int) int {
	if total == 0 {
		return 100
	}
	return processed * 100 / total
}
