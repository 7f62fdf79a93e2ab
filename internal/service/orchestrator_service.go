package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/events"
	"github.com/lucksec/wslbot/internal/logger"
	"github.com/lucksec/wslbot/internal/validation"
)

// RunOptions 一次编排运行的参数
type RunOptions struct {
	Distribution  string   // 目标发行版，为空时用配置里的默认值
	ConfigRef     string   // 清单路径或 URL
	Sections      []string // 要处理的段
	Username      string   // AutoInstall 时创建的用户名
	InstallPath   string   // 宿主侧安装树路径，为空时用配置里的源目录
	AutoInstall   bool     // 安装完成后创建默认用户
	Force         bool     // 强制重装
	Reset         bool     // 先注销并重建发行版
	Direct        bool     // 直接从挂载的源目录运行，不做临时拷贝
	DryRun        bool     // 试运行
	RunAptUpgrade bool     // 安装前执行系统更新
}

// OrchestratorService WSL 安装编排服务接口
// 在 Windows 宿主侧准备发行版、暂存安装树，
// 把调度器拉起在 WSL 内并消费其进度事件流
type OrchestratorService interface {
	// Execute 执行一次完整编排
	// 返回调度器报告的失败数；发行版级错误直接返回 error
	Execute(ctx context.Context, opts RunOptions) (int, error)
}

// orchestratorService WSL 安装编排服务实现
type orchestratorService struct {
	config *config.Config
	wsl    WSLService
	log    logger.Logger
}

// NewOrchestratorService 创建编排服务实例
func NewOrchestratorService(cfg *config.Config, wsl WSLService) OrchestratorService {
	return &orchestratorService{
		config: cfg,
		wsl:    wsl,
		log:    logger.GetLogger(),
	}
}

// Execute 执行一次完整编排
func (s *orchestratorService) Execute(ctx context.Context, opts RunOptions) (int, error) {
	// 所有参数在任何 WSL 交互之前校验完毕
	if err := s.validateOptions(&opts); err != nil {
		return 0, err
	}

	runID := s.config.Env.RunID
	if runID == "" {
		runID = domain.NewRunID()
	}
	run := domain.NewRun(runID, s.config.LogsDir, s.config.ReportsDir)
	s.log.Info("开始编排运行 %s（发行版 %s）", run.ID, opts.Distribution)

	if err := s.ensureDistribution(ctx, opts); err != nil {
		return 0, err
	}

	sourceDir, cleanup, err := s.stageSource(ctx, opts, run)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	failed, err := s.runDispatcher(ctx, opts, run, sourceDir)
	if err != nil {
		return failed, err
	}

	// 安装完成后终止实例，让 wsl.conf 等配置在下次启动生效
	// 试运行没有改变任何配置，不打扰正在运行的实例
	if !opts.DryRun {
		if err := s.wsl.Terminate(ctx, opts.Distribution); err != nil {
			s.log.Warn("终止发行版失败: %v", err)
		}
	}

	if opts.AutoInstall && !opts.DryRun {
		if err := s.provisionUser(ctx, opts); err != nil {
			return failed, err
		}
	}

	return failed, nil
}

// validateOptions 白名单校验所有参数
func (s *orchestratorService) validateOptions(opts *RunOptions) error {
	if opts.Distribution == "" {
		opts.Distribution = s.config.WSL.Distribution
	}
	if opts.ConfigRef == "" {
		opts.ConfigRef = s.config.ManifestPath
	}
	if opts.Username == "" {
		opts.Username = s.config.WSL.DefaultUsername
	}

	for _, name := range opts.Sections {
		if !domain.IsValidSection(name) {
			return &domain.ValidationError{
				Field:  "sections",
				Value:  name,
				Reason: "不是已知的清单段",
			}
		}
	}
	if err := validation.ValidateConfigRef(opts.ConfigRef); err != nil {
		return err
	}
	if opts.AutoInstall {
		if err := validation.ValidateUsername(opts.Username); err != nil {
			return err
		}
	}
	return nil
}

// ensureDistribution 确保目标发行版可用
func (s *orchestratorService) ensureDistribution(ctx context.Context, opts RunOptions) error {
	exists, err := s.wsl.DistributionExists(ctx, opts.Distribution)
	if err != nil {
		return err
	}

	if exists && opts.Reset {
		s.log.Warn("重置发行版 %s", opts.Distribution)
		if err := s.wsl.Terminate(ctx, opts.Distribution); err != nil {
			s.log.Warn("终止发行版失败: %v", err)
		}
		if err := s.wsl.Unregister(ctx, opts.Distribution); err != nil {
			return err
		}
		exists = false
	}

	if !exists {
		if s.config.WSL.RootfsPath == "" {
			return fmt.Errorf("发行版 %s 未注册且未配置 rootfs 路径", opts.Distribution)
		}
		return s.wsl.Import(ctx, opts.Distribution, s.config.WSL.InstallDir, s.config.WSL.RootfsPath)
	}
	return nil
}

// stageSource 准备 WSL 内可见的安装树路径
// temp 模式把安装树拷贝进发行版的临时目录，direct 模式直接用 /mnt 挂载路径
func (s *orchestratorService) stageSource(ctx context.Context, opts RunOptions,
	run *domain.Run) (string, func(), error) {

	hostSource := s.config.SourceDir
	if s.config.Env.SourceDir != "" {
		hostSource = s.config.Env.SourceDir
	}
	if opts.InstallPath != "" {
		hostSource = opts.InstallPath
	}
	absSource, err := filepath.Abs(hostSource)
	if err != nil {
		return "", nil, fmt.Errorf("解析安装树路径失败: %w", err)
	}

	mountPath, err := windowsPathToWSL(absSource)
	if err != nil {
		return "", nil, err
	}

	// 试运行不拷贝安装树，直接从挂载路径跑
	if opts.Direct || opts.DryRun || s.config.Env.TempMode == "direct" {
		s.log.Info("直接模式：从 %s 运行", mountPath)
		return mountPath, func() {}, nil
	}

	stagingDir := fmt.Sprintf("%s/wslbot-%s", s.config.TempRoot, run.ID)
	s.log.Info("把安装树拷贝到发行版内 %s", stagingDir)
	if err := s.wsl.Exec(ctx, opts.Distribution, "",
		"cp", "-r", mountPath, stagingDir); err != nil {
		return "", nil, fmt.Errorf("暂存安装树失败: %w", err)
	}

	cleanup := func() {
		if err := s.wsl.Exec(context.Background(), opts.Distribution, "",
			"rm", "-rf", stagingDir); err != nil {
			s.log.Warn("清理暂存目录 %s 失败: %v", stagingDir, err)
		}
	}
	return stagingDir, cleanup, nil
}

// runDispatcher 在发行版内拉起调度器并消费其事件流
// 调度器的真实退出码是成败的唯一依据
func (s *orchestratorService) runDispatcher(ctx context.Context, opts RunOptions,
	run *domain.Run, sourceDir string) (int, error) {

	argv := []string{s.config.WSL.DispatcherPath, "install",
		"--config", s.manifestRefInWSL(opts.ConfigRef, sourceDir)}
	if len(opts.Sections) > 0 {
		argv = append(argv, "--sections", strings.Join(opts.Sections, ","))
	}
	if opts.Force {
		argv = append(argv, "--force")
	}
	if opts.DryRun {
		argv = append(argv, "--dry-run")
	}
	if opts.RunAptUpgrade {
		argv = append(argv, "--run-apt-upgrade")
	}

	tempMode := "temp"
	if opts.Direct || s.config.Env.TempMode == "direct" {
		tempMode = "direct"
	}
	env := map[string]string{
		"WSL_INSTALL_RUN_ID":     run.ID,
		"WSL_INSTALL_TEMP_MODE":  tempMode,
		"WSL_INSTALL_SOURCE_DIR": sourceDir,
		"LOG_LEVEL":              s.config.Log.Level,
	}

	cmd, stdout, err := s.wsl.StartCommand(ctx, opts.Distribution, argv, env)
	if err != nil {
		return 0, err
	}

	hostLog, err := os.OpenFile(run.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		s.log.Warn("打开宿主日志文件失败: %v", err)
		hostLog = nil
	}
	if hostLog != nil {
		defer hostLog.Close()
	}

	reportedFailed := s.consumeEvents(stdout, hostLog)

	if err := cmd.Wait(); err != nil {
		return reportedFailed, fmt.Errorf("发行版内调度器执行失败: %w", err)
	}
	return reportedFailed, nil
}

// consumeEvents 读取调度器的 NDJSON 事件流
// 渲染为控制台进度输出，原始行追加到宿主侧运行日志
func (s *orchestratorService) consumeEvents(stdout io.Reader, hostLog *os.File) int {

	reportedFailed := 0
	reader := events.NewReader(stdout)
	for {
		ev, raw, err := reader.Next()
		if err != nil {
			break
		}
		if hostLog != nil {
			fmt.Fprintln(hostLog, raw)
		}
		if ev == nil {
			// 非事件输出（apt 进度等）按调试日志透传
			s.log.Debug("%s", raw)
			continue
		}

		switch ev.Type {
		case events.TypeRunStart:
			s.log.Info("调度器启动：共 %d 个软件包", ev.Total)
		case events.TypeSectionStart:
			s.log.Info("%s", ev.Message)
		case events.TypePackageStart:
			s.log.Info("[%3d%%] 处理 %s/%s", ev.Progress, ev.Section, ev.Package)
		case events.TypePackageResult:
			switch domain.Outcome(ev.Outcome) {
			case domain.OutcomeSuccess:
				s.log.Success("[%3d%%] %s/%s 完成", ev.Progress, ev.Section, ev.Package)
			case domain.OutcomeSkipped:
				s.log.Info("[%3d%%] %s/%s 跳过 (%s)", ev.Progress, ev.Section, ev.Package, ev.Message)
			default:
				s.log.Error("[%3d%%] %s/%s 失败: %s", ev.Progress, ev.Section, ev.Package, ev.Message)
			}
		case events.TypeLog:
			s.log.Debug("%s", ev.Message)
		case events.TypeRunComplete:
			reportedFailed = ev.Failed
			s.log.Info("%s", ev.Message)
		}
	}
	return reportedFailed
}

// provisionUser 安装完成后创建默认用户并设为登录用户
func (s *orchestratorService) provisionUser(ctx context.Context, opts RunOptions) error {
	user := &domain.WSLUserSpec{
		Username: opts.Username,
		Password: s.config.Env.DefaultPassword,
		Shell:    s.config.WSL.DefaultShell,
	}
	if err := s.wsl.CreateUser(ctx, opts.Distribution, user); err != nil {
		return err
	}
	return s.wsl.SetDefaultUser(ctx, opts.Distribution, opts.Username)
}

// manifestRefInWSL 把清单引用换算成 WSL 内可用的形式
// 远程 URL 原样传递，本地路径换算成暂存目录内的相对位置
func (s *orchestratorService) manifestRefInWSL(ref, sourceDir string) string {
	if validation.IsRemoteRef(ref) {
		return ref
	}
	return sourceDir + "/" + filepath.Base(ref)
}

// windowsPathToWSL 把 Windows 路径换算成 WSL 的 /mnt 挂载路径
// C:\foo\bar → /mnt/c/foo/bar；已经是 POSIX 路径时原样返回
func windowsPathToWSL(path string) (string, error) {
	if strings.HasPrefix(path, "/") {
		return path, nil
	}
	if len(path) < 2 || path[1] != ':' || !unicode.IsLetter(rune(path[0])) {
		return "", fmt.Errorf("无法换算路径 %q 为 WSL 挂载路径", path)
	}
	drive := strings.ToLower(string(path[0]))
	rest := strings.ReplaceAll(path[2:], "\\", "/")
	return "/mnt/" + drive + rest, nil
}
