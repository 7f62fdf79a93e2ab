package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/events"
	"github.com/lucksec/wslbot/internal/logger"
	"github.com/lucksec/wslbot/internal/repository"
	"github.com/lucksec/wslbot/internal/service"
	"github.com/lucksec/wslbot/internal/validation"
	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
)

func main() {
	// 加载配置
	var err error
	cfg, err = config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志系统
	logConfig := &logger.Config{
		Level:         logger.ParseLevel(cfg.Log.Level),
		EnableConsole: cfg.Log.EnableConsole,
		EnableFile:    cfg.Log.EnableFile,
		LogDir:        cfg.Log.LogDir,
		LogFile:       cfg.Log.LogFile,
	}

	// 编排器传入运行标识时日志写入该次运行的专属文件
	var log logger.Logger
	if cfg.Env.RunID != "" {
		log, err = logger.NewRunLogger(logConfig, cfg.Env.RunID)
	} else {
		log, err = logger.InitLogger(logConfig)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志系统失败: %v\n", err)
		os.Exit(1)
	}

	log.Debug("配置加载成功: SourceDir=%s, ScriptsDir=%s, ManifestPath=%s",
		cfg.SourceDir, cfg.ScriptsDir, cfg.ManifestPath)

	// 初始化仓库和服务
	scriptRepo := repository.NewScriptRepository(cfg)
	manifestRepo := repository.NewManifestRepository(cfg, scriptRepo)
	reportRepo := repository.NewReportRepository(cfg)

	prober := service.NewCommandProber()
	aptSvc := service.NewAptService(cfg)
	scriptSvc := service.NewScriptService(cfg)
	downloadSvc := service.NewDownloadService(cfg)
	framework := service.NewInstallationFramework(prober)

	// 每个清单段对应一个安装器，启动时解析一次
	scriptInstaller := service.NewScriptInstaller(scriptRepo, scriptSvc, downloadSvc, prober, cfg)
	installers := map[string]service.PackageInstaller{
		domain.SectionPrerequisites:     service.NewAptInstaller(aptSvc, prober, cfg),
		domain.SectionCustomSoftware:    scriptInstaller,
		domain.SectionConfigurations:    scriptInstaller,
		domain.SectionPythonPackages:    service.NewPipInstaller(prober, cfg),
		domain.SectionPowershellModules: service.NewPwshInstaller(prober, cfg),
		domain.SectionNixPackages:       service.NewNixInstaller(prober, cfg),
	}

	emitter := events.NewEmitter(os.Stdout)
	dispatcherSvc := service.NewDispatcherService(cfg, manifestRepo, reportRepo,
		framework, aptSvc, prober, installers, emitter)

	wslSvc := service.NewWSLService(cfg)
	orchestratorSvc := service.NewOrchestratorService(cfg, wslSvc)

	// 创建根命令
	var logLevel string
	rootCmd := &cobra.Command{
		Use:   "wslbot",
		Short: "wslbot 是一个声明式的 WSL 开发环境安装工具",
		Long: `wslbot 是一个声明式的 WSL 开发环境安装工具。
通过 YAML 清单描述需要安装的软件包，安装过程幂等、可重复执行，
每次运行生成结构化的安装报告。`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel == "" {
				return nil
			}
			if err := validation.ValidateLogLevel(logLevel); err != nil {
				return err
			}
			log.SetLevel(logger.ParseLevel(logLevel))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (DEBUG/INFO/WARN/ERROR)")

	rootCmd.AddCommand(installCmd(dispatcherSvc))
	rootCmd.AddCommand(runCmd(orchestratorSvc))

	// 清单命令组
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "清单管理命令",
	}
	manifestCmd.AddCommand(validateManifestCmd(manifestRepo))
	manifestCmd.AddCommand(showManifestCmd(manifestRepo))
	rootCmd.AddCommand(manifestCmd)

	// 报告命令组
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "安装报告命令",
	}
	reportCmd.AddCommand(listReportsCmd(reportRepo))
	reportCmd.AddCommand(showReportCmd(reportRepo))
	rootCmd.AddCommand(reportCmd)

	// 用户命令组
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "WSL 用户管理命令",
	}
	userCmd.AddCommand(createUserCmd(wslSvc))
	rootCmd.AddCommand(userCmd)

	// 交互式控制台命令
	rootCmd.AddCommand(newConsoleCmd(dispatcherSvc, manifestRepo, reportRepo))

	// 设置自动补全
	setupCompletion(rootCmd)

	// 设置动态补全
	setupDynamicCompletion(rootCmd, wslSvc, reportRepo)

	// 执行命令
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行命令失败: %v\n", err)
		os.Exit(1)
	}
}

// installCmd 安装命令
// 在 WSL 内执行，按清单安装软件包并输出 NDJSON 进度事件
func installCmd(dispatcherSvc service.DispatcherService) *cobra.Command {
	var configRef string
	var sectionsRaw string
	var force bool
	var dryRun bool
	var upgrade bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "按清单安装软件包",
		Long: `按 YAML 清单安装软件包。

安装过程幂等：已安装且版本满足约束的软件包会被跳过；
单个软件包失败不会中断后续安装，全部结果计入安装报告。

退出码: 有任何软件包失败时为非零。`,
		Example: `  # 按默认清单安装全部段
  wslbot install

  # 只安装 apt 软件包和自定义软件
  wslbot install --sections apt_packages,custom_software

  # 试运行，列出将要执行的安装
  wslbot install --dry-run

  # 强制重装全部软件包
  wslbot install --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 原始字符串先过白名单，再拆分为段名
			sections, err := validation.ValidateSections(sectionsRaw)
			if err != nil {
				return err
			}
			summary, err := dispatcherSvc.Dispatch(context.Background(), service.DispatchOptions{
				ConfigRef:     configRef,
				Sections:      sections,
				Force:         force,
				DryRun:        dryRun,
				RunAptUpgrade: upgrade,
				RunID:         cfg.Env.RunID,
			})
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d 个软件包安装失败", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configRef, "config", "c", "", "清单路径或 https URL（默认用配置文件中的清单）")
	cmd.Flags().StringVarP(&sectionsRaw, "sections", "s", "", "要处理的段（逗号分隔，默认全部）")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "强制重装已安装的软件包")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "试运行，只列出将要执行的安装")
	cmd.Flags().BoolVar(&upgrade, "run-apt-upgrade", false, "安装前先执行 apt-get update && upgrade")
	return cmd
}

// runCmd 编排命令
// 在 Windows 宿主执行，准备发行版并把安装调度到 WSL 内
func runCmd(orchestratorSvc service.OrchestratorService) *cobra.Command {
	var opts service.RunOptions
	var sectionsRaw string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "编排一次完整的 WSL 环境安装",
		Long: `在 Windows 宿主侧编排一次完整的 WSL 环境安装。

编排过程:
  1. 校验全部参数（段名、清单引用、用户名）
  2. 确保目标发行版已注册（--reset 时先注销重建）
  3. 把安装树暂存到发行版内（--direct 时直接从 /mnt 挂载运行）
  4. 在发行版内拉起安装调度器并实时渲染进度
  5. 安装完成后终止实例；--auto-install 时创建默认用户

调度器的真实退出码是安装成败的唯一依据。`,
		Example: `  # 对默认发行版执行完整安装
  wslbot run

  # 重建发行版后安装，并创建默认用户
  wslbot run --reset --auto-install

  # 只安装指定段，直接从挂载目录运行
  wslbot run --sections apt_packages --direct

  # 试运行
  wslbot run --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sections, err := validation.ValidateSections(sectionsRaw)
			if err != nil {
				return err
			}
			opts.Sections = sections
			failed, err := orchestratorSvc.Execute(context.Background(), opts)
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d 个软件包安装失败", failed)
			}
			fmt.Println("WSL 环境安装完成")
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Distribution, "distribution", "d", "", "目标发行版（默认用配置文件中的发行版）")
	cmd.Flags().StringVarP(&opts.ConfigRef, "config", "c", "", "清单路径或 https URL")
	cmd.Flags().StringVarP(&sectionsRaw, "sections", "s", "", "要处理的段（逗号分隔，默认全部）")
	cmd.Flags().StringVarP(&opts.Username, "user", "u", "", "自动创建的用户名（配合 --auto-install）")
	cmd.Flags().BoolVar(&opts.AutoInstall, "auto-install", false, "安装完成后创建默认用户并设为登录用户")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "强制重装已安装的软件包")
	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "先注销发行版再从 rootfs 重建")
	cmd.Flags().BoolVar(&opts.Direct, "direct", false, "直接从 /mnt 挂载目录运行，不做临时拷贝")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "试运行，只列出将要执行的安装")
	cmd.Flags().BoolVar(&opts.RunAptUpgrade, "run-apt-upgrade", false, "安装前先执行 apt-get update && upgrade")
	cmd.Flags().StringVar(&opts.InstallPath, "install-path", "", "宿主侧安装树路径（默认用配置文件中的源目录）")
	return cmd
}

// validateManifestCmd 清单校验命令
func validateManifestCmd(manifestRepo repository.ManifestRepository) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [manifest]",
		Short: "校验清单",
		Long: `加载并校验清单，不执行任何安装。

校验项:
  - YAML 语法和字段名（未知字段视为错误）
  - 段内名称唯一
  - 脚本引用可解析且不逃出脚本目录
  - depends_on 指向的条目存在且无环`,
		Example: `  # 校验默认清单
  wslbot manifest validate

  # 校验指定清单
  wslbot manifest validate ./config/manifest.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := cfg.ManifestPath
			if len(args) == 1 {
				ref = args[0]
			}

			manifest, err := manifestRepo.Load(ref)
			if err != nil {
				return err
			}
			if err := manifestRepo.Validate(manifest); err != nil {
				return err
			}

			fmt.Printf("清单 %s 校验通过\n", ref)
			fmt.Printf("  名称: %s\n", manifest.Metadata.Name)
			if manifest.Metadata.Version != "" {
				fmt.Printf("  版本: %s\n", manifest.Metadata.Version)
			}
			total := 0
			for _, section := range domain.SectionNames() {
				if n := len(manifest.Section(section)); n > 0 {
					fmt.Printf("  %s: %d 个条目\n", section, n)
					total += n
				}
			}
			fmt.Printf("  共 %d 个软件包\n", total)
			return nil
		},
	}
	return cmd
}

// showManifestCmd 清单查看命令
func showManifestCmd(manifestRepo repository.ManifestRepository) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [manifest]",
		Short: "按段列出清单条目",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := cfg.ManifestPath
			if len(args) == 1 {
				ref = args[0]
			}

			manifest, err := manifestRepo.Load(ref)
			if err != nil {
				return err
			}

			fmt.Printf("清单: %s\n", manifest.Metadata.Name)
			for _, section := range domain.SectionNames() {
				specs := manifest.Section(section)
				if len(specs) == 0 {
					continue
				}
				fmt.Printf("\n%s:\n", section)
				for _, spec := range specs {
					fmt.Printf("  - %s", spec.Name)
					if spec.Version != "" {
						fmt.Printf(" (%s)", spec.Version)
					}
					if spec.Description != "" {
						fmt.Printf(": %s", spec.Description)
					}
					fmt.Println()
					if len(spec.DependsOn) > 0 {
						fmt.Printf("    依赖: %s\n", strings.Join(spec.DependsOn, ", "))
					}
				}
			}
			return nil
		},
	}
	return cmd
}

// listReportsCmd 列出安装报告命令
func listReportsCmd(reportRepo repository.ReportRepository) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出已有的安装报告",
		RunE: func(cmd *cobra.Command, args []string) error {
			runIDs, err := reportRepo.ListRunIDs()
			if err != nil {
				return err
			}

			if len(runIDs) == 0 {
				fmt.Println("没有找到安装报告")
				return nil
			}

			fmt.Println("安装报告列表:")
			for _, runID := range runIDs {
				fmt.Printf("  - %s\n", runID)
			}
			return nil
		},
	}
	return cmd
}

// showReportCmd 查看安装报告命令
func showReportCmd(reportRepo repository.ReportRepository) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "查看指定运行的安装报告",
		Example: `  # 查看指定运行的报告
  wslbot report show 20260831_120000_1a2b3c4d`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := reportRepo.Load(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("运行: %s（清单 %s）\n", report.RunID, report.Manifest)
			fmt.Printf("结果: %s\n\n", report.Summary.String())
			for _, result := range report.Results {
				line := fmt.Sprintf("  [%s] %s/%s", result.Outcome, result.Section, result.Name)
				if result.Version != "" {
					line += " " + result.Version
				}
				if result.Reason != "" {
					line += " - " + result.Reason
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	return cmd
}

// createUserCmd 创建 WSL 用户命令
func createUserCmd(wslSvc service.WSLService) *cobra.Command {
	var distribution string
	var shell string
	var setDefault bool

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "在发行版内创建用户",
		Long: `在发行版内创建用户，加入 sudo 组，可选设为默认登录用户。

用户名必须符合 Linux 用户名规则（字母或下划线开头，最长 32 字符）。
初始密码从环境变量 WSL_DEFAULT_PASSWORD 读取，通过 chpasswd 的
标准输入传递，不会出现在命令行或任何日志里。`,
		Example: `  # 创建用户 dev 并设为默认登录用户
  WSL_DEFAULT_PASSWORD=secret wslbot user create dev --default

  # 在指定发行版内创建用户，指定登录 shell
  wslbot user create dev -d Ubuntu-24.04 --shell /bin/zsh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if distribution == "" {
				distribution = cfg.WSL.Distribution
			}
			if shell == "" {
				shell = cfg.WSL.DefaultShell
			}

			user := &domain.WSLUserSpec{
				Username: args[0],
				Password: cfg.Env.DefaultPassword,
				Shell:    shell,
			}
			if err := wslSvc.CreateUser(context.Background(), distribution, user); err != nil {
				return err
			}

			if setDefault {
				if err := wslSvc.SetDefaultUser(context.Background(), distribution, user.Username); err != nil {
					return err
				}
				fmt.Printf("用户 %s 已设为发行版 %s 的默认登录用户\n", user.Username, distribution)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&distribution, "distribution", "d", "", "目标发行版（默认用配置文件中的发行版）")
	cmd.Flags().StringVar(&shell, "shell", "", "登录 shell（默认 /bin/bash）")
	cmd.Flags().BoolVar(&setDefault, "default", false, "设为发行版的默认登录用户")
	return cmd
}
