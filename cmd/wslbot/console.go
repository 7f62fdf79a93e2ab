package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/repository"
	"github.com/lucksec/wslbot/internal/service"
	"github.com/lucksec/wslbot/internal/validation"
	"github.com/spf13/cobra"
)

// console 表示交互式控制台结构体
// 使用 go-prompt 提供带 Tab 补全的 REPL（读取-执行-输出）循环
type console struct {
	dispatcherSvc service.DispatcherService     // 安装调度服务
	manifestRepo  repository.ManifestRepository // 清单仓库
	reportRepo    repository.ReportRepository   // 报告仓库
}

// newConsoleCmd 创建控制台命令
// 用户执行 `wslbot console` 即可进入交互式控制台
func newConsoleCmd(dispatcherSvc service.DispatcherService,
	manifestRepo repository.ManifestRepository,
	reportRepo repository.ReportRepository) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "进入交互式控制台",
		Long: `进入交互式控制台，对清单、安装和报告进行统一管理。

示例:
  wslbot console

进入控制台后，可使用命令:
  help                         显示帮助
  install [sections...]        按清单安装（可指定段）
  dry-run [sections...]        试运行，列出将要执行的安装
  manifest validate [path]     校验清单
  manifest show [path]         按段列出清单条目
  report list                  列出安装报告
  report show <run-id>         查看安装报告
  exit / quit                  退出控制台`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := &console{
				dispatcherSvc: dispatcherSvc,
				manifestRepo:  manifestRepo,
				reportRepo:    reportRepo,
			}
			return c.run()
		},
	}

	return cmd
}

// run 启动交互式控制台主循环（带 Tab 补全）
func (c *console) run() error {
	c.printWelcome()

	// 使用 go-prompt 提供交互式输入和 Tab 补全
	p := prompt.New(
		c.executor,                      // 输入执行函数
		c.completer,                     // 补全函数
		prompt.OptionPrefix("wslbot> "), // 提示符
		prompt.OptionTitle("wslbot console"),                // 标题
		prompt.OptionSuggestionBGColor(prompt.DarkGray),     // 建议背景色
		prompt.OptionSuggestionTextColor(prompt.White),      // 建议文字颜色
		prompt.OptionSelectedSuggestionBGColor(prompt.Blue), // 选中建议背景色
		prompt.OptionSelectedSuggestionTextColor(prompt.White),
	)

	// Run 会阻塞，直到用户退出（Ctrl+D/Ctrl+C）
	p.Run()
	fmt.Println("\n已退出控制台。")
	return nil
}

// executor 执行单行命令
func (c *console) executor(in string) {
	line := strings.TrimSpace(in)
	if line == "" {
		return
	}
	if err := c.handleCommand(line); err != nil {
		fmt.Printf("错误: %v\n", err)
	}
}

// completer 提供 Tab 补全
func (c *console) completer(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	parts := strings.Fields(text)

	// 如果正在输入第一个单词（顶级命令）
	if len(parts) == 0 {
		return c.topLevelSuggestions("")
	}

	// 当前正在输入的 token
	current := ""
	if !strings.HasSuffix(text, " ") {
		current = parts[len(parts)-1]
	}

	switch parts[0] {
	case "install", "dry-run":
		// 剩余参数都是段名
		return c.completeSections(current)
	case "manifest":
		return c.completeManifest(parts[1:], current)
	case "report":
		return c.completeReport(parts[1:], current)
	default:
		if len(parts) == 1 && current != "" {
			return c.topLevelSuggestions(current)
		}
	}

	return []prompt.Suggest{}
}

// topLevelSuggestions 顶级命令补全
func (c *console) topLevelSuggestions(current string) []prompt.Suggest {
	cmds := []prompt.Suggest{
		{Text: "help", Description: "显示帮助"},
		{Text: "install", Description: "按清单安装软件包"},
		{Text: "dry-run", Description: "试运行，列出将要执行的安装"},
		{Text: "manifest", Description: "清单管理命令"},
		{Text: "report", Description: "安装报告命令"},
		{Text: "exit", Description: "退出控制台"},
		{Text: "quit", Description: "退出控制台"},
	}
	var res []prompt.Suggest
	for _, s := range cmds {
		if strings.HasPrefix(s.Text, current) {
			res = append(res, s)
		}
	}
	return res
}

// completeSections 补全清单段名
func (c *console) completeSections(current string) []prompt.Suggest {
	var res []prompt.Suggest
	for _, name := range domain.SectionNames() {
		if strings.HasPrefix(name, current) {
			res = append(res, prompt.Suggest{Text: name, Description: "清单段"})
		}
	}
	return res
}

// completeManifest manifest 子命令补全
func (c *console) completeManifest(args []string, current string) []prompt.Suggest {
	if len(args) == 0 || (len(args) == 1 && current != "") {
		subs := []prompt.Suggest{
			{Text: "validate", Description: "校验清单"},
			{Text: "show", Description: "按段列出清单条目"},
		}
		var res []prompt.Suggest
		for _, s := range subs {
			if strings.HasPrefix(s.Text, current) {
				res = append(res, s)
			}
		}
		return res
	}
	// 路径参数不做补全
	return []prompt.Suggest{}
}

// completeReport report 子命令补全
func (c *console) completeReport(args []string, current string) []prompt.Suggest {
	if len(args) == 0 || (len(args) == 1 && current != "") {
		subs := []prompt.Suggest{
			{Text: "list", Description: "列出安装报告"},
			{Text: "show", Description: "查看安装报告"},
		}
		var res []prompt.Suggest
		for _, s := range subs {
			if strings.HasPrefix(s.Text, current) {
				res = append(res, s)
			}
		}
		return res
	}

	if args[0] == "show" {
		// 动态补全运行标识
		runIDs, err := c.reportRepo.ListRunIDs()
		if err != nil {
			return []prompt.Suggest{}
		}
		var res []prompt.Suggest
		for _, runID := range runIDs {
			if strings.HasPrefix(runID, current) {
				res = append(res, prompt.Suggest{Text: runID, Description: "安装报告"})
			}
		}
		return res
	}
	return []prompt.Suggest{}
}

// printWelcome 打印欢迎信息和基础命令提示
func (c *console) printWelcome() {
	fmt.Println("╔═════════════════════════════════════════════════════════╗")
	fmt.Println("║              wslbot 交互式控制台 v1.0.0                 ║")
	fmt.Println("╚═════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("提示: 输入 'help' 查看可用命令，输入 'exit' 或 'quit' 退出")
	fmt.Println("      按 Tab 键自动补全命令和段名")
	fmt.Println()
}

// handleCommand 解析并处理一条命令
func (c *console) handleCommand(line string) error {
	// 支持用空格分隔的简单命令
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "help", "h", "?":
		c.printHelp()
		return nil
	case "exit", "quit", "q":
		fmt.Println("退出控制台。")
		os.Exit(0)
	case "install":
		return c.cmdInstall(parts[1:], false)
	case "dry-run":
		return c.cmdInstall(parts[1:], true)
	case "manifest":
		return c.handleManifestCommand(parts[1:])
	case "report":
		return c.handleReportCommand(parts[1:])
	default:
		fmt.Println("未知命令。输入 'help' 查看支持的命令。")
		return nil
	}
	return nil
}

// cmdInstall 执行安装（或试运行）
func (c *console) cmdInstall(args []string, dryRun bool) error {
	sections, err := validation.ValidateSections(strings.Join(args, ","))
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Println("开始试运行...")
	} else {
		fmt.Println("开始安装...")
	}

	summary, err := c.dispatcherSvc.Dispatch(context.Background(), service.DispatchOptions{
		Sections: sections,
		DryRun:   dryRun,
	})
	if err != nil {
		return fmt.Errorf("安装失败: %w", err)
	}

	fmt.Println(summary.String())
	if summary.Failed > 0 {
		fmt.Printf("提示: 使用 'report list' 查看失败明细。\n")
	}
	return nil
}

// handleManifestCommand 处理清单相关命令
func (c *console) handleManifestCommand(args []string) error {
	if len(args) == 0 {
		fmt.Println("用法: manifest [validate|show] [path]")
		return nil
	}

	ref := cfg.ManifestPath
	if len(args) >= 2 {
		ref = args[1]
	}

	switch args[0] {
	case "validate":
		manifest, err := c.manifestRepo.Load(ref)
		if err != nil {
			return err
		}
		if err := c.manifestRepo.Validate(manifest); err != nil {
			return err
		}
		fmt.Printf("清单 %s 校验通过（%s）\n", ref, manifest.Metadata.Name)
		return nil
	case "show":
		manifest, err := c.manifestRepo.Load(ref)
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
				if spec.Description != "" {
					fmt.Printf(": %s", spec.Description)
				}
				fmt.Println()
			}
		}
		return nil
	default:
		fmt.Println("未知 manifest 子命令。支持: validate, show")
		return nil
	}
}

// handleReportCommand 处理报告相关命令
func (c *console) handleReportCommand(args []string) error {
	if len(args) == 0 {
		fmt.Println("用法: report [list|show <run-id>]")
		return nil
	}

	switch args[0] {
	case "list":
		runIDs, err := c.reportRepo.ListRunIDs()
		if err != nil {
			return fmt.Errorf("获取报告列表失败: %w", err)
		}
		if len(runIDs) == 0 {
			fmt.Println("当前没有安装报告。")
			return nil
		}
		fmt.Println("安装报告列表:")
		for _, runID := range runIDs {
			fmt.Printf("  - %s\n", runID)
		}
		return nil
	case "show":
		if len(args) < 2 {
			fmt.Println("用法: report show <run-id>")
			return nil
		}
		report, err := c.reportRepo.Load(args[1])
		if err != nil {
			return fmt.Errorf("读取报告失败: %w", err)
		}
		fmt.Printf("运行: %s（清单 %s）\n", report.RunID, report.Manifest)
		fmt.Printf("结果: %s\n", report.Summary.String())
		for _, result := range report.Results {
			fmt.Printf("  [%s] %s/%s", result.Outcome, result.Section, result.Name)
			if result.Reason != "" {
				fmt.Printf(" - %s", result.Reason)
			}
			fmt.Println()
		}
		return nil
	default:
		fmt.Println("未知 report 子命令。支持: list, show")
		return nil
	}
}

// printHelp 打印控制台内可用命令帮助
func (c *console) printHelp() {
	fmt.Println("可用命令:")
	fmt.Println("  help                          显示本帮助")
	fmt.Println("  exit | quit                   退出控制台")
	fmt.Println()
	fmt.Println("  install [sections...]         按清单安装软件包（可指定段）")
	fmt.Println("  dry-run [sections...]         试运行，列出将要执行的安装")
	fmt.Println()
	fmt.Println("  manifest validate [path]      校验清单")
	fmt.Println("  manifest show [path]          按段列出清单条目")
	fmt.Println()
	fmt.Println("  report list                   列出安装报告")
	fmt.Println("  report show <run-id>          查看指定运行的安装报告")
	fmt.Println()
	fmt.Println("提示: 段名可通过 Tab 补全，建议先用 'manifest show' 了解清单内容。")
}
