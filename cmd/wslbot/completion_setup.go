package main

import (
	"github.com/lucksec/wslbot/internal/repository"
	"github.com/lucksec/wslbot/internal/service"
	"github.com/spf13/cobra"
)

// setupDynamicCompletion 设置动态补全
func setupDynamicCompletion(rootCmd *cobra.Command, wslSvc service.WSLService, reportRepo repository.ReportRepository) {
	// 安装和编排命令的 --sections 标志补全
	setupSectionCompletion(rootCmd)

	// 编排和用户命令的 --distribution 标志补全
	setupDistributionCompletion(rootCmd, wslSvc)

	// 报告命令的运行标识补全
	setupReportCompletion(rootCmd, reportRepo)
}

// setupSectionCompletion 设置段名补全
func setupSectionCompletion(rootCmd *cobra.Command) {
	for _, name := range []string{"install", "run"} {
		cmd := findCommand(rootCmd, name)
		if cmd == nil {
			continue
		}
		if cmd.Flags().Lookup("sections") != nil {
			cmd.RegisterFlagCompletionFunc("sections", completeSectionNames)
		}
	}
}

// setupDistributionCompletion 设置发行版补全
func setupDistributionCompletion(rootCmd *cobra.Command, wslSvc service.WSLService) {
	runCmd := findCommand(rootCmd, "run")
	if runCmd != nil && runCmd.Flags().Lookup("distribution") != nil {
		runCmd.RegisterFlagCompletionFunc("distribution", completeDistributions(wslSvc))
	}

	createCmd := findCommand(rootCmd, "create")
	if createCmd != nil && createCmd.Flags().Lookup("distribution") != nil {
		createCmd.RegisterFlagCompletionFunc("distribution", completeDistributions(wslSvc))
	}
}

// setupReportCompletion 设置报告命令的补全
func setupReportCompletion(rootCmd *cobra.Command, reportRepo repository.ReportRepository) {
	reportCmd := findCommand(rootCmd, "report")
	if reportCmd == nil {
		return
	}

	showCmd := findCommand(reportCmd, "show")
	if showCmd != nil {
		showCmd.ValidArgsFunction = completeRunIDs(reportRepo)
	}
}

// findCommand 查找命令
func findCommand(root *cobra.Command, name string) *cobra.Command {
	for _, cmd := range root.Commands() {
		if cmd.Name() == name {
			return cmd
		}
		// 递归查找子命令
		if found := findCommand(cmd, name); found != nil {
			return found
		}
	}
	return nil
}
