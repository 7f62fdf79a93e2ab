package main

import (
	"context"
	"os"
	"strings"

	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/repository"
	"github.com/lucksec/wslbot/internal/service"
	"github.com/spf13/cobra"
)

// 动态补全函数

// completeSectionNames 补全清单段名（--sections 标志用）
func completeSectionNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// 标志值是逗号分隔列表，补全最后一个元素
	prefix := ""
	last := toComplete
	if idx := strings.LastIndex(toComplete, ","); idx >= 0 {
		prefix = toComplete[:idx+1]
		last = toComplete[idx+1:]
	}

	var completions []string
	for _, name := range domain.SectionNames() {
		if strings.HasPrefix(name, last) {
			completions = append(completions, prefix+name)
		}
	}
	return completions, cobra.ShellCompDirectiveNoSpace | cobra.ShellCompDirectiveNoFileComp
}

// completeDistributions 补全已注册的发行版名称
func completeDistributions(wslSvc service.WSLService) func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		names, err := wslSvc.ListDistributions(context.Background())
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		var completions []string
		for _, name := range names {
			if strings.HasPrefix(name, toComplete) {
				completions = append(completions, name)
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeRunIDs 补全已有报告的运行标识
func completeRunIDs(reportRepo repository.ReportRepository) func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		runIDs, err := reportRepo.ListRunIDs()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		var completions []string
		for _, runID := range runIDs {
			if strings.HasPrefix(runID, toComplete) {
				completions = append(completions, runID)
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}

// setupCompletion 设置自动补全命令
func setupCompletion(rootCmd *cobra.Command) {
	// 添加 completion 命令
	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "生成自动补全脚本",
		Long: `生成指定 shell 的自动补全脚本。

支持的 shell: bash, zsh, fish, powershell

安装方法:

Bash:
  $ source <(wslbot completion bash)

  # 或添加到 ~/.bashrc
  $ echo 'source <(wslbot completion bash)' >> ~/.bashrc

Zsh:
  $ source <(wslbot completion zsh)

  # 或添加到 ~/.zshrc
  $ echo 'source <(wslbot completion zsh)' >> ~/.zshrc

Fish:
  $ wslbot completion fish | source

  # 或添加到 ~/.config/fish/completions/wslbot.fish
  $ wslbot completion fish > ~/.config/fish/completions/wslbot.fish

PowerShell:
  $ wslbot completion powershell | Out-String | Invoke-Expression

  # 或添加到 PowerShell profile
  $ wslbot completion powershell >> $PROFILE
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.ExactValidArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			switch args[0] {
			case "bash":
				rootCmd.GenBashCompletion(os.Stdout)
			case "zsh":
				rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				rootCmd.GenFishCompletion(os.Stdout, true)
			case "powershell":
				rootCmd.GenPowerShellCompletion(os.Stdout)
			}
		},
	}

	rootCmd.AddCommand(completionCmd)
}
