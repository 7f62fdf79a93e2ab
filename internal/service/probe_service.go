package service

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/lucksec/wslbot/internal/logger"
)

// VersionUnknown 命令存在但无法提取版本号时的占位值
const VersionUnknown = "UNKNOWN"

// versionPattern 从版本输出中提取第一个版本号形态的 token
var versionPattern = regexp.MustCompile(`\d+\.\d+(\.\d+)*`)

// probeTimeout 版本探测命令的超时
// 有些工具的 --version 会做网络检查，不能无限等
const probeTimeout = 10 * time.Second

// CommandProber 命令探测器接口
// 回答 "某个工具是否已安装，版本是多少"
type CommandProber interface {
	// IsInstalled 探测命令是否存在并提取版本号
	// 返回 (false, "")、(true, "UNKNOWN") 或 (true, "<version>")
	IsInstalled(ctx context.Context, command, versionFlag string) (bool, string)

	// Satisfies 判断观测到的版本是否满足约束
	// 约束为空表示任意版本都满足；约束可以是 ">= 1.20" 这样的表达式，
	// 也可以是裸版本号（视为最低版本要求）
	Satisfies(observed, constraint string) bool
}

// commandProber 命令探测器实现
type commandProber struct{}

// NewCommandProber 创建命令探测器实例
func NewCommandProber() CommandProber {
	return &commandProber{}
}

// IsInstalled 探测命令
func (p *commandProber) IsInstalled(ctx context.Context, command, versionFlag string) (bool, string) {
	log := logger.GetLogger()

	path, err := exec.LookPath(command)
	if err != nil {
		log.Debug("命令 %s 不在 PATH 中", command)
		return false, ""
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, path, versionFlag)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// 命令存在但版本探测失败（不支持该参数、超时等）
		log.Debug("命令 %s 版本探测失败: %v", command, err)
		return true, VersionUnknown
	}

	version := ExtractVersion(string(output))
	if version == "" {
		return true, VersionUnknown
	}
	return true, version
}

// Satisfies 版本约束比较
func (p *commandProber) Satisfies(observed, constraint string) bool {
	return VersionSatisfies(observed, constraint)
}

// ExtractVersion 从版本输出中提取版本号
// 找不到版本号形态的 token 时返回空字符串
func ExtractVersion(output string) string {
	return versionPattern.FindString(output)
}

// VersionSatisfies 判断观测版本是否满足约束
func VersionSatisfies(observed, constraint string) bool {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		// 无约束：装了就算满足
		return true
	}
	if observed == "" || observed == VersionUnknown {
		// 有约束但版本未知，视为不满足
		return false
	}

	observedVer, err := goversion.NewVersion(observed)
	if err != nil {
		return false
	}

	// 裸版本号优先识别为最低版本要求
	// NewConstraint 也能解析 "2.30"，但语义是精确等于，不是我们要的
	if requiredVer, err := goversion.NewVersion(constraint); err == nil {
		return observedVer.GreaterThanOrEqual(requiredVer)
	}

	// 其余按约束表达式解析（">= 1.20"、"~> 2.1" 等）
	constraints, err := goversion.NewConstraint(constraint)
	if err != nil {
		return false
	}
	return constraints.Check(observedVer)
}
