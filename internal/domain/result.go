package domain

import (
	"fmt"
	"time"
)

// Outcome 安装结果分类
type Outcome string

const (
	OutcomeSuccess Outcome = "Success" // 安装成功
	OutcomeFailure Outcome = "Failure" // 安装失败
	OutcomeSkipped Outcome = "Skipped" // 跳过（已安装或 dry-run）
)

// PackageState 单个软件包的处理状态
// 状态机：Pending -> Checking -> (已安装则跳过) / Installing -> Verifying -> {Succeeded, Failed}
type PackageState string

const (
	StatePending    PackageState = "Pending"    // 等待处理
	StateChecking   PackageState = "Checking"   // 检查是否已安装
	StateInstalling PackageState = "Installing" // 安装中
	StateVerifying  PackageState = "Verifying"  // 安装后验证中
	StateSucceeded  PackageState = "Succeeded"  // 终态：成功
	StateFailed     PackageState = "Failed"     // 终态：失败
	StateSkipped    PackageState = "Skipped"    // 终态：跳过
)

// CanTransition 判断状态转换是否合法
func (s PackageState) CanTransition(to PackageState) bool {
	if s == to {
		return true
	}
	switch s {
	case StatePending:
		return to == StateChecking
	case StateChecking:
		// 已安装跳过、dry-run 跳过、进入安装、探测失败直接失败
		return to == StateSkipped || to == StateInstalling || to == StateFailed
	case StateInstalling:
		return to == StateVerifying || to == StateFailed
	case StateVerifying:
		// 验证失败只记录警告，因此 Verifying 也可以转到 Succeeded
		return to == StateSucceeded || to == StateFailed
	default:
		// 终态不允许再转换
		return false
	}
}

// IsTerminal 判断是否为终态
func (s PackageState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateSkipped
}

// PackageProgress 跟踪单个软件包的状态机进展
type PackageProgress struct {
	Name  string       // 软件包名称
	state PackageState // 当前状态
}

// NewPackageProgress 创建处于 Pending 状态的进度跟踪器
func NewPackageProgress(name string) *PackageProgress {
	return &PackageProgress{Name: name, state: StatePending}
}

// State 返回当前状态
func (p *PackageProgress) State() PackageState {
	return p.state
}

// Advance 推进状态机，非法转换返回错误
func (p *PackageProgress) Advance(to PackageState) error {
	if !p.state.CanTransition(to) {
		return fmt.Errorf("软件包 %s 状态非法转换: %s -> %s", p.Name, p.state, to)
	}
	p.state = to
	return nil
}

// InstallationResult 单个软件包的安装结果
type InstallationResult struct {
	Name     string        `json:"name"`               // 软件包名称
	Section  string        `json:"section"`            // 所属段
	Outcome  Outcome       `json:"outcome"`            // 结果分类
	Version  string        `json:"version,omitempty"`  // 观测到的版本
	Reason   string        `json:"reason,omitempty"`   // 失败或跳过原因
	Duration time.Duration `json:"duration,omitempty"` // 处理耗时
}

// RunSummary 一次运行的汇总统计
type RunSummary struct {
	Attempted int // 处理总数
	Succeeded int // 成功数
	Failed    int // 失败数
	Skipped   int // 跳过数
}

// String 返回汇总的单行描述
func (s RunSummary) String() string {
	return fmt.Sprintf("总计 %d, 成功 %d, 失败 %d, 跳过 %d",
		s.Attempted, s.Succeeded, s.Failed, s.Skipped)
}
