package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run 表示一次安装运行
type Run struct {
	ID         string    `json:"id"`          // 运行标识
	StartedAt  time.Time `json:"started_at"`  // 开始时间
	LogPath    string    `json:"log_path"`    // 运行日志文件路径
	ReportPath string    `json:"report_path"` // 安装报告文件路径
}

// NewRunID 生成运行标识
// 时间戳部分保持 yyyyMMdd_HHmmss 格式以兼容日志/报告文件命名，
// 追加 8 位 uuid 片段避免同一秒内两次运行的标识冲突
func NewRunID() string {
	return fmt.Sprintf("%s_%s",
		time.Now().Format("20060102_150405"),
		strings.Split(uuid.New().String(), "-")[0])
}

// NewRun 创建一次运行
// runID 为空时自动生成
func NewRun(runID, logsDir, reportsDir string) *Run {
	if runID == "" {
		runID = NewRunID()
	}
	return &Run{
		ID:         runID,
		StartedAt:  time.Now(),
		LogPath:    filepath.Join(logsDir, fmt.Sprintf("wsl-installation-%s.log", runID)),
		ReportPath: filepath.Join(reportsDir, fmt.Sprintf("installation-report-%s.txt", runID)),
	}
}

// RunContext 一次运行的聚合状态
// 显式传递给调度器和安装框架，替代全局可变状态；
// 运行结束后只读
type RunContext struct {
	Run *Run // 运行信息

	mu      sync.Mutex
	results []InstallationResult
}

// NewRunContext 创建运行上下文
func NewRunContext(run *Run) *RunContext {
	return &RunContext{Run: run}
}

// Record 追加一条安装结果
func (c *RunContext) Record(result InstallationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Results 返回全部安装结果（按记录顺序的副本）
func (c *RunContext) Results() []InstallationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]InstallationResult, len(c.results))
	copy(out, c.results)
	return out
}

// Failed 返回失败结果子集（按记录顺序）
func (c *RunContext) Failed() []InstallationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	var failed []InstallationResult
	for _, r := range c.results {
		if r.Outcome == OutcomeFailure {
			failed = append(failed, r)
		}
	}
	return failed
}

// Summary 返回当前汇总统计
func (c *RunContext) Summary() RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	summary := RunSummary{Attempted: len(c.results)}
	for _, r := range c.results {
		switch r.Outcome {
		case OutcomeSuccess:
			summary.Succeeded++
		case OutcomeFailure:
			summary.Failed++
		case OutcomeSkipped:
			summary.Skipped++
		}
	}
	return summary
}
