package repository

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
)

// Report 一份已落盘的安装报告
type Report struct {
	RunID    string                      // 运行标识
	Manifest string                      // 清单名称
	Results  []domain.InstallationResult // 安装结果
	Summary  domain.RunSummary           // 汇总统计
}

// ReportRepository 安装报告仓库接口
type ReportRepository interface {
	// Save 把一次运行的结果写入报告文件，返回报告路径
	Save(run *domain.Run, manifest *domain.Manifest, results []domain.InstallationResult) (string, error)

	// Load 按运行标识读回报告
	Load(runID string) (*Report, error)

	// ListRunIDs 列出已有报告的运行标识
	ListRunIDs() ([]string, error)
}

// reportRepository 安装报告仓库实现
type reportRepository struct {
	config *config.Config
}

// NewReportRepository 创建安装报告仓库实例
func NewReportRepository(cfg *config.Config) ReportRepository {
	return &reportRepository{
		config: cfg,
	}
}

// Save 写入报告文件
func (r *reportRepository) Save(run *domain.Run, manifest *domain.Manifest, results []domain.InstallationResult) (string, error) {
	if err := os.MkdirAll(r.config.ReportsDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	reportPath := filepath.Join(r.config.ReportsDir,
		fmt.Sprintf("installation-report-%s.txt", run.ID))

	summary := domain.RunSummary{Attempted: len(results)}
	for _, result := range results {
		switch result.Outcome {
		case domain.OutcomeSuccess:
			summary.Succeeded++
		case domain.OutcomeFailure:
			summary.Failed++
		case domain.OutcomeSkipped:
			summary.Skipped++
		}
	}

	var sb strings.Builder
	sb.WriteString("# wslbot 安装报告\n")
	fmt.Fprintf(&sb, "run_id: %s\n", run.ID)
	if manifest != nil && manifest.Metadata.Name != "" {
		fmt.Fprintf(&sb, "manifest: %s %s\n", manifest.Metadata.Name, manifest.Metadata.Version)
	}
	fmt.Fprintf(&sb, "started_at: %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "finished_at: %s\n", time.Now().Format(time.RFC3339))
	sb.WriteString("----\n")

	for _, result := range results {
		line := fmt.Sprintf("[%s] %s/%s", strings.ToUpper(string(result.Outcome)), result.Section, result.Name)
		if result.Version != "" {
			line += " " + result.Version
		}
		if result.Reason != "" {
			line += " - " + result.Reason
		}
		sb.WriteString(line + "\n")
	}

	sb.WriteString("----\n")
	fmt.Fprintf(&sb, "total: %d, succeeded: %d, failed: %d, skipped: %d\n",
		summary.Attempted, summary.Succeeded, summary.Failed, summary.Skipped)

	if err := os.WriteFile(reportPath, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	return reportPath, nil
}

// Load 读回报告
func (r *reportRepository) Load(runID string) (*Report, error) {
	reportPath := filepath.Join(r.config.ReportsDir,
		fmt.Sprintf("installation-report-%s.txt", runID))

	file, err := os.Open(reportPath)
	if err != nil {
		return nil, fmt.Errorf("打开报告文件失败: %w", err)
	}
	defer file.Close()

	report := &Report{RunID: runID}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "manifest: "):
			report.Manifest = strings.TrimPrefix(line, "manifest: ")
		case strings.HasPrefix(line, "total: "):
			fmt.Sscanf(line, "total: %d, succeeded: %d, failed: %d, skipped: %d",
				&report.Summary.Attempted, &report.Summary.Succeeded,
				&report.Summary.Failed, &report.Summary.Skipped)
		case strings.HasPrefix(line, "["):
			if result, ok := parseResultLine(line); ok {
				report.Results = append(report.Results, result)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取报告文件失败: %w", err)
	}

	return report, nil
}

// ListRunIDs 列出已有报告的运行标识
func (r *reportRepository) ListRunIDs() ([]string, error) {
	entries, err := os.ReadDir(r.config.ReportsDir)
	if err != nil {
		return nil, fmt.Errorf("读取报告目录失败: %w", err)
	}

	var runIDs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() ||
			!strings.HasPrefix(name, "installation-report-") ||
			!strings.HasSuffix(name, ".txt") {
			continue
		}
		runID := strings.TrimSuffix(strings.TrimPrefix(name, "installation-report-"), ".txt")
		runIDs = append(runIDs, runID)
	}

	return runIDs, nil
}

// parseResultLine 解析一行安装结果
// 格式: [OUTCOME] section/name [version] [- reason]
func parseResultLine(line string) (domain.InstallationResult, bool) {
	var result domain.InstallationResult

	end := strings.Index(line, "]")
	if !strings.HasPrefix(line, "[") || end < 0 {
		return result, false
	}

	switch line[1:end] {
	case "SUCCESS":
		result.Outcome = domain.OutcomeSuccess
	case "FAILURE":
		result.Outcome = domain.OutcomeFailure
	case "SKIPPED":
		result.Outcome = domain.OutcomeSkipped
	default:
		return result, false
	}

	rest := strings.TrimSpace(line[end+1:])
	if idx := strings.Index(rest, " - "); idx >= 0 {
		result.Reason = rest[idx+3:]
		rest = rest[:idx]
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return result, false
	}
	if idx := strings.Index(fields[0], "/"); idx >= 0 {
		result.Section = fields[0][:idx]
		result.Name = fields[0][idx+1:]
	} else {
		result.Name = fields[0]
	}
	if len(fields) > 1 {
		result.Version = fields[1]
	}

	return result, true
}
