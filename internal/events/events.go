// Package events 实现调度器与编排器之间的结构化进度事件流
//
// 调度器把事件按 NDJSON（每行一个 JSON 对象）写到自己的标准输出，
// 主机侧编排器逐行读取并渲染。替代旧方案里 "主机轮询日志文件 + 正则匹配
// 彩色文本" 的进程间通信方式；运行是否成功以调度器进程的退出码为准。
package events

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/lucksec/wslbot/internal/domain"
)

// Type 事件类型
type Type string

const (
	TypeRunStart      Type = "run_start"      // 运行开始
	TypeSectionStart  Type = "section_start"  // 段开始
	TypePackageStart  Type = "package_start"  // 软件包开始处理
	TypePackageResult Type = "package_result" // 软件包处理完成
	TypeLog           Type = "log"            // 普通日志行
	TypeRunComplete   Type = "run_complete"   // 运行结束
)

// Event 一条进度事件
type Event struct {
	Time     time.Time `json:"ts"`                 // 事件时间
	Type     Type      `json:"type"`               // 事件类型
	RunID    string    `json:"run_id,omitempty"`   // 运行标识
	Level    string    `json:"level,omitempty"`    // 日志级别（log 事件）
	Section  string    `json:"section,omitempty"`  // 段名
	Package  string    `json:"package,omitempty"`  // 软件包名
	Outcome  string    `json:"outcome,omitempty"`  // 结果分类（package_result 事件）
	Message  string    `json:"message,omitempty"`  // 描述信息
	Progress int       `json:"progress,omitempty"` // 整体进度百分比
	Total    int       `json:"total,omitempty"`    // 软件包总数（run_start 事件）
	Failed   int       `json:"failed,omitempty"`   // 失败数（run_complete 事件，仅用于展示）
}

// Emitter 事件写入器
// 并发安全：调度器内部多个路径都可能发出事件
type Emitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEmitter 创建事件写入器
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{enc: json.NewEncoder(w)}
}

// Emit 写出一条事件
// 时间为零值时自动补充当前时间
func (e *Emitter) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// 单行 JSON，写失败时静默忽略：事件流只是展示通道，不影响运行结果
	_ = e.enc.Encode(ev)
}

// RunStart 发出运行开始事件
func (e *Emitter) RunStart(runID string, total int) {
	e.Emit(Event{Type: TypeRunStart, RunID: runID, Total: total})
}

// SectionStart 发出段开始事件
func (e *Emitter) SectionStart(section string, message string) {
	e.Emit(Event{Type: TypeSectionStart, Section: section, Message: message})
}

// PackageStart 发出软件包开始事件
func (e *Emitter) PackageStart(section, name string, progress int) {
	e.Emit(Event{Type: TypePackageStart, Section: section, Package: name, Progress: progress})
}

// PackageResult 发出软件包结果事件
func (e *Emitter) PackageResult(section string, result domain.InstallationResult, progress int) {
	e.Emit(Event{
		Type:     TypePackageResult,
		Section:  section,
		Package:  result.Name,
		Outcome:  string(result.Outcome),
		Message:  result.Reason,
		Progress: progress,
	})
}

// Log 发出普通日志事件
func (e *Emitter) Log(level, message string) {
	e.Emit(Event{Type: TypeLog, Level: level, Message: message})
}

// RunComplete 发出运行结束事件
// failed 只用于展示，运行结果以进程退出码为准
func (e *Emitter) RunComplete(runID string, failed int, message string) {
	e.Emit(Event{Type: TypeRunComplete, RunID: runID, Failed: failed, Message: message, Progress: 100})
}

// Reader 事件读取器
// 对混入的非 JSON 行保持宽容：安装脚本可能直接往标准输出打印文本
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader 创建事件读取器
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	// 安装脚本的输出行可能很长
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: scanner}
}

// Next 读取下一行
// raw 始终为原始行；如果该行不是合法的事件 JSON，事件为 nil。
// 输入结束时返回 io.EOF
func (r *Reader) Next() (*Event, string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, "", err
		}
		return nil, "", io.EOF
	}

	line := r.scanner.Text()
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, line, nil
	}

	var ev Event
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil || ev.Type == "" {
		return nil, line, nil
	}
	return &ev, line, nil
}
