package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/logger"
)

// ScriptService 安装脚本执行服务接口
// 与每个安装脚本的契约：无必选参数，退出码 0 表示成功或已安装，
// 非零表示失败，成功后目标命令必须出现在 PATH 中
type ScriptService interface {
	// RunScript 以子进程方式执行安装脚本
	// 脚本的标准输出/标准错误逐行转入运行日志
	RunScript(ctx context.Context, name, scriptPath string, env []string) error
}

// scriptService 安装脚本执行服务实现
type scriptService struct {
	config *config.Config
}

// NewScriptService 创建安装脚本执行服务实例
func NewScriptService(cfg *config.Config) ScriptService {
	return &scriptService{
		config: cfg,
	}
}

// RunScript 执行安装脚本
func (s *scriptService) RunScript(ctx context.Context, name, scriptPath string, env []string) error {
	log := logger.GetLogger()
	log.Info("执行安装脚本: %s (%s)", name, scriptPath)

	cmd := exec.CommandContext(ctx, "bash", scriptPath)
	if len(env) > 0 {
		cmd.Env = append(nonInteractiveEnv(), env...)
	} else {
		cmd.Env = nonInteractiveEnv()
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("创建 stdout 管道失败: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("创建 stderr 管道失败: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return &domain.InstallError{
			Package: name,
			Err:     fmt.Errorf("启动脚本失败: %w", err),
		}
	}

	// 两个管道并发读取，输出行顺序不保证
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.streamOutput(stdout, name, false)
	}()
	go func() {
		defer wg.Done()
		s.streamOutput(stderr, name, true)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &domain.InstallError{
				Package: name,
				Err:     fmt.Errorf("安装脚本退出码 %d", exitErr.ExitCode()),
			}
		}
		return &domain.InstallError{Package: name, Err: err}
	}

	log.Debug("安装脚本执行完成: %s", name)
	return nil
}

// streamOutput 把脚本输出逐行转入运行日志
func (s *scriptService) streamOutput(pipe io.ReadCloser, name string, isStderr bool) {
	log := logger.GetLogger()
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if isStderr {
			log.Warn("[%s] %s", name, line)
		} else {
			log.Debug("[%s] %s", name, line)
		}
	}
}
