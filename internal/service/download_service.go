package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/logger"
	"github.com/lucksec/wslbot/internal/validation"
)

// DownloadService 文件下载服务接口
// 每次下载前先做 URL 安全校验，失败按固定次数重试
type DownloadService interface {
	// DownloadFile 下载文件到指定路径
	DownloadFile(ctx context.Context, url, destPath string) error
}

// downloadService 文件下载服务实现
type downloadService struct {
	config *config.Config
	client *http.Client
}

// NewDownloadService 创建文件下载服务实例
func NewDownloadService(cfg *config.Config) DownloadService {
	return &downloadService{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.Download.TimeoutSeconds) * time.Second,
		},
	}
}

// DownloadFile 下载文件
func (s *downloadService) DownloadFile(ctx context.Context, url, destPath string) error {
	log := logger.GetLogger()

	// 安全校验在任何网络请求之前完成
	if err := validation.ValidateURL(url, false); err != nil {
		return &domain.DownloadError{URL: url, Reason: "URL 安全校验失败", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return &domain.DownloadError{URL: url, Reason: "创建目标目录失败", Err: err}
	}

	retries := s.config.Download.Retries
	if retries <= 0 {
		retries = 1
	}
	delay := time.Duration(s.config.Download.RetryDelaySeconds) * time.Second

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			log.Warn("下载 %s 失败，%v 后重试 (%d/%d)", url, delay, attempt, retries)
			select {
			case <-ctx.Done():
				return &domain.DownloadError{URL: url, Reason: "下载被取消", Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		if err := s.downloadOnce(ctx, url, destPath); err != nil {
			lastErr = err
			continue
		}

		log.Debug("下载完成: %s -> %s", url, destPath)
		return nil
	}

	return &domain.DownloadError{
		URL:    url,
		Reason: fmt.Sprintf("重试 %d 次后仍然失败", retries),
		Err:    lastErr,
	}
}

// downloadOnce 执行一次下载
func (s *downloadService) downloadOnce(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	// 先写临时文件再改名，避免半截文件被当成下载结果
	tmpPath := destPath + ".part"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("写入文件失败: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("关闭文件失败: %w", err)
	}

	return os.Rename(tmpPath, destPath)
}
