package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucksec/wslbot/internal/config"
)

// ScriptRepository 安装脚本仓库接口
type ScriptRepository interface {
	// Resolve 把清单中的脚本相对路径解析为绝对路径
	// 路径逃出脚本根目录或文件不存在时返回错误
	Resolve(relPath string) (string, error)

	// List 列出脚本根目录下的所有安装脚本（相对路径）
	List() ([]string, error)
}

// scriptRepository 安装脚本仓库实现
type scriptRepository struct {
	config *config.Config
}

// NewScriptRepository 创建安装脚本仓库实例
func NewScriptRepository(cfg *config.Config) ScriptRepository {
	return &scriptRepository{
		config: cfg,
	}
}

// Resolve 解析脚本路径
func (r *scriptRepository) Resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("脚本路径不能为空")
	}
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("脚本路径 %s 必须是相对路径", relPath)
	}

	root, err := filepath.Abs(r.config.ScriptsDir)
	if err != nil {
		return "", fmt.Errorf("解析脚本根目录失败: %w", err)
	}

	resolved := filepath.Clean(filepath.Join(root, relPath))

	// 防止 ../ 逃出脚本根目录
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", fmt.Errorf("脚本路径 %s 逃出了脚本根目录", relPath)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("脚本 %s 不存在", relPath)
	}
	if info.IsDir() {
		return "", fmt.Errorf("脚本路径 %s 指向目录而不是文件", relPath)
	}

	return resolved, nil
}

// List 列出所有安装脚本
func (r *scriptRepository) List() ([]string, error) {
	root, err := filepath.Abs(r.config.ScriptsDir)
	if err != nil {
		return nil, fmt.Errorf("解析脚本根目录失败: %w", err)
	}

	var scripts []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(info.Name(), ".sh") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		scripts = append(scripts, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("扫描脚本目录失败: %w", err)
	}

	return scripts, nil
}
