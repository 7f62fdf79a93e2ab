package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// Config 应用配置
type Config struct {
	// 安装树根目录（清单、脚本所在目录）
	SourceDir string

	// 安装脚本根目录
	ScriptsDir string

	// 日志目录
	LogsDir string

	// 报告目录
	ReportsDir string

	// 默认清单路径
	ManifestPath string

	// WSL 侧临时暂存根目录（temp-copy 模式）
	TempRoot string

	// WSL 配置
	WSL WSLConfig

	// 下载配置
	Download DownloadConfig

	// 验证配置
	Verify VerifyConfig

	// 日志配置
	Log LogConfig

	// 环境变量注入的运行参数
	Env EnvOverrides
}

// WSLConfig WSL 相关配置
type WSLConfig struct {
	// 目标发行版名称
	Distribution string

	// 发行版 rootfs 压缩包路径（reset 重建时使用）
	RootfsPath string

	// 发行版安装目录（reset 重建时使用）
	InstallDir string

	// WSL 内调度器可执行文件路径
	DispatcherPath string

	// 默认用户名
	DefaultUsername string

	// 默认登录 shell
	DefaultShell string
}

// DownloadConfig 下载相关配置
type DownloadConfig struct {
	// 重试次数
	Retries int

	// 重试间隔（秒）
	RetryDelaySeconds int

	// 单次请求超时（秒）
	TimeoutSeconds int
}

// VerifyConfig 安装后验证配置
type VerifyConfig struct {
	// 验证命令超时（秒）
	TimeoutSeconds int
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别：DEBUG, INFO, WARN, ERROR
	Level string

	// 是否启用控制台输出
	EnableConsole bool

	// 是否启用文件输出
	EnableFile bool

	// 日志目录
	LogDir string

	// 日志文件名（如果为空，则使用默认格式）
	LogFile string
}

// EnvOverrides 从环境变量读取的运行参数
// 编排器通过环境变量把运行上下文传给 WSL 内的调度器
type EnvOverrides struct {
	// WSL_INSTALL_RUN_ID 复用的运行标识
	RunID string

	// WSL_INSTALL_TEMP_MODE 暂存模式（temp / direct）
	TempMode string

	// WSL_INSTALL_SOURCE_DIR 安装树根目录覆盖
	SourceDir string

	// WSL_DEFAULT_PASSWORD 默认用户初始密码（只使用一次，绝不落盘）
	DefaultPassword string
}

// DefaultConfig 返回内建默认配置
func DefaultConfig() *Config {
	return &Config{
		SourceDir:    ".",
		ScriptsDir:   "./scripts",
		LogsDir:      "logs",
		ReportsDir:   "logs",
		ManifestPath: "./manifest.yaml",
		TempRoot:     "/tmp",
		WSL: WSLConfig{
			Distribution:    "Ubuntu",
			DispatcherPath:  "wslbot",
			DefaultUsername: "dev",
			DefaultShell:    "/bin/bash",
		},
		Download: DownloadConfig{
			Retries:           3,
			RetryDelaySeconds: 2,
			TimeoutSeconds:    60,
		},
		Verify: VerifyConfig{
			TimeoutSeconds: 30,
		},
		Log: LogConfig{
			Level:         "INFO",
			EnableConsole: true,
			EnableFile:    true,
			LogDir:        "logs",
			LogFile:       "",
		},
	}
}

// LoadConfig 加载配置文件
func LoadConfig() (*Config, error) {
	// 确定配置文件路径
	configPaths := []string{".wslbot.ini"}
	if homeDir := os.Getenv("HOME"); homeDir != "" {
		configPaths = append(configPaths, filepath.Join(homeDir, ".wslbot", ".wslbot.ini"))
	}

	config := DefaultConfig()

	// 尝试读取配置文件
	var cfgFile *ini.File
	for _, configPath := range configPaths {
		if _, err := os.Stat(configPath); err == nil {
			loaded, err := ini.Load(configPath)
			if err == nil {
				cfgFile = loaded
				break
			}
		}
	}

	// 如果成功加载配置文件，读取配置值
	if cfgFile != nil {
		applyFile(config, cfgFile)
	}

	// 环境变量覆盖
	applyEnv(config)

	// 确保目录存在
	if err := ensureDirs(config); err != nil {
		return nil, fmt.Errorf("创建目录失败: %w", err)
	}

	return config, nil
}

// applyFile 从 ini 文件读取配置值
func applyFile(config *Config, cfgFile *ini.File) {
	if section := cfgFile.Section("default"); section != nil {
		if v := section.Key("source_dir").String(); v != "" {
			config.SourceDir = v
		}
		if v := section.Key("scripts_dir").String(); v != "" {
			config.ScriptsDir = v
		}
		if v := section.Key("logs_dir").String(); v != "" {
			config.LogsDir = v
			config.Log.LogDir = v
		}
		if v := section.Key("reports_dir").String(); v != "" {
			config.ReportsDir = v
		}
		if v := section.Key("manifest").String(); v != "" {
			config.ManifestPath = v
		}
		if v := section.Key("temp_root").String(); v != "" {
			config.TempRoot = v
		}
	}

	if section := cfgFile.Section("wsl"); section != nil {
		if v := section.Key("distribution").String(); v != "" {
			config.WSL.Distribution = v
		}
		if v := section.Key("rootfs").String(); v != "" {
			config.WSL.RootfsPath = v
		}
		if v := section.Key("install_dir").String(); v != "" {
			config.WSL.InstallDir = v
		}
		if v := section.Key("dispatcher").String(); v != "" {
			config.WSL.DispatcherPath = v
		}
		if v := section.Key("default_user").String(); v != "" {
			config.WSL.DefaultUsername = v
		}
		if v := section.Key("default_shell").String(); v != "" {
			config.WSL.DefaultShell = v
		}
	}

	if section := cfgFile.Section("download"); section != nil {
		if v, err := section.Key("retries").Int(); err == nil && v > 0 {
			config.Download.Retries = v
		}
		if v, err := section.Key("retry_delay").Int(); err == nil && v > 0 {
			config.Download.RetryDelaySeconds = v
		}
		if v, err := section.Key("timeout").Int(); err == nil && v > 0 {
			config.Download.TimeoutSeconds = v
		}
	}

	if section := cfgFile.Section("verify"); section != nil {
		if v, err := section.Key("timeout").Int(); err == nil && v > 0 {
			config.Verify.TimeoutSeconds = v
		}
	}

	if section := cfgFile.Section("log"); section != nil {
		if v := section.Key("level").String(); v != "" {
			config.Log.Level = v
		}
		if v := section.Key("enable_console").String(); v != "" {
			config.Log.EnableConsole = v == "true" || v == "1"
		}
		if v := section.Key("enable_file").String(); v != "" {
			config.Log.EnableFile = v == "true" || v == "1"
		}
		if v := section.Key("log_dir").String(); v != "" {
			config.Log.LogDir = v
		}
		if v := section.Key("log_file").String(); v != "" {
			config.Log.LogFile = v
		}
	}
}

// applyEnv 从环境变量读取运行参数
func applyEnv(config *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
	config.Env.RunID = os.Getenv("WSL_INSTALL_RUN_ID")
	config.Env.TempMode = os.Getenv("WSL_INSTALL_TEMP_MODE")
	config.Env.DefaultPassword = os.Getenv("WSL_DEFAULT_PASSWORD")
	if v := os.Getenv("WSL_INSTALL_SOURCE_DIR"); v != "" {
		config.Env.SourceDir = v
		config.SourceDir = v
	}
}

// ensureDirs 确保必要的目录存在
func ensureDirs(config *Config) error {
	dirs := []string{
		config.LogsDir,
		config.ReportsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}

	return nil
}
