package domain

import "fmt"

// DownloadError 下载失败错误
// 包括网络错误和 URL 安全校验失败两种情况
type DownloadError struct {
	URL    string // 下载地址
	Reason string // 失败原因
	Err    error  // 底层错误（可选）
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("下载 %s 失败: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("下载 %s 失败: %s", e.URL, e.Reason)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// InstallError 安装失败错误
// 包管理器或安装脚本返回非零退出码时产生
type InstallError struct {
	Package string // 软件包名称
	Err     error  // 底层错误
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("安装 %s 失败: %v", e.Package, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// VerificationError 安装后验证失败错误
// 注意：验证失败只记录警告，不会把安装结果改为失败
type VerificationError struct {
	Package string // 软件包名称
	Reason  string // 失败原因
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("验证 %s 失败: %s", e.Package, e.Reason)
}

// ManifestError 清单错误
// 清单本身不合法（引用无法解析、名称重复、依赖成环等），整个运行在任何安装动作前中止
type ManifestError struct {
	Section string // 出错的段名（可选）
	Name    string // 出错的条目名（可选）
	Reason  string // 错误原因
}

func (e *ManifestError) Error() string {
	switch {
	case e.Section != "" && e.Name != "":
		return fmt.Sprintf("清单错误 [%s/%s]: %s", e.Section, e.Name, e.Reason)
	case e.Section != "":
		return fmt.Sprintf("清单错误 [%s]: %s", e.Section, e.Reason)
	default:
		return fmt.Sprintf("清单错误: %s", e.Reason)
	}
}

// ValidationError 参数校验失败错误
// 参数未通过白名单校验，整个运行在任何 WSL 交互前中止
type ValidationError struct {
	Field  string // 参数名
	Value  string // 参数值
	Reason string // 错误原因
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("参数 %s 校验失败 (值: %q): %s", e.Field, e.Value, e.Reason)
}
