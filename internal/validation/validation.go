// Package validation 实现参数的白名单校验
//
// 所有跨越主机 -> WSL -> 调度器边界的参数（段列表、清单引用、日志级别、用户名）
// 在进入任何命令行或环境变量之前都必须通过这里的校验。
// 校验策略是白名单而不是黑名单：不匹配即硬失败，绝不尝试清洗后继续。
package validation

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/lucksec/wslbot/internal/domain"
)

// sectionsPattern --sections 参数的白名单
var sectionsPattern = regexp.MustCompile(`^[a-zA-Z_,]+$`)

// 合法日志级别
var logLevels = map[string]bool{
	"DEBUG": true,
	"INFO":  true,
	"WARN":  true,
	"ERROR": true,
}

// ValidateSections 校验 --sections 参数并拆分为段名列表
// 参数整体必须匹配 ^[a-zA-Z_,]+$，且每个段名必须是已知段
func ValidateSections(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}

	if !sectionsPattern.MatchString(raw) {
		return nil, &domain.ValidationError{
			Field:  "sections",
			Value:  raw,
			Reason: "只允许字母、下划线和逗号",
		}
	}

	var sections []string
	for _, name := range strings.Split(raw, ",") {
		if name == "" {
			continue
		}
		if !domain.IsValidSection(name) {
			return nil, &domain.ValidationError{
				Field:  "sections",
				Value:  name,
				Reason: fmt.Sprintf("未知的段名，合法值: %s", strings.Join(domain.SectionNames(), ", ")),
			}
		}
		sections = append(sections, name)
	}

	if len(sections) == 0 {
		return nil, &domain.ValidationError{
			Field:  "sections",
			Value:  raw,
			Reason: "没有有效的段名",
		}
	}
	return sections, nil
}

// ValidateLogLevel 校验 --log-level 参数
func ValidateLogLevel(raw string) error {
	if raw == "" {
		return nil
	}
	if !logLevels[strings.ToUpper(raw)] {
		return &domain.ValidationError{
			Field:  "log-level",
			Value:  raw,
			Reason: "合法值: DEBUG, INFO, WARN, ERROR",
		}
	}
	return nil
}

// IsRemoteRef 判断清单引用是否为远程 URL
func IsRemoteRef(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// ValidateConfigRef 校验 --config 参数
// 远程引用必须是通过安全校验的 https URL，本地引用必须是存在的文件
func ValidateConfigRef(ref string) error {
	if ref == "" {
		return &domain.ValidationError{
			Field:  "config",
			Value:  "",
			Reason: "清单引用不能为空",
		}
	}

	if IsRemoteRef(ref) {
		return ValidateURL(ref, true)
	}

	info, err := os.Stat(ref)
	if err != nil {
		return &domain.ValidationError{
			Field:  "config",
			Value:  ref,
			Reason: "本地清单文件不存在",
		}
	}
	if info.IsDir() {
		return &domain.ValidationError{
			Field:  "config",
			Value:  ref,
			Reason: "清单引用指向目录而不是文件",
		}
	}
	return nil
}

// ValidateURL 对下载地址做安全校验
// 拒绝非 http(s) 协议、localhost、环回/私有/链路本地地址；
// 主机名先做 DNS 解析再检查，解析到私有地址同样拒绝。
// 校验在任何网络请求之前完成。
func ValidateURL(rawURL string, requireHTTPS bool) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &domain.ValidationError{
			Field:  "url",
			Value:  rawURL,
			Reason: "URL 格式不合法",
		}
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if requireHTTPS {
			return &domain.ValidationError{
				Field:  "url",
				Value:  rawURL,
				Reason: "远程清单只允许 https 协议",
			}
		}
	default:
		return &domain.ValidationError{
			Field:  "url",
			Value:  rawURL,
			Reason: fmt.Sprintf("不允许的协议 %q，只允许 http/https", parsed.Scheme),
		}
	}

	host := parsed.Hostname()
	if host == "" {
		return &domain.ValidationError{
			Field:  "url",
			Value:  rawURL,
			Reason: "URL 缺少主机名",
		}
	}
	if strings.EqualFold(host, "localhost") {
		return &domain.ValidationError{
			Field:  "url",
			Value:  rawURL,
			Reason: "不允许访问 localhost",
		}
	}

	// 主机名为字面量 IP 时直接检查，否则先解析
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolved, err := net.LookupIP(host)
		if err != nil {
			return &domain.ValidationError{
				Field:  "url",
				Value:  rawURL,
				Reason: fmt.Sprintf("主机名解析失败: %v", err),
			}
		}
		ips = resolved
	}

	for _, ip := range ips {
		if isBlockedIP(ip) {
			return &domain.ValidationError{
				Field:  "url",
				Value:  rawURL,
				Reason: fmt.Sprintf("地址 %s 属于禁止访问的私有/环回网段", ip),
			}
		}
	}

	return nil
}

// isBlockedIP 判断地址是否属于禁止访问的网段
func isBlockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// ValidateUsername 校验用户名语法
func ValidateUsername(name string) error {
	if !domain.IsValidUsername(name) {
		return &domain.ValidationError{
			Field:  "username",
			Value:  name,
			Reason: "用户名只能包含字母、数字、下划线和连字符，首字符不能是数字或连字符，最长 32 个字符",
		}
	}
	return nil
}
