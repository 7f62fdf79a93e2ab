package domain

import "regexp"

// usernamePattern Linux 用户名语法
// 字母/数字/下划线/连字符，首字符不能是数字或连字符，最长 32 个字符
var usernamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]{0,31}$`)

// WSLUserSpec 待创建的 WSL 默认用户
// 仅在自动安装模式下由编排器创建，密码只使用一次，绝不落盘
type WSLUserSpec struct {
	Username string // 用户名
	Password string // 初始密码
	Shell    string // 登录 shell（可选，默认 /bin/bash）
}

// LoginShell 返回登录 shell
func (u *WSLUserSpec) LoginShell() string {
	if u.Shell != "" {
		return u.Shell
	}
	return "/bin/bash"
}

// Validate 校验用户规格
// 用户名不满足语法或密码为空时返回 ValidationError
func (u *WSLUserSpec) Validate() error {
	if !usernamePattern.MatchString(u.Username) {
		return &ValidationError{
			Field:  "username",
			Value:  u.Username,
			Reason: "用户名只能包含字母、数字、下划线和连字符，首字符不能是数字或连字符，最长 32 个字符",
		}
	}
	if u.Password == "" {
		return &ValidationError{
			Field:  "password",
			Value:  "",
			Reason: "密码不能为空",
		}
	}
	return nil
}

// IsValidUsername 判断用户名是否满足语法
func IsValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}
