package service

// 每个安装器都必须完整实现 PackageInstaller，
// 方法签名漂移在编译期暴露
var (
	_ PackageInstaller = (*aptInstaller)(nil)
	_ PackageInstaller = (*scriptInstaller)(nil)
	_ PackageInstaller = (*pipInstaller)(nil)
	_ PackageInstaller = (*nixInstaller)(nil)
	_ PackageInstaller = (*pwshInstaller)(nil)
)
