package domain

// Metadata 清单元信息
type Metadata struct {
	Name        string `yaml:"name"`        // 清单名称
	Description string `yaml:"description"` // 清单描述
	Version     string `yaml:"version"`     // 清单版本
}

// PackageSpec 表示清单中的一个软件包条目
// 安装方式由所在的段决定：apt 段按包名安装，custom_software 段执行 script 指定的脚本
type PackageSpec struct {
	Name        string   `yaml:"name"`         // 软件包名称（段内唯一）
	Description string   `yaml:"description"`  // 软件包描述
	Version     string   `yaml:"version"`      // 版本约束（可选，如 ">= 1.20" 或 "2.40.0"）
	Command     string   `yaml:"command"`      // 探测用命令名（可选，默认为 Name）
	VersionFlag string   `yaml:"version_flag"` // 版本输出参数（可选，默认为 --version）
	Package     string   `yaml:"package"`      // apt 包名（可选，默认为 Name）
	Script      string   `yaml:"script"`       // 安装脚本相对路径（custom_software/configurations 段必填）
	URL         string   `yaml:"url"`          // 安装包下载地址（可选，由框架预下载后交给脚本）
	SmokeTest   string   `yaml:"smoke_test"`   // 安装后验证命令（可选，如 "docker info"）
	DependsOn   []string `yaml:"depends_on"`   // 同段内依赖的条目名称
}

// CommandName 返回探测用命令名
func (p *PackageSpec) CommandName() string {
	if p.Command != "" {
		return p.Command
	}
	return p.Name
}

// ProbeFlag 返回版本输出参数
func (p *PackageSpec) ProbeFlag() string {
	if p.VersionFlag != "" {
		return p.VersionFlag
	}
	return "--version"
}

// AptPackageName 返回 apt 包名
func (p *PackageSpec) AptPackageName() string {
	if p.Package != "" {
		return p.Package
	}
	return p.Name
}

// 清单段名称
const (
	SectionPrerequisites     = "prerequisites"
	SectionAptPackages       = "apt_packages"
	SectionCustomSoftware    = "custom_software"
	SectionPythonPackages    = "python_packages"
	SectionPowershellModules = "powershell_modules"
	SectionNixPackages       = "nix_packages"
	SectionConfigurations    = "configurations"
)

// SectionNames 返回所有合法段名（按安装顺序）
func SectionNames() []string {
	return []string{
		SectionPrerequisites,
		SectionAptPackages,
		SectionCustomSoftware,
		SectionPythonPackages,
		SectionPowershellModules,
		SectionNixPackages,
		SectionConfigurations,
	}
}

// IsValidSection 判断段名是否合法
func IsValidSection(name string) bool {
	for _, s := range SectionNames() {
		if s == name {
			return true
		}
	}
	return false
}

// Manifest 表示一份已解析的 YAML 清单
// 每次运行加载一次，运行期间不可变
type Manifest struct {
	Metadata          Metadata      `yaml:"metadata"`           // 元信息
	Prerequisites     []PackageSpec `yaml:"prerequisites"`      // 前置依赖（apt 单包安装）
	AptPackages       []PackageSpec `yaml:"apt_packages"`       // apt 软件包（批量安装）
	CustomSoftware    []PackageSpec `yaml:"custom_software"`    // 自定义安装脚本
	PythonPackages    []PackageSpec `yaml:"python_packages"`    // Python 软件包
	PowershellModules []PackageSpec `yaml:"powershell_modules"` // PowerShell 模块
	NixPackages       []PackageSpec `yaml:"nix_packages"`       // Nix 软件包
	Configurations    []PackageSpec `yaml:"configurations"`     // 配置脚本
}

// Section 按段名返回对应的条目列表
func (m *Manifest) Section(name string) []PackageSpec {
	switch name {
	case SectionPrerequisites:
		return m.Prerequisites
	case SectionAptPackages:
		return m.AptPackages
	case SectionCustomSoftware:
		return m.CustomSoftware
	case SectionPythonPackages:
		return m.PythonPackages
	case SectionPowershellModules:
		return m.PowershellModules
	case SectionNixPackages:
		return m.NixPackages
	case SectionConfigurations:
		return m.Configurations
	default:
		return nil
	}
}

// SectionSelection 表示一个被选中的段及其条目
type SectionSelection struct {
	Name  string        // 段名
	Specs []PackageSpec // 段内条目（保持清单顺序）
}

// Select 按请求的段名列表返回选中的段
// sections 为空时返回清单中所有非空段（按标准安装顺序）
func (m *Manifest) Select(sections []string) []SectionSelection {
	names := sections
	if len(names) == 0 {
		names = SectionNames()
	}

	var selected []SectionSelection
	for _, name := range names {
		specs := m.Section(name)
		if len(specs) == 0 {
			continue
		}
		selected = append(selected, SectionSelection{Name: name, Specs: specs})
	}
	return selected
}

// TotalPackages 返回选中段中的条目总数
func TotalPackages(selections []SectionSelection) int {
	total := 0
	for _, sel := range selections {
		total += len(sel.Specs)
	}
	return total
}
