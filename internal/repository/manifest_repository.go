package repository

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/validation"
)

// ManifestRepository 清单仓库接口
type ManifestRepository interface {
	// Load 从本地路径或 https URL 加载并解析清单
	// 远程清单只在此处获取一次，之后与本地清单处理方式完全一致
	Load(ref string) (*domain.Manifest, error)

	// Validate 对清单做 fail-fast 校验
	// 段内名称唯一、脚本引用可解析、依赖存在且无环；任何一项失败都在
	// 第一个安装动作之前以 ManifestError 中止运行
	Validate(m *domain.Manifest) error

	// ResolveOrder 按依赖关系对条目排序
	// 无依赖关系的条目保持清单顺序
	ResolveOrder(section string, specs []domain.PackageSpec) ([]domain.PackageSpec, error)
}

// manifestRepository 清单仓库实现
type manifestRepository struct {
	config  *config.Config
	scripts ScriptRepository
	client  *http.Client
}

// NewManifestRepository 创建清单仓库实例
func NewManifestRepository(cfg *config.Config, scripts ScriptRepository) ManifestRepository {
	return &manifestRepository{
		config:  cfg,
		scripts: scripts,
		client: &http.Client{
			Timeout: time.Duration(cfg.Download.TimeoutSeconds) * time.Second,
		},
	}
}

// Load 加载清单
func (r *manifestRepository) Load(ref string) (*domain.Manifest, error) {
	if err := validation.ValidateConfigRef(ref); err != nil {
		return nil, err
	}

	var data []byte
	if validation.IsRemoteRef(ref) {
		fetched, err := r.fetch(ref)
		if err != nil {
			return nil, err
		}
		data = fetched
	} else {
		read, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("读取清单文件失败: %w", err)
		}
		data = read
	}

	var manifest domain.Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	// 未知字段视为清单错误，避免拼写错误被静默忽略
	decoder.KnownFields(true)
	if err := decoder.Decode(&manifest); err != nil {
		return nil, &domain.ManifestError{Reason: fmt.Sprintf("解析 YAML 失败: %v", err)}
	}

	return &manifest, nil
}

// fetch 获取远程清单
func (r *manifestRepository) fetch(ref string) ([]byte, error) {
	resp, err := r.client.Get(ref)
	if err != nil {
		return nil, fmt.Errorf("获取远程清单失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("获取远程清单失败: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取远程清单失败: %w", err)
	}
	return data, nil
}

// Validate 校验清单
func (r *manifestRepository) Validate(m *domain.Manifest) error {
	for _, section := range domain.SectionNames() {
		specs := m.Section(section)
		if len(specs) == 0 {
			continue
		}

		// 段内名称唯一
		seen := make(map[string]bool, len(specs))
		for _, spec := range specs {
			if spec.Name == "" {
				return &domain.ManifestError{Section: section, Reason: "条目缺少 name 字段"}
			}
			if seen[spec.Name] {
				return &domain.ManifestError{Section: section, Name: spec.Name, Reason: "名称在段内重复"}
			}
			seen[spec.Name] = true
		}

		// 脚本段的脚本引用必须可解析
		if section == domain.SectionCustomSoftware || section == domain.SectionConfigurations {
			for _, spec := range specs {
				if spec.Script == "" {
					return &domain.ManifestError{Section: section, Name: spec.Name, Reason: "条目缺少 script 字段"}
				}
				if _, err := r.scripts.Resolve(spec.Script); err != nil {
					return &domain.ManifestError{
						Section: section,
						Name:    spec.Name,
						Reason:  fmt.Sprintf("脚本引用无法解析: %v", err),
					}
				}
			}
		}

		// 依赖必须指向同段内存在的条目，且无环
		if _, err := r.ResolveOrder(section, specs); err != nil {
			return err
		}
	}

	return nil
}

// ResolveOrder 拓扑排序
// 依赖在前，被依赖项之间保持清单顺序
func (r *manifestRepository) ResolveOrder(section string, specs []domain.PackageSpec) ([]domain.PackageSpec, error) {
	byName := make(map[string]*domain.PackageSpec, len(specs))
	for i := range specs {
		byName[specs[i].Name] = &specs[i]
	}

	// 依赖必须存在
	for _, spec := range specs {
		for _, dep := range spec.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, &domain.ManifestError{
					Section: section,
					Name:    spec.Name,
					Reason:  fmt.Sprintf("依赖的条目 %s 在段内不存在", dep),
				}
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int, len(specs))
	var ordered []domain.PackageSpec

	var visit func(spec *domain.PackageSpec) error
	visit = func(spec *domain.PackageSpec) error {
		switch state[spec.Name] {
		case done:
			return nil
		case visiting:
			return &domain.ManifestError{
				Section: section,
				Name:    spec.Name,
				Reason:  "依赖关系成环",
			}
		}
		state[spec.Name] = visiting
		for _, dep := range spec.DependsOn {
			if err := visit(byName[dep]); err != nil {
				return err
			}
		}
		state[spec.Name] = done
		ordered = append(ordered, *spec)
		return nil
	}

	// 按清单顺序遍历，保证无依赖关系的条目顺序稳定
	for i := range specs {
		if err := visit(&specs[i]); err != nil {
			return nil, err
		}
	}

	return ordered, nil
}
