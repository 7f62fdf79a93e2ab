package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
)

// newTestRepos 构造指向临时目录的清单/脚本仓库
func newTestRepos(t *testing.T) (ManifestRepository, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		ScriptsDir: t.TempDir(),
		Download:   config.DownloadConfig{TimeoutSeconds: 5},
	}
	scripts := NewScriptRepository(cfg)
	return NewManifestRepository(cfg, scripts), cfg
}

// writeScript 在脚本根目录下创建一个脚本文件
func writeScript(t *testing.T, cfg *config.Config, relPath string) {
	t.Helper()
	full := filepath.Join(cfg.ScriptsDir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte("#!/usr/bin/env bash\nexit 0\n"), 0755))
}

const sampleManifest = `metadata:
  name: dev-env
  description: 开发环境
  version: "1.0.0"
apt_packages:
  - name: git
    version: "2.30"
  - name: curl
custom_software:
  - name: docker
    description: Docker Engine
    script: docker/install.sh
    smoke_test: docker info
`

func TestLoadLocalManifest(t *testing.T) {
	repo, cfg := newTestRepos(t)
	writeScript(t, cfg, "docker/install.sh")

	manifestPath := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(sampleManifest), 0644))

	m, err := repo.Load(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, "dev-env", m.Metadata.Name)
	require.Len(t, m.AptPackages, 2)
	assert.Equal(t, "git", m.AptPackages[0].Name)
	assert.Equal(t, "2.30", m.AptPackages[0].Version)
	require.Len(t, m.CustomSoftware, 1)
	assert.Equal(t, "docker/install.sh", m.CustomSoftware[0].Script)

	require.NoError(t, repo.Validate(m))
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	repo, _ := newTestRepos(t)

	manifestPath := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(manifestPath,
		[]byte("metadata:\n  name: x\napt_pakages:\n  - name: git\n"), 0644))

	_, err := repo.Load(manifestPath)
	var merr *domain.ManifestError
	assert.ErrorAs(t, err, &merr)
}

func TestLoadRemoteManifestPrivateIPBlocked(t *testing.T) {
	// 解析到私有地址的远程清单在任何网络请求之前被拒绝
	repo, _ := newTestRepos(t)

	_, err := repo.Load("https://192.168.1.10/manifest.yaml")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestValidateUnresolvableScript(t *testing.T) {
	// 脚本不存在时整个清单在任何安装动作之前被判为非法
	repo, _ := newTestRepos(t)

	m := &domain.Manifest{
		CustomSoftware: []domain.PackageSpec{
			{Name: "x", Script: "x/install.sh"},
		},
	}

	err := repo.Validate(m)
	var merr *domain.ManifestError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "x", merr.Name)
}

func TestValidateDuplicateName(t *testing.T) {
	repo, _ := newTestRepos(t)

	m := &domain.Manifest{
		AptPackages: []domain.PackageSpec{
			{Name: "git"},
			{Name: "git"},
		},
	}

	err := repo.Validate(m)
	var merr *domain.ManifestError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "git", merr.Name)
}

func TestValidateScriptEscape(t *testing.T) {
	repo, _ := newTestRepos(t)

	m := &domain.Manifest{
		CustomSoftware: []domain.PackageSpec{
			{Name: "x", Script: "../../etc/passwd"},
		},
	}

	err := repo.Validate(m)
	var merr *domain.ManifestError
	assert.ErrorAs(t, err, &merr)
}

func TestResolveOrder(t *testing.T) {
	repo, cfg := newTestRepos(t)
	writeScript(t, cfg, "a/install.sh")
	writeScript(t, cfg, "b/install.sh")
	writeScript(t, cfg, "c/install.sh")

	specs := []domain.PackageSpec{
		{Name: "c", Script: "c/install.sh", DependsOn: []string{"a", "b"}},
		{Name: "a", Script: "a/install.sh"},
		{Name: "b", Script: "b/install.sh", DependsOn: []string{"a"}},
	}

	ordered, err := repo.ResolveOrder(domain.SectionCustomSoftware, specs)
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, "a", ordered[0].Name)
	assert.Equal(t, "b", ordered[1].Name)
	assert.Equal(t, "c", ordered[2].Name)
}

func TestResolveOrderCycle(t *testing.T) {
	repo, _ := newTestRepos(t)

	specs := []domain.PackageSpec{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}

	_, err := repo.ResolveOrder(domain.SectionCustomSoftware, specs)
	var merr *domain.ManifestError
	require.ErrorAs(t, err, &merr)
	assert.Contains(t, merr.Reason, "成环")
}

func TestResolveOrderUnknownDependency(t *testing.T) {
	repo, _ := newTestRepos(t)

	specs := []domain.PackageSpec{
		{Name: "a", DependsOn: []string{"missing"}},
	}

	_, err := repo.ResolveOrder(domain.SectionCustomSoftware, specs)
	var merr *domain.ManifestError
	assert.ErrorAs(t, err, &merr)
}
