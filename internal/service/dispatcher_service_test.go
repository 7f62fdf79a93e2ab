package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/events"
	"github.com/lucksec/wslbot/internal/repository"
)

// fakeAptService 用内存表模拟 dpkg 状态
type fakeAptService struct {
	installed    map[string]string
	installErr   error
	installCalls [][]string
}

func (a *fakeAptService) Update(_ context.Context) error  { return nil }
func (a *fakeAptService) Upgrade(_ context.Context) error { return nil }

func (a *fakeAptService) Install(_ context.Context, packages []string) error {
	a.installCalls = append(a.installCalls, packages)
	if a.installErr != nil {
		return a.installErr
	}
	for _, name := range packages {
		a.installed[name] = "1.0.0"
	}
	return nil
}

func (a *fakeAptService) IsPackageInstalled(_ context.Context, name string) (bool, string, error) {
	version, ok := a.installed[name]
	return ok, version, nil
}

const dispatcherTestManifest = `metadata:
  name: base-tools
  version: "1.0"
apt_packages:
  - name: git
  - name: curl
  - name: ripgrep
    package: ripgrep
custom_software:
  - name: terraform
    script: install_terraform.sh
  - name: vault
    script: install_vault.sh
    depends_on:
      - terraform
`

func newDispatcherFixture(t *testing.T) (*config.Config, string) {
	t.Helper()

	dir := t.TempDir()
	scriptsDir := filepath.Join(dir, "scripts")
	require.NoError(t, os.MkdirAll(scriptsDir, 0755))
	for _, name := range []string{"install_terraform.sh", "install_vault.sh"} {
		require.NoError(t, os.WriteFile(filepath.Join(scriptsDir, name), []byte("#!/bin/bash\n"), 0755))
	}

	manifestPath := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(dispatcherTestManifest), 0644))

	cfg := config.DefaultConfig()
	cfg.ScriptsDir = scriptsDir
	cfg.LogsDir = filepath.Join(dir, "logs")
	cfg.ReportsDir = filepath.Join(dir, "reports")
	cfg.ManifestPath = manifestPath
	return cfg, manifestPath
}

func newDispatcher(t *testing.T, cfg *config.Config, apt *fakeAptService,
	prober *fakeProber, installer PackageInstaller, out *bytes.Buffer) DispatcherService {
	t.Helper()

	scripts := repository.NewScriptRepository(cfg)
	manifests := repository.NewManifestRepository(cfg, scripts)
	reports := repository.NewReportRepository(cfg)
	framework := NewInstallationFramework(prober)
	installers := map[string]PackageInstaller{
		domain.SectionCustomSoftware: installer,
	}
	return NewDispatcherService(cfg, manifests, reports, framework, apt, prober,
		installers, events.NewEmitter(out))
}

func TestDispatchMixedOutcomes(t *testing.T) {
	cfg, _ := newDispatcherFixture(t)

	// git 已装，curl/ripgrep 缺失；terraform 脚本成功，vault 缺安装器之外正常
	apt := &fakeAptService{installed: map[string]string{"git": "2.43.0"}}
	prober := &fakeProber{versions: map[string]string{}}
	installer := &fakeInstaller{prober: prober}
	installer.onInstall = func(spec *domain.PackageSpec) {
		prober.versions[spec.CommandName()] = "1.9.0"
	}

	var out bytes.Buffer
	dispatcher := newDispatcher(t, cfg, apt, prober, installer, &out)

	summary, err := dispatcher.Dispatch(context.Background(), DispatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Attempted)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)

	// 缺失的 apt 包合并为一次批量安装
	require.Len(t, apt.installCalls, 1)
	assert.ElementsMatch(t, []string{"curl", "ripgrep"}, apt.installCalls[0])

	// 报告写入磁盘且与结果一致
	reports := repository.NewReportRepository(cfg)
	runIDs, err := reports.ListRunIDs()
	require.NoError(t, err)
	require.Len(t, runIDs, 1)
	report, err := reports.Load(runIDs[0])
	require.NoError(t, err)
	assert.Len(t, report.Results, 5)
}

func TestDispatchSecondRunIsIdempotent(t *testing.T) {
	cfg, _ := newDispatcherFixture(t)

	apt := &fakeAptService{installed: map[string]string{}}
	prober := &fakeProber{versions: map[string]string{}}
	installer := &fakeInstaller{prober: prober}
	installer.onInstall = func(spec *domain.PackageSpec) {
		prober.versions[spec.CommandName()] = "1.9.0"
	}

	var out bytes.Buffer
	dispatcher := newDispatcher(t, cfg, apt, prober, installer, &out)

	first, err := dispatcher.Dispatch(context.Background(), DispatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, first.Succeeded)

	second, err := dispatcher.Dispatch(context.Background(), DispatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, second.Skipped, "第二次运行应全部跳过")
	assert.Zero(t, second.Failed)
	assert.Len(t, apt.installCalls, 1, "第二次运行不应再调用 apt-get install")
}

func TestDispatchContinuesAfterScriptFailure(t *testing.T) {
	cfg, _ := newDispatcherFixture(t)

	apt := &fakeAptService{installed: map[string]string{}}
	prober := &fakeProber{versions: map[string]string{}}
	installer := &fakeInstaller{
		prober: prober,
		installErr: &domain.InstallError{
			Package: "terraform",
			Err:     errors.New("安装脚本退出码 1"),
		},
	}

	var out bytes.Buffer
	dispatcher := newDispatcher(t, cfg, apt, prober, installer, &out)

	summary, err := dispatcher.Dispatch(context.Background(), DispatchOptions{})
	require.NoError(t, err, "软件包级失败不应变成调度错误")

	assert.Equal(t, 5, summary.Attempted)
	assert.Equal(t, 2, summary.Failed, "脚本段两个包都失败")
	assert.Equal(t, 3, summary.Succeeded, "apt 段不受脚本段失败影响")
}

func TestDispatchDryRunMutatesNothing(t *testing.T) {
	cfg, _ := newDispatcherFixture(t)

	apt := &fakeAptService{installed: map[string]string{}}
	prober := &fakeProber{versions: map[string]string{}}
	installer := &fakeInstaller{prober: prober}

	var out bytes.Buffer
	dispatcher := newDispatcher(t, cfg, apt, prober, installer, &out)

	summary, err := dispatcher.Dispatch(context.Background(), DispatchOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Skipped, "试运行应把每个包记为跳过")
	assert.Empty(t, apt.installCalls)
	assert.Zero(t, installer.installCalls)

	// 试运行不写报告
	_, err = os.Stat(cfg.ReportsDir)
	assert.True(t, os.IsNotExist(err))

	// 事件流中每个选中的包都有一条试运行结果
	dryRunResults := 0
	reader := events.NewReader(bytes.NewReader(out.Bytes()))
	for {
		ev, _, err := reader.Next()
		if err != nil {
			break
		}
		if ev != nil && ev.Type == events.TypePackageResult && ev.Message == "试运行" {
			dryRunResults++
		}
	}
	assert.Equal(t, 5, dryRunResults)
}

func TestDispatchSectionFilter(t *testing.T) {
	cfg, _ := newDispatcherFixture(t)

	apt := &fakeAptService{installed: map[string]string{}}
	prober := &fakeProber{versions: map[string]string{}}
	installer := &fakeInstaller{prober: prober}

	var out bytes.Buffer
	dispatcher := newDispatcher(t, cfg, apt, prober, installer, &out)

	summary, err := dispatcher.Dispatch(context.Background(), DispatchOptions{
		Sections: []string{domain.SectionAptPackages},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Attempted, "只处理 apt 段")
	assert.Zero(t, installer.installCalls, "脚本段未被选中")
}

func TestDispatchRejectsUnknownSection(t *testing.T) {
	cfg, _ := newDispatcherFixture(t)

	apt := &fakeAptService{installed: map[string]string{}}
	prober := &fakeProber{versions: map[string]string{}}
	installer := &fakeInstaller{prober: prober}

	var out bytes.Buffer
	dispatcher := newDispatcher(t, cfg, apt, prober, installer, &out)

	_, err := dispatcher.Dispatch(context.Background(), DispatchOptions{
		Sections: []string{"apt_packages; rm -rf /"},
	})
	require.Error(t, err)

	var validationErr *domain.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Empty(t, apt.installCalls)
}

func TestDispatchEmitsRunLifecycleEvents(t *testing.T) {
	cfg, _ := newDispatcherFixture(t)

	apt := &fakeAptService{installed: map[string]string{}}
	prober := &fakeProber{versions: map[string]string{}}
	installer := &fakeInstaller{prober: prober}
	installer.onInstall = func(spec *domain.PackageSpec) {
		prober.versions[spec.CommandName()] = "1.9.0"
	}

	var out bytes.Buffer
	dispatcher := newDispatcher(t, cfg, apt, prober, installer, &out)

	_, err := dispatcher.Dispatch(context.Background(), DispatchOptions{RunID: "20260831_120000_deadbeef"})
	require.NoError(t, err)

	var types []events.Type
	for _, line := range bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n")) {
		var ev events.Event
		require.NoError(t, json.Unmarshal(line, &ev))
		types = append(types, ev.Type)
	}

	assert.Equal(t, events.TypeRunStart, types[0])
	assert.Equal(t, events.TypeRunComplete, types[len(types)-1])
	assert.Contains(t, types, events.TypeSectionStart)
	assert.Contains(t, types, events.TypePackageResult)
}
