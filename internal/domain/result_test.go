package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageStateTransitions(t *testing.T) {
	// 正常安装路径
	p := NewPackageProgress("git")
	require.NoError(t, p.Advance(StateChecking))
	require.NoError(t, p.Advance(StateInstalling))
	require.NoError(t, p.Advance(StateVerifying))
	require.NoError(t, p.Advance(StateSucceeded))
	assert.True(t, p.State().IsTerminal())

	// 终态之后不允许再转换
	assert.Error(t, p.Advance(StateInstalling))
}

func TestPackageStateSkipPath(t *testing.T) {
	// 已安装时从 Checking 直接跳过
	p := NewPackageProgress("git")
	require.NoError(t, p.Advance(StateChecking))
	require.NoError(t, p.Advance(StateSkipped))
	assert.Equal(t, StateSkipped, p.State())
}

func TestPackageStateVerifyLeniency(t *testing.T) {
	// 验证阶段允许直接转到 Succeeded（验证失败只记录警告）
	p := NewPackageProgress("docker")
	require.NoError(t, p.Advance(StateChecking))
	require.NoError(t, p.Advance(StateInstalling))
	require.NoError(t, p.Advance(StateVerifying))
	require.NoError(t, p.Advance(StateSucceeded))
}

func TestPackageStateInvalidTransitions(t *testing.T) {
	cases := []struct {
		from, to PackageState
	}{
		{StatePending, StateInstalling},
		{StatePending, StateSucceeded},
		{StateChecking, StateVerifying},
		{StateInstalling, StateSkipped},
		{StateSucceeded, StateFailed},
		{StateFailed, StateChecking},
	}
	for _, c := range cases {
		assert.False(t, c.from.CanTransition(c.to), "%s -> %s 不应合法", c.from, c.to)
	}
}

func TestRunContextSummary(t *testing.T) {
	ctx := NewRunContext(NewRun("", t.TempDir(), t.TempDir()))

	ctx.Record(InstallationResult{Name: "git", Outcome: OutcomeSuccess, Version: "2.43.0"})
	ctx.Record(InstallationResult{Name: "docker", Outcome: OutcomeFailure, Reason: "安装脚本退出码 1"})
	ctx.Record(InstallationResult{Name: "kubectl", Outcome: OutcomeSkipped, Reason: "已安装"})

	summary := ctx.Summary()
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)

	failed := ctx.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "docker", failed[0].Name)

	// 结果按记录顺序返回
	results := ctx.Results()
	require.Len(t, results, 3)
	assert.Equal(t, "git", results[0].Name)
	assert.Equal(t, "kubectl", results[2].Name)
}

func TestNewRunIDUnique(t *testing.T) {
	// 同一秒内生成的运行标识也不应冲突
	a := NewRunID()
	b := NewRunID()
	assert.NotEqual(t, a, b)
}

func TestManifestSelect(t *testing.T) {
	m := &Manifest{
		AptPackages:    []PackageSpec{{Name: "git"}, {Name: "curl"}},
		CustomSoftware: []PackageSpec{{Name: "docker", Script: "docker/install.sh"}},
	}

	// 不指定段时返回全部非空段，按标准顺序
	all := m.Select(nil)
	require.Len(t, all, 2)
	assert.Equal(t, SectionAptPackages, all[0].Name)
	assert.Equal(t, SectionCustomSoftware, all[1].Name)
	assert.Equal(t, 3, TotalPackages(all))

	// 指定段时只返回对应段
	only := m.Select([]string{SectionCustomSoftware})
	require.Len(t, only, 1)
	assert.Equal(t, "docker", only[0].Specs[0].Name)
}
