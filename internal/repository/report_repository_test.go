package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
)

func TestReportRoundTrip(t *testing.T) {
	cfg := &config.Config{ReportsDir: t.TempDir()}
	repo := NewReportRepository(cfg)

	run := domain.NewRun("", t.TempDir(), cfg.ReportsDir)
	manifest := &domain.Manifest{
		Metadata: domain.Metadata{Name: "dev-env", Version: "1.0.0"},
	}
	results := []domain.InstallationResult{
		{Name: "git", Section: "apt_packages", Outcome: domain.OutcomeSuccess, Version: "2.43.0"},
		{Name: "docker", Section: "custom_software", Outcome: domain.OutcomeFailure, Reason: "安装脚本退出码 1"},
		{Name: "kubectl", Section: "custom_software", Outcome: domain.OutcomeSkipped, Version: "1.29.1", Reason: "已安装"},
	}

	path, err := repo.Save(run, manifest, results)
	require.NoError(t, err)
	assert.Contains(t, path, run.ID)

	// 读回的结果数量与记录的结果数量完全一致
	report, err := repo.Load(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, report.RunID)
	require.Len(t, report.Results, len(results))

	assert.Equal(t, 3, report.Summary.Attempted)
	assert.Equal(t, 1, report.Summary.Succeeded)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Skipped)

	assert.Equal(t, "git", report.Results[0].Name)
	assert.Equal(t, "apt_packages", report.Results[0].Section)
	assert.Equal(t, domain.OutcomeSuccess, report.Results[0].Outcome)
	assert.Equal(t, "2.43.0", report.Results[0].Version)

	assert.Equal(t, domain.OutcomeFailure, report.Results[1].Outcome)
	assert.Equal(t, "安装脚本退出码 1", report.Results[1].Reason)

	assert.Equal(t, domain.OutcomeSkipped, report.Results[2].Outcome)
	assert.Equal(t, "1.29.1", report.Results[2].Version)
}

func TestListRunIDs(t *testing.T) {
	cfg := &config.Config{ReportsDir: t.TempDir()}
	repo := NewReportRepository(cfg)

	runA := domain.NewRun("", t.TempDir(), cfg.ReportsDir)
	runB := domain.NewRun("", t.TempDir(), cfg.ReportsDir)
	_, err := repo.Save(runA, nil, nil)
	require.NoError(t, err)
	_, err = repo.Save(runB, nil, nil)
	require.NoError(t, err)

	ids, err := repo.ListRunIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{runA.ID, runB.ID}, ids)
}
