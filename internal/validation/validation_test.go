package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucksec/wslbot/internal/domain"
)

func TestValidateSections(t *testing.T) {
	sections, err := ValidateSections("apt_packages,custom_software")
	require.NoError(t, err)
	assert.Equal(t, []string{"apt_packages", "custom_software"}, sections)

	// 空值表示全部段
	sections, err = ValidateSections("")
	require.NoError(t, err)
	assert.Nil(t, sections)
}

func TestValidateSectionsRejectsInjection(t *testing.T) {
	var verr *domain.ValidationError

	// 任何不在白名单字符集内的输入都必须硬失败
	for _, raw := range []string{
		"apt_packages;rm -rf /",
		"apt_packages $(id)",
		"apt_packages|cat",
		"apt-packages",
		"apt_packages\n",
		"段",
	} {
		_, err := ValidateSections(raw)
		require.Error(t, err, "输入 %q 应当被拒绝", raw)
		assert.ErrorAs(t, err, &verr)
	}

	// 字符集合法但段名未知，同样拒绝
	_, err := ValidateSections("apt_packages,unknown_section")
	assert.ErrorAs(t, err, &verr)

	// 只有逗号
	_, err = ValidateSections(",")
	assert.ErrorAs(t, err, &verr)
}

func TestValidateLogLevel(t *testing.T) {
	assert.NoError(t, ValidateLogLevel("DEBUG"))
	assert.NoError(t, ValidateLogLevel("info"))
	assert.NoError(t, ValidateLogLevel(""))

	var verr *domain.ValidationError
	err := ValidateLogLevel("VERBOSE")
	assert.ErrorAs(t, err, &verr)
}

func TestValidateURLBlocksPrivateAddresses(t *testing.T) {
	var verr *domain.ValidationError

	blocked := []string{
		"https://127.0.0.1/manifest.yaml",
		"https://localhost/manifest.yaml",
		"https://10.0.0.8/manifest.yaml",
		"https://172.16.1.1/manifest.yaml",
		"https://192.168.1.10/manifest.yaml",
		"https://169.254.169.254/latest/meta-data",
		"https://0.0.0.0/manifest.yaml",
		"https://[::1]/manifest.yaml",
		"ftp://example.com/manifest.yaml",
		"file:///etc/passwd",
	}
	for _, raw := range blocked {
		err := ValidateURL(raw, true)
		require.Error(t, err, "%q 应当被拒绝", raw)
		assert.ErrorAs(t, err, &verr)
	}
}

func TestValidateURLRequireHTTPS(t *testing.T) {
	// 远程清单只允许 https
	var verr *domain.ValidationError
	err := ValidateURL("http://8.8.8.8/manifest.yaml", true)
	assert.ErrorAs(t, err, &verr)

	// 普通下载允许 http
	assert.NoError(t, ValidateURL("http://8.8.8.8/tool.tar.gz", false))
	assert.NoError(t, ValidateURL("https://8.8.8.8/manifest.yaml", true))
}

func TestValidateConfigRef(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte("metadata:\n  name: test\n"), 0644))

	assert.NoError(t, ValidateConfigRef(manifestPath))

	var verr *domain.ValidationError
	err := ValidateConfigRef(filepath.Join(dir, "missing.yaml"))
	assert.ErrorAs(t, err, &verr)

	err = ValidateConfigRef(dir)
	assert.ErrorAs(t, err, &verr)

	err = ValidateConfigRef("")
	assert.ErrorAs(t, err, &verr)
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("dev-user"))

	var verr *domain.ValidationError
	err := ValidateUsername("1dev")
	assert.ErrorAs(t, err, &verr)
}
