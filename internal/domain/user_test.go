package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsernameGrammar(t *testing.T) {
	valid := []string{"dev", "dev_user", "dev-user", "_dev", "a", "Dev01",
		"abcdefghijklmnopqrstuvwxyz_01234"} // 32 个字符
	for _, name := range valid {
		assert.True(t, IsValidUsername(name), "%q 应当合法", name)
	}

	invalid := []string{"", "1dev", "-dev", "dev user", "dev$", "dev.user",
		"abcdefghijklmnopqrstuvwxyz_012345", // 33 个字符
		"root;rm -rf /"}
	for _, name := range invalid {
		assert.False(t, IsValidUsername(name), "%q 不应合法", name)
	}
}

func TestWSLUserSpecValidate(t *testing.T) {
	spec := &WSLUserSpec{Username: "dev", Password: "secret"}
	assert.NoError(t, spec.Validate())
	assert.Equal(t, "/bin/bash", spec.LoginShell())

	var verr *ValidationError

	bad := &WSLUserSpec{Username: "1dev", Password: "secret"}
	err := bad.Validate()
	assert.ErrorAs(t, err, &verr)

	empty := &WSLUserSpec{Username: "dev"}
	err = empty.Validate()
	assert.ErrorAs(t, err, &verr)
}
