package utils_test

import (
	"testing"

	"github.com/jrsteele09/campus-session-client/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	require.Equal(t, "", utils.Value[string](nil))
	require.Equal(t, 7, utils.Value(utils.Ptr(7)))
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "b", utils.FirstNonEmpty("", "  ", "b", "c"))
	require.Equal(t, "", utils.FirstNonEmpty())
}

func TestContainsAny(t *testing.T) {
	require.True(t, utils.ContainsAny("Invalid PASSWORD", []string{"password"}))
	require.True(t, utils.ContainsAny("用户名或密码错误", []string{"密码"}))
	require.False(t, utils.ContainsAny("captcha expired", []string{"password", ""}))
}
