package logger_test

import (
	"testing"

	"github.com/BradenHooton/sentinel/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "******789", logger.MaskPhone("612 345 789"))
	assert.Equal(t, "*********678", logger.MaskPhone("+212 612-345-678"))
	assert.Equal(t, "**", logger.MaskPhone("12"))
}

func TestMaskAccount(t *testing.T) {
	assert.Equal(t, "a****@*******.com", logger.MaskAccount("alice@example.com"))
	assert.Equal(t, "bo******", logger.MaskAccount("bob_1234"))
	assert.Equal(t, "**", logger.MaskAccount("ab"))
}

func TestRedactedAttr(t *testing.T) {
	assert.Equal(t, "[REDACTED]", logger.RedactedAttr("account", "alice", "production").Value.String())
	assert.Equal(t, "alice", logger.RedactedAttr("account", "alice", "development").Value.String())
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, logger.SanitizeQueryString("ip=1.1.1.1&account=alice"))
	assert.False(t, logger.SanitizeQueryString("ip=1.1.1.1&limit=20"))
}
