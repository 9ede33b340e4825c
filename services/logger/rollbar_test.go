package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "TEST : ", 0), core.NewTestConfig())

	usr := user.User{ID: 7, Username: "jdoe", Email: "jdoe@test.com"}
	logger.Info("course 1 swept")
	logger.Warn("skipping unknown user IDs [4]", usr)
	logger.Error("sweep failed", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "TEST : INFO: course 1 swept")
	assert.Contains(t, out, "TEST : WARN: skipping unknown user IDs [4]")
	assert.Contains(t, out, "TEST : ERROR: sweep failed")
	assert.Contains(t, out, "boom")
	assert.NotContains(t, out, "jdoe@test.com")
}
