// Package core_test tests the shared pipeline contracts.
package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/book-expert/narrator/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRateLimited = errors.New("429 too many requests")

func TestTransformationError_IsAndAs(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("run aborted: %w", core.NewTransformationError(3, errRateLimited))

	require.ErrorIs(t, err, core.ErrTransformationFailed)
	require.ErrorIs(t, err, errRateLimited)
	assert.NotErrorIs(t, err, core.ErrPersistenceFailed)

	var transformErr *core.TransformationError

	require.ErrorAs(t, err, &transformErr)
	assert.Equal(t, 3, transformErr.ChunkIndex)
	assert.Contains(t, err.Error(), "chunk 3")
}

func TestPersistenceError_IsAndAs(t *testing.T) {
	t.Parallel()

	cause := errors.New("no space left on device")
	err := core.NewPersistenceError("rename", "/tmp/out.txt", cause)

	require.ErrorIs(t, err, core.ErrPersistenceFailed)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "/tmp/out.txt")
}

func TestResult_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, core.TextResult(0, "").Validate())
	require.NoError(t, core.AudioResult(1, []byte{0x1}).Validate())

	require.NoError(t, core.SilentResult(3).Validate())

	err := core.AudioResult(2, nil).Validate()
	require.ErrorIs(t, err, core.ErrEmptyPayload)

	err = core.Result{Index: 0, Capability: "bogus"}.Validate()
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestResult_Payload(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte("clean"), core.TextResult(0, "clean").Payload())
	assert.Equal(t, []byte("ID3"), core.AudioResult(0, []byte("ID3")).Payload())
}
