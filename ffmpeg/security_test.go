package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"convertd/task"
)

func TestSplitExtraArgs(t *testing.T) {
	args, err := SplitExtraArgs(`-movflags +faststart -tune "film"`)
	assert.NoError(t, err)
	assert.Equal(t, []string{"-movflags", "+faststart", "-tune", "film"}, args)

	args, err = SplitExtraArgs("   ")
	assert.NoError(t, err)
	assert.Nil(t, args)

	_, err = SplitExtraArgs(`-tune "unterminated`)
	assert.ErrorIs(t, err, task.ErrInvalidInput)
}

func TestValidateExtraArgs(t *testing.T) {
	args, _ := SplitExtraArgs(`-movflags +faststart`)
	assert.NoError(t, ValidateExtraArgs(args))

	t.Run("semicolon", func(t *testing.T) {
		err := ValidateExtraArgs([]string{"-tune;", "ls"})
		assert.ErrorIs(t, err, task.ErrInvalidInput)
		assert.Contains(t, err.Error(), "disallowed character in argument: -tune;")
	})

	t.Run("dollar expansion", func(t *testing.T) {
		err := ValidateExtraArgs([]string{"crop=$(($RANDOM))"})
		assert.ErrorIs(t, err, task.ErrInvalidInput)
	})
}
