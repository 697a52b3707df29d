package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/google/shlex"

	"convertd/task"
)

// SplitExtraArgs splits a user-supplied extra-arguments string into argv
// entries without ever involving a shell.
func SplitExtraArgs(extra string) ([]string, error) {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return nil, nil
	}
	args, err := shlex.Split(extra)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid extra arguments syntax: %v", task.ErrInvalidInput, err)
	}
	return args, nil
}

// ValidateExtraArgs screens split arguments for shell metacharacters.
// exec never interprets them, but rejecting them up front keeps injection
// attempts from reaching the encoder at all.
func ValidateExtraArgs(args []string) error {
	for _, arg := range args {
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("%w: disallowed character in argument: %s", task.ErrInvalidInput, arg)
		}
	}
	return nil
}
