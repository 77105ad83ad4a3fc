package process

import (
	"errors"
	"strings"
)

// CommandResolver maps a logical command name plus its arguments to the
// concrete argv to execute. The default is a pass-through; deployments where
// the agent launcher is a script the platform cannot exec directly install
// an override that prepends the interpreter.
type CommandResolver interface {
	Resolve(name string, args []string) ([]string, error)
}

type passthroughResolver struct{}

func (passthroughResolver) Resolve(name string, args []string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("command name is required")
	}
	return append([]string{name}, args...), nil
}

func DefaultResolver() CommandResolver {
	return passthroughResolver{}
}

// InterpreterResolver prepends a fixed interpreter argv to every command,
// for platforms that do not honor shebang lines.
type InterpreterResolver struct {
	Interpreter []string
}

func (r InterpreterResolver) Resolve(name string, args []string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("command name is required")
	}
	if len(r.Interpreter) == 0 {
		return append([]string{name}, args...), nil
	}
	argv := append([]string{}, r.Interpreter...)
	argv = append(argv, name)
	return append(argv, args...), nil
}
