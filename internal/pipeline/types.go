package pipeline

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
	"mvdan.cc/sh/v3/syntax"
)

// Command is a single entry in a task's command list. It is either a shell
// snippet or a reference to another task that should run at that point.
type Command interface {
	// ShellStmts parses the command into shell statements. Task references
	// return a nil slice.
	ShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error)

	// TaskRef returns the referenced task, or nil for shell commands.
	TaskRef() *Task
}

// ShellCommand holds one shell snippet of a task.
type ShellCommand struct {
	TaskName string
	Source   string
	Index    int
}

func (c ShellCommand) ShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	result, err := parser.Parse(strings.NewReader(c.Source), fmt.Sprintf("%s:%d", c.TaskName, c.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %q", c.Source)
	}

	return result.Stmts, nil
}

func (c ShellCommand) TaskRef() *Task { return nil }

// TaskRefCommand embeds another task in a command list.
type TaskRefCommand struct {
	Task *Task
}

func (c TaskRefCommand) ShellStmts(*syntax.Parser) ([]*syntax.Stmt, error) { return nil, nil }

func (c TaskRefCommand) TaskRef() *Task { return c.Task }

// Task is the processed form of a task() call from the pipeline script.
type Task struct {
	Name         string
	Desc         string
	Base         string
	Deps         []string
	SkipIfExists []string
	Inputs       []string
	Outputs      []string
	Env          map[string]string
	Cmds         []Command
	Hidden       bool
}

// TaskList maps task names to their definitions.
type TaskList map[string]*Task

// Option describes an option() declaration from the pipeline script.
type Option struct {
	DefaultValue starlark.String
	Help         string
}

func (o Option) Default() string {
	return o.DefaultValue.GoString()
}

// Task implements starlark.Value so scripts can pass tasks around and embed
// them in other tasks' command lists.

func (t *Task) String() string {
	return fmt.Sprintf("<task %s: %s>", t.Name, t.Desc)
}

func (t *Task) Type() string { return "task" }

// Freeze is a no-op; tasks are never mutated after creation.
func (t *Task) Freeze() {}

func (t *Task) Truth() starlark.Bool { return starlark.True }

func (t *Task) Hash() (uint32, error) {
	return 0, eris.New("task is not a hashable type")
}

// Path is a filesystem path produced by resolve_path(). It behaves like a
// string inside the script but keeps its path nature so command arguments
// can be relativized before they reach the shell.
type Path string

func (p Path) String() string { return starlark.String(p).String() }

func (p Path) Type() string { return "path" }

func (p Path) Freeze() {}

func (p Path) Truth() starlark.Bool { return p != "" }

func (p Path) Hash() (uint32, error) { return starlark.String(p).Hash() }

func (p Path) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(Path)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}
