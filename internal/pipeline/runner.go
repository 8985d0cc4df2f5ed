package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// RunOptions control a single pipeline invocation.
type RunOptions struct {
	// DryRun only prints the commands that would run.
	DryRun bool
	// Force runs tasks even if their skip or staleness checks would allow
	// skipping them.
	Force bool
}

type taskState int

const (
	taskRunning taskState = iota + 1
	taskDone
)

type (
	runtimeCtxKey struct{}
	runtimeCtx    struct {
		states      map[string]taskState
		projectRoot string
	}
)

func getRuntimeCtx(ctx context.Context) *runtimeCtx {
	return ctx.Value(runtimeCtxKey{}).(*runtimeCtx)
}

func taskEnviron(task *Task) expand.Environ {
	envVars := os.Environ()
	for name, value := range task.Env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, value))
	}

	return expand.ListEnviron(envVars...)
}

var defaultExecHandler = interp.DefaultExecHandler(2)

// selfExe points at the running binary so tasks can call the bundled
// helper commands without gumo being on PATH.
var selfExe = func() string {
	exe, err := os.Executable()
	if err != nil {
		return "gumo"
	}
	return exe
}()

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "mv", "rm", "mkdir":
			// always use the bundled cross-platform implementations for
			// these so they behave the same everywhere
			args = append([]string{selfExe, args[0]}, args[1:]...)
		case "gumo":
			args = append([]string{selfExe}, args[1:]...)
		}
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// resolvePatterns expands the glob patterns relative to base.
func resolvePatterns(ctx context.Context, base string, patterns []string) ([]string, error) {
	result := []string{}
	cfg := expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()
	root := getRuntimeCtx(ctx).projectRoot

	for _, item := range patterns {
		if strings.HasPrefix(item, "//") {
			item = filepath.Join(root, item[2:])
		} else if !filepath.IsAbs(item) {
			item = filepath.Join(base, item)
		}
		item = filepath.ToSlash(item)

		words := make([]*syntax.Word, 0)
		parser.Words(strings.NewReader(item), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// a pattern that didn't match anything is returned verbatim;
			// skip those
			if !strings.Contains(match, "*") {
				result = append(result, match)
			}
		}
	}
	return result, nil
}

// RunTask executes the named task after running its declared dependencies,
// in declaration order. The first failing command aborts the whole run;
// partial artifacts are left in place for the operator to inspect.
func RunTask(ctx context.Context, projectRoot, name string, tasks TaskList, opts RunOptions) error {
	rctx := runtimeCtx{
		projectRoot: projectRoot,
		states:      make(map[string]taskState),
	}

	ctx = context.WithValue(ctx, runtimeCtxKey{}, &rctx)
	task, found := tasks[name]
	if !found {
		return eris.Errorf("task %s not found", name)
	}

	return runTask(ctx, task, tasks, opts, true)
}

func runTask(ctx context.Context, task *Task, tasks TaskList, opts RunOptions, canSkip bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rctx := getRuntimeCtx(ctx)
	switch rctx.states[task.Name] {
	case taskDone:
		log(ctx).Debug().Msgf("task %s already ran", task.Name)
		return nil
	case taskRunning:
		return eris.Errorf("task %s depends on itself (dependency cycle)", task.Name)
	}

	rctx.states[task.Name] = taskRunning

	for _, dep := range task.Deps {
		if rctx.states[dep] == taskDone {
			continue
		}

		depTask, ok := tasks[dep]
		if !ok {
			return eris.Errorf("task %s not found", dep)
		}

		if err := runTask(ctx, depTask, tasks, opts, true); err != nil {
			return eris.Wrapf(err, "task %s failed due to its dependency %s", task.Name, dep)
		}
	}

	if canSkip && !opts.Force {
		skip, err := checkSkipFiles(ctx, task)
		if err != nil {
			return err
		}
		if skip {
			rctx.states[task.Name] = taskDone
			return nil
		}
	}

	if !opts.Force {
		fresh, err := checkStaleness(ctx, task)
		if err != nil {
			return err
		}
		if fresh {
			rctx.states[task.Name] = taskDone
			return nil
		}
	}

	runner, err := interp.New(
		interp.Dir(task.Base),
		interp.Env(taskEnviron(task)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, os.Stdout, os.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize shell runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}

	for _, item := range task.Cmds {
		stmts, err := item.ShellStmts(parser)
		if err != nil {
			return eris.Wrap(err, "failed to parse shell script")
		}

		if stmts == nil {
			subTask := item.TaskRef()
			if subTask == nil {
				return eris.Errorf("unexpected task command %+v", item)
			}

			if err := runTask(ctx, subTask, tasks, opts, true); err != nil {
				return err
			}
		} else {
			for _, stmt := range stmts {
				strBuffer.Reset()
				printer.Print(&strBuffer, stmt)
				log(ctx).Info().
					Str("task", task.Name).
					Bool("command", true).
					Msg(strBuffer.String())

				if opts.DryRun {
					continue
				}

				if err := runner.Run(ctx, stmt); err != nil {
					return err
				}

				if runner.Exited() {
					return nil
				}
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	rctx.states[task.Name] = taskDone
	return nil
}

// checkSkipFiles reports whether every skip_if_exists entry is present.
func checkSkipFiles(ctx context.Context, task *Task) (bool, error) {
	skipList, err := resolvePatterns(ctx, task.Base, task.SkipIfExists)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve skip_if_exists list")
	}

	found := 0
	for _, item := range skipList {
		_, err := os.Stat(item)
		if err == nil {
			found++
		} else if !eris.Is(err, os.ErrNotExist) {
			return false, eris.Wrapf(err, "failed to check %s", item)
		}
	}

	if found > 0 && found == len(skipList) {
		log(ctx).Info().
			Str("task", task.Name).
			Msg("skipped because all skip files exist")
		return true, nil
	}

	return false, nil
}

// checkStaleness reports whether the task's outputs are all newer than its
// newest input. Tasks without inputs never count as fresh.
func checkStaleness(ctx context.Context, task *Task) (bool, error) {
	inputList, err := resolvePatterns(ctx, task.Base, task.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	outputList, err := resolvePatterns(ctx, task.Base, task.Outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve outputs")
	}

	var newestInput time.Time
	for _, item := range inputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "failed to check input %s", item)
		}

		if info.ModTime().After(newestInput) {
			newestInput = info.ModTime()
		}
	}

	if newestInput.IsZero() {
		return false, nil
	}

	var newestOutput time.Time
	for _, item := range outputList {
		info, err := os.Stat(item)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				return false, nil
			}
			return false, eris.Wrapf(err, "failed to check output %s", item)
		}

		if info.ModTime().After(newestOutput) {
			newestOutput = info.ModTime()
		}
	}

	if newestOutput.After(newestInput) {
		log(ctx).Info().
			Str("task", task.Name).
			Msgf("nothing to do (output is %.0f seconds newer)", newestOutput.Sub(newestInput).Seconds())
		return true, nil
	}

	return false, nil
}
