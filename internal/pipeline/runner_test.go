package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func shellTask(name, base string, deps []string, cmds ...string) *Task {
	task := &Task{
		Name: name,
		Base: base,
		Deps: deps,
		Env:  map[string]string{},
		Cmds: make([]Command, 0, len(cmds)),
	}

	for idx, cmd := range cmds {
		task.Cmds = append(task.Cmds, ShellCommand{TaskName: name, Source: cmd, Index: idx})
	}
	return task
}

func readLog(t *testing.T, base string) []string {
	t.Helper()

	content, err := os.ReadFile(filepath.Join(base, "log"))
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	return strings.Fields(string(content))
}

func TestRunTaskDependencyOrder(t *testing.T) {
	base := t.TempDir()
	tasks := TaskList{
		"all":   shellTask("all", base, []string{"build", "test"}, "echo all >> log"),
		"build": shellTask("build", base, []string{"clean"}, "echo build >> log"),
		"test":  shellTask("test", base, []string{"build"}, "echo test >> log"),
		"clean": shellTask("clean", base, nil, "echo clean >> log"),
	}

	if err := RunTask(testContext(), base, "all", tasks, RunOptions{}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := readLog(t, base)
	want := []string{"clean", "build", "test", "all"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("tasks ran in order %v, want %v", got, want)
	}
}

func TestRunTaskFailFast(t *testing.T) {
	base := t.TempDir()
	tasks := TaskList{
		"broken": shellTask("broken", base, nil,
			"echo one >> log",
			"false",
			"echo two >> log",
		),
	}

	err := RunTask(testContext(), base, "broken", tasks, RunOptions{})
	if err == nil {
		t.Fatal("expected the failing command to abort the task")
	}

	got := readLog(t, base)
	if len(got) != 1 || got[0] != "one" {
		t.Errorf("commands after the failure still ran: %v", got)
	}
}

func TestRunTaskDependencyFailureAborts(t *testing.T) {
	base := t.TempDir()
	tasks := TaskList{
		"release": shellTask("release", base, []string{"build"}, "echo release >> log"),
		"build":   shellTask("build", base, nil, "false"),
	}

	err := RunTask(testContext(), base, "release", tasks, RunOptions{})
	if err == nil {
		t.Fatal("expected the dependency failure to propagate")
	}
	if !strings.Contains(err.Error(), "dependency build") {
		t.Errorf("error doesn't name the failing dependency: %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(base, "log")); statErr == nil {
		t.Error("the dependent task ran despite the failure")
	}
}

func TestRunTaskCycleDetection(t *testing.T) {
	base := t.TempDir()
	tasks := TaskList{
		"a": shellTask("a", base, []string{"b"}),
		"b": shellTask("b", base, []string{"a"}),
	}

	err := RunTask(testContext(), base, "a", tasks, RunOptions{})
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	if !strings.Contains(err.Error(), "dependency cycle") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunTaskNotFound(t *testing.T) {
	err := RunTask(testContext(), t.TempDir(), "nope", TaskList{}, RunOptions{})
	if err == nil || !strings.Contains(err.Error(), "task nope not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunTaskDryRun(t *testing.T) {
	base := t.TempDir()
	tasks := TaskList{
		"build": shellTask("build", base, nil, "echo build >> log"),
	}

	if err := RunTask(testContext(), base, "build", tasks, RunOptions{DryRun: true}); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(base, "log")); err == nil {
		t.Error("dry run executed the command")
	}
}

func TestRunTaskSkipIfExists(t *testing.T) {
	base := t.TempDir()
	marker := filepath.Join(base, "marker")
	if err := os.WriteFile(marker, []byte("x"), 0660); err != nil {
		t.Fatal(err)
	}

	task := shellTask("setup", base, nil, "echo setup >> log")
	task.SkipIfExists = []string{"marker"}
	tasks := TaskList{"setup": task}

	if err := RunTask(testContext(), base, "setup", tasks, RunOptions{}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "log")); err == nil {
		t.Error("task ran even though its skip file exists")
	}

	// force overrides the skip check
	if err := RunTask(testContext(), base, "setup", tasks, RunOptions{Force: true}); err != nil {
		t.Fatalf("forced run failed: %v", err)
	}
	if got := readLog(t, base); len(got) != 1 {
		t.Errorf("forced run didn't execute the command: %v", got)
	}
}

func TestRunTaskStaleness(t *testing.T) {
	base := t.TempDir()
	input := filepath.Join(base, "input")
	output := filepath.Join(base, "output")
	if err := os.WriteFile(input, []byte("in"), 0660); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(output, []byte("out"), 0660); err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(input, old, old); err != nil {
		t.Fatal(err)
	}

	task := shellTask("build", base, nil, "echo build >> log")
	task.Inputs = []string{"input"}
	task.Outputs = []string{"output"}
	tasks := TaskList{"build": task}

	if err := RunTask(testContext(), base, "build", tasks, RunOptions{}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "log")); err == nil {
		t.Error("fresh task ran anyway")
	}

	// an input newer than the output makes the task stale
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(input, future, future); err != nil {
		t.Fatal(err)
	}

	if err := RunTask(testContext(), base, "build", tasks, RunOptions{}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := readLog(t, base); len(got) != 1 {
		t.Errorf("stale task didn't run: %v", got)
	}
}

func TestRunTaskEnv(t *testing.T) {
	base := t.TempDir()
	task := shellTask("test", base, nil, "echo $GOOGLE_CLOUD_PROJECT >> log")
	task.Env["GOOGLE_CLOUD_PROJECT"] = "demo-project"
	tasks := TaskList{"test": task}

	if err := RunTask(testContext(), base, "test", tasks, RunOptions{}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := readLog(t, base)
	if len(got) != 1 || got[0] != "demo-project" {
		t.Errorf("task env wasn't exported: %v", got)
	}
}

func TestRunTaskSubtask(t *testing.T) {
	base := t.TempDir()
	helper := shellTask("helper", base, nil, "echo helper >> log")
	helper.Hidden = true

	main := shellTask("main", base, nil, "echo main >> log")
	main.Cmds = append([]Command{TaskRefCommand{Task: helper}}, main.Cmds...)
	tasks := TaskList{"main": main}

	if err := RunTask(testContext(), base, "main", tasks, RunOptions{}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := readLog(t, base)
	want := []string{"helper", "main"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("subtask order %v, want %v", got, want)
	}
}
