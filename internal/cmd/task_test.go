package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gumo-py/gumo-logging/internal/pipeline"
)

func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return pipeline.WithLogger(context.Background(), &logger)
}

func TestDefaultPipeline(t *testing.T) {
	taskList, err := loadTasks(testContext(), "", t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to parse the default pipeline: %v", err)
	}

	for _, name := range []string{"setup", "build", "clean", "release", "test-release", "test-install", "test"} {
		if _, ok := taskList[name]; !ok {
			t.Errorf("default pipeline is missing the %s task", name)
		}
	}

	release := taskList["release"]
	if len(release.Deps) != 2 || release.Deps[0] != "clean" || release.Deps[1] != "build" {
		t.Errorf("release must clean and rebuild first: %v", release.Deps)
	}

	test := taskList["test"]
	if test.Env["GOOGLE_CLOUD_PROJECT"] != "gumo-logging-test" {
		t.Errorf("test task is missing its project env: %v", test.Env)
	}
	if len(test.Deps) != 1 || test.Deps[0] != "build" {
		t.Errorf("test must build first: %v", test.Deps)
	}
}

func TestDefaultPipelineRepositories(t *testing.T) {
	taskList, err := loadTasks(testContext(), "", t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to parse the default pipeline: %v", err)
	}

	install := taskList["test-install"].Cmds[0].(pipeline.ShellCommand)
	if install.Source != "gumo install --repository staging gumo-logging" {
		t.Errorf("test-install must target the staging index only: %q", install.Source)
	}

	staging := taskList["test-release"].Cmds[0].(pipeline.ShellCommand)
	if staging.Source != "gumo upload --repository staging dist/*" {
		t.Errorf("test-release must upload to staging: %q", staging.Source)
	}

	production := taskList["release"].Cmds[0].(pipeline.ShellCommand)
	if production.Source != "gumo upload --repository production dist/*" {
		t.Errorf("release must upload to production: %q", production.Source)
	}
}

func TestDefaultPipelineOptions(t *testing.T) {
	taskList, err := loadTasks(testContext(), "", t.TempDir(), map[string]string{
		"project":     "other-project",
		"compression": "xz",
	})
	if err != nil {
		t.Fatalf("failed to parse the default pipeline: %v", err)
	}

	if taskList["test"].Env["GOOGLE_CLOUD_PROJECT"] != "other-project" {
		t.Errorf("project option wasn't applied: %v", taskList["test"].Env)
	}

	build := taskList["build"].Cmds[0].(pipeline.ShellCommand)
	if build.Source != "gumo pack --compression xz" {
		t.Errorf("compression option wasn't applied: %q", build.Source)
	}
}

func TestFindScript(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0770); err != nil {
		t.Fatal(err)
	}

	scriptPath := filepath.Join(root, "tasks.star")
	if err := os.WriteFile(scriptPath, []byte("def configure():\n    pass\n"), 0660); err != nil {
		t.Fatal(err)
	}

	found, foundRoot, err := findScript(nested)
	if err != nil {
		t.Fatalf("findScript failed: %v", err)
	}
	if found != scriptPath || foundRoot != root {
		t.Errorf("found %s in %s, want %s in %s", found, foundRoot, scriptPath, root)
	}
}

func TestLoadTasksCache(t *testing.T) {
	root := t.TempDir()
	scriptPath := filepath.Join(root, "tasks.star")
	script := `
def configure():
    task("build", cmds=["echo build"])
`
	if err := os.WriteFile(scriptPath, []byte(script), 0660); err != nil {
		t.Fatal(err)
	}

	options := map[string]string{"compression": "gz"}
	first, err := loadTasks(testContext(), scriptPath, root, options)
	if err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	if _, ok := first["build"]; !ok {
		t.Fatal("build task is missing")
	}

	cachePath := filepath.Join(root, cacheName)
	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("cache wasn't written: %v", err)
	}

	// keep the cache newer than the script so it is used
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(scriptPath, old, old); err != nil {
		t.Fatal(err)
	}

	if cached := readTaskCache(cachePath, scriptPath, options); cached == nil {
		t.Error("valid cache wasn't used")
	}

	// different options invalidate the cache
	if cached := readTaskCache(cachePath, scriptPath, map[string]string{"compression": "xz"}); cached != nil {
		t.Error("cache was used despite changed options")
	}

	// a script newer than the cache invalidates it
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(scriptPath, future, future); err != nil {
		t.Fatal(err)
	}
	if cached := readTaskCache(cachePath, scriptPath, options); cached != nil {
		t.Error("cache was used despite a newer script")
	}
}

func TestOptionsEqual(t *testing.T) {
	cases := []struct {
		a, b map[string]string
		want bool
	}{
		{nil, nil, true},
		{nil, map[string]string{}, true},
		{map[string]string{"k": "v"}, map[string]string{"k": "v"}, true},
		{map[string]string{"k": "v"}, map[string]string{"k": "w"}, false},
		{map[string]string{"k": "v"}, map[string]string{}, false},
	}

	for _, tc := range cases {
		if got := optionsEqual(tc.a, tc.b); got != tc.want {
			t.Errorf("optionsEqual(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
