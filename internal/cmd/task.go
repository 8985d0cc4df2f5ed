package cmd

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gumo-py/gumo-logging/internal/pipeline"
)

//go:embed tasks.star
var defaultScript []byte

const cacheName = ".gumo-tasks.cache"

var taskCmd = &cobra.Command{
	Use:   "task [key=value...] [tasks...]",
	Short: "Run release pipeline tasks",
	Long: `Parses the first tasks.star file found between the working directory and
the filesystem root and runs the given tasks in order. Without a tasks.star
file the built-in default pipeline is used. Without task arguments the
available tasks are listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		taskArgs := make([]string, 0)
		options := make(map[string]string)

		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		for _, part := range args {
			if pos := strings.Index(part, "="); pos > -1 {
				options[part[:pos]] = part[pos+1:]
			} else {
				taskArgs = append(taskArgs, part)
			}
		}

		logger := zerolog.New(NewConsoleWriter())
		ctx := pipeline.WithLogger(cmd.Context(), &logger)

		wd, err := os.Getwd()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to retrieve the current working directory")
		}

		scriptPath, root, err := findScript(wd)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to look for tasks.star")
		}

		taskList, err := loadTasks(ctx, scriptPath, root, options)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to parse tasks")
		}

		if len(taskArgs) == 0 {
			listTasks(taskList)
			return nil
		}

		opts := pipeline.RunOptions{DryRun: dryRun, Force: force}
		for _, name := range taskArgs {
			if _, ok := taskList[name]; !ok {
				logger.Fatal().Msgf("Task %s not found", name)
			}

			if err := pipeline.RunTask(ctx, root, name, taskList, opts); err != nil {
				logger.Fatal().Err(err).Msgf("Failed task %s:", name)
			}
		}

		return nil
	},
}

func init() {
	taskCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	taskCmd.Flags().BoolP("force", "f", false, "always run the given tasks even if their skip checks pass")

	rootCmd.AddCommand(taskCmd)
}

// findScript walks from wd towards the filesystem root looking for a
// tasks.star file. An empty script path means the embedded default
// applies, rooted at wd.
func findScript(wd string) (string, string, error) {
	path := wd
	for {
		scriptPath := filepath.Join(path, "tasks.star")
		_, err := os.Stat(scriptPath)
		if err == nil {
			return scriptPath, path, nil
		}
		if !eris.Is(err, os.ErrNotExist) {
			return "", "", eris.Wrapf(err, "failed to check %s", scriptPath)
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", wd, nil
		}
		path = parent
	}
}

// loadTasks parses the pipeline script, going through the parse cache when
// the script and options haven't changed since the last run.
func loadTasks(ctx context.Context, scriptPath, root string, options map[string]string) (pipeline.TaskList, error) {
	if scriptPath == "" {
		taskList, _, err := pipeline.ParseScriptSource(ctx, "tasks.star", root, defaultScript, options, true)
		return taskList, err
	}

	cachePath := filepath.Join(root, cacheName)
	if cached := readTaskCache(cachePath, scriptPath, options); cached != nil {
		return cached, nil
	}

	taskList, _, err := pipeline.ParseScript(ctx, scriptPath, root, options, true)
	if err != nil {
		return nil, err
	}

	// a failed cache write only costs the next run a re-parse
	_ = pipeline.WriteCache(cachePath, options, taskList)
	return taskList, nil
}

func readTaskCache(cachePath, scriptPath string, options map[string]string) pipeline.TaskList {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return nil
	}

	scriptInfo, err := os.Stat(scriptPath)
	if err != nil || scriptInfo.ModTime().After(cacheInfo.ModTime()) {
		return nil
	}

	cachedOptions, taskList, err := pipeline.ReadCache(cachePath)
	if err != nil || !optionsEqual(cachedOptions, options) {
		return nil
	}

	return taskList
}

func optionsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func listTasks(taskList pipeline.TaskList) {
	fmt.Println("Available tasks:")

	maxNameLen := 0
	sortedNames := make([]string, 0, len(taskList))
	for _, task := range taskList {
		if len(task.Name) > maxNameLen {
			maxNameLen = len(task.Name)
		}
		sortedNames = append(sortedNames, task.Name)
	}

	sort.Strings(sortedNames)

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range sortedNames {
		fmt.Printf(lineFmt, name+":", taskList[name].Desc)
	}
}
