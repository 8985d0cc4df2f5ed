package pipeline

import (
	"encoding/gob"
	"os"

	"github.com/rotisserie/eris"
)

func init() {
	gob.Register(TaskList{})
	gob.Register(Task{})
	gob.Register(ShellCommand{})
	gob.Register(TaskRefCommand{})
}

// cacheVersion is bumped whenever the cached types change shape, so a
// cache written by an older build is re-parsed instead of misread.
const cacheVersion = 1

// WriteCache stores the parsed task list together with the option values
// it was parsed with. A later invocation with the same options can skip
// parsing the script.
func WriteCache(file string, options map[string]string, list TaskList) error {
	handle, err := os.Create(file)
	if err != nil {
		return err
	}
	defer handle.Close()

	encoder := gob.NewEncoder(handle)
	if err := encoder.Encode(cacheVersion); err != nil {
		return err
	}

	if err := encoder.Encode(options); err != nil {
		return err
	}

	return encoder.Encode(list)
}

// ReadCache loads a task list written by WriteCache.
func ReadCache(file string) (map[string]string, TaskList, error) {
	handle, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	defer handle.Close()

	decoder := gob.NewDecoder(handle)

	var version int
	if err := decoder.Decode(&version); err != nil {
		return nil, nil, err
	}
	if version != cacheVersion {
		return nil, nil, eris.Errorf("cache version %d is not supported", version)
	}

	var options map[string]string
	if err := decoder.Decode(&options); err != nil {
		return nil, nil, err
	}

	var list TaskList
	if err := decoder.Decode(&list); err != nil {
		return options, nil, err
	}

	return options, list, nil
}
