// Package pipeline implements the release task runner. Tasks are declared
// in a Starlark script (tasks.star) and their commands run inside an
// embedded POSIX shell (mvdan.cc/sh) so the pipeline behaves the same on
// every platform.
package pipeline
