package progress

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"digestpipe/internal/pipeline"
)

// Watch renders events to the terminal until the channel closes or the
// viewer quits; it never affects the run itself, which proceeds
// regardless of whether anyone is watching.
func Watch(ctx context.Context, events <-chan pipeline.ProgressEvent) error {
	program := tea.NewProgram(newModel(events), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

// NewBuffer allocates the channel an orchestrator's OnProgress callback
// feeds and Watch drains. A non-blocking send from OnProgress (see
// cmd/digest) keeps a slow or absent renderer from stalling the pipeline.
func NewBuffer(size int) chan pipeline.ProgressEvent {
	return make(chan pipeline.ProgressEvent, size)
}
