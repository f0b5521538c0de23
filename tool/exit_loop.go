package tool

// exitLoopTool escalates out of the enclosing loop composition.
type exitLoopTool struct{}

// NewExitLoopTool constructs the exit-loop tool instance.
func NewExitLoopTool() Tool { return &exitLoopTool{} }

func (t *exitLoopTool) Name() string { return "exit_loop" }

func (t *exitLoopTool) Description() string {
	return "Exit the current iteration loop. Use when the loop's goal has been reached."
}

func (t *exitLoopTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *exitLoopTool) Call(tc *Context, args map[string]any) (any, error) {
	tc.Escalate()
	return map[string]any{"exited": true}, nil
}
