package crew

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"resumecrew/internal/errors"
)

// Credentials are the API keys one kickoff runs with. They travel with the
// request and are never written to the process environment.
type Credentials struct {
	GeminiAPIKey string
	SerperAPIKey string
}

// Usage counts tokens spent by one executor call.
type Usage struct {
	PromptTokens     int32
	CompletionTokens int32
	TotalTokens      int32
}

func (u *Usage) add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// Request is everything an executor needs to complete one task.
type Request struct {
	Agent  Agent
	Task   Task
	Prompt string
	Tools  []Tool
}

// Response is the final answer of an agent for a task.
type Response struct {
	Output string
	Usage  Usage
}

// Executor runs a single task with a language model.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// TaskOutput is the result of one completed task.
type TaskOutput struct {
	Task     string
	Agent    string
	Output   string
	Usage    Usage
	Duration time.Duration
}

// Result collects every task output of a kickoff.
type Result struct {
	Tasks []TaskOutput
	// Files maps each task's output_file to its content with code fences removed.
	Files map[string]string
	Usage Usage
}

// Output returns the output of the named task.
func (r *Result) Output(task string) (string, bool) {
	for _, t := range r.Tasks {
		if t.Task == task {
			return t.Output, true
		}
	}
	return "", false
}

// Crew runs a definition against an executor with a bound toolset.
type Crew struct {
	def      *Definition
	executor Executor
	tools    Toolset
	logger   *errors.Logger

	// OnTaskComplete, when set, is called after each task. Async tasks call it
	// from their own goroutine.
	OnTaskComplete func(TaskOutput)
}

// New creates a crew. The definition must already be valid.
func New(def *Definition, executor Executor, tools Toolset, logger *errors.Logger) *Crew {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &Crew{def: def, executor: executor, tools: tools, logger: logger}
}

type future struct {
	done chan struct{}
	out  TaskOutput
	err  error
}

// Kickoff runs every task. Async tasks start as soon as they are reached and
// run concurrently; other tasks run in order on the calling goroutine. A task
// waits for the tasks named in its context before it starts.
func (c *Crew) Kickoff(ctx context.Context, inputs map[string]string) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	replacer := placeholderReplacer(inputs)

	// futures is read-only once goroutines start
	futures := make(map[string]*future, len(c.def.Tasks))
	for _, task := range c.def.Tasks {
		futures[task.Name] = &future{done: make(chan struct{})}
	}

	var syncErr error
	for _, task := range c.def.Tasks {
		f := futures[task.Name]

		run := func(runCtx context.Context) error {
			defer close(f.done)
			f.out, f.err = c.runTask(runCtx, task, replacer, futures)
			if f.err == nil && c.OnTaskComplete != nil {
				c.OnTaskComplete(f.out)
			}
			return f.err
		}

		if task.Async {
			g.Go(func() error { return run(gctx) })
			continue
		}
		if err := run(gctx); err != nil {
			syncErr = err
			cancel()
			break
		}
	}

	asyncErr := g.Wait()
	switch {
	case asyncErr != nil && (syncErr == nil || !stderrors.Is(asyncErr, context.Canceled)):
		// an async failure that caused the sync failure is the root cause
		return nil, asyncErr
	case syncErr != nil:
		return nil, syncErr
	}

	result := &Result{Files: make(map[string]string)}
	for _, task := range c.def.Tasks {
		out := futures[task.Name].out
		result.Tasks = append(result.Tasks, out)
		result.Usage.add(out.Usage)
		if task.OutputFile != "" {
			result.Files[task.OutputFile] = StripCodeFences(out.Output)
		}
	}
	return result, nil
}

func (c *Crew) runTask(ctx context.Context, task Task, replacer *strings.Replacer, futures map[string]*future) (TaskOutput, error) {
	agent, ok := c.def.Agent(task.Agent)
	if !ok {
		return TaskOutput{}, fmt.Errorf("task %s: unknown agent %s", task.Name, task.Agent)
	}
	tools, err := c.tools.Select(agent.Tools)
	if err != nil {
		return TaskOutput{}, fmt.Errorf("task %s: %w", task.Name, err)
	}

	contextOutputs := make([]string, 0, len(task.Context))
	for _, dep := range task.Context {
		f := futures[dep]
		select {
		case <-f.done:
		case <-ctx.Done():
			return TaskOutput{}, ctx.Err()
		}
		if f.err != nil {
			return TaskOutput{}, fmt.Errorf("task %s: context task %s failed", task.Name, dep)
		}
		contextOutputs = append(contextOutputs, f.out.Output)
	}

	task.Description = replacer.Replace(task.Description)
	task.ExpectedOutput = replacer.Replace(task.ExpectedOutput)

	c.logger.Info("Task started", "task", task.Name, "agent", agent.Name, "async", task.Async)
	start := time.Now()

	resp, err := c.executor.Execute(ctx, Request{
		Agent:  agent,
		Task:   task,
		Prompt: BuildPrompt(task, contextOutputs),
		Tools:  tools,
	})
	if err != nil {
		c.logger.LogError(err, "Task failed", "task", task.Name, "agent", agent.Name)
		return TaskOutput{}, fmt.Errorf("task %s: %w", task.Name, err)
	}

	out := TaskOutput{
		Task:     task.Name,
		Agent:    agent.Name,
		Output:   strings.TrimSpace(resp.Output),
		Usage:    resp.Usage,
		Duration: time.Since(start),
	}
	c.logger.Info("Task completed",
		"task", task.Name,
		"duration", out.Duration,
		"total_tokens", out.Usage.TotalTokens)
	return out, nil
}

// BuildPrompt renders the user prompt for a task with its context outputs.
func BuildPrompt(task Task, contextOutputs []string) string {
	var b strings.Builder
	b.WriteString(task.Description)
	if task.ExpectedOutput != "" {
		b.WriteString("\n\nThis is the expected criteria for your final answer: ")
		b.WriteString(task.ExpectedOutput)
		b.WriteString("\nYou MUST return the actual complete content as the final answer, not a summary.")
	}
	if len(contextOutputs) > 0 {
		b.WriteString("\n\nThis is the context you're working with:\n")
		b.WriteString(strings.Join(contextOutputs, "\n\n----------\n\n"))
	}
	return b.String()
}

// placeholderReplacer substitutes {key} with inputs[key]. Unknown
// placeholders are left as written.
func placeholderReplacer(inputs map[string]string) *strings.Replacer {
	pairs := make([]string, 0, len(inputs)*2)
	for k, v := range inputs {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...)
}

// StripCodeFences removes a single markdown fence wrapping the whole text,
// which models often add around file content.
func StripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return s
	}
	body := strings.TrimSuffix(trimmed, "```")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return s
	}
	return strings.TrimSpace(body[nl+1:]) + "\n"
}

// Store holds the active definition and can swap it atomically.
type Store struct {
	mu  sync.RWMutex
	def *Definition
}

// NewStore returns a store seeded with def.
func NewStore(def *Definition) *Store {
	return &Store{def: def}
}

// Current returns the active definition.
func (s *Store) Current() *Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.def
}

func (s *Store) set(def *Definition) {
	s.mu.Lock()
	s.def = def
	s.mu.Unlock()
}
