package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/pkg/models"
)

// DispatcherConfig bounds tool execution.
type DispatcherConfig struct {
	// Concurrency caps how many tools run at once. Default 4.
	Concurrency int

	// PerToolTimeout bounds a single execution. Default 30s.
	PerToolTimeout time.Duration
}

// Dispatcher runs a batch of tool calls against a catalog. Results come
// back in the same order the model declared the calls.
type Dispatcher struct {
	byName  map[string]Tool
	tools   []Tool
	config  DispatcherConfig
	logger  *observability.Logger
	metrics *observability.Metrics
}

func NewDispatcher(catalog []Tool, config DispatcherConfig, logger *observability.Logger, metrics *observability.Metrics) *Dispatcher {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 30 * time.Second
	}
	byName := make(map[string]Tool, len(catalog))
	for _, tool := range catalog {
		byName[tool.Name()] = tool
	}
	return &Dispatcher{
		byName:  byName,
		tools:   catalog,
		config:  config,
		logger:  logger.WithFields("component", "tools"),
		metrics: metrics,
	}
}

// Tools returns the catalog in registration order.
func (d *Dispatcher) Tools() []Tool { return d.tools }

// ExecuteAll fans the calls out with bounded concurrency and fans results
// back in preserving index order. A failing tool produces an error result
// for its slot; it never fails the batch.
func (d *Dispatcher) ExecuteAll(ctx context.Context, calls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	sem := make(chan struct{}, d.config.Concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call models.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = models.ToolResult{
					ToolCallID: call.ID,
					Content:    Errorf(call.Name, "canceled before execution").JSON(),
					IsError:    true,
				}
				return
			}

			results[idx] = d.executeOne(ctx, call)
		}(i, call)
	}

	wg.Wait()
	return results
}

func (d *Dispatcher) executeOne(ctx context.Context, call models.ToolCall) models.ToolResult {
	start := time.Now()
	result := d.run(ctx, call)
	elapsed := time.Since(start)

	status := StatusSuccess
	if result.IsError {
		status = StatusError
	}
	if d.metrics != nil {
		d.metrics.RecordToolExecution(call.Name, status, elapsed.Seconds())
	}
	d.logger.Info(ctx, "tool executed",
		"tool", call.Name,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
	)

	return models.ToolResult{
		ToolCallID: call.ID,
		Content:    result.JSON(),
		IsError:    result.IsError,
		DurationMS: elapsed.Milliseconds(),
	}
}

// run resolves and executes a single call under the per-tool timeout,
// converting panics and timeouts into error results.
func (d *Dispatcher) run(ctx context.Context, call models.ToolCall) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(ctx, "tool panicked", "tool", call.Name, "panic", fmt.Sprint(r))
			result = Errorf(call.Name, fmt.Sprintf("tool %s panicked", call.Name))
		}
	}()

	tool, ok := d.byName[call.Name]
	if !ok {
		return Errorf(call.Name, fmt.Sprintf("unknown tool %q", call.Name))
	}

	toolCtx, cancel := context.WithTimeout(ctx, d.config.PerToolTimeout)
	defer cancel()

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	res, err := tool.Execute(toolCtx, args)
	if err != nil {
		if toolCtx.Err() == context.DeadlineExceeded {
			return Errorf(call.Name, fmt.Sprintf("tool timed out after %v", d.config.PerToolTimeout))
		}
		return Errorf(call.Name, err.Error())
	}
	if res == nil {
		return Errorf(call.Name, "tool returned no result")
	}
	return res
}
