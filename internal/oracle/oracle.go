// Package oracle is the boundary to the language model that turns a free
// text instruction into a raw batch payload.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/ldi/taskline/embed/prompts"
)

// Interpreter converts an instruction into the loosely-typed batch payload
// consumed by command.Normalize. An empty map means no action was found.
type Interpreter interface {
	Interpret(ctx context.Context, instruction string) (map[string]any, error)
}

type Options struct {
	Command string
	Args    []string
	Model   string
	Timeout time.Duration
}

// CommandOracle runs an external CLI with the prompt on stdin and reads the
// batch from the first JSON object on stdout.
type CommandOracle struct {
	command    string
	args       []string
	timeout    time.Duration
	logger     *slog.Logger
	cmdFactory func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

func NewCommandOracle(opts Options, logger *slog.Logger) *CommandOracle {
	if logger == nil {
		logger = slog.Default()
	}
	command := opts.Command
	if command == "" {
		command = "opencode"
	}
	args := opts.Args
	if len(args) == 0 {
		args = []string{"run"}
		if opts.Model != "" {
			args = append(args, "--model", opts.Model)
		}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &CommandOracle{
		command:    command,
		args:       args,
		timeout:    timeout,
		logger:     logger,
		cmdFactory: exec.CommandContext,
	}
}

func (o *CommandOracle) Interpret(ctx context.Context, instruction string) (map[string]any, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return map[string]any{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := o.cmdFactory(ctx, o.command, o.args...)
	cmd.Stdin = strings.NewReader(constructPrompt(instruction))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", o.command, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", o.command, err)
	}
	o.logger.Debug("oracle responded", "command", o.command, "bytes", stdout.Len(), "elapsed", time.Since(start))

	raw, ok := ExtractObject(stdout.Bytes())
	if !ok {
		o.logger.Debug("oracle returned no JSON object")
		return map[string]any{}, nil
	}
	return raw, nil
}

func constructPrompt(instruction string) string {
	var sb strings.Builder
	sb.WriteString(prompts.Header)
	sb.WriteString("\n\n## Instruction\n")
	sb.WriteString(instruction)
	sb.WriteString("\n\n")
	sb.WriteString(prompts.Footer)
	return sb.String()
}

// ExtractObject returns the first well-formed JSON object in out. Models
// often wrap the payload in prose or code fences.
func ExtractObject(out []byte) (map[string]any, bool) {
	for i := bytes.IndexByte(out, '{'); i >= 0; {
		var raw map[string]any
		if err := json.NewDecoder(bytes.NewReader(out[i:])).Decode(&raw); err == nil {
			return raw, true
		}
		j := bytes.IndexByte(out[i+1:], '{')
		if j < 0 {
			break
		}
		i += j + 1
	}
	return nil, false
}
