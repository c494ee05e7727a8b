package llm

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/constants"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// providerInfo describes how to drive one provider CLI.
type providerInfo struct {
	Binary      string
	InstallHint string
	EnvVar      string

	// SystemFlag passes the system prompt as a flag; empty means it is prepended to the prompt.
	SystemFlag string

	// PromptAsArg passes the prompt as the final positional argument instead of stdin.
	PromptAsArg bool

	Args func(model string) []string
}

//nolint:gochecknoglobals // Constant-like provider table
var providers = map[string]providerInfo{
	"claude": {
		Binary:      "claude",
		InstallHint: "install the claude CLI and run 'claude login'",
		EnvVar:      "ANTHROPIC_API_KEY",
		SystemFlag:  "--append-system-prompt",
		Args: func(model string) []string {
			args := []string{"-p", "--output-format", "json"}
			if model != "" {
				args = append(args, "--model", model)
			}
			return args
		},
	},
	"gemini": {
		Binary:      "gemini",
		InstallHint: "install the gemini CLI",
		EnvVar:      "GEMINI_API_KEY",
		PromptAsArg: true,
		Args: func(model string) []string {
			args := []string{"--output-format", "json"}
			if model != "" {
				args = append(args, "-m", model)
			}
			return args
		},
	},
	"codex": {
		Binary:      "codex",
		InstallHint: "install the codex CLI",
		EnvVar:      "OPENAI_API_KEY",
		Args: func(model string) []string {
			args := []string{"exec", "--json"}
			if model != "" {
				args = append(args, "-m", model)
			}
			return args
		},
	},
}

// cliResponse covers the JSON envelopes printed by the supported CLIs.
type cliResponse struct {
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

func (r cliResponse) text() string {
	if r.Result != "" {
		return r.Result
	}
	return r.Content
}

// CLIClient implements Client by invoking a provider CLI per request, with a
// timeout and exponential-backoff retry for transient failures.
type CLIClient struct {
	cfg      *config.ModelConfig
	provider providerInfo
	executor CommandExecutor
	logger   zerolog.Logger
}

// Option configures a CLIClient.
type Option func(*CLIClient)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *CLIClient) {
		c.logger = logger
	}
}

// WithExecutor replaces the subprocess executor.
func WithExecutor(executor CommandExecutor) Option {
	return func(c *CLIClient) {
		if executor != nil {
			c.executor = executor
		}
	}
}

// NewCLIClient creates a CLIClient for cfg.Provider.
func NewCLIClient(cfg *config.ModelConfig, opts ...Option) (*CLIClient, error) {
	p, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", forgeerrors.ErrUnknownProvider, cfg.Provider)
	}
	if cfg.Binary != "" {
		p.Binary = cfg.Binary
	}
	c := &CLIClient{
		cfg:      cfg,
		provider: p,
		executor: &DefaultExecutor{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete implements Client.
func (c *CLIClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultModelTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	text, err := c.runWithRetry(runCtx, req)
	if err != nil {
		return "", err
	}

	c.logger.Debug().
		Str("node", req.Node).
		Bool("json", req.JSON).
		Int("response_bytes", len(text)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("model call completed")
	return text, nil
}

func (c *CLIClient) execute(ctx context.Context, req Request) (string, error) {
	cmd := c.buildCommand(ctx, req)

	stdout, stderr, err := c.executor.Execute(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &ModelError{Node: req.Node, Kind: KindInvocation, Attempts: 1, Err: c.wrapExecError(err, stderr)}
	}

	text, parseErr := parseCLIOutput(stdout)
	if parseErr != nil {
		return "", &ModelError{Node: req.Node, Kind: KindInvocation, Attempts: 1, Err: parseErr}
	}
	if strings.TrimSpace(text) == "" {
		return "", &ModelError{Node: req.Node, Kind: KindEmpty, Attempts: 1, Err: forgeerrors.ErrModelEmpty}
	}
	return text, nil
}

func (c *CLIClient) buildCommand(ctx context.Context, req Request) *exec.Cmd {
	prompt := RenderPrompt(req)
	args := c.provider.Args(c.cfg.Model)

	if req.System != "" {
		if c.provider.SystemFlag != "" {
			args = append(args, c.provider.SystemFlag, req.System)
		} else {
			prompt = req.System + "\n\n" + prompt
		}
	}

	if c.provider.PromptAsArg {
		args = append(args, prompt)
	}

	cmd := exec.CommandContext(ctx, c.provider.Binary, args...) //#nosec G204 -- binary comes from the provider table or explicit config
	if !c.provider.PromptAsArg {
		cmd.Stdin = strings.NewReader(prompt)
	}
	return cmd
}

// parseCLIOutput extracts the reply text. Providers that stream JSON lines are
// handled by reading the last parseable line; plain text output is accepted as is.
func parseCLIOutput(stdout []byte) (string, error) {
	trimmed := strings.TrimSpace(string(stdout))
	if trimmed == "" {
		return "", nil
	}

	var resp cliResponse
	if err := json.Unmarshal([]byte(trimmed), &resp); err == nil {
		return responseText(resp)
	}

	lines := strings.Split(trimmed, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if err := json.Unmarshal([]byte(line), &resp); err == nil && (resp.text() != "" || resp.IsError) {
			return responseText(resp)
		}
	}

	return trimmed, nil
}

func responseText(resp cliResponse) (string, error) {
	if resp.IsError {
		msg := resp.Error
		if msg == "" {
			msg = resp.text()
		}
		return "", fmt.Errorf("%w: provider reported error: %s", forgeerrors.ErrModelInvocation, msg)
	}
	return resp.text(), nil
}

func (c *CLIClient) wrapExecError(err error, stderr []byte) error {
	stderrStr := strings.TrimSpace(string(stderr))
	p := c.provider

	if strings.Contains(stderrStr, "command not found") || strings.Contains(err.Error(), "executable file not found") {
		return fmt.Errorf("%w: %s CLI not found - %s", forgeerrors.ErrModelInvocation, p.Binary, p.InstallHint)
	}
	lower := strings.ToLower(stderrStr)
	if strings.Contains(lower, "api key") || strings.Contains(lower, "authentication") || strings.Contains(stderrStr, p.EnvVar) {
		return fmt.Errorf("%w: authentication error: %s", forgeerrors.ErrModelInvocation, stderrStr)
	}
	if stderrStr != "" {
		return fmt.Errorf("%w: %s", forgeerrors.ErrModelInvocation, stderrStr)
	}
	return fmt.Errorf("%w: %s", forgeerrors.ErrModelInvocation, err.Error())
}

var _ Client = (*CLIClient)(nil)
