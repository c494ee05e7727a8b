package sandbox

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mrz1836/forge/internal/constants"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// serverCommandPatterns match commands that start a long-running server and
// must be detached instead of awaited.
var serverCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^npm\s+(start|run\s+(dev|start|serve))\b`),
	regexp.MustCompile(`^(yarn|pnpm)\s+(start|dev|serve)\b`),
	regexp.MustCompile(`^node\s+[^-\s]\S*\s*$`),
	regexp.MustCompile(`^nodemon\b`),
	regexp.MustCompile(`^python3?\s+(app|main|server)\.py\b`),
	regexp.MustCompile(`^python3?\s+manage\.py\s+runserver\b`),
	regexp.MustCompile(`^python3?\s+-m\s+(http\.server|flask\s+run|uvicorn)\b`),
	regexp.MustCompile(`^flask\s+run\b`),
	regexp.MustCompile(`^uvicorn\b`),
	regexp.MustCompile(`^gunicorn\b`),
	regexp.MustCompile(`^go\s+run\b`),
	regexp.MustCompile(`^(bundle\s+exec\s+)?rails\s+(s|server)\b`),
}

// IsServerCommand reports whether command launches a long-running server.
func IsServerCommand(command string) bool {
	c := strings.TrimSpace(command)
	if i := strings.LastIndex(c, "&&"); i >= 0 {
		c = strings.TrimSpace(c[i+2:])
	}
	for _, re := range serverCommandPatterns {
		if re.MatchString(c) {
			return true
		}
	}
	return false
}

// launchScript starts command in the background from workdir, sending its
// output to the server log and recording its pid.
func launchScript(workdir, command string) string {
	return fmt.Sprintf(
		"cd %s && mkdir -p %s && { nohup sh -c %s > %s 2>&1 < /dev/null & echo $! > %s; }",
		ShellQuote(workdir),
		ShellQuote(constants.SandboxMetaDir),
		ShellQuote(command),
		ShellQuote(constants.ServerLogPath),
		ShellQuote(constants.ServerPIDPath),
	)
}

// stopScript kills the recorded server process and its children, then removes
// the pid file. It succeeds when no server is recorded.
func stopScript(workdir string) string {
	pidFile := ShellQuote(workdir + "/" + constants.ServerPIDPath)
	return fmt.Sprintf(
		`if [ -f %[1]s ]; then pid=$(cat %[1]s); pkill -P "$pid" 2>/dev/null; kill "$pid" 2>/dev/null; `+
			`if kill -0 "$pid" 2>/dev/null; then sleep %[2]d; kill -9 "$pid" 2>/dev/null; fi; rm -f %[1]s; fi; true`,
		pidFile, int(constants.ServerStopGrace.Seconds()),
	)
}

// fileReader is the subset of Manager used for start command detection.
type fileReader interface {
	ReadFile(ctx context.Context, name, path string) ([]byte, error)
}

// DetectStartCommand picks the first start candidate of prof whose file exists
// in the sandbox.
func DetectStartCommand(ctx context.Context, fr fileReader, name string, prof Profile) (string, error) {
	for _, c := range prof.Start {
		data, err := fr.ReadFile(ctx, name, c.File)
		if err != nil {
			continue
		}
		if c.Script != "" && !hasNPMScript(data, c.Script) {
			continue
		}
		return prof.StartCommand(c), nil
	}
	return "", forgeerrors.ErrServerStartCommand
}

func hasNPMScript(packageJSON []byte, script string) bool {
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(packageJSON, &pkg); err != nil {
		return false
	}
	return strings.TrimSpace(pkg.Scripts[script]) != ""
}
