package compiler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// ExecLibrary drives an external target compiler binary. The tool is invoked
// as `<path> [args...] <input.png> <output.mind>` and may print lines of the
// form `progress <percent>` on stdout.
type ExecLibrary struct {
	Path string
	Args []string
	// WaitDelay bounds how long output pipes may stay open after the tool
	// exits or is killed (DefaultWaitDelay when zero)
	WaitDelay time.Duration
}

// DefaultWaitDelay is the WaitDelay used when none is set
const DefaultWaitDelay = 5 * time.Second

// maxOutputLine is the longest stdout line scanned for progress
const maxOutputLine = 1 << 20

// ProbeExec looks up the external compiler. An empty name or a binary that is
// not installed returns an error, in which case callers use the native path.
func ProbeExec(name string, args ...string) (*ExecLibrary, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("no external compiler configured")
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("external compiler %q not available: %w", name, err)
	}
	return &ExecLibrary{Path: path, Args: args}, nil
}

// Name implements Library
func (l *ExecLibrary) Name() string { return filepath.Base(l.Path) }

// Compile implements Library
func (l *ExecLibrary) Compile(ctx context.Context, img image.Image, progress ProgressFunc) (Compiled, error) {
	dir, err := os.MkdirTemp("", "webar-compile-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "target.png")
	output := filepath.Join(dir, "target.mind")
	if err := imaging.Save(img, input); err != nil {
		return nil, fmt.Errorf("write target image: %w", err)
	}

	args := append(append([]string{}, l.Args...), input, output)
	cmd := exec.CommandContext(ctx, l.Path, args...)
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("start %s: %w", l.Name(), err)
	}

	scanned := make(chan error, 1)
	go func() { scanned <- scanProgress(pr, progress) }()

	waitErr := cmd.Wait()
	pw.Close()
	scanErr := <-scanned

	// a zero exit whose pipes were held open by leftover children still counts
	if waitErr != nil && !errors.Is(waitErr, exec.ErrWaitDelay) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s failed: %w: %s", l.Name(), waitErr, strings.TrimSpace(stderr.String()))
	}
	if scanErr != nil {
		return nil, fmt.Errorf("read %s output: %w", l.Name(), scanErr)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("read compiled target: %w", err)
	}
	return compiledBytes(data), nil
}

// scanProgress reports progress lines from r and always consumes r to EOF so
// the tool never blocks on a full pipe
func scanProgress(r io.Reader, progress ProgressFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxOutputLine)
	for scanner.Scan() {
		if p, ok := parseProgress(scanner.Text()); ok && progress != nil {
			progress(p)
		}
	}
	err := scanner.Err()
	io.Copy(io.Discard, r)
	return err
}

type compiledBytes []byte

func (c compiledBytes) Export() ([]byte, error) { return c, nil }

// parseProgress accepts "progress 42.5", "progress: 42.5" and "progress=42.5%".
func parseProgress(line string) (float64, bool) {
	line = strings.TrimSpace(strings.ToLower(line))
	rest, ok := strings.CutPrefix(line, "progress")
	if !ok {
		return 0, false
	}
	rest = strings.TrimLeft(rest, " :=")
	rest = strings.TrimSuffix(rest, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
