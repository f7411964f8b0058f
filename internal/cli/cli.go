// Package cli implements the webar-studio command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	webarstudio "github.com/menta2k/webar-studio"
	"github.com/menta2k/webar-studio/internal/config"
	"github.com/menta2k/webar-studio/internal/logging"
	"github.com/menta2k/webar-studio/pkg/compiler"
	"github.com/menta2k/webar-studio/pkg/upload"
)

// Root holds the state shared by all commands
type Root struct {
	cfg     *config.Config
	cfgPath string
	log     *slog.Logger
	logOut  io.Writer
}

// load reads the configuration and sets up logging
func (r *Root) load(logLevel string) error {
	cfg, err := config.Load(r.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	r.cfg = cfg
	if r.logOut == nil {
		r.logOut = os.Stderr
	}
	r.log = logging.New(cfg.Logging.Level, cfg.Logging.Format, r.logOut)
	return nil
}

func (r *Root) configPath() string {
	if r.cfgPath != "" {
		return r.cfgPath
	}
	return config.GetConfigPath()
}

// newCompiler returns the configured strategy. A missing external library
// falls back to the native compiler with a warning.
func (r *Root) newCompiler(library string) compiler.Compiler {
	native := compiler.NewNativeWithConfig(r.cfg.NativeConfig())
	native.SetLogger(r.log)

	if library == "" {
		library = r.cfg.Compiler.Library
	}
	if library == "" {
		return native
	}
	lib, err := compiler.ProbeExec(library, r.cfg.Compiler.LibraryArgs...)
	if err != nil {
		r.log.Warn("compiler library unavailable, using native compiler", "library", library, "error", err)
		return native
	}
	r.log.Debug("compiler library detected", "library", lib.Name(), "path", lib.Path)
	return compiler.Select(lib, native)
}

func (r *Root) newOrchestrator(backendURL string) *upload.Orchestrator {
	cfg := *r.cfg
	if backendURL != "" {
		cfg.Upload.BackendURL = backendURL
		cfg.Upload.CredentialURL = ""
		cfg.Upload.FallbackURL = ""
	}
	o := upload.NewWithConfig(cfg.UploadConfig())
	o.SetLogger(r.log)
	return o
}

func (r *Root) newStudio(library, backendURL string) *webarstudio.Studio {
	var up webarstudio.Uploader
	if backendURL != "" || r.cfg.Upload.BackendURL != "" || r.cfg.Upload.CredentialURL != "" {
		up = r.newOrchestrator(backendURL)
	}
	s := webarstudio.NewWithConfig(r.newCompiler(library), up)
	s.SetLogger(r.log)
	return s
}

// progressPrinter writes coarse progress to w
func progressPrinter(w io.Writer, quiet bool) compiler.ProgressFunc {
	if quiet {
		return nil
	}
	last := -1
	return func(p float64) {
		step := int(p) / 25
		if step == last {
			return
		}
		last = step
		fmt.Fprintf(w, "compiling... %3.0f%%\n", p)
	}
}
