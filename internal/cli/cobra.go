package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	webarstudio "github.com/menta2k/webar-studio"
	"github.com/menta2k/webar-studio/internal/config"
	"github.com/menta2k/webar-studio/internal/server"
	"github.com/menta2k/webar-studio/internal/storage"
	"github.com/menta2k/webar-studio/internal/utils"
	"github.com/menta2k/webar-studio/internal/watch"
	"github.com/menta2k/webar-studio/pkg/upload"
)

// NewRootCmd creates the root Cobra command. Logs go to logOut (stderr when
// nil).
func NewRootCmd(logOut io.Writer) *cobra.Command {
	root := &Root{logOut: logOut}
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "webar-studio",
		Short: "Compile WebAR image targets and publish them to storage",
		Long: `webar-studio turns target images into tracking artifacts (.mind files)
and uploads images and artifacts through presigned credentials with retry and
server fallback. It also ships a development backend and a directory watcher.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return root.load(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&root.cfgPath, "config", "", "config file (default ~/.config/webar-studio/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(newCompileCmd(root))
	rootCmd.AddCommand(newUploadCmd(root))
	rootCmd.AddCommand(newPublishCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newCompileCmd(root *Root) *cobra.Command {
	var (
		output  string
		outDir  string
		library string
		quiet   bool
	)

	cmd := &cobra.Command{
		Use:   "compile <image>",
		Short: "Compile a target image into a tracking artifact",
		Long: `Compile a JPEG, PNG, GIF or WebP target into an artifact written next to the
input (or into --out-dir). With --library, an external tracking compiler is
used when found on PATH, falling back to the native compiler.

Examples:
  webar-studio compile poster.png
  webar-studio compile poster.png --out-dir ./artifacts --library mind-compiler`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			studio := root.newStudio(library, "")

			res, err := studio.CompileFile(cmd.Context(), input, progressPrinter(cmd.ErrOrStderr(), quiet))
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				if outDir != "" {
					if err := utils.EnsureDir(outDir); err != nil {
						return err
					}
				}
				path = utils.ArtifactPath(input, outDir, res.Artifact.Format)
			}
			if err := os.WriteFile(path, res.Artifact.Data, 0644); err != nil {
				return fmt.Errorf("write artifact: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "artifact: %s (%s)\n", path, utils.FormatFileSize(int64(len(res.Artifact.Data))))
			fmt.Fprintf(out, "strategy: %s\n", res.Strategy)
			if n := res.PointCount(); n >= 0 {
				fmt.Fprintf(out, "points:   %d\n", n)
			}
			if res.LowTexture {
				fmt.Fprintln(out, "warning:  low texture target, tracking will be unreliable")
			}
			if res.Artifact.Placeholder {
				fmt.Fprintln(out, "warning:  placeholder artifact, contains no tracking data")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "artifact path (overrides --out-dir)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory for the artifact (default: next to the input)")
	cmd.Flags().StringVar(&library, "library", "", "external compiler executable")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func newUploadCmd(root *Root) *cobra.Command {
	var (
		backend     string
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file and print its public URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			url, err := root.newOrchestrator(backend).Upload(cmd.Context(), upload.File{
				Name:        filepath.Base(args[0]),
				ContentType: contentType,
				Data:        data,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "backend base URL (default from config)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (default: detected)")
	return cmd
}

func newPublishCmd(root *Root) *cobra.Command {
	var (
		backend string
		library string
		quiet   bool
	)

	cmd := &cobra.Command{
		Use:   "publish <image>",
		Short: "Upload a target image, compile it and upload the artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			pub, err := root.newStudio(library, backend).Publish(cmd.Context(),
				upload.File{Name: filepath.Base(args[0]), Data: data},
				progressPrinter(cmd.ErrOrStderr(), quiet))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pub)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "backend base URL (default from config)")
	cmd.Flags().StringVar(&library, "library", "", "external compiler executable")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr    string
		dataDir string
		library string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the development backend",
		Long: `Start an HTTP server that issues upload credentials, stores objects on disk,
accepts fallback uploads and compiles project targets.

Examples:
  webar-studio serve --addr :8080
  webar-studio serve --addr :9000 --data-dir /var/lib/webar`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				root.cfg.Server.Addr = addr
			}
			if dataDir != "" {
				root.cfg.Server.DataDir = dataDir
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return root.serve(ctx, library)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory for the database and objects")
	cmd.Flags().StringVar(&library, "library", "", "external compiler executable")
	return cmd
}

func (r *Root) serve(ctx context.Context, library string) error {
	if err := utils.EnsureDir(r.cfg.Server.DataDir); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := storage.New(filepath.Join(r.cfg.Server.DataDir, "webar.db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	objects, err := storage.NewObjectStore(filepath.Join(r.cfg.Server.DataDir, "objects"))
	if err != nil {
		return err
	}

	srv := server.New(store, objects, server.Options{
		Addr:          r.cfg.Server.Addr,
		PublicURL:     r.cfg.ServerPublicURL(),
		CredentialTTL: r.cfg.Server.CredentialTTL.Std(),
		MaxUploadSize: r.cfg.Server.MaxUploadSize,
		Compiler:      r.newCompiler(library),
		Logger:        r.log,
	})
	return srv.Start(ctx)
}

func newWatchCmd(root *Root) *cobra.Command {
	var (
		outDir   string
		library  string
		existing bool
	)

	cmd := &cobra.Command{
		Use:   "watch <dir> [dir...]",
		Short: "Compile target images as they are dropped into directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := watch.New(root.newCompiler(library), args, watch.Options{
				OutputDir:       outDir,
				CompileExisting: existing,
				Logger:          root.log,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			out := cmd.OutOrStdout()
			for ev := range w.Events() {
				if ev.Err != nil {
					fmt.Fprintf(out, "%s: error: %v\n", ev.Path, ev.Err)
					continue
				}
				fmt.Fprintf(out, "%s -> %s (%s, %d points)\n", ev.Path, ev.Artifact, ev.Strategy, ev.Points)
			}
			return <-done
		},
	}

	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory for artifacts (default: next to each image)")
	cmd.Flags().StringVar(&library, "library", "", "external compiler executable")
	cmd.Flags().BoolVar(&existing, "existing", false, "compile images that have no artifact yet at startup")
	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := root.configPath()
			if len(args) == 1 {
				path = args[0]
			}
			if utils.FileExists(path) && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Default().SaveToFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# config file: %s\n", root.configPath())
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(root.cfg)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("webar-studio v%s\n", webarstudio.Version)
			cmd.Printf("Built with Go %s\n", runtime.Version())
		},
	}
}
