package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/swimprogress/internal/config"
	"github.com/ivlev/swimprogress/internal/director"
	"github.com/ivlev/swimprogress/internal/engine"
	"github.com/ivlev/swimprogress/internal/logging"
	"github.com/ivlev/swimprogress/internal/preview"
	"github.com/ivlev/swimprogress/internal/renderer"
	"github.com/ivlev/swimprogress/internal/server"
	"github.com/ivlev/swimprogress/internal/share"
	"github.com/ivlev/swimprogress/internal/system"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "[-]", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "swimprogress",
		Short:         "Render swim challenge progress medals as GIF or video",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			logging.Setup(cfg.Log)
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level: trace|debug|info|warn|error")

	root.AddCommand(newPreviewCmd(opts))
	root.AddCommand(newExportCmd(opts, system.KindGIF))
	root.AddCommand(newExportCmd(opts, system.KindVideo))
	root.AddCommand(newShareCmd(opts))
	root.AddCommand(newTrackCmd(opts))
	root.AddCommand(newServeCmd(opts))
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func renderOptions(cfg *config.Config) renderer.Options {
	return renderer.Options{
		Goal:  cfg.Goal,
		Unit:  cfg.Unit,
		Inset: cfg.TextInset,
		Face:  renderer.FaceOrDefault(cfg.FontPath, cfg.FontSize),
	}
}

func newPreviewCmd(opts *options) *cobra.Command {
	var value int
	var pngPath string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the preview state for a value, optionally as a PNG",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			ro := renderOptions(cfg)
			sess, err := engine.NewSession(cmd.Context(), cfg, ro)
			if err != nil {
				return err
			}

			state := preview.Update(sess.Track, value, cfg.Goal, cfg.Unit)
			out, err := yaml.Marshal(state)
			if err != nil {
				return err
			}
			_, _ = cmd.OutOrStdout().Write(out)

			if pngPath == "" {
				return nil
			}
			data, err := preview.Snapshot(sess.Track, sess.Background, sess.Subject, state.Value, ro)
			if err != nil {
				return err
			}
			if err := os.WriteFile(pngPath, data, 0644); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[+] Preview image: %s\n", pngPath)
			return nil
		},
	}
	cmd.Flags().IntVar(&value, "value", 0, "completed units")
	cmd.Flags().StringVar(&pngPath, "png", "", "also write a PNG snapshot to this path")
	return cmd
}

func newExportCmd(opts *options, kind system.Kind) *cobra.Command {
	var value int
	var outDir string
	var doShare bool

	cmd := &cobra.Command{
		Use:   string(kind),
		Short: fmt.Sprintf("Export the progress animation as %s", kind),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			ctx, cancel := signalContext()
			defer cancel()

			exporter := engine.NewExporter(cfg, system.NewNegotiator(system.NewLocator(cfg.FFmpeg), cfg.GIFBackend))

			bar := progressbar.NewOptions(100,
				progressbar.OptionSetDescription(fmt.Sprintf("[*] Rendering %s", kind)),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "█",
					SaucerHead:    "█",
					SaucerPadding: "░",
					BarStart:      "▐",
					BarEnd:        "▌",
				}),
				progressbar.OptionSetWidth(50),
				progressbar.OptionSetRenderBlankState(true),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			)

			artifact, err := exporter.Export(ctx, kind, value, func(p int) {
				_ = bar.Set(p)
			})
			_ = bar.Finish()
			_, _ = fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("%s", engine.UserMessage(err))
			}

			if outDir == "" {
				outDir = cfg.OutputDir
			}
			path, err := artifact.Save(outDir)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[+++] %s (%s, %d bytes)\n", path, artifact.MIMEType, len(artifact.Data))

			if doShare {
				return shareArtifact(ctx, cmd, cfg, artifact, "", "")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&value, "value", 0, "completed units")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default from config)")
	cmd.Flags().BoolVar(&doShare, "share", false, "share the artifact after export")
	return cmd
}

func newShareCmd(opts *options) *cobra.Command {
	var file, text, qrPath string

	cmd := &cobra.Command{
		Use:   "share",
		Short: "Share an exported artifact on X, or print the web intent link",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			format, ok := system.FormatForExt(filepath.Ext(file))
			if !ok {
				return fmt.Errorf("%s: not a gif, webm or mp4 artifact", file)
			}
			artifact := &engine.Artifact{
				Data:     data,
				Filename: filepath.Base(file),
				MIMEType: format.MIME,
				Path:     file,
			}

			ctx, cancel := signalContext()
			defer cancel()
			return shareArtifact(ctx, cmd, opts.cfg, artifact, text, qrPath)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "artifact to share")
	cmd.Flags().StringVar(&text, "text", "", "post text (default derived from the artifact)")
	cmd.Flags().StringVar(&qrPath, "qr", "", "write a QR code PNG of the share link")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func shareArtifact(ctx context.Context, cmd *cobra.Command, cfg *config.Config, artifact *engine.Artifact, text, qrPath string) error {
	switch {
	case text != "":
	case artifact.Goal > 0:
		text = share.DefaultText(artifact.Value, artifact.Goal, cfg.Unit)
	default:
		text = "My swim challenge progress!"
	}

	res, err := share.NewService(cfg.Share).Share(ctx, artifact, text)
	if err != nil {
		return err
	}
	if res.NativeErr != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "[!] %v; the file is still at %s\n", res.NativeErr, artifact.Path)
	}

	switch res.Method {
	case "native":
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[+] Posted: %s\n", res.URL)
	default:
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[>] Open to share: %s\n", res.URL)
	}

	if qrPath != "" {
		png, err := share.QRCode(res.URL, 256)
		if err != nil {
			return err
		}
		if err := os.WriteFile(qrPath, png, 0644); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[+] QR code: %s\n", qrPath)
	}
	return nil
}

func newTrackCmd(opts *options) *cobra.Command {
	var out string
	var width, height, segments int
	var radius, dx, dy float64

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Generate a circular track file for new medal artwork",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := director.NewDirector(width, height)
			if radius > 0 {
				d.Radius = radius
			}
			d.Segments = segments

			track, err := d.GenerateTrack(director.Offset{DX: dx, DY: dy})
			if err != nil {
				return err
			}

			if out == "" {
				out = director.GenerateTrackPath(opts.cfg.OutputDir)
			}
			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				return err
			}
			if err := director.WriteTrack(track, out); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[+++] Track saved: %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output YAML path (default: timestamped file in the output dir)")
	cmd.Flags().IntVar(&width, "width", 600, "artwork width in pixels")
	cmd.Flags().IntVar(&height, "height", 600, "artwork height in pixels")
	cmd.Flags().IntVar(&segments, "segments", 8, "number of straight segments")
	cmd.Flags().Float64Var(&radius, "radius", 0, "track radius (default 0.38 of the shorter side)")
	cmd.Flags().Float64Var(&dx, "dx", 30, "subject center offset x")
	cmd.Flags().Float64Var(&dy, "dy", 20, "subject center offset y")
	return cmd
}

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve preview and export over HTTP",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := opts.cfg
			ctx, cancel := signalContext()
			defer cancel()

			ro := renderOptions(cfg)
			sess, err := engine.NewSession(ctx, cfg, ro)
			if err != nil {
				return err
			}

			exporter := engine.NewExporter(cfg, system.NewNegotiator(system.NewLocator(cfg.FFmpeg), cfg.GIFBackend))

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			srv := server.NewServer(addr, cfg, exporter, server.Assets{
				Track:      sess.Track,
				Background: sess.Background,
				Subject:    sess.Subject,
				Options:    ro,
			}, reg)

			logrus.WithField("version", version).Info("[*] swimprogress server starting")
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
