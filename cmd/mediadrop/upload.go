package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"mediadrop/internal/widget"
)

type uploadOptions struct {
	endpoint  string
	htmlOut   string
	imageHost string
	imagePath string
}

func uploadCmd() *cobra.Command {
	opts := uploadOptions{}

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload files to a running mediadrop endpoint",
		Long: `Upload sends each file as its own request, the same way the drop page does.
Files the filter rejects are reported and skipped. One line is printed per file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			files, err := readFiles(args)
			if err != nil {
				return err
			}
			return runUpload(ctx, cmd.OutOrStdout(), widget.NewClient(opts.endpoint), files, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.endpoint, "endpoint", "http://localhost:8080/api/upload", "upload endpoint URL")
	f.StringVar(&opts.htmlOut, "html", "", "write the rendered results to this file")
	f.StringVar(&opts.imageHost, "image-host", "res.cloudinary.com", "host images may be displayed from")
	f.StringVar(&opts.imagePath, "image-path", "/**", "path prefix images may be displayed from")
	return cmd
}

func readFiles(paths []string) ([]widget.File, error) {
	files := make([]widget.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", p)
		}
		files = append(files, widget.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func runUpload(ctx context.Context, out io.Writer, u widget.Uploader, files []widget.File, opts uploadOptions) error {
	var mu sync.Mutex
	session := widget.NewSession(u, widget.OnSettle(func(st widget.FileState) {
		mu.Lock()
		defer mu.Unlock()
		if st.Status == widget.StatusSucceeded {
			fmt.Fprintf(out, "ok      %s  %s\n", st.Name, st.Result.URL)
			return
		}
		fmt.Fprintf(out, "failed  %s  %v\n", st.Name, st.Err)
	}))

	batch := session.Drop(ctx, files)
	mu.Lock()
	for _, r := range batch.Rejected {
		fmt.Fprintf(out, "skipped %s  %s\n", r.File.Name, r.Code)
	}
	mu.Unlock()
	batch.Wait()

	view := session.View()
	if opts.htmlOut != "" {
		if err := writeHTML(opts.htmlOut, opts, view); err != nil {
			return err
		}
	}

	if view.Error != "" {
		return errors.New(view.Error)
	}
	if len(batch.IDs) == 0 {
		return errors.New("no files accepted")
	}
	return nil
}

func writeHTML(path string, opts uploadOptions, v widget.View) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create html output")
	}
	defer f.Close()

	r := widget.Renderer{Images: widget.RemotePattern{
		Protocol: "https",
		Hostname: opts.imageHost,
		Pathname: opts.imagePath,
	}}
	if err := r.RenderDocument(f, "mediadrop uploads", v); err != nil {
		return errors.Wrap(err, "render html output")
	}
	return f.Close()
}
