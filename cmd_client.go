package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/billingcat/smartbill/client"

	"github.com/spf13/cobra"
)

// termView shows the page in a terminal. Navigation downloads the target into
// a local file.
type termView struct {
	ctx        context.Context
	out        io.Writer
	errOut     io.Writer
	file       *client.File
	extraction *client.Extraction
	dest       string
	navErr     error
}

func (v *termView) SelectedFile() *client.File { return v.file }

func (v *termView) Alert(msg string) { fmt.Fprintln(v.errOut, msg) }

func (v *termView) ShowExtraction(x *client.Extraction) {
	v.extraction = x
	tw := tabwriter.NewWriter(v.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Invoice No:\t%s\n", x.Fields.InvoiceNumber)
	fmt.Fprintf(tw, "Date:\t%s\n", x.Fields.Date)
	fmt.Fprintf(tw, "Amount:\t%s\n", x.Fields.Amount)
	fmt.Fprintf(tw, "Vendor:\t%s\n", x.Fields.Vendor)
	tw.Flush()
}

func (v *termView) ShowInvoices(t *client.InvoiceTable) {
	tw := tabwriter.NewWriter(v.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INVOICE NO\tDATE\tAMOUNT")
	for _, r := range t.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.InvoiceNumber, r.Date, r.Amount)
	}
	tw.Flush()
}

func (v *termView) Navigate(u string) {
	v.navErr = v.download(u)
}

func (v *termView) download(u string) error {
	req, err := http.NewRequestWithContext(v.ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}
	f, err := os.Create(v.dest)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(v.out, "saved %s\n", v.dest)
	return nil
}

// uploadOne extracts a single file and saves the result when asked to.
func uploadOne(ctx context.Context, c *client.Controller, v *termView, path string, save bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	v.file = &client.File{Name: filepath.Base(path), Content: f}
	v.extraction = nil
	fmt.Fprintf(v.out, "== %s\n", filepath.Base(path))
	if err = c.UploadFile(ctx); err != nil {
		return err
	}
	if save {
		return v.extraction.Save(ctx)
	}
	return nil
}

// clientFor builds a controller for the server given on the command line.
func clientFor(cmd *cobra.Command) (*client.Controller, *termView, error) {
	server, _ := cmd.Flags().GetString("server")
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	v := &termView{ctx: cmd.Context(), out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
	c, err := client.New(server, v, client.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return c, v, nil
}

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Use a running smartbill server from the terminal",
	}
	cmd.PersistentFlags().StringP("server", "s", "http://localhost:5000", "server base URL")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log requests")

	var save bool
	upload := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Extract invoice data from scans or PDFs",
		Long: "Extract invoice data from each file in turn. A file that fails is\n" +
			"reported and skipped; the command fails if any file failed.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, v, err := clientFor(cmd)
			if err != nil {
				return err
			}
			var errs []error
			for _, path := range args {
				if err := uploadOne(cmd.Context(), c, v, path, save); err != nil {
					fmt.Fprintf(v.errOut, "%s: %v\n", path, err)
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
				}
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d files failed: %w", len(errs), len(args), errors.Join(errs...))
			}
			return nil
		},
	}
	upload.Flags().BoolVar(&save, "save", false, "save each extracted invoice")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved invoices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := clientFor(cmd)
			if err != nil {
				return err
			}
			return c.Load(cmd.Context())
		},
	}

	del := &cobra.Command{
		Use:   "delete INVOICE_NUMBER",
		Short: "Delete all saved invoices with this number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := clientFor(cmd)
			if err != nil {
				return err
			}
			return c.DeleteInvoice(cmd.Context(), args[0])
		},
	}

	var dest string
	download := &cobra.Command{
		Use:   "download",
		Short: "Download all saved invoices as a spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, v, err := clientFor(cmd)
			if err != nil {
				return err
			}
			v.dest = dest
			c.DownloadExcel()
			return v.navErr
		},
	}
	download.Flags().StringVarP(&dest, "output", "o", "invoices.xlsx", "output file")

	cmd.AddCommand(upload, list, del, download)
	return cmd
}
