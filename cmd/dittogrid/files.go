package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/gridfs"
	"github.com/marmos91/dittogrid/pkg/gridstream"
	"github.com/spf13/cobra"
)

func newPutCommand(c *cli) *cobra.Command {
	var (
		mode        string
		contentType string
		chunkSize   int
	)

	cmd := &cobra.Command{
		Use:   "put <file> [name]",
		Short: "Upload a local file (- reads stdin)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			parsed, err := chunkstore.ParseMode(mode)
			if err != nil {
				return err
			}

			src := cmd.InOrStdin()
			name := "stdin"
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				src, name = f, filepath.Base(args[0])
			}
			if len(args) == 2 {
				name = args[1]
			}

			db, err := c.openDatabase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if contentType == "" {
				contentType = c.cfg.Grid.ContentType
			}
			if chunkSize == 0 {
				chunkSize = c.cfg.Grid.ChunkSize
			}

			s, err := gridstream.NewWriteStream(db, name, gridstream.WriteOptions{
				Mode:        parsed,
				Root:        c.rootCollection(),
				ChunkSize:   chunkSize,
				ContentType: contentType,
			})
			if err != nil {
				return err
			}
			if err := s.Open(ctx); err != nil {
				return err
			}
			if _, err := s.ReadFrom(src); err != nil {
				if serr := s.Err(); serr != nil {
					return serr
				}
				s.Abort(err)
				_ = s.Wait(ctx)
				return err
			}
			if err := s.Close(); err != nil {
				return err
			}

			info := s.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: %d bytes in %d chunks, md5 %s\n",
				info.Root, info.Name, info.Length, info.NumChunks(), info.MD5)
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "w", "w overwrites, w+ appends")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (default: grid.content_type)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "chunk size of a new file (default: grid.chunk_size)")
	return cmd
}

// download streams name to w through a read stream.
func (c *cli) download(cmd *cobra.Command, name string, w io.Writer, opts gridstream.ReadOptions) error {
	ctx := cmd.Context()

	db, err := c.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	opts.Root = c.rootCollection()
	s, err := gridstream.NewReadStream(db, name, opts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Destroy() }()

	_, err = s.Pipe(ctx, w)
	return err
}

func newGetCommand(c *cli) *cobra.Command {
	var offset, length int64

	cmd := &cobra.Command{
		Use:   "get <name> [out]",
		Short: "Download a file to a local path (default: stdout)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Create(args[1])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				w = f
			}

			return c.download(cmd, args[0], w, gridstream.ReadOptions{
				Offset: offset,
				Length: length,
			})
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "first byte to read")
	cmd.Flags().Int64Var(&length, "length", 0, "bytes to read (0: to end of file)")
	return cmd
}

func newCatCommand(c *cli) *cobra.Command {
	var encoding string

	cmd := &cobra.Command{
		Use:   "cat <name>",
		Short: "Print a file, optionally decoded as utf8, ascii or base64",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if encoding == "" {
				if err := c.load(); err != nil {
					return err
				}
				encoding = c.cfg.Grid.Encoding
			}

			enc, err := gridstream.ParseEncoding(encoding)
			if err != nil {
				return err
			}
			return c.download(cmd, args[0], cmd.OutOrStdout(), gridstream.ReadOptions{Encoding: enc})
		},
	}
	cmd.Flags().StringVarP(&encoding, "encoding", "e", "", "utf8, ascii or base64 (default: grid.encoding)")
	return cmd
}

// withGrid opens a grid over the configured store, runs fn and closes both.
func (c *cli) withGrid(cmd *cobra.Command, fn func(*gridfs.Grid) error) error {
	ctx := cmd.Context()

	db, err := c.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	grid := gridfs.New(ctx, db, c.gridConfig())
	if _, err := grid.Open(ctx).Wait(ctx); err != nil {
		return err
	}
	defer func() { _, _ = grid.Close().Wait(ctx) }()

	return fn(grid)
}

func newRmCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>...",
		Short: "Delete files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withGrid(cmd, func(grid *gridfs.Grid) error {
				for _, name := range args {
					if _, err := grid.Delete(cmd.Context(), name).Wait(cmd.Context()); err != nil {
						return fmt.Errorf("rm %s: %w", name, err)
					}
				}
				return nil
			})
		},
	}
}

func newLsCommand(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List files of a root collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withGrid(cmd, func(grid *gridfs.Grid) error {
				files, err := grid.List(cmd.Context(), grid.Root()).Wait(cmd.Context())
				if err != nil {
					return err
				}
				return printFiles(cmd.OutOrStdout(), files, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print file documents as JSON")
	return cmd
}

func printFiles(w io.Writer, files []chunkstore.FileInfo, asJSON bool) error {
	if asJSON {
		if files == nil {
			files = []chunkstore.FileInfo{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(files)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLENGTH\tCHUNK SIZE\tCONTENT TYPE\tUPLOADED\tMD5")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			f.Name, f.Length, f.ChunkSize, f.ContentType, f.UploadDate.Format(time.RFC3339), f.MD5)
	}
	return tw.Flush()
}
