package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
	"github.com/jo-hoe/imagecube/internal/backend/document"
	"github.com/spf13/cobra"
)

var (
	outputPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "imagetool",
	Short: "Local image tools: compress, convert, resize, crop, svg2png, pdf",
	Long: `imagetool runs the image commands of the imagecube server on local files.

Examples:
  imagetool compress photo.png --max-bytes 512000
  imagetool convert photo.png --to jpeg --quality 85
  imagetool resize photo.jpg --width 800
  imagetool crop photo.jpg --width 400 --height 300 --x 10 --y 20
  imagetool svg2png logo.svg --width 1024
  imagetool pdf page1.png page2.jpg -o pages.pdf`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "output file (default: derived from the input name)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(newCompressCmd(), newConvertCmd(), newResizeCmd(), newCropCmd(), newSvg2PngCmd(), newPdfCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runCommand applies one registered command to the input file and writes the result
func runCommand(cmd *cobra.Command, input, name string, params map[string]any, suffix string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}

	out, err := commandstructure.ExecuteCommands(data, []commandstructure.CommandConfig{{Name: name, Params: params}})
	if err != nil {
		return err
	}

	format, err := commands.DetectFormat(out)
	if err != nil {
		return fmt.Errorf("command produced unreadable output: %w", err)
	}
	return writeOutput(cmd, input, suffix, commands.Extension(format), out)
}

func writeOutput(cmd *cobra.Command, input, suffix, ext string, data []byte) error {
	target := outputPath
	if target == "" {
		base := strings.TrimSuffix(input, filepath.Ext(input))
		target = fmt.Sprintf("%s-%s.%s", base, suffix, ext)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes)\n", target, len(data))
	return nil
}

func newCompressCmd() *cobra.Command {
	var maxBytes, minQuality int
	cmd := &cobra.Command{
		Use:   "compress <file>",
		Short: "Compress an image to JPEG under a size budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			command, err := commands.NewCompressCommand(map[string]any{"maxBytes": maxBytes, "minQuality": minQuality})
			if err != nil {
				return err
			}
			compressor, ok := command.(*commands.CompressCommand)
			if !ok {
				return fmt.Errorf("unexpected compress command type %T", command)
			}
			result, err := compressor.Compress(data)
			if err != nil {
				return err
			}
			slog.Info("compressed", "original_size_bytes", result.OriginalSize, "quality", result.Quality)
			format, err := commands.DetectFormat(result.Data)
			if err != nil {
				return err
			}
			return writeOutput(cmd, args[0], "compressed", commands.Extension(format), result.Data)
		},
	}
	cmd.Flags().IntVar(&maxBytes, "max-bytes", commands.DefaultMaxBytes, "size budget in bytes")
	cmd.Flags().IntVar(&minQuality, "min-quality", 10, "lowest JPEG quality before downscaling")
	return cmd
}

func newConvertCmd() *cobra.Command {
	var to string
	var quality int
	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert an image to png, jpeg, gif, bmp or tiff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, args[0], "ConvertCommand", map[string]any{"targetType": to, "quality": quality}, "converted")
		},
	}
	cmd.Flags().StringVar(&to, "to", commands.FormatPNG, "target format")
	cmd.Flags().IntVar(&quality, "quality", 90, "JPEG quality")
	return cmd
}

func newResizeCmd() *cobra.Command {
	var width, height int
	var stretch bool
	var filter string
	cmd := &cobra.Command{
		Use:   "resize <file>",
		Short: "Resize an image, keeping the aspect ratio unless --stretch is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, args[0], "ResizeCommand", map[string]any{
				"width":      width,
				"height":     height,
				"keepAspect": !stretch,
				"filter":     filter,
			}, "resized")
		},
	}
	cmd.Flags().IntVar(&width, "width", 0, "target width")
	cmd.Flags().IntVar(&height, "height", 0, "target height")
	cmd.Flags().BoolVar(&stretch, "stretch", false, "ignore the aspect ratio")
	cmd.Flags().StringVar(&filter, "filter", "lanczos", "lanczos, linear, nearest or catmullrom")
	return cmd
}

func newCropCmd() *cobra.Command {
	var x, y, width, height int
	cmd := &cobra.Command{
		Use:   "crop <file>",
		Short: "Crop a rectangle; centered unless --x or --y is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{"width": width, "height": height}
			if cmd.Flags().Changed("x") || cmd.Flags().Changed("y") {
				params["x"] = x
				params["y"] = y
			}
			return runCommand(cmd, args[0], "CropCommand", params, "cropped")
		},
	}
	cmd.Flags().IntVar(&x, "x", 0, "left edge")
	cmd.Flags().IntVar(&y, "y", 0, "top edge")
	cmd.Flags().IntVar(&width, "width", 0, "crop width")
	cmd.Flags().IntVar(&height, "height", 0, "crop height")
	_ = cmd.MarkFlagRequired("width")
	_ = cmd.MarkFlagRequired("height")
	return cmd
}

func newSvg2PngCmd() *cobra.Command {
	var width, height int
	var background string
	cmd := &cobra.Command{
		Use:   "svg2png <file>",
		Short: "Rasterize an SVG document to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, args[0], "SvgRenderCommand", map[string]any{
				"width":      width,
				"height":     height,
				"background": background,
			}, "rendered")
		},
	}
	cmd.Flags().IntVar(&width, "width", 0, "output width (default: intrinsic size)")
	cmd.Flags().IntVar(&height, "height", 0, "output height")
	cmd.Flags().StringVar(&background, "background", "", "hex background color, transparent when empty")
	return cmd
}

func newPdfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pdf <image>...",
		Short: "Combine images into a PDF with one page per image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			images := make([][]byte, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				images = append(images, data)
			}
			out, err := document.ImagesToPDF(images)
			if err != nil {
				return err
			}
			return writeOutput(cmd, args[0], "images", "pdf", out)
		},
	}
}
