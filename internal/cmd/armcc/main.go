package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/arch/arm/armasm"
	"golang.org/x/term"

	armasmenc "github.com/tinyrange/armcc/internal/asm/arm"
	"github.com/tinyrange/armcc/internal/config"
	"github.com/tinyrange/armcc/internal/ir"
	"github.com/tinyrange/armcc/internal/ir/arm"
	"github.com/tinyrange/armcc/internal/ir/irtext"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "armcc: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	target      string
	output      string
	format      string
	list        bool
	dumpCodeMap bool
	writeTarget string
	debug       bool
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("armcc", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.target, "target", "", "Target description (.yaml, .yml or .toml; default: armv5 with VFP)")
	fs.StringVar(&opts.output, "o", "", "Write the image to this file (one file per memory region)")
	fs.StringVar(&opts.format, "format", "elf", "Output format: elf or bin")
	fs.BoolVar(&opts.list, "list", false, "Print a disassembly listing of every region")
	fs.BoolVar(&opts.dumpCodeMap, "dump-codemap", false, "Dump the code map of every method")
	fs.StringVar(&opts.writeTarget, "write-target", "", "Write the effective target description as YAML and exit")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: armcc [flags] <program.yaml>\n\n")
		fmt.Fprintf(stderr, "Compile a register-allocated IR program for an ARM target.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	target := config.Default()
	if opts.target != "" {
		t, err := config.Load(opts.target)
		if err != nil {
			return err
		}
		target = t
	}
	if opts.writeTarget != "" {
		if err := config.Write(opts.writeTarget, target); err != nil {
			return err
		}
		slog.Info("target written", "path", opts.writeTarget)
		return nil
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("exactly one program required")
	}
	if opts.format != "elf" && opts.format != "bin" {
		return fmt.Errorf("unknown -format %q", opts.format)
	}

	backend, err := arm.NewBackend(target)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}
	prog, err := irtext.Load(fs.Arg(0), backend.Platform().Registers())
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if f, ok := stderr.(*os.File); ok && term.IsTerminal(int(f.Fd())) && !opts.debug {
		bar = progressbar.NewOptions(len(prog.Methods),
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("preparing"),
			progressbar.OptionClearOnFinish(),
		)
		backend.Progress = func(method string) {
			bar.Describe(method)
			_ = bar.Add(1)
		}
	}

	slog.Debug("compiling", "program", fs.Arg(0), "methods", len(prog.Methods), "target", target.Architecture)
	out, err := backend.Build(context.Background(), prog)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	if opts.list {
		if err := writeListing(stdout, out); err != nil {
			return err
		}
	}
	if opts.dumpCodeMap {
		names := make([]string, 0, len(out.CodeMaps))
		for name := range out.CodeMaps {
			names = append(names, name)
		}
		sort.Strings(names)
		// The raw structure, not CodeMap.String.
		cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableMethods: true, SortKeys: true}
		for _, name := range names {
			fmt.Fprintf(stdout, "%s:\n", name)
			cfg.Fdump(stdout, out.CodeMaps[name])
		}
	}
	if opts.output != "" {
		if err := writeImages(opts.output, opts.format, out); err != nil {
			return err
		}
	}
	return nil
}

// regionPath names the file of one region. A single region uses path as
// given; several regions insert the region name before the extension.
func regionPath(path, region string, regions int) string {
	if regions == 1 {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + region + ext
}

func writeImages(path, format string, out *ir.Output) error {
	for _, r := range out.Regions {
		data := r.Program.Bytes()
		if format == "elf" {
			var err error
			data, err = armasmenc.StandaloneELF(r.Program)
			if err != nil {
				return fmt.Errorf("region %s: %w", r.Name, err)
			}
		}
		name := regionPath(path, r.Name, len(out.Regions))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		slog.Info("image written", "region", r.Name, "path", name, "base", fmt.Sprintf("%#x", r.Program.Base()), "size", len(data))
	}
	return nil
}

func writeListing(w io.Writer, out *ir.Output) error {
	labels := make(map[uint32][]string)
	for name, addr := range out.Symbols {
		labels[addr] = append(labels[addr], name)
	}
	for _, names := range labels {
		sort.Strings(names)
	}

	for _, r := range out.Regions {
		if _, err := fmt.Fprintf(w, "; region %s\n", r.Name); err != nil {
			return err
		}
		code := r.Program.Bytes()
		base := r.Program.Base()
		for off := 0; off+4 <= len(code); off += 4 {
			addr := base + uint32(off)
			for _, name := range labels[addr] {
				fmt.Fprintf(w, "%s:\n", name)
			}
			word := binary.LittleEndian.Uint32(code[off:])
			text := fmt.Sprintf(".word %#08x", word)
			if inst, err := armasm.Decode(code[off:off+4], armasm.ModeARM); err == nil {
				text = armasm.GNUSyntax(inst)
			}
			if _, err := fmt.Fprintf(w, "  %08x:  %08x  %s\n", addr, word, text); err != nil {
				return err
			}
		}
	}
	return nil
}
