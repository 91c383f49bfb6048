// kdump prints the contents of Potassium streams and fragment stores.
//
// Modes:
//
//	kdump [--mode values] FILE     a sequence of Potassium values
//	kdump --mode fragment FILE     a single encoded tree fragment
//	kdump --mode path FILE         a single encoded instance identifier
//	kdump --db FILE                every fragment in a store, in key order
//
// With --cbor, decoded data is written as a deterministic CBOR sequence
// instead of text.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/andreyvit/bindom/dom"
	"github.com/andreyvit/bindom/potassium"
	"github.com/andreyvit/bindom/store"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "kdump: %v\n", err)
		os.Exit(1)
	}
}

type config struct {
	mode  string
	db    string
	cbor  bool
	color string
}

func run(args []string, stdout io.Writer) error {
	var cfg config
	flagSet := pflag.NewFlagSet("kdump", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.mode, "mode", "values", "what FILE holds: values, fragment or path")
	flagSet.StringVar(&cfg.db, "db", "", "dump every fragment of this store instead of reading FILE")
	flagSet.BoolVar(&cfg.cbor, "cbor", false, "write a deterministic CBOR sequence instead of text")
	flagSet.StringVar(&cfg.color, "color", "auto", "colorize text output: auto, always or never")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kdump [flags] FILE\n\nFlags:\n%s", flagSet.FlagUsages())
	}
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	out, err := newPrinter(stdout, cfg)
	if err != nil {
		return err
	}

	if cfg.db != "" {
		if flagSet.NArg() != 0 {
			return fmt.Errorf("--db takes no FILE argument")
		}
		return dumpStore(out, cfg.db)
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return fmt.Errorf("expected exactly one FILE, got %d", flagSet.NArg())
	}
	data, err := os.ReadFile(flagSet.Arg(0))
	if err != nil {
		return err
	}

	switch cfg.mode {
	case "values":
		return dumpValues(out, data)
	case "fragment":
		n, err := potassium.DecodeNode(data)
		if err != nil {
			return err
		}
		return out.node(n)
	case "path":
		r := potassium.NewReader(data)
		p, err := r.ReadPath()
		if err != nil {
			return err
		}
		if r.Remaining() != 0 {
			return fmt.Errorf("%d trailing bytes after path", r.Remaining())
		}
		return out.path(p)
	default:
		return fmt.Errorf("unknown --mode %q", cfg.mode)
	}
}

func dumpValues(out *printer, data []byte) error {
	r := potassium.NewReader(data)
	for i := 0; r.Remaining() > 0; i++ {
		v, err := r.ReadValue()
		if err != nil {
			return fmt.Errorf("value %d: %w", i, err)
		}
		if err := out.value(i, v); err != nil {
			return err
		}
	}
	return nil
}

func dumpStore(out *printer, path string) error {
	s, err := store.Open(path, store.Options{})
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Scan(nil, func(p dom.Path, n dom.Node) error {
		return out.storedNode(p, n)
	})
}

type printer struct {
	w    io.Writer
	cbor *cborSink

	typeColor func(a ...any) string
	pathColor func(a ...any) string
}

func newPrinter(w io.Writer, cfg config) (*printer, error) {
	p := &printer{w: w}
	if cfg.cbor {
		sink, err := newCBORSink(w)
		if err != nil {
			return nil, err
		}
		p.cbor = sink
		return p, nil
	}

	var enabled bool
	switch cfg.color {
	case "always":
		enabled = true
	case "never":
		enabled = false
	case "auto":
		if f, ok := w.(*os.File); ok {
			enabled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	default:
		return nil, fmt.Errorf("unknown --color %q", cfg.color)
	}
	typeColor := color.New(color.FgCyan)
	pathColor := color.New(color.FgYellow, color.Bold)
	if enabled {
		typeColor.EnableColor()
		pathColor.EnableColor()
	} else {
		typeColor.DisableColor()
		pathColor.DisableColor()
	}
	p.typeColor = typeColor.SprintFunc()
	p.pathColor = pathColor.SprintFunc()
	return p, nil
}

func (p *printer) value(i int, v any) error {
	if p.cbor != nil {
		return p.cbor.write(cborValue(v))
	}
	_, err := fmt.Fprintf(p.w, "%d: %s %s\n", i, p.typeColor(valueTypeName(v)), dom.FormatValue(v))
	return err
}

func (p *printer) node(n dom.Node) error {
	if p.cbor != nil {
		return p.cbor.write(cborNode(n))
	}
	_, err := io.WriteString(p.w, dom.Dump(n))
	return err
}

func (p *printer) storedNode(path dom.Path, n dom.Node) error {
	if p.cbor != nil {
		return p.cbor.write(map[string]any{"path": path.String(), "node": cborNode(n)})
	}
	if _, err := fmt.Fprintln(p.w, p.pathColor(path.String())); err != nil {
		return err
	}
	var buf strings.Builder
	for _, line := range strings.SplitAfter(dom.Dump(n), "\n") {
		if line != "" {
			buf.WriteString("  ")
			buf.WriteString(line)
		}
	}
	_, err := io.WriteString(p.w, buf.String())
	return err
}

func (p *printer) path(path dom.Path) error {
	if p.cbor != nil {
		args := make([]any, len(path))
		for i, arg := range path {
			args[i] = cborPathArgument(arg)
		}
		return p.cbor.write(args)
	}
	for i, arg := range path {
		if _, err := fmt.Fprintf(p.w, "%d: %s %s\n", i, p.typeColor(pathArgumentKind(arg)), p.pathColor(arg.String())); err != nil {
			return err
		}
	}
	return nil
}

func valueTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case dom.Empty:
		return "empty"
	case dom.QName:
		return "qname"
	case dom.Path:
		return "instance-identifier"
	case dom.Bits:
		return "bits"
	case dom.Decimal64:
		return "decimal64"
	case []byte:
		return "binary"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func pathArgumentKind(arg dom.PathArgument) string {
	switch arg.(type) {
	case dom.NodeIdentifier:
		return "node"
	case dom.NodeIdentifierWithPredicates:
		return "entry"
	case dom.NodeWithValue:
		return "value"
	case dom.AugmentationIdentifier:
		return "augmentation"
	default:
		return fmt.Sprintf("%T", arg)
	}
}
