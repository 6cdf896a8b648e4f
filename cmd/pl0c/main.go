// Command pl0c is the PL/0 command-line front end: it compiles source to
// pcode, disassembles a compiled program, or runs one, mirroring the
// compile/run/disasm split of the reference tool's command dispatch.
package main

import (
	"fmt"
	"os"
	"strings"

	"pl0/pkg/compiler"
	"pl0/pkg/diag"
	"pl0/pkg/pcode"
	"pl0/pkg/scanner"
	"pl0/pkg/token"
	"pl0/pkg/vm"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "compile":
		err = runCompile(os.Args[2:])
	case "run":
		err = runRun(os.Args[2:])
	case "disasm":
		err = runDisasm(os.Args[2:])
	default:
		// bare <input>: compile in memory and run immediately.
		err = runBare(os.Args[1:])
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  pl0c compile <input> [-o out.pcode] [--dump-tokens] [--dump-ast] [--dump-sym] [--dump-pcode] [--bounds-check]
  pl0c run <input.pcode> [--trace-vm]
  pl0c disasm <input.pcode>
  pl0c <input>`)
}

// flagSet is a small hand-rolled parser: this tool's flag surface is a
// handful of boolean switches plus one valued flag (-o), not worth
// pulling in the standard flag package's usage-string machinery for.
type flagSet struct {
	bools  map[string]bool
	values map[string]string
	args   []string
}

func parseFlags(args []string, boolNames []string, valueNames []string) *flagSet {
	fs := &flagSet{bools: map[string]bool{}, values: map[string]string{}}
	isBool := map[string]bool{}
	for _, n := range boolNames {
		isBool[n] = true
	}
	isValue := map[string]bool{}
	for _, n := range valueNames {
		isValue[n] = true
	}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case isBool[a]:
			fs.bools[a] = true
		case isValue[a]:
			if i+1 < len(args) {
				fs.values[a] = args[i+1]
				i++
			}
		default:
			fs.args = append(fs.args, a)
		}
	}
	return fs
}

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func printDiagnostics(sink *diag.Sink) {
	for _, d := range sink.Diagnostics() {
		fmt.Fprintln(os.Stderr, d.String())
	}
}

func runCompile(args []string) error {
	fs := parseFlags(args,
		[]string{"--dump-tokens", "--dump-ast", "--dump-sym", "--dump-pcode", "--bounds-check"},
		[]string{"-o"})
	if len(fs.args) != 1 {
		usage()
		return fmt.Errorf("compile: expected exactly one input file")
	}
	src, err := readSource(fs.args[0])
	if err != nil {
		return err
	}

	var sink diag.Sink

	if fs.bools["--dump-tokens"] {
		dumpTokens(src)
	}

	res := compiler.Compile(src, &sink, compiler.Options{BoundsCheck: fs.bools["--bounds-check"]})

	if fs.bools["--dump-ast"] && res.Program != nil {
		fmt.Println(res.Program.String())
	}
	if fs.bools["--dump-sym"] {
		fmt.Print(res.Symbols.String())
	}
	if fs.bools["--dump-pcode"] {
		_ = pcode.Serialize(os.Stdout, res.Instructions)
	}

	printDiagnostics(&sink)
	if sink.HasErrors() {
		return fmt.Errorf("compile: %d error(s)", countErrors(&sink))
	}

	outPath := fs.values["-o"]
	if outPath == "" {
		outPath = defaultPcodePath(fs.args[0])
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()
	return pcode.Serialize(out, res.Instructions)
}

func runRun(args []string) error {
	fs := parseFlags(args, []string{"--trace-vm"}, nil)
	if len(fs.args) != 1 {
		usage()
		return fmt.Errorf("run: expected exactly one input file")
	}
	f, err := os.Open(fs.args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", fs.args[0], err)
	}
	defer f.Close()
	instrs, err := pcode.Deserialize(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", fs.args[0], err)
	}

	var opts []vm.Option
	opts = append(opts, vm.WithInput(os.Stdin), vm.WithOutput(os.Stdout))
	if fs.bools["--trace-vm"] {
		opts = append(opts, vm.WithTrace(os.Stderr))
	}

	machine := vm.New(instrs, opts...)
	var sink diag.Sink
	if result := machine.Run(&sink); !result.Success {
		printDiagnostics(&sink)
		return fmt.Errorf("run: aborted")
	}
	return nil
}

func runDisasm(args []string) error {
	fs := parseFlags(args, nil, nil)
	if len(fs.args) != 1 {
		usage()
		return fmt.Errorf("disasm: expected exactly one input file")
	}
	f, err := os.Open(fs.args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", fs.args[0], err)
	}
	defer f.Close()
	instrs, err := pcode.Deserialize(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", fs.args[0], err)
	}
	return pcode.Disassemble(os.Stdout, instrs)
}

func runBare(args []string) error {
	fs := parseFlags(args, []string{"--bounds-check", "--trace-vm"}, nil)
	if len(fs.args) != 1 {
		usage()
		return fmt.Errorf("expected exactly one input file")
	}
	src, err := readSource(fs.args[0])
	if err != nil {
		return err
	}
	var sink diag.Sink
	res := compiler.Compile(src, &sink, compiler.Options{BoundsCheck: fs.bools["--bounds-check"]})
	if sink.HasErrors() {
		printDiagnostics(&sink)
		return fmt.Errorf("compile: %d error(s)", countErrors(&sink))
	}

	var opts []vm.Option
	opts = append(opts, vm.WithInput(os.Stdin), vm.WithOutput(os.Stdout))
	if fs.bools["--trace-vm"] {
		opts = append(opts, vm.WithTrace(os.Stderr))
	}
	machine := vm.New(res.Instructions, opts...)
	var runSink diag.Sink
	if result := machine.Run(&runSink); !result.Success {
		printDiagnostics(&runSink)
		return fmt.Errorf("run: aborted")
	}
	return nil
}

func dumpTokens(src string) {
	var sink diag.Sink
	sc := scanner.New(src, &sink)
	for {
		tok := sc.Next()
		fmt.Println(tok.String())
		if tok.Kind == token.EOF {
			break
		}
	}
}

func countErrors(sink *diag.Sink) int {
	n := 0
	for _, d := range sink.Diagnostics() {
		if d.Level == diag.Error {
			n++
		}
	}
	return n
}

func defaultPcodePath(input string) string {
	base := input
	if idx := strings.LastIndexByte(base, '.'); idx >= 0 {
		base = base[:idx]
	}
	return base + ".pcode"
}
