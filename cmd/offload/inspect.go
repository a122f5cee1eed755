package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/wasm"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [file.wasm]",
	Short: "List a module's imports, exports and memory",
	Long: `Inspect decodes a module without instantiating it. Without a file it
inspects the configured module, which is the built-in demo unless a path is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: inspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func inspect(cmd *cobra.Command, args []string) error {
	var (
		name string
		data []byte
	)
	if len(args) == 1 {
		name = args[0]
		b, err := os.ReadFile(name)
		if err != nil {
			return errors.Load("read "+name, err)
		}
		data = b
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ec := cfg.Engine()
		name, data = ec.Path, ec.Wasm
		if name == "" {
			name = "demo:" + cfg.Module.Demo
		} else {
			b, err := os.ReadFile(name)
			if err != nil {
				return errors.Load("read "+name, err)
			}
			data = b
		}
	}

	sum, err := wasm.Inspect(data)
	if err != nil {
		return errors.Load("decode "+name, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(name))
	fmt.Fprintf(out, "Size: %d bytes, %d functions\n", sum.TotalSize, sum.NumFuncs)
	if pages := sum.MinPages(); pages > 0 {
		fmt.Fprintf(out, "Memory: %d pages (%d KiB)\n", pages, pages*64)
	}

	fmt.Fprintf(out, "\nImports (%d):\n", len(sum.Imports))
	for _, imp := range sum.Imports {
		fmt.Fprintf(out, "  %s.%s %s\n", imp.Module, imp.Name, labelStyle.Render(kindName(imp.Kind)))
	}
	fmt.Fprintf(out, "\nExports (%d):\n", len(sum.Exports))
	for _, exp := range sum.Exports {
		fmt.Fprintf(out, "  %s %s\n", exp.Name, labelStyle.Render(kindName(exp.Kind)))
	}

	if funcs := sum.FuncExports(); len(funcs) > 0 {
		fmt.Fprintln(out, helpStyle.Render("\nfunctions: "+strings.Join(funcs, ", ")))
	}
	return nil
}

func kindName(k byte) string {
	switch k {
	case wasm.KindFunc:
		return "func"
	case wasm.KindTable:
		return "table"
	case wasm.KindMemory:
		return "memory"
	case wasm.KindGlobal:
		return "global"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}
