package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"minijvm/pkg/classfile"
	"minijvm/pkg/disasm"
	"minijvm/pkg/interp"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "minijvm [file.class]",
		Short:         "minijvm — interpreter for the integer subset of JVM bytecode",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		// Argument validation runs before PersistentPreRun, so a wrong
		// argument count still prints usage while runtime failures
		// print only the error.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClass(args[0])
		},
	}

	runCmd := &cobra.Command{
		Use:   "run [file.class]",
		Short: "Execute a class file's main method",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClass(args[0])
		},
	}

	// disasm command
	var jsonOut bool
	var output string
	var methodName string

	disasmCmd := &cobra.Command{
		Use:   "disasm [file.class]",
		Short: "Print a listing of a class file's bytecode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := classfile.ParseFile(args[0])
			if err != nil {
				return err
			}
			listings, err := disasm.Class(class)
			if err != nil {
				return err
			}
			if methodName != "" {
				filtered := listings[:0]
				for _, l := range listings {
					if l.Method == methodName {
						filtered = append(filtered, l)
					}
				}
				if len(filtered) == 0 {
					return fmt.Errorf("no method %q with code in class %s", methodName, class.Name)
				}
				listings = filtered
			}

			w := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			if jsonOut {
				return disasm.WriteJSON(w, listings)
			}
			fmt.Fprintf(w, "class %s (version %d.%d)\n\n", class.Name, class.Major, class.Minor)
			for _, l := range listings {
				fmt.Fprintln(w, l.Text())
			}
			return nil
		},
	}
	disasmCmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	disasmCmd.Flags().StringVar(&output, "output", "", "Write to file instead of stdout")
	disasmCmd.Flags().StringVar(&methodName, "method", "", "Restrict to one method by name")

	rootCmd.AddCommand(runCmd, disasmCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runClass(path string) error {
	class, err := classfile.ParseFile(path)
	if err != nil {
		return err
	}
	return interp.New(class).Run()
}
