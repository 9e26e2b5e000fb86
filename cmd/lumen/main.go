package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"lumen/pkg/avm1"
	"lumen/pkg/avm2"
	"lumen/pkg/driver"
	"lumen/pkg/logger"
	"lumen/pkg/vm"
)

const version = "0.3.0"

// config is the optional TOML limits file; flags override it.
type config struct {
	MaxDepth          int    `toml:"max_depth"`
	InstructionBudget int64  `toml:"instruction_budget"`
	LogLevel          string `toml:"log_level"`
}

func main() {
	var (
		cfgPath string
		cfg     config
	)

	root := &cobra.Command{
		Use:          "lumen",
		Short:        "lumen runs compiled script blobs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath != "" {
				if _, err := toml.DecodeFile(cfgPath, &cfg); err != nil {
					return fmt.Errorf("load config %s: %w", cfgPath, err)
				}
			}
			level := cfg.LogLevel
			if level == "" {
				level = "info"
			}
			return logger.Init(level)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "TOML limits file")
	root.PersistentFlags().IntVar(&cfg.MaxDepth, "max-depth", 0, "maximum call depth (0 = default)")
	root.PersistentFlags().Int64Var(&cfg.InstructionBudget, "budget", 0, "instruction budget per invocation (0 = unlimited)")

	runCmd := &cobra.Command{
		Use:   "run <blob.cbor>",
		Short: "Execute a compiled method blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			m, err := driver.LoadMethodBlob(data)
			if err != nil {
				return err
			}
			p, err := driver.New(driver.Options{
				MaxDepth:          cfg.MaxDepth,
				InstructionBudget: cfg.InstructionBudget,
			})
			if err != nil {
				return err
			}
			result, err := p.Invoke(m, vm.Undefined, nil)
			if err != nil {
				return err
			}
			if !result.IsUndefined() {
				s, serr := p.Engine().ToStringValue(result)
				if serr != nil {
					s = result.Inspect()
				}
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}

	disasmCmd := &cobra.Command{
		Use:   "disasm <blob.cbor>",
		Short: "Disassemble a compiled method blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			m, err := driver.LoadMethodBlob(data)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), disassemble(m))
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the runtime version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "lumen", version)
		},
	}

	root.AddCommand(runCmd, disasmCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// disassemble renders the method and every nested method in its pool.
func disassemble(m *vm.Method) string {
	out := dialectDisasm(m)
	if m.Pool != nil {
		for _, sub := range m.Pool.Methods {
			out += "\n" + dialectDisasm(sub)
		}
	}
	return out
}

func dialectDisasm(m *vm.Method) string {
	if m.Dialect == vm.DialectTrait {
		return avm2.Disassemble(m)
	}
	return avm1.Disassemble(m)
}
