package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// InteractiveCmd creates the interactive command
func InteractiveCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Start an interactive session (open the store once, run many commands)",
		Long: `Start an interactive session where you can run multiple commands against one open store.
The session will keep running until you type 'exit' or 'quit'.

Type 'help' to see available commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "\n🎡 Starting interactive session...")
			fmt.Fprintln(out, "Type 'help' for available commands, 'exit' or 'quit' to leave")

			// Get all sibling commands (excluding interactive itself)
			commands := make(map[string]*cobra.Command)
			if rootCmd := cmd.Parent(); rootCmd != nil {
				for _, subCmd := range rootCmd.Commands() {
					if subCmd.Name() != "interactive" && subCmd.Name() != "completion" && subCmd.Name() != "help" {
						commands[subCmd.Name()] = subCmd
					}
				}
			}

			return runInteractive(cmd.InOrStdin(), out, commands, app)
		},
	}

	return cmd
}

var errExitSession = errors.New("exit session")

func runInteractive(in io.Reader, out io.Writer, commands map[string]*cobra.Command, app *AppContext) error {
	scanner := bufio.NewScanner(in)

	for app.Ctx.Err() == nil {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("error reading input: %w", err)
			}
			return nil
		}

		err := runLine(out, commands, scanner.Text())
		if errors.Is(err, errExitSession) {
			fmt.Fprintln(out, "👋 Goodbye!")
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "❌ Error: %v\n\n", err)
		}
	}

	return nil
}

// runLine executes one session line against the registered commands
func runLine(out io.Writer, commands map[string]*cobra.Command, line string) error {
	parts, err := parseCommandLine(line)
	if err != nil {
		return fmt.Errorf("failed to parse command: %w", err)
	}
	if len(parts) == 0 {
		return nil
	}

	name, rest := parts[0], parts[1:]
	switch name {
	case "exit", "quit":
		return errExitSession
	case "help":
		printInteractiveHelp(out, commands)
		return nil
	}

	target, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", name)
	}

	// Flags keep their values between runs of the same command
	target.Flags().VisitAll(func(flag *pflag.Flag) {
		flag.Changed = false
		flag.Value.Set(flag.DefValue)
	})
	if err := target.ParseFlags(rest); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	// Call RunE directly so PersistentPreRunE does not reopen the store
	args := target.Flags().Args()
	if target.Args != nil {
		if err := target.Args(target, args); err != nil {
			return err
		}
	}

	target.SetOut(out)
	switch {
	case target.RunE != nil:
		return target.RunE(target, args)
	case target.Run != nil:
		target.Run(target, args)
	}
	return nil
}

func printInteractiveHelp(out io.Writer, commands map[string]*cobra.Command) {
	fmt.Fprintln(out, "\nAvailable commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(out, "  %-30s %s\n", cmd.Use, cmd.Short)
	}

	fmt.Fprintln(out, "\n  help                           Show this help message")
	fmt.Fprintln(out, "  exit, quit                     Exit the interactive session")
}

// parseCommandLine splits a session line into arguments.
// Single or double quotes group words and may produce an empty argument.
// A backslash outside single quotes escapes the next character.
func parseCommandLine(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		pending bool
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped, pending = true, true
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			current.WriteRune(r)
		case r == '"' || r == '\'':
			quote, pending = r, true
		case unicode.IsSpace(r):
			if pending {
				args = append(args, current.String())
				current.Reset()
				pending = false
			}
		default:
			current.WriteRune(r)
			pending = true
		}
	}

	switch {
	case quote != 0:
		return nil, fmt.Errorf("unclosed quote: %c", quote)
	case escaped:
		return nil, errors.New("trailing backslash")
	}
	if pending {
		args = append(args, current.String())
	}
	return args, nil
}
