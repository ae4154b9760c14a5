package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codefionn/turing/internal/logger"
)

func newAddUserCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "adduser <name>",
		Short: "Register a user directly in the store",
		Long: `Register a user without a running server. The password is read from the
terminal without echo, or as the first line of stdin when it is not a terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			defer logger.Global().Close()

			password, err := promptForPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			defer password.Destroy()

			lock, err := lockStore(cfg, "adduser")
			if err != nil {
				return err
			}
			defer releaseStore(lock)

			dir, _, store, err := openDirectory(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			// The password leaves locked memory here: hashing works on an ordinary string.
			if _, err := dir.Register(cmd.Context(), args[0], password.String()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s\n", args[0])
			return nil
		},
	}
}

// promptForPassword reads a password into locked memory. Only the line ending is
// stripped; surrounding spaces are part of the password. The caller destroys the
// returned buffer once the password has been hashed.
func promptForPassword(in io.Reader, out io.Writer, prompt string) (*memguard.LockedBuffer, error) {
	fmt.Fprint(out, prompt)

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return nil, err
		}
		return memguard.NewBufferFromBytes(raw), nil
	}

	reader := bufio.NewReader(in)
	line, err := reader.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	line = bytes.TrimSuffix(bytes.TrimSuffix(line, []byte("\n")), []byte("\r"))
	return memguard.NewBufferFromBytes(line), nil
}
