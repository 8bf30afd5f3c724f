package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"woonbot/internal/app"
	"woonbot/internal/credentials"
)

func newCredsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage the stored site login",
	}
	var username string
	set := &cobra.Command{
		Use:   "set",
		Short: "Store username and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := app.OpenCredentials(g.configPath)
			if err != nil {
				return err
			}
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			if username == "" {
				fmt.Fprint(out, "Username (e-mail): ")
				if username, err = readLine(in); err != nil {
					return err
				}
			}
			fmt.Fprint(out, "Password: ")
			password, err := readPassword(in)
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			c := credentials.Credentials{Username: strings.TrimSpace(username), Password: password}
			if !c.Complete() {
				return errors.New("username and password are required")
			}
			if err := st.Save(cmd.Context(), c); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved credentials for %s (%s store).\n", c.Username, st.Name())
			return nil
		},
	}
	set.Flags().StringVarP(&username, "username", "u", "", "site username (prompted when empty)")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := app.OpenCredentials(g.configPath)
			if err != nil {
				return err
			}
			err = st.Delete(cmd.Context())
			if errors.Is(err, credentials.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No credentials stored.")
				return nil
			}
			if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Credentials deleted.")
			}
			return err
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the stored username",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := app.OpenCredentials(g.configPath)
			if err != nil {
				return err
			}
			c, err := st.Get(cmd.Context())
			if errors.Is(err, credentials.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No credentials stored.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (password set, %s store)\n", c.Username, st.Name())
			return nil
		},
	}
	cmd.AddCommand(set, clearCmd, show)
	return cmd
}

func readLine(r *bufio.Reader) (string, error) {
	s, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// readPassword reads without echo from a terminal, or a plain line when
// stdin is piped.
func readPassword(r *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		return string(b), err
	}
	return readLine(r)
}
