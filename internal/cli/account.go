package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/danhigham/tgupload/internal/auth"
	"github.com/danhigham/tgupload/internal/domain"
	"github.com/danhigham/tgupload/internal/state"
)

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the stored session is logged in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			creds, err := e.settings.Credentials()
			if err != nil {
				fmt.Fprintf(out, "Not configured: %v\n", err)
				return nil
			}
			st, err := e.auth.Check(cmd.Context(), creds)
			if err != nil {
				return err
			}
			if !st.Authenticated {
				fmt.Fprintf(out, "Not logged in (%s). Run tg-upload login.\n", creds.Phone)
				return nil
			}
			fmt.Fprintf(out, "Logged in as %s", st.Identity.DisplayName())
			if st.Identity.Username != "" {
				fmt.Fprintf(out, " (@%s)", st.Identity.Username)
			}
			if st.Identity.Premium {
				fmt.Fprint(out, ", premium")
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}

func newLoginCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in with a code sent by Telegram",
		Long: `Log in to Telegram. Missing API credentials and phone number are asked
for and saved. Telegram then sends a login code to your other sessions;
accounts with two-step verification are also asked for their password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			creds, err := promptCredentials(e.settings, in, out)
			if err != nil {
				return err
			}
			events, err := e.auth.Start(cmd.Context(), creds)
			if err != nil {
				return err
			}

			for ev := range events {
				switch ev := ev.(type) {
				case auth.Connecting:
					fmt.Fprintln(out, "Connecting...")
				case auth.CodeSent:
					fmt.Fprintf(out, "Code sent to %s.\n", ev.Challenge.Phone)
					code, err := prompt(in, out, "Code: ")
					if err != nil {
						e.auth.Cancel()
						continue
					}
					if !e.auth.SubmitCode(code) {
						fmt.Fprintln(out, "The login is no longer waiting for a code.")
					}
				case auth.SecondFactorRequired:
					submitPassword(e, in, out)
				case auth.SecondFactorRejected:
					fmt.Fprintln(out, ev.Err.Error())
					submitPassword(e, in, out)
				case auth.AlreadyAuthenticated:
					fmt.Fprintf(out, "Already logged in as %s.\n", ev.Identity.DisplayName())
				case auth.Succeeded:
					fmt.Fprintf(out, "Logged in as %s.\n", ev.Identity.DisplayName())
				case auth.Failed:
					return ev.Err
				}
			}
			return nil
		},
	}
}

func submitPassword(e *env, in *bufio.Reader, out io.Writer) {
	pw, err := promptSecret(in, out, "Password: ")
	if err != nil {
		e.auth.Cancel()
		return
	}
	e.auth.SubmitSecondFactor(pw)
}

func newResetCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.session.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session cleared.")
			return nil
		},
	}
}

// promptCredentials returns the stored credentials, asking for and saving
// any that are missing or invalid.
func promptCredentials(s *state.Store, in *bufio.Reader, out io.Writer) (domain.Credentials, error) {
	if creds, err := s.Credentials(); err == nil {
		return creds, nil
	}

	fields := []struct {
		key, label string
	}{
		{state.KeyAPIID, "API id"},
		{state.KeyAPIHash, "API hash"},
		{state.KeyPhone, "Phone"},
	}
	values := make([]string, len(fields))
	for i, f := range fields {
		current := s.String(f.key, "")
		label := f.label + ": "
		if current != "" {
			label = fmt.Sprintf("%s [%s]: ", f.label, current)
		}
		v, err := prompt(in, out, label)
		if err != nil {
			return domain.Credentials{}, err
		}
		if v == "" {
			v = current
		}
		values[i] = v
	}

	creds, err := domain.ParseCredentials(values[0], values[1], values[2])
	if err != nil {
		return domain.Credentials{}, err
	}
	err = s.SetMany(map[string]any{
		state.KeyAPIID:   strconv.Itoa(creds.AppID),
		state.KeyAPIHash: creds.AppSecret,
		state.KeyPhone:   creds.Phone,
	})
	return creds, err
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo when stdin is a terminal.
func promptSecret(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(in, out, label)
	}
	fmt.Fprint(out, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
