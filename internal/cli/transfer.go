package cli

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/danhigham/tgupload/internal/catalog"
	"github.com/danhigham/tgupload/internal/state"
	"github.com/danhigham/tgupload/internal/ui"
	"github.com/danhigham/tgupload/internal/upload"
)

func newChatsCmd(e *env) *cobra.Command {
	var search string
	var choose int64

	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List conversations you can upload to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := e.settings.Credentials()
			if err != nil {
				return err
			}
			errOut := cmd.ErrOrStderr()
			convs, err := e.catalog.Load(cmd.Context(), creds, func(p catalog.Progress) {
				fmt.Fprintln(errOut, p.Note)
			})
			if errors.Is(err, catalog.ErrNotAuthenticated) {
				return fmt.Errorf("%w: run tg-upload login", err)
			}
			if err != nil {
				return err
			}

			if choose != 0 {
				for _, c := range convs {
					if c.ID == choose {
						if err := e.settings.SetMany(map[string]any{
							state.KeySelectedChatID:   c.ID,
							state.KeySelectedChatName: c.DisplayName,
						}); err != nil {
							return err
						}
						fmt.Fprintf(cmd.OutOrStdout(), "Uploads will go to %s.\n", c.DisplayName)
						return nil
					}
				}
				return fmt.Errorf("conversation %d not found", choose)
			}

			selected := e.settings.Int64(state.KeySelectedChatID, 0)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "\tID\tKIND\tNAME")
			for _, c := range catalog.Filter(convs, search) {
				mark := ""
				if c.ID == selected {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", mark, c.ID, c.Kind, c.DisplayName)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Only show names containing this text")
	cmd.Flags().Int64Var(&choose, "select", 0, "Remember this conversation id as the upload target")
	return cmd
}

func newUploadCmd(e *env) *cobra.Command {
	var (
		chatID      int64
		delay       time.Duration
		concurrency int
		prefix      string
		noSummary   bool
	)

	cmd := &cobra.Command{
		Use:   "upload [folder or file]...",
		Short: "Send every video in the given folders",
		Long: `Send every supported video in the given folders (not recursive) or files
to one conversation, in name order. The target defaults to the conversation
last chosen in the UI or with "chats --select". Ctrl+C aborts the file
being sent and stops the batch; files already sent stay sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := e.settings.Credentials()
			if err != nil {
				return err
			}
			s := e.settings
			if !cmd.Flags().Changed("chat") {
				chatID = s.Int64(state.KeySelectedChatID, 0)
			}
			if !cmd.Flags().Changed("delay") {
				delay = time.Duration(s.Int(state.KeyDelaySeconds, e.cfg.Upload.DelaySeconds)) * time.Second
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = s.Int(state.KeyConcurrency, e.cfg.Upload.Concurrency)
			}
			if !cmd.Flags().Changed("prefix") {
				prefix = s.String(state.KeyPrefixText, "")
			}
			if len(args) == 0 {
				if folder := s.String(state.KeyFolder, ""); folder != "" {
					args = []string{folder}
				}
			}

			target := s.String(state.KeySelectedChatName, "")
			if chatID != s.Int64(state.KeySelectedChatID, 0) || target == "" {
				target = strconv.FormatInt(chatID, 10)
			}

			job := upload.Job{
				Credentials:    creds,
				ConversationID: chatID,
				Paths:          args,
				Delay:          delay,
				Concurrency:    concurrency,
				Prefix:         prefix,
			}
			events, err := e.upload.Start(cmd.Context(), job)
			if err != nil {
				return err
			}

			bars := newBatchBars(cmd.ErrOrStderr())
			fin, results := bars.Consume(events)

			if !noSummary {
				out, rerr := glamour.Render(ui.SummaryMarkdown(target, fin, results), "auto")
				if rerr != nil {
					out = ui.SummaryMarkdown(target, fin, results)
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
			}

			switch {
			case fin.Err != nil:
				return fin.Err
			case fin.Cancelled:
				return errors.New("upload cancelled")
			case fin.Failed > 0:
				return fmt.Errorf("%d of %d files failed", fin.Failed, fin.Succeeded+fin.Failed)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "Conversation id (see tg-upload chats)")
	cmd.Flags().DurationVar(&delay, "delay", time.Second, "Pause between files")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Parallel parts per file: 1, 4 or 8")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Text placed before each file name in the caption")
	cmd.Flags().BoolVar(&noSummary, "no-summary", false, "Do not print the summary table")
	return cmd
}
