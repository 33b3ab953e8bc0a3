package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/akinalp/eventchat/conversation"
	"github.com/akinalp/eventchat/gateway"
	"github.com/akinalp/eventchat/models"
)

func newLoginCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username> <password>",
		Short: "Get an access token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			gw := gateway.New(cfg.Client.APIBaseURL, cfg.Client.RequestTimeout, nil)
			resp, err := gw.Login(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\nexport CHAT_TOKEN=%s\n",
				resp.User.Name(), resp.User.Role, resp.AccessToken)
			return nil
		},
	}
}

func newListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := signIn(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			chats := ctrl.Chats()
			if err := chats.Load(cmd.Context()); err != nil {
				return err
			}
			printConversations(cmd.OutOrStdout(), chats.Conversations())
			return nil
		},
	}
}

func newSendCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <chat-id> <message>",
		Short: "Send a single message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := signIn(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			p, err := ctrl.OpenConversation(cmd.Context(), conversation.Existing(args[0]))
			if err != nil {
				return err
			}
			defer p.Close()

			msg, err := p.Send(cmd.Context(), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", msg.ID)
			return nil
		},
	}
}

func newOpenCommand(flags *globalFlags) *cobra.Command {
	var vendorID string
	var support bool

	cmd := &cobra.Command{
		Use:   "open [chat-id]",
		Short: "Open a conversation and chat interactively",
		Example: "  chat open --support\n" +
			"  chat open --vendor 3f2a...\n" +
			"  chat open 9b1c...",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target conversation.Target
			switch {
			case len(args) == 1:
				target = conversation.Existing(args[0])
			case vendorID != "":
				target = conversation.Vendor(vendorID)
			case support:
				target = conversation.Support()
			default:
				return fmt.Errorf("pass a chat id, --vendor or --support")
			}

			ctrl, err := signIn(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			p, err := ctrl.OpenConversation(cmd.Context(), target)
			if err != nil {
				return err
			}
			defer p.Close()

			return chatLoop(cmd.Context(), p, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&vendorID, "vendor", "", "Start or resume a conversation with this vendor")
	cmd.Flags().BoolVar(&support, "support", false, "Open your platform support conversation")
	return cmd
}

// chatLoop, stdin satırlarını gönderir ve pipeline değiştikçe yeni
// mesajları yazar. EOF veya context iptali ile biter.
func chatLoop(ctx context.Context, p *conversation.Pipeline, in io.Reader, out io.Writer) error {
	c := p.Counterpart()
	fmt.Fprintf(out, "── %s (%s) ── Ctrl-D to quit\n", c.Name, c.Role)

	printed := make(map[string]bool)
	wasTyping := false
	render := func() {
		for _, m := range p.Messages() {
			if m.Pending || printed[m.ID] {
				continue
			}
			printed[m.ID] = true
			printMessage(out, m)
		}
		if typing := p.CounterpartTyping(); typing != wasTyping {
			wasTyping = typing
			if typing {
				fmt.Fprintf(out, "%s is typing…\n", c.Name)
			}
		}
	}
	render()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.Updates():
			render()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			p.SetInput(line)
			if _, err := p.Send(ctx, line); err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
			render()
		}
	}
}

func printMessage(out io.Writer, m conversation.MessageView) {
	who := "them"
	if m.IsMine {
		who = "me"
	}
	fmt.Fprintf(out, "[%s] %-4s %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Content)
}

func printConversations(out io.Writer, list []models.ConversationSummary) {
	if len(list) == 0 {
		fmt.Fprintln(out, "no conversations yet")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWITH\tUNREAD\tLAST ACTIVITY\tPREVIEW")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.Counterpart.Name, s.UnreadCount, s.LastActivity.Local().Format(time.DateTime), preview(s.LastMessagePreview))
	}
	w.Flush()
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > 40 {
		return string(r[:39]) + "…"
	}
	return s
}
