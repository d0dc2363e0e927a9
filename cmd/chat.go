package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/oasis-home/oasisctl/pkg/controller"
	"github.com/oasis-home/oasisctl/pkg/textutil"
	"github.com/spf13/cobra"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the device assistant",
	Long: `Send a single message, or start an interactive session when no
message is given. Inside the session, /new starts a fresh conversation,
/history lists stored chats, /load <id> resumes one, /retry re-sends the
last failed message and /quit exits.`,
	RunE: runChat,
}

var chatPlain bool

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "Strip markdown from replies")
	chatCmd.Flags().String("sysmsg", "", "System-message profile key to use")
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.ensureLoggedIn(cmd.Context()); err != nil {
		return err
	}

	if key, _ := cmd.Flags().GetString("sysmsg"); key != "" {
		a.controller.SelectSysmsg(key)
	}

	if len(args) > 0 {
		return sendAndPrint(cmd, a, strings.Join(args, " "))
	}

	// Interactive session
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Connected. Type /quit to exit.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/new":
			a.controller.StartNewChat()
			fmt.Println("Started a new chat.")
			continue
		case line == "/history":
			a.controller.RefreshHistory(cmd.Context())
			for _, h := range a.controller.State().History {
				fmt.Printf("%s  %s\n", h.ID, h.Title)
			}
			continue
		case strings.HasPrefix(line, "/load "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/load "))
			if err := a.controller.LoadChat(cmd.Context(), id, ""); err != nil {
				fmt.Println(a.controller.State().LastError)
				a.controller.ConsumeError()
				continue
			}
			printTranscript(a.controller.State().Messages)
			continue
		case line == "/retry":
			if err := a.controller.RetryLastFailed(cmd.Context()); err != nil {
				fmt.Println(a.controller.State().LastError)
				a.controller.ConsumeError()
				continue
			}
			printLastReply(a)
			continue
		}

		if err := sendAndPrint(cmd, a, line); err != nil {
			fmt.Println(a.controller.State().LastError)
			a.controller.ConsumeError()
		}
	}
}

func sendAndPrint(cmd *cobra.Command, a *app, message string) error {
	if err := a.controller.SendMessage(cmd.Context(), message); err != nil {
		return err
	}
	printLastReply(a)
	return nil
}

// printLastReply prints every assistant message that followed the last user
// message, including appended UCI proposals
func printLastReply(a *app) {
	state := a.controller.State()

	start := len(state.Messages)
	for start > 0 && !state.Messages[start-1].IsUser {
		start--
	}
	for _, m := range state.Messages[start:] {
		printMessage(m)
	}

	if state.RebootBanner {
		fmt.Println("** The device reports a reboot is required. **")
		a.controller.DismissRebootBanner()
	}
}

func printTranscript(messages []controller.Message) {
	for _, m := range messages {
		if m.IsUser {
			fmt.Printf("> %s\n", m.Content)
			continue
		}
		printMessage(m)
	}
}

func printMessage(m controller.Message) {
	if m.ToolUsed {
		fmt.Printf("[tool: %s]\n", m.ToolLabel)
	}
	content := m.Content
	if content == "" {
		return
	}
	if chatPlain {
		content = textutil.MarkdownToPlain(content)
	}
	fmt.Println(content)
}
