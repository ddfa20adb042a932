// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-hub/pkg/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Manage conversation memory",
	Long: `Chat manages stored conversations: their messages, attached documents,
and the context string assembled for a model from recent history.`,
}

var chatNewCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Start a conversation and make it active",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		c := a.memory.Create(ctx, strings.Join(args, " "))
		fmt.Printf("Created conversation %s (%s)\n", c.ID, c.Title)
		return nil
	},
}

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(context.Background(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		convs := a.memory.List()
		if len(convs) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		active, _ := a.memory.Active()

		fmt.Printf("  %-36s  %-40s  %-5s  %-5s  %s\n", "ID", "Title", "Msgs", "Docs", "Updated")
		fmt.Println(strings.Repeat("-", 110))
		for _, c := range convs {
			mark := " "
			if c.ID == active.ID {
				mark = "*"
			}
			fmt.Printf("%s %-36s  %-40s  %-5d  %-5d  %s\n",
				mark, c.ID, truncateTitle(c.Title, 40), len(c.Messages), len(c.EntityIDs),
				c.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var chatUseCmd = &cobra.Command{
	Use:   "use <conversation-id>",
	Short: "Make a conversation active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.memory.SetActive(ctx, args[0])
	},
}

var chatRenameCmd = &cobra.Command{
	Use:   "rename <conversation-id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.memory.Rename(ctx, args[0], strings.Join(args[1:], " "))
	},
}

var chatDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.memory.Delete(ctx, args[0])
	},
}

var chatSayCmd = &cobra.Command{
	Use:   "say <message...>",
	Short: "Append a user message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return appendMessage(cmd, types.RoleUser, strings.Join(args, " "))
	},
}

var chatReplyCmd = &cobra.Command{
	Use:   "reply <message...>",
	Short: "Append an assistant message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return appendMessage(cmd, types.RoleAssistant, strings.Join(args, " "))
	},
}

var chatAttachCmd = &cobra.Command{
	Use:   "attach <file>",
	Short: "Attach a document to a conversation",
	Long: `Attach stores the document text in memory and links it to the conversation.
With --research, search queries are derived from the text and researched under
the same entity ID.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		convID, _ := cmd.Flags().GetString("conversation")
		entityID, _ := cmd.Flags().GetString("id")
		entity := types.Entity{
			ID:      entityID,
			Name:    filepath.Base(args[0]),
			Content: string(content),
		}
		if entity.ID == "" {
			entity.ID = entity.Name
		}

		convID, err = a.memory.AttachEntity(ctx, convID, entity)
		if err != nil {
			return err
		}
		fmt.Printf("Attached %s to conversation %s\n", entity.ID, convID)

		if doResearch, _ := cmd.Flags().GetBool("research"); doResearch {
			rec, err := a.engine.ResearchEntity(ctx, entity.ID, entity.Content)
			if err != nil {
				return err
			}
			fmt.Printf("Research %s: %d queries, %d result sets\n", rec.Status, len(rec.Queries), len(rec.Results))
		}
		return nil
	},
}

var chatContextCmd = &cobra.Command{
	Use:   "context [conversation-id]",
	Short: "Print the model context for a conversation",
	Long: `Context prints what a model would be given for the conversation: attached
documents, the completed research for those documents, recent messages, and
recent messages from other conversations.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var convID string
		if len(args) == 1 {
			convID = args[0]
		}
		text, err := a.memory.BuildContext(ctx, convID)
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}

func appendMessage(cmd *cobra.Command, role types.Role, content string) error {
	ctx := context.Background()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	convID, _ := cmd.Flags().GetString("conversation")
	msg, err := a.memory.AppendMessage(ctx, convID, types.Message{Role: role, Content: content})
	if err != nil {
		return err
	}
	fmt.Printf("%s message %s added to %s\n", msg.Role, msg.ID, msg.ConversationID)
	return nil
}

func truncateTitle(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	for _, c := range []*cobra.Command{chatSayCmd, chatReplyCmd, chatAttachCmd} {
		c.Flags().String("conversation", "", "target conversation ID (default: active)")
	}
	chatAttachCmd.Flags().String("id", "", "entity ID (default: file name)")
	chatAttachCmd.Flags().Bool("research", false, "research the document after attaching it")

	chatCmd.AddCommand(chatNewCmd, chatListCmd, chatUseCmd, chatRenameCmd, chatDeleteCmd,
		chatSayCmd, chatReplyCmd, chatAttachCmd, chatContextCmd)
	rootCmd.AddCommand(chatCmd)
}
