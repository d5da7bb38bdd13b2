package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"

	"duo-chat/repositories"
	"duo-chat/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// inspect prints the chats of a user, or the messages of one of them,
// from a badger store. It opens the store read-only so it can run next
// to a live server.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	userID := flag.Int64("user", 0, "User id whose chats are listed")
	chatID := flag.String("chat", "", "Chat id whose messages are listed")
	flag.Parse()

	if *userID == 0 {
		log.Fatal("-user is required")
	}

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	logger := logs.GetLoggerFromString("WARN")
	tree := storage.NewBadgerTree(db, logger, repositories.Indexes...)
	repository := repositories.NewChatRepository(tree, logger)
	ctx := context.Background()

	table := newTable()
	if *chatID == "" {
		err = printChats(ctx, table, repository, *userID)
	} else {
		err = printMessages(ctx, table, repository, *chatID, *userID)
	}
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}

func newTable() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func printChats(ctx context.Context, table *tablewriter.Table, repository repositories.ChatRepository, userID int64) error {
	chats, err := repository.ListChatsForUser(ctx, userID)
	if err != nil {
		return err
	}
	table.SetHeader([]string{"Chat ID", "First", "Second", "Created", "Updated"})
	keys := lo.Keys(chats)
	slices.Sort(keys)
	for _, key := range keys {
		c := chats[key]
		table.Append([]string{
			c.ID,
			fmt.Sprintf("%d (%s)", c.Participants.First.ID, c.Participants.First.Username),
			fmt.Sprintf("%d (%s)", c.Participants.Second.ID, c.Participants.Second.Username),
			c.CreatedAt.Format("2006-01-02 15:04:05"),
			c.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return nil
}

func printMessages(ctx context.Context, table *tablewriter.Table, repository repositories.ChatRepository, chatID string, userID int64) error {
	messages, err := repository.ListMessages(ctx, chatID, userID)
	if err != nil {
		return err
	}
	table.SetHeader([]string{"Message ID", "Sender", "Sent", "Edited", "Content"})
	for _, m := range messages {
		edited := "-"
		if m.EditedAt != nil {
			edited = m.EditedAt.Format("2006-01-02 15:04:05")
		}
		table.Append([]string{
			m.ID,
			strconv.FormatInt(m.SenderID, 10),
			m.CreatedAt.Format("2006-01-02 15:04:05"),
			edited,
			m.Content,
		})
	}
	return nil
}
