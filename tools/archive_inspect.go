package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"

	"chat-relay/repositories"
)

// Offline viewer for the message archive. Opens the store read-only so
// it can run next to a live relay and dumps one table row per message.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	room := flag.String("room", "", "Restrict to one room (empty scans all rooms)")
	limit := flag.Int("limit", 0, "Stop after N rows (0 means no limit)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Room", "Time", "Author", "Lang", "Content"})
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

	prefix := "msg:"
	if *room != "" {
		prefix = fmt.Sprintf("msg:%s:", *room)
	}

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			if *limit > 0 && rows >= *limit {
				return nil
			}
			item := it.Item()

			err := item.Value(func(v []byte) error {
				var msg repositories.ArchivedMessage
				if err := json.Unmarshal(v, &msg); err != nil {
					// Keep scanning instead of aborting on one bad value.
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				table.Append([]string{
					string(item.Key()),
					msg.Room,
					msg.At.Format("2006-01-02 15:04:05"),
					msg.Author,
					msg.Lang,
					msg.Content,
				})
				rows++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	return badger.Open(opts)
}
