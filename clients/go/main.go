// chatsync CLI - command line client for a chatsync relay
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gatherhall/chatsync/clients/go/chatsync"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CHATSYNC_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	self := os.Getenv("CHATSYNC_USER")
	if self == "" {
		self = "cli"
	}

	client := chatsync.NewClient(baseURL)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "read":
		channel := argOr(2, "general")
		msgs, err := client.FetchMessages(ctx, channel)
		exitOnError(err)
		for _, msg := range msgs {
			printMessage(msg)
		}

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: chatsync send <channel> <text>")
			os.Exit(1)
		}
		msg, err := client.InsertMessage(ctx, chatsync.Outgoing{
			ChannelID:  os.Args[2],
			SenderName: self,
			Body:       os.Args[3],
		})
		exitOnError(err)
		fmt.Printf("sent %s\n", msg.ID)

	case "watch":
		channel := argOr(2, "general")
		watch(client, channel, self)

	default:
		usage()
		os.Exit(1)
	}
}

// watch joins a channel with the full sync engine and prints messages and
// typing indicators as they arrive, until interrupted.
func watch(client *chatsync.Client, channel, self string) {
	var mu sync.Mutex
	printed := 0

	var ch *chatsync.Channel
	ch = chatsync.NewChannel(client, chatsync.Params{ChannelID: channel, Self: self},
		chatsync.WithOnChange(func() {
			mu.Lock()
			defer mu.Unlock()
			msgs := ch.Messages()
			for ; printed < len(msgs); printed++ {
				printMessage(msgs[printed])
			}
			if typing := ch.TypingUsers(); len(typing) > 0 {
				names := make([]string, len(typing))
				for i, t := range typing {
					names[i] = t.Username
				}
				fmt.Printf("  (%v typing...)\n", names)
			}
		}))
	defer ch.Dispose()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := ch.Activate(ctx)
	cancel()
	exitOnError(err)

	fmt.Printf("watching #%s as %s (ctrl-c to quit)\n", channel, self)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func printMessage(msg chatsync.Message) {
	ts := msg.CreatedAt.Format("2006-01-02 15:04:05")
	marker := ""
	switch msg.State {
	case chatsync.Pending:
		marker = " (sending)"
	case chatsync.Failed:
		marker = " (failed)"
	}
	fmt.Printf("[%s] %s: %s%s\n", ts, msg.SenderName, msg.Body, marker)
}

func argOr(i int, def string) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return def
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `chatsync - relay client

Usage:
  chatsync read [channel]          print a channel's messages
  chatsync send <channel> <text>   post a message
  chatsync watch [channel]         follow a channel live

Environment:
  CHATSYNC_URL   relay base URL (default http://localhost:8080)
  CHATSYNC_USER  sender name (default cli)`)
}
