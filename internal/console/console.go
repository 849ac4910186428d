// Package console implements the interactive command prompt of a running
// node. It is a thin shell over node.Client: every command maps onto one
// client call, and broadcast messages surfaced by the node are printed as
// they arrive.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"peerscope/internal/node"
	"peerscope/internal/proto"
)

type Console struct {
	client     node.Client
	broadcasts <-chan proto.BroadcastMsg
	in         io.Reader
	out        io.Writer
	log        *zap.Logger
}

func New(client node.Client, broadcasts <-chan proto.BroadcastMsg, in io.Reader, out io.Writer, log *zap.Logger) *Console {
	return &Console{client: client, broadcasts: broadcasts, in: in, out: out, log: log}
}

// Run reads commands until the input stream ends, "quit" is entered or ctx
// is cancelled. Input is consumed on a separate goroutine so cancellation is
// not held up by a blocking read.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printf("type 'help' for available commands\n")
	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.broadcasts:
			if !ok {
				c.broadcasts = nil
				continue
			}
			c.printf("\n[%s] %s\n", msg.Hostname, msg.Message)
			c.prompt()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.exec(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
			c.prompt()
		}
	}
}

func (c *Console) exec(ctx context.Context, line string) (quit bool) {
	if line == "" {
		return false
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		c.printHelp()
	case "ls":
		if rest != "p" {
			c.printf("usage: ls p\n")
			return false
		}
		err = c.listPeers(ctx)
	case "req":
		if rest == "" {
			c.printf("usage: req all | req <peer-id>\n")
			return false
		}
		if rest == "all" {
			err = c.client.RequestAllPeerStatus(ctx)
		} else {
			err = c.client.RequestPeerStatus(ctx, rest)
		}
		if err == nil {
			c.printf("status request sent\n")
		}
	case "status":
		err = c.showStatus(ctx)
	case "send":
		if rest == "" {
			c.printf("usage: send <text>\n")
			return false
		}
		err = c.client.Broadcast(ctx, rest)
		if err == nil {
			c.printf("broadcast sent\n")
		}
	default:
		c.printf("unknown command %q, type 'help'\n", cmd)
	}
	if err != nil {
		c.printf("error: %v\n", err)
	}
	return false
}

func (c *Console) listPeers(ctx context.Context) error {
	peers, err := c.client.ListDiscoveredPeers(ctx)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		c.printf("no peers discovered\n")
		return nil
	}
	for _, p := range peers {
		c.printf("%s\n", p)
	}
	return nil
}

func (c *Console) showStatus(ctx context.Context) error {
	dir, err := c.client.AccumulatedPeerStatus(ctx)
	if err != nil {
		return err
	}
	if len(dir) == 0 {
		c.printf("no peer status collected yet\n")
		return nil
	}
	ids := make([]string, 0, len(dir))
	for id := range dir {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec := dir[id]
		c.printf("%s  host=%s  %s\n", rec.ID, rec.Hostname, rec.Description)
	}
	return nil
}

func (c *Console) printHelp() {
	c.printf("ls p           list discovered peers\n")
	c.printf("req all        request status from all peers\n")
	c.printf("req <peer-id>  request status from one peer\n")
	c.printf("status         show accumulated peer status\n")
	c.printf("send <text>    broadcast a chat message\n")
	c.printf("quit           leave the console\n")
}

func (c *Console) prompt() {
	c.printf("> ")
}

func (c *Console) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(c.out, format, args...); err != nil {
		c.log.Debug("console write failed", zap.Error(err))
	}
}
