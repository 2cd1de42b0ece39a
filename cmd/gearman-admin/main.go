// Command gearman-admin is a thin CLI client for scripting against a
// gearmand: TEXT-protocol admin commands plus binary submit/status,
// grounded on cmd/periodic/subcmd/*.go and cmd/client.go.
package main

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/bossjones/gearman-server/internal/protocol"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "gearman-admin",
		Usage: "CLI client for a gearman-server broker",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "H", Value: "127.0.0.1:4730", Usage: "broker address host:port"},
		},
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "show per-function status",
				Action: func(c *cli.Context) error { return textCommand(c.String("H"), "status") },
			},
			{
				Name:  "workers",
				Usage: "list connected workers",
				Action: func(c *cli.Context) error { return textCommand(c.String("H"), "workers") },
			},
			{
				Name:  "version",
				Usage: "show broker version",
				Action: func(c *cli.Context) error { return textCommand(c.String("H"), "version") },
			},
			{
				Name:  "maxqueue",
				Usage: "set a function's max_queue_size",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "f", Usage: "function name", Required: true},
					&cli.IntFlag{Name: "size", Usage: "max queue size", Required: true},
				},
				Action: func(c *cli.Context) error {
					return textCommand(c.String("H"), fmt.Sprintf("maxqueue %s %d", c.String("f"), c.Int("size")))
				},
			},
			{
				Name:  "submit",
				Usage: "submit a background job and print its handle",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "f", Usage: "function name", Required: true},
					&cli.StringFlag{Name: "unique", Usage: "dedup key"},
					&cli.StringFlag{Name: "data", Usage: "job workload"},
				},
				Action: func(c *cli.Context) error {
					return submitJob(c.String("H"), c.String("f"), c.String("unique"), []byte(c.String("data")))
				},
			},
			{
				Name:  "get-status",
				Usage: "look up a job handle's status",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "handle", Required: true},
				},
				Action: func(c *cli.Context) error {
					return getStatus(c.String("H"), c.String("handle"))
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func textCommand(addr, line string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return err
	}

	r := bufio.NewReader(conn)
	for {
		resp, err := r.ReadString('\n')
		if err != nil {
			return nil
		}
		fmt.Print(resp)
		if resp == ".\n" {
			return nil
		}
	}
}

func submitJob(addr, fn, unique string, data []byte) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	pkt, err := protocol.Encode(protocol.New(protocol.MagicReq, protocol.CmdSubmitJobBG, []byte(fn), []byte(unique), data))
	if err != nil {
		return err
	}
	if _, err := conn.Write(pkt); err != nil {
		return err
	}

	resp, err := readResponse(conn)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", resp.Command, resp.ArgString(0))
	return nil
}

func getStatus(addr, handle string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	pkt, err := protocol.Encode(protocol.New(protocol.MagicReq, protocol.CmdGetStatus, []byte(handle)))
	if err != nil {
		return err
	}
	if _, err := conn.Write(pkt); err != nil {
		return err
	}

	resp, err := readResponse(conn)
	if err != nil {
		return err
	}
	fmt.Printf("handle=%s known=%s running=%s numerator=%s denominator=%s\n",
		resp.ArgString(0), resp.ArgString(1), resp.ArgString(2), resp.ArgString(3), resp.ArgString(4))
	return nil
}

func readResponse(conn net.Conn) (protocol.Packet, error) {
	header := make([]byte, protocol.HeaderSize)
	if _, err := readFull(conn, header); err != nil {
		return protocol.Packet{}, err
	}
	_, _, argLen, err := protocol.DecodeHeader(header)
	if err != nil {
		return protocol.Packet{}, err
	}
	body := make([]byte, argLen)
	if argLen > 0 {
		if _, err := readFull(conn, body); err != nil {
			return protocol.Packet{}, err
		}
	}
	return protocol.Decode(header, body)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
