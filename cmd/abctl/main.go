// Command abctl is the operator-facing CLI for abd: it talks to the admin
// control surface over the daemon's unix socket, the same client-side shape
// as the teacher's kr CLI talking to krd over DaemonDial.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/agrinman/abd"
	"github.com/fatih/color"
	"github.com/urfave/cli"
)

func green(s string) string {
	c := color.New(color.FgHiGreen)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func red(s string) string {
	c := color.New(color.FgHiRed)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func yellow(s string) string {
	c := color.New(color.FgHiYellow)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func controlClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}
}

func defaultSocketPath(c *cli.Context) string {
	if p := c.GlobalString("socket"); p != "" {
		return p
	}
	cfg, err := abd.DefaultConfig()
	if err != nil {
		return "abd.sock"
	}
	return cfg.StateFile("abd.sock")
}

type transportInfo struct {
	TransportID string   `json:"transport_id"`
	Serial      string   `json:"serial"`
	State       string   `json:"state"`
	Features    []string `json:"features"`
}

func versionCommand(c *cli.Context) error {
	client := controlClient(defaultSocketPath(c))
	resp, err := client.Get("http://unix/version")
	if err != nil {
		fmt.Fprintln(os.Stderr, red("abctl ▶ "+err.Error()))
		return err
	}
	defer resp.Body.Close()
	var body [64]byte
	n, _ := resp.Body.Read(body[:])
	fmt.Println(green(string(body[:n])))
	return nil
}

func transportsCommand(c *cli.Context) error {
	client := controlClient(defaultSocketPath(c))
	resp, err := client.Get("http://unix/transports")
	if err != nil {
		fmt.Fprintln(os.Stderr, red("abctl ▶ "+err.Error()))
		return err
	}
	defer resp.Body.Close()

	var transports []transportInfo
	if err := json.NewDecoder(resp.Body).Decode(&transports); err != nil {
		fmt.Fprintln(os.Stderr, red("abctl ▶ "+err.Error()))
		return err
	}
	if len(transports) == 0 {
		fmt.Println(yellow("no transports connected"))
		return nil
	}
	for _, t := range transports {
		fmt.Printf("%s\t%s\t%s\t%v\n", t.TransportID, t.Serial, green(t.State), t.Features)
	}
	return nil
}

func kickCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.NewExitError("usage: abctl kick <transport_id>", 1)
	}
	client := controlClient(defaultSocketPath(c))
	u := "http://unix/kick?" + url.Values{"transport_id": {id}}.Encode()
	resp, err := client.Post(u, "", nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, red("abctl ▶ "+err.Error()))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return cli.NewExitError(fmt.Sprintf("kick failed: %s", resp.Status), 1)
	}
	fmt.Println(green("kicked " + id))
	return nil
}

func pingCommand(c *cli.Context) error {
	client := controlClient(defaultSocketPath(c))
	resp, err := client.Get("http://unix/ping")
	if err != nil {
		fmt.Fprintln(os.Stderr, red("abctl ▶ "+err.Error()))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		fmt.Println(green("pong"))
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "abctl"
	app.Usage = "communicate with abd - the device bridge daemon"
	app.Version = abd.CURRENT_VERSION.String()
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "socket",
			Usage: "path to abd's admin control socket",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "version",
			Usage:  "Print the running daemon's version",
			Action: versionCommand,
		},
		{
			Name:   "transports",
			Usage:  "List currently connected transports",
			Action: transportsCommand,
		},
		{
			Name:   "kick",
			Usage:  "Force a transport offline by id",
			Action: kickCommand,
		},
		{
			Name:   "ping",
			Usage:  "Check that the daemon is alive",
			Action: pingCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, red("abctl ▶ "+err.Error()))
		os.Exit(1)
	}
}
