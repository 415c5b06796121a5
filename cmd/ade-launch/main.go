package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/0xADE/ade-launchd/client/launch"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ade-launch: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	limitFlag := &cli.IntFlag{
		Name:    "limit",
		Aliases: []string{"n"},
		Usage:   "Maximum number of results, 0 for the daemon default",
	}
	return &cli.App{
		Name:  "ade-launch",
		Usage: "Query and control the ade-launchd program index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "socket",
				Aliases: []string{"s"},
				Usage:   "Path to the daemon socket",
				EnvVars: []string{launch.SocketEnv},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Rank programs against a query",
				ArgsUsage: "<query>",
				Flags:     []cli.Flag{limitFlag},
				Action:    searchCommand,
			},
			{
				Name:   "list",
				Usage:  "List programs by usage",
				Flags:  []cli.Flag{limitFlag},
				Action: listCommand,
			},
			{
				Name:      "run",
				Usage:     "Launch a program by id",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "terminal",
						Aliases: []string{"t"},
						Usage:   "Run inside the terminal emulator",
					},
				},
				Action: runCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the index now",
				Action: reindexCommand,
			},
			{
				Name:   "version",
				Usage:  "Print the published index version",
				Action: versionCommand,
			},
			{
				Name:   "status",
				Usage:  "Print the outcome of the last rebuild",
				Action: statusCommand,
			},
			{
				Name:      "icon",
				Usage:     "Write the icon of a program",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Output file",
						Required: true,
					},
				},
				Action: iconCommand,
			},
			{
				Name:   "interactive",
				Usage:  "Send raw commands read from stdin",
				Action: interactiveCommand,
			},
		},
	}
}

func connect(c *cli.Context) (*launch.Client, error) {
	if socket := c.String("socket"); socket != "" {
		return launch.Dial(socket)
	}
	return launch.NewClient()
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("search requires a query")
	}
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	results, err := client.Search(strings.Join(c.Args().Slice(), " "), c.Int("limit"))
	if err != nil {
		return err
	}
	return printResults(c.App.Writer, results)
}

func listCommand(c *cli.Context) error {
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	results, err := client.List(c.Int("limit"))
	if err != nil {
		return err
	}
	return printResults(c.App.Writer, results)
}

func printResults(w io.Writer, results []launch.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%.1f\t%s\n", r.ID, r.Score, r.Name)
	}
	return tw.Flush()
}

func runCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("run requires exactly one id")
	}
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	id := c.Args().First()
	var l launch.Launched
	if c.Bool("terminal") {
		l, err = client.RunInTerminal(id)
	} else {
		l, err = client.Run(id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "started %s pid %d (launch %d)\n", l.ID, l.PID, l.Launches)
	return nil
}

func reindexCommand(c *cli.Context) error {
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	version, indexed, err := client.Reindex()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "version %d, %d entries\n", version, indexed)
	return nil
}

func versionCommand(c *cli.Context) error {
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	version, err := client.Version()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, version)
	return nil
}

func statusCommand(c *cli.Context) error {
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Status()
	if err != nil {
		return err
	}
	for _, key := range []string{"version", "entries", "sources", "failed", "rebuilding", "rebuilds", "usage-keys", "finished", "took", "last-error"} {
		if v, ok := resp.Attrs[key]; ok {
			fmt.Fprintf(c.App.Writer, "%s: %s\n", key, v)
		}
	}
	for _, name := range resp.Body {
		fmt.Fprintf(c.App.Writer, "failed source: %s\n", name)
	}
	return nil
}

func iconCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("icon requires exactly one id")
	}
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	data, err := client.Icon(c.Args().First())
	if err != nil {
		return err
	}
	return os.WriteFile(c.String("out"), data, 0644)
}

func interactiveCommand(c *cli.Context) error {
	client, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	scanner := bufio.NewScanner(c.App.Reader)
	out := c.App.Writer

	fmt.Fprintln(out, "Interactive mode. Type commands or 'exit' to quit.")
	fmt.Fprint(out, "> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "exit" || line == "quit" {
			break
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			fmt.Fprint(out, "> ")
			continue
		}

		// Arguments come first, the command word last
		cmd := parts[len(parts)-1]
		resp, err := client.Do(cmd, parts[:len(parts)-1])
		if err != nil {
			fmt.Fprintln(c.App.ErrWriter, err)
		} else {
			keys := make([]string, 0, len(resp.Attrs))
			for k := range resp.Attrs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%s: %s\n", k, resp.Attrs[k])
			}
			for _, b := range resp.Body {
				fmt.Fprintln(out, b)
			}
		}
		fmt.Fprint(out, "> ")
	}

	return scanner.Err()
}
