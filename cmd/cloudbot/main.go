package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lennartalff/cloudbot/pkg/api"
	"github.com/lennartalff/cloudbot/pkg/config"
	"github.com/lennartalff/cloudbot/pkg/version"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: cloudbot [flags] <command>

commands:
  status    show the daemon status (default)
  next      show the time of the next scheduled backup
  history   list recent backup runs
  backup    start a backup run

flags:`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if config.ShowVersion() {
		version.Print("cloudbot cli")
		return
	}

	if err := config.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err.Error())
		os.Exit(1)
	}

	addr := config.HTTP().Addr
	if addr == "" {
		fmt.Fprintln(os.Stderr, "the status api server is disabled ('http.addr' is empty)")
		os.Exit(1)
	}
	client := api.NewClient(addr)

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "", "status":
		var st *api.Status
		if st, err = client.Status(); err == nil {
			fmt.Println(st)
		}

	case "next":
		var st *api.Status
		if st, err = client.Status(); err == nil {
			fmt.Println(st.Next.Format(time.RFC1123))
		}

	case "history":
		err = printHistory(client)

	case "backup":
		if err = client.TriggerBackup(); err == nil {
			fmt.Println("backup started")
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown command:", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		os.Exit(1)
	}
}

func printHistory(client *api.Client) error {
	runs, err := client.Backups(20)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no backups so far")
		return nil
	}

	for _, r := range runs {
		outcome := "ok"
		if !r.Success {
			outcome = "FAILED: " + r.Error
		}
		fmt.Printf("%s  %-6s  %s  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Trigger, r.Dir, outcome)
	}
	return nil
}
