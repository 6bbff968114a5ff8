package main

import (
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	mode := os.Args[1]
	args := os.Args[2:]

	var err error
	switch mode {
	case "set":
		err = runSetMode(args)
	case "get":
		err = runGetMode(args)
	case "delete":
		err = runDeleteMode(args)
	case "list":
		err = runListMode(args)
	case "info":
		err = runInfoMode(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode: %s\n", mode)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: qcred <mode> [options]

Modes:
  set      Store a password (read from the terminal or stdin)
  get      Print a stored password
  delete   Remove a stored password and its key
  list     List the accounts stored for a service
  info     Show where credentials are kept

Options default from QCRED_* environment variables.
Run 'qcred <mode> -h' for mode-specific options.
`)
}

func runSetMode(args []string) error {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	opts := &CommonOptions{}
	opts.register(fs)
	fs.StringVar(&opts.Service, "service", "", "Service name")
	fs.StringVar(&opts.Account, "account", "", "Account name")
	if err := opts.parse(fs, args); err != nil {
		return err
	}
	return RunSet(opts, os.Stdin)
}

func runGetMode(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	opts := &CommonOptions{}
	opts.register(fs)
	fs.StringVar(&opts.Service, "service", "", "Service name")
	fs.StringVar(&opts.Account, "account", "", "Account name")
	if err := opts.parse(fs, args); err != nil {
		return err
	}
	return RunGet(opts, os.Stdout)
}

func runDeleteMode(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	opts := &CommonOptions{}
	opts.register(fs)
	fs.StringVar(&opts.Service, "service", "", "Service name")
	fs.StringVar(&opts.Account, "account", "", "Account name")
	if err := opts.parse(fs, args); err != nil {
		return err
	}
	return RunDelete(opts)
}

func runListMode(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	opts := &CommonOptions{}
	opts.register(fs)
	fs.StringVar(&opts.Service, "service", "", "Service name")
	fs.BoolVar(&opts.Long, "l", false, "Show when each key was created")
	if err := opts.parse(fs, args); err != nil {
		return err
	}
	return RunList(opts, os.Stdout)
}

func runInfoMode(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	opts := &CommonOptions{}
	opts.register(fs)
	if err := opts.parse(fs, args); err != nil {
		return err
	}
	return RunInfo(opts, os.Stdout)
}
