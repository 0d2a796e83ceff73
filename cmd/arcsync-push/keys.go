package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/marcus/arcsync/internal/webpush"
)

func runVapidKeys(args []string) {
	fs := flag.NewFlagSet("vapid-keys", flag.ExitOnError)
	env := fs.Bool("env", false, "print as PUSH_VAPID_* environment assignments")
	fs.Parse(args)

	pub, priv, err := webpush.GenerateKeys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: generate keys: %v\n", err)
		os.Exit(1)
	}

	if *env {
		fmt.Printf("PUSH_VAPID_PUBLIC_KEY=%s\n", pub)
		fmt.Printf("PUSH_VAPID_PRIVATE_KEY=%s\n", priv)
		return
	}
	fmt.Printf("Public key:  %s\n", pub)
	fmt.Printf("Private key: %s\n", priv)
}
