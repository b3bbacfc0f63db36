package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/wapair/session-backend/api"
)

var serverAddrFlag = &cli.StringFlag{
	Name:  "server-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "base URL of the session provisioning service",
}

func main() {
	app := &cli.App{
		Name:  "statuscli",
		Usage: "Drive and observe the pairing handshake from the command line",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "print the current coordinator snapshot",
				Flags: []cli.Flag{serverAddrFlag},
				Action: func(cCtx *cli.Context) error {
					client := &api.Client{ServerAddr: cCtx.String(serverAddrFlag.Name)}
					st, err := client.Status()
					if err != nil {
						return err
					}
					printStatus(st)
					return nil
				},
			},
			{
				Name:  "start",
				Usage: "start a connection attempt and poll until it settles",
				Flags: []cli.Flag{
					serverAddrFlag,
					&cli.StringFlag{
						Name:  "method",
						Value: "qr",
						Usage: "pairing method: qr or pairing",
					},
					&cli.StringFlag{
						Name:  "phone",
						Usage: "phone number for the pairing method (digits only)",
					},
					&cli.DurationFlag{
						Name:  "poll-interval",
						Value: 2 * time.Second,
						Usage: "status poll interval",
					},
				},
				Action: func(cCtx *cli.Context) error {
					client := &api.Client{ServerAddr: cCtx.String(serverAddrFlag.Name)}

					_, err := client.StartSession(&api.StartSessionRequest{
						Method:      cCtx.String("method"),
						PhoneNumber: cCtx.String("phone"),
					})
					if err != nil {
						return err
					}
					fmt.Println("attempt accepted, polling...")

					interval := cCtx.Duration("poll-interval")
					for {
						time.Sleep(interval)
						st, err := client.Status()
						if err != nil {
							return err
						}
						printStatus(st)
						if st.State == "open" || st.State == "closed" || st.State == "error" {
							return nil
						}
					}
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func printStatus(st *api.StatusResponse) {
	fmt.Printf("state: %s\n", st.State)
	if st.PendingQR != "" {
		fmt.Printf("pending QR: %s\n", st.PendingQR)
	}
	if st.PendingPairingCode != "" {
		fmt.Printf("pairing code: %s\n", st.PendingPairingCode)
	}
	if st.LastError != "" {
		fmt.Printf("last error: %s\n", st.LastError)
	}
}
