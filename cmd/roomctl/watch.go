package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/Huddle/internal/client"
	"github.com/dkeye/Huddle/internal/protocol"
)

var flagWatchName string

var watchCmd = &cobra.Command{
	Use:   "watch <room-id>",
	Short: "Join a room and print its events until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rcfg, err := recoveryConfig()
		if err != nil {
			return err
		}
		conn, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sess := client.NewSession(conn, &client.StaticDevice{}, client.SessionConfig{
			Recovery: rcfg,
			OnEvent:  printEvent,
			OnFatal: func(err error) {
				fmt.Println("session ended:", err)
				cancel()
			},
		})
		defer sess.Close()

		jctx, jcancel := context.WithTimeout(ctx, flagTimeout)
		defer jcancel()
		snap, err := sess.Join(jctx, protocol.JoinRequest{Name: flagWatchName, RoomID: args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("joined %s as %s (%s)\n", snap.RoomID, snap.Self.Name, snap.Self.ID)
		for _, p := range snap.Participants {
			fmt.Printf("  participant %s %s trainer=%v\n", p.ID, p.Name, p.IsTrainer)
		}
		for id, c := range sess.Consumers() {
			fmt.Printf("  consuming %s %s from %s (consumer %s)\n", c.MediaKind, c.ProducerID, c.PeerID, id)
		}

		err = sess.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().StringVarP(&flagWatchName, "name", "n", "roomctl", "display name")
}

func printEvent(m protocol.Message) {
	fmt.Printf("%s %-22s %s\n", time.Now().Format("15:04:05"), m.Method, string(m.Data))
}
