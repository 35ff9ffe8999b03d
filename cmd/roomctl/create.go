package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkeye/Huddle/internal/client"
)

var createCmd = &cobra.Command{
	Use:   "create <room-id>",
	Short: "Create a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
		defer cancel()
		sess := client.NewSession(conn, &client.StaticDevice{}, client.SessionConfig{})
		defer sess.Close()
		if err := sess.CreateRoom(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("room %s created\n", args[0])
		return nil
	},
}
