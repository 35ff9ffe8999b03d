package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dkeye/Huddle/internal/domain"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimSuffix(flagServer, "/")+"/api/rooms", nil)
		if err != nil {
			return err
		}
		hc := &http.Client{Timeout: flagTimeout}
		resp, err := hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server answered %s", resp.Status)
		}

		var rooms []domain.RoomInfo
		if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROOM\tPEERS\tREADY")
		for _, r := range rooms {
			fmt.Fprintf(w, "%s\t%d\t%v\n", r.ID, r.PeerCount, r.Ready)
		}
		return w.Flush()
	},
}
