// leasectl is the operator CLI for requesting and releasing DRM leases
// against a running compositord over its control socket.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/outpostlabs/kmscore/internal/kms"
	"github.com/spf13/cobra"
)

func main() {
	var socketPath string

	root := &cobra.Command{
		Use:   "leasectl",
		Short: "Request and release DRM leases from a running compositord",
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", "/run/compositord/lease.sock", "compositord lease socket path")

	root.AddCommand(newRequestCmd(&socketPath), newReleaseCmd(&socketPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRequestCmd(socketPath *string) *cobra.Command {
	var devID uint64
	var connectorID uint32
	var hold bool

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a lease for a connector and print its lessee id, crtc id, and fd",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &kms.LeaseClient{SocketPath: *socketPath}
			lease, err := client.RequestLease(devID, connectorID)
			if err != nil {
				return fmt.Errorf("request lease: %w", err)
			}
			fmt.Printf("lessee=%d crtc=%d fd=%d\n", lease.LesseeID, lease.CrtcID, lease.FD)
			if !hold {
				return lease.Close()
			}
			fmt.Println("holding connection open; press Enter to release")
			fmt.Scanln()
			return lease.Close()
		},
	}
	cmd.Flags().Uint64Var(&devID, "device", 0, "device id (stat st_rdev of the card node)")
	cmd.Flags().Uint32Var(&connectorID, "connector", 0, "connector object id to lease")
	cmd.Flags().BoolVar(&hold, "hold", false, "keep the liveness connection open until Enter is pressed")
	cmd.MarkFlagRequired("device")
	cmd.MarkFlagRequired("connector")
	return cmd
}

func newReleaseCmd(socketPath *string) *cobra.Command {
	var devID uint64

	cmd := &cobra.Command{
		Use:   "release <lessee-id>",
		Short: "Release a previously granted lease by its lessee id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lesseeID, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid lessee id %q: %w", args[0], err)
			}
			client := &kms.LeaseClient{SocketPath: *socketPath}
			if err := client.ReleaseLease(devID, uint32(lesseeID)); err != nil {
				return fmt.Errorf("release lease: %w", err)
			}
			fmt.Printf("released lessee %d\n", lesseeID)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&devID, "device", 0, "device id (stat st_rdev of the card node)")
	cmd.MarkFlagRequired("device")
	return cmd
}
