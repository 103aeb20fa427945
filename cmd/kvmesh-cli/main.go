// cmd/kvmesh-cli is the operator CLI, built with Cobra.
//
// Usage:
//
//	kvmesh-cli set mykey "hello world"   --node http://localhost:50051
//	kvmesh-cli get mykey                 --node http://localhost:50051
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaranSinghDev/kvmesh/internal/client"
)

var (
	nodeAddr string
	timeout  time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "kvmesh-cli",
		Short: "Operator CLI for kvmesh",
	}

	root.PersistentFlags().StringVarP(&nodeAddr, "node", "n",
		"http://localhost:50051", "node to address the request to")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"request timeout")

	root.AddCommand(setCmd(), getCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a key-value pair, replicated across the cluster",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(nodeAddr, timeout)
			resp, err := c.Set(context.Background(), args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			return prettyPrint(resp)
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a value by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(nodeAddr, timeout)
			resp, err := c.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !resp.Found {
				fmt.Printf("key %q not found\n", args[0])
				return nil
			}
			return prettyPrint(resp)
		},
	}
}

func prettyPrint(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return nil
	}
	fmt.Println(string(data))
	return nil
}
