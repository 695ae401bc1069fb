package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"bunkr-rpc/discovery"
)

var layoutFlags struct {
	Name string
	TTL  int64
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Manage the socket endpoints published in etcd",
}

var layoutShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the endpoints clients would discover",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := etcdSource(cmd)
		if err != nil {
			return err
		}
		defer src.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		layout, err := src.Layout(ctx)
		if err != nil {
			return err
		}
		for _, endpoint := range layout.Socket {
			fmt.Println(endpoint)
		}
		return nil
	},
}

var layoutPublishCmd = &cobra.Command{
	Use:   "publish <endpoint>",
	Short: "Publish an endpoint under a lease and keep it alive until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := etcdSource(cmd)
		if err != nil {
			return err
		}
		defer src.Close()

		name := layoutFlags.Name
		if name == "" {
			name = strconv.FormatInt(time.Now().UnixNano(), 10)
		}
		ctx := cmd.Context()
		if err := src.Publish(ctx, name, args[0], layoutFlags.TTL); err != nil {
			return err
		}
		fmt.Printf("published %s as %s\n", args[0], name)
		<-ctx.Done()
		return nil
	},
}

var layoutWithdrawCmd = &cobra.Command{
	Use:   "withdraw <name>",
	Short: "Remove a published endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := etcdSource(cmd)
		if err != nil {
			return err
		}
		defer src.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		return src.Withdraw(ctx, args[0])
	},
}

func etcdSource(cmd *cobra.Command) (*discovery.EtcdSource, error) {
	cfg, err := loadEtcdConfig(cmd)
	if err != nil {
		return nil, err
	}
	if len(cfg.endpoints) == 0 {
		return nil, errors.New("etcd endpoints are required (--etcd or etcd_endpoints in the config file)")
	}
	return discovery.NewEtcdSource(cfg.endpoints, cfg.prefix)
}

var etcdFlags struct {
	Endpoints []string
	Prefix    string
}

type etcdConfig struct {
	endpoints []string
	prefix    string
}

// loadEtcdConfig reads etcd settings from --config, then from flags.
func loadEtcdConfig(cmd *cobra.Command) (etcdConfig, error) {
	cfg, err := readConfig(cmd)
	if err != nil {
		return etcdConfig{}, err
	}
	out := etcdConfig{endpoints: cfg.EtcdEndpoints, prefix: cfg.EtcdPrefix}
	if cmd.Flags().Changed("etcd") {
		out.endpoints = etcdFlags.Endpoints
	}
	if cmd.Flags().Changed("prefix") {
		out.prefix = etcdFlags.Prefix
	}
	if out.prefix == "" {
		out.prefix = discovery.DefaultEtcdPrefix
	}
	return out, nil
}

func init() {
	layoutCmd.PersistentFlags().StringSliceVar(&etcdFlags.Endpoints, "etcd", nil, "etcd endpoints")
	layoutCmd.PersistentFlags().StringVar(&etcdFlags.Prefix, "prefix", discovery.DefaultEtcdPrefix, "etcd key prefix")
	layoutPublishCmd.Flags().StringVar(&layoutFlags.Name, "name", "", "key name under the prefix (default: a timestamp)")
	layoutPublishCmd.Flags().Int64Var(&layoutFlags.TTL, "ttl", 10, "lease TTL in seconds")

	layoutCmd.AddCommand(layoutShowCmd)
	layoutCmd.AddCommand(layoutPublishCmd)
	layoutCmd.AddCommand(layoutWithdrawCmd)
}
