package main

import (
	"github.com/spf13/cobra"

	"bunkr-rpc/client"
	"bunkr-rpc/message"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stay connected and print state changes and every received packet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cli, log, err := connect(ctx, cmd)
		if err != nil {
			return err
		}
		defer cli.Close()

		log.Info().Str("account_id", cli.AccountID()).Msg("watching")
		cli.OnState(func(s client.State) {
			log.Info().Stringer("state", s).Int("value", int(s)).Msg("state")
		})
		cli.OnOpen(func(e client.OpenEvent) {
			log.Info().Str("url", e.URL).Str("transport", e.Transport).Msg("open")
		})
		cli.OnClose(func() {
			log.Warn().Msg("connection lost, reconnecting")
		})
		cli.OnError(func(err error) {
			log.Error().Err(err).Msg("client error")
		})
		cli.OnPacket(func(msg *message.Message) {
			if err := printMessage(msg); err != nil {
				log.Error().Err(err).Msg("print packet")
			}
		})

		<-ctx.Done()
		stats := cli.Stats()
		log.Info().
			Int("open", stats.Open).
			Int("sent", stats.Sent).
			Int("offline_sent", stats.OfflineSent).
			Int("onfly_saves", stats.OnflySaves).
			Int("received", stats.Received).
			Msg("stopped")
		return nil
	},
}
