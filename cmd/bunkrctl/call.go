package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bunkr-rpc/client"
	"bunkr-rpc/message"
)

var callFlags struct {
	Headers map[string]string
	Date    int64
}

// verbCmds returns one command per request verb.
func verbCmds() []*cobra.Command {
	verbs := []message.Verb{
		message.VerbGet,
		message.VerbSearch,
		message.VerbPost,
		message.VerbPut,
		message.VerbDelete,
	}

	cmds := make([]*cobra.Command, 0, len(verbs))
	for _, verb := range verbs {
		cmd := &cobra.Command{
			Use:   string(verb) + " <resource> [json-body]",
			Short: fmt.Sprintf("Send a %s request and print the response", verb),
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCall(cmd, verb, args)
			},
		}
		cmd.Flags().StringToStringVarP(&callFlags.Headers, "header", "H", nil, "request header key=value")
		cmd.Flags().Int64Var(&callFlags.Date, "date", 0, "request timestamp in milliseconds")
		cmds = append(cmds, cmd)
	}
	return cmds
}

func runCall(cmd *cobra.Command, verb message.Verb, args []string) error {
	var body any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &body); err != nil {
			return fmt.Errorf("parse body: %w", err)
		}
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	cli, _, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer cli.Close()

	opts := []client.RequestOption{client.WithHeaders(callFlags.Headers)}
	if callFlags.Date != 0 {
		opts = append(opts, client.WithDate(callFlags.Date))
	}

	resp, err := cli.Do(ctx, verb, args[0], body, opts...)
	if err != nil {
		return err
	}
	return printMessage(resp)
}

func printMessage(msg *message.Message) error {
	var body any
	if err := msg.DecodeBody(&body); err != nil {
		body = msg.BodyString()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"type":     msg.Type,
		"resource": msg.Resource,
		"id":       msg.ID,
		"status":   msg.Status,
		"headers":  msg.Headers,
		"body":     body,
	})
}
