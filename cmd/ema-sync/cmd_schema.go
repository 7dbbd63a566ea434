package main

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-sync/core/events"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"
)

// wireShapes maps channel names to the payload carried in an envelope's
// data field.
var wireShapes = map[string]any{
	"envelope":                  events.Envelope{},
	events.ChannelStore:         events.Raw{},
	events.ChannelAudioChunk:    events.AudioChunk{},
	events.ChannelAudioComplete: events.AudioComplete{},
	events.ChannelAudioError:    events.AudioError{},
	events.ChannelDispatch:      events.Said{},
}

var schemaCmd = &cobra.Command{
	Use:   "schema [channel...]",
	Short: "Print JSON schemas of the session wire format",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeSchemas(cmd.OutOrStdout(), args)
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

// writeSchemas prints the schemas of the named channels, or of all of them,
// as one JSON object keyed by channel.
func writeSchemas(w io.Writer, channels []string) error {
	if len(channels) == 0 {
		for channel := range wireShapes {
			channels = append(channels, channel)
		}
		sort.Strings(channels)
	}

	reflector := jsonschema.Reflector{DoNotReference: true}
	schemas := make(map[string]*jsonschema.Schema, len(channels))
	for _, channel := range channels {
		shape, ok := wireShapes[channel]
		if !ok {
			return goerr.New("unknown channel", goerr.V("channel", channel))
		}
		schemas[channel] = reflector.Reflect(shape)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(schemas); err != nil {
		return goerr.Wrap(err, "failed to encode schemas")
	}
	return nil
}
