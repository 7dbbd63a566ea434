package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestWriteSchemasAllChannels(t *testing.T) {
	var out bytes.Buffer
	gt.NoError(t, writeSchemas(&out, nil))

	var schemas map[string]struct {
		Properties map[string]any `json:"properties"`
	}
	gt.NoError(t, json.Unmarshal(out.Bytes(), &schemas))
	gt.Equal(t, len(schemas), 6)

	store, ok := schemas["store"]
	gt.True(t, ok)
	for _, key := range []string{"_id", "_kind", "_timestamp", "content", "soulId"} {
		_, ok := store.Properties[key]
		gt.True(t, ok)
	}

	chunk := schemas["ephemeral:audio-chunk"]
	_, ok = chunk.Properties["chunkBase64"]
	gt.True(t, ok)
}

func TestWriteSchemasSelectedChannel(t *testing.T) {
	var out bytes.Buffer
	gt.NoError(t, writeSchemas(&out, []string{"dispatch"}))
	gt.S(t, out.String()).Contains("connectedUsers")
	gt.S(t, out.String()).NotContains("chunkBase64")

	gt.Error(t, writeSchemas(&out, []string{"nope"}))
}
