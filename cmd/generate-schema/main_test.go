package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSchema(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSchema(&buf))

	var doc struct {
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "DittoGrid Configuration", doc.Title)
	for _, section := range []string{"logging", "server", "store", "grid", "gateway", "gc", "metrics"} {
		assert.Contains(t, doc.Properties, section)
	}
	assert.Contains(t, string(doc.Properties["grid"]), "root_collection")
	assert.Contains(t, string(doc.Properties["gateway"]), "rate_limit")
}
