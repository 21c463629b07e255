package chunkstore

import (
	"encoding/json"
	"fmt"
)

// File documents are stored as JSON. They are small, read once per open and
// easy to inspect with backend tooling; chunks are stored as raw bytes.

func encodeInfo(info FileInfo) ([]byte, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode file document %s/%s: %w", info.Root, info.Name, err)
	}
	return data, nil
}

func decodeInfo(data []byte) (FileInfo, error) {
	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return FileInfo{}, fmt.Errorf("failed to decode file document: %w", err)
	}
	return info, nil
}
