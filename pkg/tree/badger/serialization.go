package badger

import (
	"encoding/json"
	"fmt"

	"github.com/marmos91/dittotree/pkg/tree"
)

func encodeNode(node *tree.Node) ([]byte, error) {
	data, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node: %w", err)
	}
	return data, nil
}

func decodeNode(data []byte) (*tree.Node, error) {
	var node tree.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to decode node: %w", err)
	}
	return &node, nil
}

func encodeEdge(edge *tree.Edge) ([]byte, error) {
	data, err := json.Marshal(edge)
	if err != nil {
		return nil, fmt.Errorf("failed to encode edge: %w", err)
	}
	return data, nil
}

func decodeEdge(data []byte) (*tree.Edge, error) {
	var edge tree.Edge
	if err := json.Unmarshal(data, &edge); err != nil {
		return nil, fmt.Errorf("failed to decode edge: %w", err)
	}
	return &edge, nil
}
