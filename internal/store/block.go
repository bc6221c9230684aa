package store

import "encoding/json"

// Node is the structured serialization put_node and get_node operate on: an
// ordered list of child references plus an optional inline payload. The
// flat layout (internal/store/layout) uses Refs to list chunk CIDs in
// order; directory indices built by the virtual filesystem use Refs the
// same way, pairing them with names carried in Data.
type Node struct {
	Refs []CID
	Data []byte
}

// wireNode is Node's on-disk shape: CIDs serialize as their string form.
type wireNode struct {
	Refs []string `json:"refs,omitempty"`
	Data []byte   `json:"data,omitempty"`
}

// Marshal serializes the node for storage as a DagNode block.
func (n Node) Marshal() ([]byte, error) {
	w := wireNode{Data: n.Data}
	for _, ref := range n.Refs {
		w.Refs = append(w.Refs, ref.String())
	}
	return json.Marshal(w)
}

// UnmarshalNode parses the wire form Marshal produces.
func UnmarshalNode(data []byte) (Node, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return Node{}, err
	}
	n := Node{Data: w.Data}
	for _, s := range w.Refs {
		cid, err := ParseCID(s)
		if err != nil {
			return Node{}, err
		}
		n.Refs = append(n.Refs, cid)
	}
	return n, nil
}
