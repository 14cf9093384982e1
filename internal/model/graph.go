package model

import (
	"fmt"
	"time"
)

// NodeType 节点类型
type NodeType string

const (
	NodeUser NodeType = "User"
	NodePost NodeType = "Post"
)

// Node 图节点，身份为 (Type, ID)
type Node struct {
	Type NodeType
	ID   string
}

func UserNode(id string) Node { return Node{Type: NodeUser, ID: id} }
func PostNode(id string) Node { return Node{Type: NodePost, ID: id} }

func (n Node) String() string { return string(n.Type) + "(" + n.ID + ")" }

// EdgeType 边类型
type EdgeType string

const (
	EdgeFollows EdgeType = "FOLLOWS"
	EdgeBlocks  EdgeType = "BLOCKS"
	EdgeLikes   EdgeType = "LIKES"
	EdgePosted  EdgeType = "POSTED"
)

// Endpoints returns the node types an edge of this type connects.
// FOLLOWS and BLOCKS are User→User, LIKES and POSTED are User→Post.
func (t EdgeType) Endpoints() (source, target NodeType, ok bool) {
	switch t {
	case EdgeFollows, EdgeBlocks:
		return NodeUser, NodeUser, true
	case EdgeLikes, EdgePosted:
		return NodeUser, NodePost, true
	}
	return "", "", false
}

// EdgeTypesFrom lists the edge types whose source may be a node of type nt.
func EdgeTypesFrom(nt NodeType) []EdgeType {
	if nt == NodeUser {
		return []EdgeType{EdgeFollows, EdgeBlocks, EdgeLikes, EdgePosted}
	}
	return nil
}

// EdgeTypesInto lists the edge types whose target may be a node of type nt.
func EdgeTypesInto(nt NodeType) []EdgeType {
	switch nt {
	case NodeUser:
		return []EdgeType{EdgeFollows, EdgeBlocks}
	case NodePost:
		return []EdgeType{EdgeLikes, EdgePosted}
	}
	return nil
}

// Edge 有向边，键为 (Source, Target, Type)；Since 取最大值
type Edge struct {
	Source string
	Target string
	Type   EdgeType
	Since  time.Time
}

func (e Edge) SourceNode() Node {
	st, _, _ := e.Type.Endpoints()
	return Node{Type: st, ID: e.Source}
}

func (e Edge) TargetNode() Node {
	_, tt, _ := e.Type.Endpoints()
	return Node{Type: tt, ID: e.Target}
}

func (e Edge) Validate() error {
	if _, _, ok := e.Type.Endpoints(); !ok {
		return fmt.Errorf("unknown edge type %q", e.Type)
	}
	if e.Source == "" || e.Target == "" {
		return fmt.Errorf("%s edge needs both endpoints", e.Type)
	}
	return nil
}
