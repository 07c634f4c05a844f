package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bridge"
	"github.com/nextlevelbuilder/goclaw/internal/gateway"
)

// NodeBridgeAdapter bridges internal/bridge.Bridge and its PairStore to
// gateway.NodeBridge. Bridge already exposes Invoke/ApprovePair with almost
// the right shape; this adapter only renames/converts PairedNode and
// PendingPair into the control plane's NodePairSummary wire shape and
// surfaces PairStore.List/Pending/Reject, which Bridge itself keeps
// private.
type NodeBridgeAdapter struct {
	bridge *bridge.Bridge
	pairs  *bridge.PairStore
}

func NewNodeBridgeAdapter(b *bridge.Bridge, pairs *bridge.PairStore) *NodeBridgeAdapter {
	return &NodeBridgeAdapter{bridge: b, pairs: pairs}
}

func (a *NodeBridgeAdapter) List() []gateway.NodePairSummary {
	paired := a.pairs.List()
	out := make([]gateway.NodePairSummary, len(paired))
	for i, n := range paired {
		out[i] = gateway.NodePairSummary{
			NodeID:      n.NodeID,
			DisplayName: n.DisplayName,
			Platform:    n.Platform,
			Commands:    n.Commands,
			Connected:   a.bridge.Connected(n.NodeID),
		}
	}
	return out
}

func (a *NodeBridgeAdapter) Pending() []gateway.NodePairSummary {
	pending := a.pairs.Pending()
	out := make([]gateway.NodePairSummary, len(pending))
	for i, p := range pending {
		out[i] = gateway.NodePairSummary{
			NodeID:      p.NodeID,
			DisplayName: p.DisplayName,
			Platform:    p.Platform,
			Commands:    p.Commands,
		}
	}
	return out
}

func (a *NodeBridgeAdapter) Approve(nodeID string) (gateway.NodePairSummary, error) {
	n, err := a.bridge.ApprovePair(nodeID)
	if err != nil {
		return gateway.NodePairSummary{}, err
	}
	return gateway.NodePairSummary{
		NodeID:      n.NodeID,
		DisplayName: n.DisplayName,
		Platform:    n.Platform,
		Commands:    n.Commands,
		Connected:   a.bridge.Connected(n.NodeID),
	}, nil
}

func (a *NodeBridgeAdapter) Reject(nodeID string) {
	a.pairs.Reject(nodeID)
}

func (a *NodeBridgeAdapter) Invoke(ctx context.Context, nodeID, command string, params json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	return a.bridge.Invoke(ctx, nodeID, command, params, timeout)
}
