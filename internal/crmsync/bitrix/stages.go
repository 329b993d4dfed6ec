package bitrix

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
)

type stageWire struct {
	StatusID string `json:"STATUS_ID"`
	Sort     int    `json:"SORT"`
}

// FetchStageTable pulls the main-funnel deal stage listing and builds the
// sort-order-indexed table reconciliation policy dispatches against,
// replacing a hard-coded stage set with whatever the portal is actually
// configured with.
func FetchStageTable(ctx context.Context, client *Client) (domain.StageTable, error) {
	raw, err := client.Call(ctx, "crm.dealcategory.stage.list", map[string]interface{}{
		"id": domain.MainFunnelCategoryID,
	})
	if err != nil {
		return nil, err
	}

	var wire []stageWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	sort.Slice(wire, func(i, j int) bool { return wire[i].Sort < wire[j].Sort })

	table := make(domain.StageTable, len(wire))
	for i, w := range wire {
		table[i+1] = domain.Stage{ExternalID: w.StatusID, SortOrder: i + 1}
	}
	return table, nil
}
