package memory

import (
	"sort"

	"caseboard/pkg/domain"
)

// sortClients orders records by creation time, then id, giving scans a
// deterministic order (alternate-key candidate matching takes the first
// hit, so ordering matters).
func sortClients(clients []domain.Client) {
	sort.Slice(clients, func(i, j int) bool {
		if !clients[i].CreatedAt.Equal(clients[j].CreatedAt) {
			return clients[i].CreatedAt.Before(clients[j].CreatedAt)
		}
		return clients[i].ID < clients[j].ID
	})
}
