package index

import (
	"sort"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
)

// rank orders neighbors by distance then driver id and keeps the first k.
func rank(ns []outbound.Neighbor, k int) []outbound.Neighbor {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].DistanceKm != ns[j].DistanceKm {
			return ns[i].DistanceKm < ns[j].DistanceKm
		}
		return ns[i].DriverID < ns[j].DriverID
	})
	if len(ns) > k {
		ns = ns[:k]
	}
	return ns
}

func sortEntries(es []outbound.IndexEntry) {
	sort.Slice(es, func(i, j int) bool { return es[i].DriverID < es[j].DriverID })
}
