// Package querysync keeps client-side copies of server data in sync with the
// server. It decides when a read needs a network fetch, shares one in-flight
// fetch between every consumer of a key, and refreshes reads after writes.
//
// Components:
//   - Store: keyed cache of Entry values with ordered change notification.
//   - Client: query coordinator. Single-flight fetches, staleness checks,
//     interval polling and focus-driven refetch.
//   - Mutation[In, Out]: write coordinator. Tracks the latest invocation and
//     applies its InvalidationRule on success.
//   - QueryObserver[T]: a mounted, typed consumer of one key.
//   - GenStore: invalidation generations per key (genstore package).
//
// Keys are ordered tuples compared by their JSON encoding:
//
//	querysync.K("orders")          // the order list
//	querysync.K("order", "order-1") // one order
//
// Invalidation pattern:
//
//	obs, _ := querysync.Observe(c, querysync.K("orders"), listOrders, querysync.QueryOptions{})
//	create := querysync.NewMutation(c, "createOrder", createOrder,
//		querysync.Invalidates[string, string](querysync.Prefix(querysync.K("orders"))))
//	_, _ = create.Mutate(ctx, "Latte") // obs refetches in the background
//
// Entries keep their data while a refetch runs (stale-while-revalidate). A fetch
// that started before an invalidation still lands, but the entry stays stale and
// mounted keys fetch once more.
package querysync
