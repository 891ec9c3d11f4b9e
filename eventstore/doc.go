// Package eventstore implements an append-only, replayable event store on
// top of the mapped log.
//
// Events belong to aggregates. Within one aggregate the store assigns
// strictly increasing, gapless sequence numbers starting at 1, even under
// concurrent appends; a failed append does not consume a number. Appends are
// group-committed through a batch writer, so Sync is the durability barrier
// when individual events must be on disk before proceeding.
//
// # Quick Start
//
//	store, err := eventstore.Open(ctx, dir)
//	if err != nil {
//		return err
//	}
//	defer store.Close(ctx)
//
//	ev, err := store.Append(ctx, "order-42", "order.created", payload)
//	if err != nil {
//		return err
//	}
//	fmt.Println(ev.Seq) // 1
//
//	it := store.Replay(ctx, "order-42")
//	defer it.Close()
//	for ev, ok := it.Next(); ok; ev, ok = it.Next() {
//		handle(ev)
//	}
//	if err := it.Err(); err != nil {
//		return err
//	}
package eventstore
