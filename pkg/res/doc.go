/*
Package res implements the resource accounter: the authoritative ledger of
every platform resource known to the run-time resource manager.

Resources live in a rooted path tree (e.g. "arch.tile0.cluster1.pe0"). Every
leaf carries a static total and a set of per-view states, each tracking how
much of the leaf is used and by which application. Callers never touch a
leaf's state directly — all reads and writes go through the accounter and
name an explicit view token, so a scheduling policy can book a private,
disposable view without disturbing whatever the system view currently holds.

	┌────────────────────── RESOURCE ACCOUNTER ───────────────────────┐
	│                                                                   │
	│   ┌───────────────┐        ┌──────────────────────────────┐     │
	│   │ Resource Tree │   path │         Resource leaf         │     │
	│   │ (path lookup: │──────▶│  total: uint64 (unit-norm'd)  │     │
	│   │  exact /      │        │  states: view token → state   │     │
	│   │  template /   │        │    used uint64                │     │
	│   │  hybrid)      │        │    apps map[UID]uint64        │     │
	│   └───────────────┘        └──────────────────────────────┘     │
	│                                                                   │
	│   View lifecycle:  GetView ──▶ Book/Release (private) ──▶        │
	│                    PutView (discard)  or  SetView (promote)      │
	│                                                                   │
	│   System view (token 0) is the one every running application's   │
	│   allocation is drawn from; it changes only at SetView.          │
	└───────────────────────────────────────────────────────────────────┘

Booking has two entry points:

  - BookResources (scheduling booking): greedily takes
    min(requested, available) from each bind in list order, failing the
    whole usage map if the total available falls short;
  - SyncBookResources (sync booking): re-acquires, leaf by leaf, exactly
    the amounts the application holds in a source view, so the target view
    ends up bit-identical to it.

Failures (a missing usage map on release, a view token that no longer
exists, a size mismatch during sync replay) are returned as ResultCodes
(ErrMissApp, ErrMissView, ErrUsageExceeded); the error values declared in
errors.go for these cases are not returned by the accounter.
*/
package res
