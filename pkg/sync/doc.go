/*
Package sync implements the Synchronization Manager (§4.E): the four-phase
commit protocol (PreChange, SyncChange, DoChange, PostChange) that carries
every EXC a scheduling cycle touched from its tentative next schedule to a
committed one. It is the scheduler manager's Handoff and the application
proxy's consumer — it never talks to an application process directly,
only through the ExecutorProxy interface.

An EXC that misses its per-phase deadline is disabled on the spot; the
session continues for everyone else. Once the four phases are done, the
scheduler's view (pre-booked with the holdings of every RUNNING EXC not
being reconfigured) is promoted to the system view via Accounter.SetView,
and every EXC that passed PostChange is committed into RUNNING (or
DISABLED, if it was BLOCKED).
*/
package sync
