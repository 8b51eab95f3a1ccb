/*
Package app holds the per-application data model: the Execution Context
(EXC) descriptor, its list of enabled Application Working Modes (AWMs), its
constraint map, and the per-EXC lifecycle state machine.

	DISABLED ──Enable──▶ READY ──policy picks──▶ SYNC ──commit──▶ RUNNING
	   ▲                   │                      │  (sub-state:         │
	   │                   │                      │   STARTING|RECONF|   │
	   └──────Disable───────┴──────Disable─────────┘   MIGREC|MIGRATE|    │
	   ▲                                               BLOCKED)          │
	   └────────────────── Disable / BLOCKED commit ───────────────────────┘
	Terminate (from DISABLED) ──▶ FINISHED

An EXC's enabled-AWM list is recomputed whenever its constraint map changes:
an AWM is enabled iff, for every constraint, the AWM's demand on that
resource satisfies the bound. The list stays sorted by AWM value ascending
so a policy can walk it best-QoS-last (the metric-ordered reference policy
in pkg/schedpol ignores this order and ranks (EXC, AWM) pairs by its own
score instead).
*/
package app
