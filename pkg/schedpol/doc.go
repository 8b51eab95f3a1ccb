/*
Package schedpol defines the scheduling policy contract (§4.D) and ships
two reference implementations. A policy receives a read-mostly System
facade, picks — per eligible application — an AWM and a concrete resource
binding, and books the decision into the scheduler's view by calling the
application's SetNextSchedule. Neither the core nor this package mandates
which policy runs; the scheduler manager just invokes whatever Policy it
was configured with.
*/
package schedpol
